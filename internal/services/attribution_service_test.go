package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestAttributionService_GetAttribution(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAttributionService(db)

	t.Run("assigned owner wins over creator", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(42, 7, true, sqlTime()))

		attribution, err := service.GetAttribution(5)
		assert.NoError(t, err)
		assert.Equal(t, int64(42), attribution.ConsultantID)
		assert.True(t, attribution.Locked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to creator when unassigned", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(0, 7, false, nil))

		attribution, err := service.GetAttribution(5)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), attribution.ConsultantID)
		assert.False(t, attribution.Locked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttributionService_LockAttribution(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAttributionService(db)

	t.Run("one-shot lock with audit entry", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, created_by\\), attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"owner", "attribution_locked"}).AddRow(42, false))
		mock.ExpectExec("UPDATE companies").
			WithArgs(int64(42), sqlmock.AnyArg(), int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO attribution_audits").
			WithArgs(int64(5), "LOCK", int64(9), int64(42), int64(42), "lead conversion", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := service.LockAttribution(5, 9)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second lock fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, created_by\\), attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"owner", "attribution_locked"}).AddRow(42, true))
		mock.ExpectRollback()

		err := service.LockAttribution(5, 9)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttributionService_OverrideAttribution(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAttributionService(db)

	t.Run("requires a reason", func(t *testing.T) {
		err := service.OverrideAttribution(5, 50, 9, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "reason")
	})

	t.Run("works regardless of lock and records previous owner", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, created_by\\)").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"owner"}).AddRow(42))
		mock.ExpectExec("UPDATE companies").
			WithArgs(int64(50), sqlmock.AnyArg(), int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO attribution_audits").
			WithArgs(int64(5), "OVERRIDE", int64(9), int64(42), int64(50), "account handover", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := service.OverrideAttribution(5, 50, 9, "account handover")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttributionService_IsCommissionEligible(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAttributionService(db)

	expectOwner := func(owner int64, locked bool) {
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(owner, 7, locked, sqlTime()))
	}

	t.Run("locked and owned pays", func(t *testing.T) {
		expectOwner(42, true)
		eligible, err := service.IsCommissionEligible(5, 42)
		assert.NoError(t, err)
		assert.True(t, eligible)
	})

	t.Run("unlocked never pays", func(t *testing.T) {
		expectOwner(42, false)
		eligible, err := service.IsCommissionEligible(5, 42)
		assert.NoError(t, err)
		assert.False(t, eligible)
	})

	t.Run("ownership change stops the old owner", func(t *testing.T) {
		expectOwner(50, true)
		eligible, err := service.IsCommissionEligible(5, 42)
		assert.NoError(t, err)
		assert.False(t, eligible)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
