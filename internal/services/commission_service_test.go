package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/talenthub/backend/internal/models"
)

func expectGetOrCreateAccount(mock sqlmock.Sqlmock, ownerType string, ownerID, accountID, balance int64) {
	mock.ExpectExec("INSERT INTO virtual_accounts").
		WithArgs(ownerType, ownerID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, owner_type, owner_id, balance").
		WithArgs(ownerType, ownerID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_type", "owner_id", "balance", "total_credits", "total_debits", "status", "created_at", "updated_at"}).
			AddRow(accountID, ownerType, ownerID, balance, balance, 0, models.AccountStatusActive, sqlTime(), sqlTime()))
}

func TestCommissionService_AwardCommission(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db)
	notifier := NewNotificationService(db, nil)
	service := NewCommissionService(db, ledger, notifier, 0)

	t.Run("commission row and wallet credit commit together", func(t *testing.T) {
		expectGetOrCreateAccount(mock, models.OwnerTypeConsultant, 3, 11, 0)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO commissions").
			WithArgs(int64(3), int64(2), models.CommissionTypeJobAssignment, int64(5000),
				models.CommissionStatusConfirmed, models.RefTypeJobPayment, int64(77), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
		expectLockAccount(mock, 11, 0, 0, 0, models.AccountStatusActive)
		expectApplyBalance(mock, 11, 5000, 5000, 0)
		expectAppendEntry(mock, 1)
		mock.ExpectCommit()

		commission, err := service.AwardCommission(3, 2, 5000, models.CommissionTypeJobAssignment,
			&LedgerRef{Type: models.RefTypeJobPayment, ID: 77})
		assert.NoError(t, err)
		assert.Equal(t, int64(5), commission.ID)
		assert.Equal(t, models.CommissionStatusConfirmed, commission.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replayed event surfaces as duplicate", func(t *testing.T) {
		expectGetOrCreateAccount(mock, models.OwnerTypeConsultant, 3, 11, 5000)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO commissions").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := service.AwardCommission(3, 2, 5000, models.CommissionTypeJobAssignment,
			&LedgerRef{Type: models.RefTypeJobPayment, ID: 77})
		assert.ErrorIs(t, err, ErrDuplicateRequest)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		_, err := service.AwardCommission(3, 2, 0, models.CommissionTypeJobAssignment, nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

// $150 request against CONFIRMED commissions of $100 and $80, oldest first:
// the covering set is both rows, but approval debits exactly $150.
func TestCommissionService_RequestWithdrawal(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db)
	notifier := NewNotificationService(db, nil)
	service := NewCommissionService(db, ledger, notifier, 0)

	t.Run("covering set selected oldest first", func(t *testing.T) {
		expectGetOrCreateAccount(mock, models.OwnerTypeConsultant, 3, 11, 20000)
		mock.ExpectQuery("SELECT id, amount FROM commissions").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}).
				AddRow(1, 10000).
				AddRow(2, 8000).
				AddRow(3, 4000))
		mock.ExpectQuery("INSERT INTO commission_withdrawals").
			WithArgs(int64(3), int64(15000), models.WithdrawalStatusPending,
				pq.Array([]int64{1, 2}), "BANK_TRANSFER", "IBAN XX00", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

		withdrawal, err := service.RequestWithdrawal(3, 15000, "BANK_TRANSFER", "IBAN XX00")
		assert.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, []int64(withdrawal.CommissionIDs))
		assert.Equal(t, int64(15000), withdrawal.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validated against wallet balance", func(t *testing.T) {
		expectGetOrCreateAccount(mock, models.OwnerTypeConsultant, 3, 11, 1000)

		_, err := service.RequestWithdrawal(3, 15000, "BANK_TRANSFER", "IBAN XX00")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("configured minimum enforced before any query", func(t *testing.T) {
		floored := NewCommissionService(db, ledger, notifier, 5000)

		_, err := floored.RequestWithdrawal(3, 4999, "BANK_TRANSFER", "IBAN XX00")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Contains(t, err.Error(), "below the minimum of 5000 cents")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func expectLockWithdrawal(mock sqlmock.Sqlmock, withdrawalID, consultantID, amount int64, status string, commissionIDs string) {
	// commission_ids arrives as the postgres array literal, e.g. "{1,2}"
	mock.ExpectQuery("SELECT consultant_id, amount, status, commission_ids").
		WithArgs(withdrawalID).
		WillReturnRows(sqlmock.NewRows([]string{"consultant_id", "amount", "status", "commission_ids"}).
			AddRow(consultantID, amount, status, commissionIDs))
}

func TestCommissionService_ApproveWithdrawal(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db)
	notifier := NewNotificationService(db, nil)
	service := NewCommissionService(db, ledger, notifier, 0)

	t.Run("debits exactly the requested amount", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockWithdrawal(mock, 9, 3, 15000, models.WithdrawalStatusPending, "{1,2}")
		mock.ExpectQuery("SELECT id FROM virtual_accounts WHERE owner_type = 'CONSULTANT'").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		expectLockAccount(mock, 11, 20000, 20000, 0, models.AccountStatusActive)
		expectApplyBalance(mock, 11, 5000, 0, 15000)
		expectAppendEntry(mock, 4)
		mock.ExpectExec("UPDATE commission_withdrawals").
			WithArgs(int64(7), "PAYREF-1", sqlmock.AnyArg(), int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE commissions").
			WithArgs(sqlmock.AnyArg(), pq.Array([]int64{1, 2})).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("UPDATE consultants").
			WithArgs(int64(15000), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.ApproveWithdrawal(9, 7, "PAYREF-1")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("balance re-checked under lock", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockWithdrawal(mock, 9, 3, 15000, models.WithdrawalStatusPending, "{1,2}")
		mock.ExpectQuery("SELECT id FROM virtual_accounts WHERE owner_type = 'CONSULTANT'").
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		expectLockAccount(mock, 11, 4000, 20000, 16000, models.AccountStatusActive)
		mock.ExpectRollback()

		err := service.ApproveWithdrawal(9, 7, "PAYREF-1")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal states refuse re-approval", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockWithdrawal(mock, 9, 3, 15000, models.WithdrawalStatusApproved, "{1,2}")
		mock.ExpectRollback()

		err := service.ApproveWithdrawal(9, 7, "PAYREF-1")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCommissionService_RejectWithdrawal(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db)
	notifier := NewNotificationService(db, nil)
	service := NewCommissionService(db, ledger, notifier, 0)

	t.Run("pure status transition", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockWithdrawal(mock, 9, 3, 15000, models.WithdrawalStatusPending, "{1}")
		mock.ExpectExec("UPDATE commission_withdrawals").
			WithArgs(int64(7), "details mismatch", sqlmock.AnyArg(), int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.RejectWithdrawal(9, 7, "details mismatch")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejected is terminal", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockWithdrawal(mock, 9, 3, 15000, models.WithdrawalStatusRejected, "{1}")
		mock.ExpectRollback()

		err := service.RejectWithdrawal(9, 7, "again")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
