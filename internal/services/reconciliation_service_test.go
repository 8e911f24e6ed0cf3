package services

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/talenthub/backend/internal/models"
)

func reconciliationFixture(t *testing.T) (*ReconciliationService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	ledger := NewLedgerService(db)
	notifier := NewNotificationService(db, nil)
	commissions := NewCommissionService(db, ledger, notifier, 0)
	attribution := NewAttributionService(db)
	service := NewReconciliationService(db, ledger, commissions, attribution)
	return service, mock, func() { db.Close() }
}

func confirmedEvent() *models.PaymentEvent {
	return &models.PaymentEvent{
		SessionID: "sess-1",
		Amount:    50000,
		Currency:  "USD",
		Purpose:   models.CheckoutPurposeJobPayment,
		ObjectID:  77,
		CompanyID: 5,
	}
}

func expectRecordEvent(mock sqlmock.Sqlmock, sessionID, operation string) {
	mock.ExpectExec("INSERT INTO processed_payment_events").
		WithArgs(sessionID, operation, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func expectResolveSession(mock sqlmock.Sqlmock, event *models.PaymentEvent, storedAmount int64) {
	mock.ExpectQuery("SELECT id, session_id, company_id, purpose, object_id, amount, currency, status").
		WithArgs(event.SessionID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "company_id", "purpose", "object_id", "amount", "currency", "status"}).
			AddRow(1, event.SessionID, event.CompanyID, event.Purpose, event.ObjectID, storedAmount, event.Currency, models.CheckoutStatusCreated))
}

func expectReleaseEvent(mock sqlmock.Sqlmock, sessionID, operation string) {
	mock.ExpectExec("DELETE FROM processed_payment_events").
		WithArgs(sessionID, operation).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectReleaseEntryReference(mock sqlmock.Sqlmock, entryID int64) {
	mock.ExpectExec("UPDATE virtual_transactions SET reference_type = NULL").
		WithArgs(entryID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestReconciliationService_ProcessPaymentConfirmed(t *testing.T) {
	service, mock, closeDB := reconciliationFixture(t)
	defer closeDB()

	t.Run("settles the job payment and awards the assignment commission", func(t *testing.T) {
		event := confirmedEvent()
		expectRecordEvent(mock, "sess-1", "CONFIRMED")
		expectResolveSession(mock, event, 50000)
		mock.ExpectExec("UPDATE checkout_sessions SET status = 'CONFIRMED'").
			WithArgs("sess-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE job_payments SET status = 'PAID'").
			WithArgs(sqlmock.AnyArg(), int64(77)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT p.job_id, j.consultant_id, c.region_id").
			WithArgs(int64(77)).
			WillReturnRows(sqlmock.NewRows([]string{"job_id", "consultant_id", "region_id"}).
				AddRow(40, 3, 2))
		mock.ExpectExec("UPDATE jobs SET status = 'PUBLISHED'").
			WithArgs(sqlmock.AnyArg(), int64(40)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		// 10% assignment commission on the 50000-cent payment
		expectGetOrCreateAccount(mock, models.OwnerTypeConsultant, 3, 11, 0)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO commissions").
			WithArgs(int64(3), int64(2), models.CommissionTypeJobAssignment, int64(5000),
				models.CommissionStatusConfirmed, models.RefTypeJobPayment, int64(77), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
		expectLockAccount(mock, 11, 0, 0, 0, models.AccountStatusActive)
		expectApplyBalance(mock, 11, 5000, 5000, 0)
		expectAppendEntry(mock, 2)
		mock.ExpectCommit()

		// attribution unlocked, so no sales commission
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(42, 7, false, nil))
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(42, 7, false, nil))

		err := service.ProcessPaymentConfirmed(event)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replayed webhook is detected before any settlement", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO processed_payment_events").
			WithArgs("sess-1", "CONFIRMED", sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505"})

		err := service.ProcessPaymentConfirmed(confirmedEvent())
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("webhook fields must match the stored session", func(t *testing.T) {
		event := confirmedEvent()
		expectRecordEvent(mock, "sess-1", "CONFIRMED")
		expectResolveSession(mock, event, 49999)
		expectReleaseEvent(mock, "sess-1", "CONFIRMED")

		err := service.ProcessPaymentConfirmed(event)
		assert.ErrorIs(t, err, ErrExternalConfirmationMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown session is a mismatch", func(t *testing.T) {
		event := confirmedEvent()
		expectRecordEvent(mock, "sess-1", "CONFIRMED")
		mock.ExpectQuery("SELECT id, session_id, company_id, purpose, object_id, amount, currency, status").
			WithArgs("sess-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		expectReleaseEvent(mock, "sess-1", "CONFIRMED")

		err := service.ProcessPaymentConfirmed(event)
		assert.ErrorIs(t, err, ErrExternalConfirmationMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// A transient failure mid-settlement must not consume the session's one
// processing slot: the claim is given back, and the provider's next delivery
// of the same event settles everything.
func TestReconciliationService_RetryAfterTransientFailure(t *testing.T) {
	service, mock, closeDB := reconciliationFixture(t)
	defer closeDB()

	event := confirmedEvent()

	// first delivery: claim succeeds, the session lookup dies mid-flight,
	// and the claim is released again
	expectRecordEvent(mock, "sess-1", "CONFIRMED")
	mock.ExpectQuery("SELECT id, session_id, company_id, purpose, object_id, amount, currency, status").
		WithArgs("sess-1").
		WillReturnError(errors.New("connection reset by peer"))
	expectReleaseEvent(mock, "sess-1", "CONFIRMED")

	err := service.ProcessPaymentConfirmed(event)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyProcessed)

	// second delivery: a fresh claim goes through and the payment settles
	expectRecordEvent(mock, "sess-1", "CONFIRMED")
	expectResolveSession(mock, event, 50000)
	mock.ExpectExec("UPDATE checkout_sessions SET status = 'CONFIRMED'").
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE job_payments SET status = 'PAID'").
		WithArgs(sqlmock.AnyArg(), int64(77)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT p.job_id, j.consultant_id, c.region_id").
		WithArgs(int64(77)).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "consultant_id", "region_id"}).
			AddRow(40, 3, 2))
	mock.ExpectExec("UPDATE jobs SET status = 'PUBLISHED'").
		WithArgs(sqlmock.AnyArg(), int64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	expectGetOrCreateAccount(mock, models.OwnerTypeConsultant, 3, 11, 0)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO commissions").
		WithArgs(int64(3), int64(2), models.CommissionTypeJobAssignment, int64(5000),
			models.CommissionStatusConfirmed, models.RefTypeJobPayment, int64(77), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
	expectLockAccount(mock, 11, 0, 0, 0, models.AccountStatusActive)
	expectApplyBalance(mock, 11, 5000, 5000, 0)
	expectAppendEntry(mock, 2)
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
			AddRow(42, 7, false, nil))
	mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
			AddRow(42, 7, false, nil))

	err = service.ProcessPaymentConfirmed(event)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciliationService_ProcessPaymentFailed(t *testing.T) {
	service, mock, closeDB := reconciliationFixture(t)
	defer closeDB()

	expectRecordEvent(mock, "sess-2", "FAILED")
	mock.ExpectExec("UPDATE checkout_sessions SET status = 'FAILED'").
		WithArgs("sess-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := service.ProcessPaymentFailed(&models.PaymentEvent{
		SessionID: "sess-2",
		Amount:    50000,
		Currency:  "USD",
		Purpose:   models.CheckoutPurposeJobPayment,
		ObjectID:  77,
		CompanyID: 5,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciliationService_PurchaseWithWallet(t *testing.T) {
	service, mock, closeDB := reconciliationFixture(t)
	defer closeDB()

	t.Run("failed side effect is compensated", func(t *testing.T) {
		expectGetOrCreateAccount(mock, models.OwnerTypeCompany, 5, 21, 60000)

		// debit commits on its own
		mock.ExpectBegin()
		expectLockAccount(mock, 21, 60000, 60000, 0, models.AccountStatusActive)
		expectApplyBalance(mock, 21, 10000, 0, 50000)
		expectAppendEntry(mock, 3)
		mock.ExpectCommit()

		// the payment row does not exist, so settlement fails
		mock.ExpectExec("UPDATE job_payments SET status = 'PAID'").
			WithArgs(sqlmock.AnyArg(), int64(77)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT p.job_id, j.consultant_id, c.region_id").
			WithArgs(int64(77)).
			WillReturnRows(sqlmock.NewRows([]string{"job_id", "consultant_id", "region_id"}))

		// compensating credit restores the balance, then the debit's
		// reference claim is given back for the retry
		mock.ExpectBegin()
		expectLockAccount(mock, 21, 10000, 60000, 50000, models.AccountStatusActive)
		expectApplyBalance(mock, 21, 60000, 50000, 0)
		expectAppendEntry(mock, 4)
		mock.ExpectCommit()
		expectReleaseEntryReference(mock, 3)

		err := service.PurchaseWithWallet(5, models.CheckoutPurposeJobPayment, 77, 50000)
		assert.ErrorIs(t, err, ErrExternalConfirmationMismatch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retry after compensation settles the purchase", func(t *testing.T) {
		// first attempt: debit commits, the payment row is missing, the
		// compensation runs and the reference claim is released
		expectGetOrCreateAccount(mock, models.OwnerTypeCompany, 5, 21, 60000)
		mock.ExpectBegin()
		expectLockAccount(mock, 21, 60000, 60000, 0, models.AccountStatusActive)
		expectApplyBalance(mock, 21, 10000, 0, 50000)
		expectAppendEntry(mock, 3)
		mock.ExpectCommit()
		mock.ExpectExec("UPDATE job_payments SET status = 'PAID'").
			WithArgs(sqlmock.AnyArg(), int64(77)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT p.job_id, j.consultant_id, c.region_id").
			WithArgs(int64(77)).
			WillReturnRows(sqlmock.NewRows([]string{"job_id", "consultant_id", "region_id"}))
		mock.ExpectBegin()
		expectLockAccount(mock, 21, 10000, 60000, 50000, models.AccountStatusActive)
		expectApplyBalance(mock, 21, 60000, 50000, 0)
		expectAppendEntry(mock, 4)
		mock.ExpectCommit()
		expectReleaseEntryReference(mock, 3)

		err := service.PurchaseWithWallet(5, models.CheckoutPurposeJobPayment, 77, 50000)
		assert.ErrorIs(t, err, ErrExternalConfirmationMismatch)

		// second attempt: the debit claims the freed reference and the
		// settlement completes
		expectGetOrCreateAccount(mock, models.OwnerTypeCompany, 5, 21, 60000)
		mock.ExpectBegin()
		expectLockAccount(mock, 21, 60000, 110000, 50000, models.AccountStatusActive)
		expectApplyBalance(mock, 21, 10000, 0, 50000)
		expectAppendEntry(mock, 5)
		mock.ExpectCommit()
		mock.ExpectExec("UPDATE job_payments SET status = 'PAID'").
			WithArgs(sqlmock.AnyArg(), int64(77)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT p.job_id, j.consultant_id, c.region_id").
			WithArgs(int64(77)).
			WillReturnRows(sqlmock.NewRows([]string{"job_id", "consultant_id", "region_id"}).
				AddRow(40, nil, 2))
		mock.ExpectExec("UPDATE jobs SET status = 'PUBLISHED'").
			WithArgs(sqlmock.AnyArg(), int64(40)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(42, 7, false, nil))
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(42, 7, false, nil))

		err = service.PurchaseWithWallet(5, models.CheckoutPurposeJobPayment, 77, 50000)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("subscription purchase is typed as a subscription deduction", func(t *testing.T) {
		expectGetOrCreateAccount(mock, models.OwnerTypeCompany, 5, 21, 60000)
		mock.ExpectBegin()
		expectLockAccount(mock, 21, 60000, 60000, 0, models.AccountStatusActive)
		expectApplyBalance(mock, 21, 30000, 0, 30000)
		mock.ExpectQuery("INSERT INTO virtual_transactions").
			WithArgs(sqlmock.AnyArg(), int64(21), models.TxTypeSubscriptionDeduction, int64(30000),
				models.DirectionDebit, int64(30000), models.RefTypeSubscriptionBill, int64(88),
				"COMPLETED", "Wallet purchase", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
		mock.ExpectCommit()

		mock.ExpectExec("UPDATE subscription_bills SET status = 'PAID'").
			WithArgs(sqlmock.AnyArg(), int64(88)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT region_id FROM companies").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"region_id"}).AddRow(2))
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(42, 7, false, nil))
		mock.ExpectQuery("SELECT COALESCE\\(sales_owner_id, 0\\), created_by, attribution_locked").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"sales_owner_id", "created_by", "attribution_locked", "attribution_locked_at"}).
				AddRow(42, 7, false, nil))

		err := service.PurchaseWithWallet(5, models.CheckoutPurposeSubscription, 88, 30000)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance stops before any side effect", func(t *testing.T) {
		expectGetOrCreateAccount(mock, models.OwnerTypeCompany, 5, 21, 1000)
		mock.ExpectBegin()
		expectLockAccount(mock, 21, 1000, 1000, 0, models.AccountStatusActive)
		mock.ExpectRollback()

		err := service.PurchaseWithWallet(5, models.CheckoutPurposeJobPayment, 77, 50000)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown purpose rejected up front", func(t *testing.T) {
		err := service.PurchaseWithWallet(5, "GIFT_CARD", 77, 50000)
		assert.Error(t, err)
	})
}

func TestReconciliationService_DebitCompensatedPanic(t *testing.T) {
	service, mock, closeDB := reconciliationFixture(t)
	defer closeDB()

	mock.ExpectBegin()
	expectLockAccount(mock, 21, 60000, 60000, 0, models.AccountStatusActive)
	expectApplyBalance(mock, 21, 10000, 0, 50000)
	expectAppendEntry(mock, 3)
	mock.ExpectCommit()

	mock.ExpectBegin()
	expectLockAccount(mock, 21, 10000, 60000, 50000, models.AccountStatusActive)
	expectApplyBalance(mock, 21, 60000, 50000, 0)
	expectAppendEntry(mock, 4)
	mock.ExpectCommit()
	expectReleaseEntryReference(mock, 3)

	err := service.debitCompensated(21, 50000, models.TxTypeJobPostingDeduction,
		&LedgerRef{Type: models.RefTypeJobPayment, ID: 77},
		func() error { panic("provider client blew up") })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.NoError(t, mock.ExpectationsWereMet())
}
