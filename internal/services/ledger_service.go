package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/talenthub/backend/internal/models"
)

// LedgerService is the only component allowed to mutate wallet balances. Every
// credit/debit runs inside a single database transaction: re-read the balance
// under a row lock, validate, write the new balance and append exactly one
// ledger entry.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// LedgerRef links a ledger entry to the business object that caused it. The
// (reference_type, reference_id, type) triple is unique per operation, which
// is what makes replayed provider confirmations detectable.
type LedgerRef struct {
	Type string
	ID   int64
}

// GetOrCreateAccount returns the wallet for (ownerType, ownerID), creating it
// lazily on first access. Accounts are never deleted.
func (s *LedgerService) GetOrCreateAccount(ownerType string, ownerID int64) (*models.VirtualAccount, error) {
	if ownerType != models.OwnerTypeCompany && ownerType != models.OwnerTypeConsultant {
		return nil, fmt.Errorf("unknown owner type %q", ownerType)
	}

	_, err := s.db.Exec(`
		INSERT INTO virtual_accounts (owner_type, owner_id, balance, total_credits, total_debits, status, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, 'ACTIVE', NOW(), NOW())
		ON CONFLICT (owner_type, owner_id) DO NOTHING`,
		ownerType, ownerID)
	if err != nil {
		return nil, err
	}

	account := &models.VirtualAccount{}
	err = s.db.QueryRow(`
		SELECT id, owner_type, owner_id, balance, total_credits, total_debits, status, created_at, updated_at
		FROM virtual_accounts
		WHERE owner_type = $1 AND owner_id = $2`,
		ownerType, ownerID).Scan(
		&account.ID, &account.OwnerType, &account.OwnerID, &account.Balance,
		&account.TotalCredits, &account.TotalDebits, &account.Status,
		&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return account, nil
}

// GetAccount fetches an account by id.
func (s *LedgerService) GetAccount(accountID int64) (*models.VirtualAccount, error) {
	account := &models.VirtualAccount{}
	err := s.db.QueryRow(`
		SELECT id, owner_type, owner_id, balance, total_credits, total_debits, status, created_at, updated_at
		FROM virtual_accounts
		WHERE id = $1`,
		accountID).Scan(
		&account.ID, &account.OwnerType, &account.OwnerID, &account.Balance,
		&account.TotalCredits, &account.TotalDebits, &account.Status,
		&account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Credit adds amount to the account inside its own atomic unit.
func (s *LedgerService) Credit(accountID, amount int64, txType, description string, ref *LedgerRef) (*models.VirtualTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := s.CreditTx(tx, accountID, amount, txType, description, ref)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit removes amount from the account inside its own atomic unit, failing
// with InsufficientBalance when the locked balance does not cover it.
func (s *LedgerService) Debit(accountID, amount int64, txType, description string, ref *LedgerRef) (*models.VirtualTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := s.DebitTx(tx, accountID, amount, txType, description, ref)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreditTx applies a credit inside the caller's transaction. Components that
// already hold an atomic unit use this instead of opening a nested one.
func (s *LedgerService) CreditTx(tx *sql.Tx, accountID, amount int64, txType, description string, ref *LedgerRef) (*models.VirtualTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.lockAccount(tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.AccountStatusActive {
		return nil, ErrAccountNotActive
	}

	newBalance := account.Balance + amount
	if err := s.applyBalance(tx, accountID, newBalance, amount, 0); err != nil {
		return nil, err
	}

	return s.appendEntry(tx, accountID, txType, amount, models.DirectionCredit, newBalance, description, ref)
}

// DebitTx applies a debit inside the caller's transaction. The balance check
// happens here, under the row lock, so two concurrent debits cannot both pass.
func (s *LedgerService) DebitTx(tx *sql.Tx, accountID, amount int64, txType, description string, ref *LedgerRef) (*models.VirtualTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.lockAccount(tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != models.AccountStatusActive {
		return nil, ErrAccountNotActive
	}
	if account.Balance < amount {
		return nil, insufficientBalanceError(account.Balance, amount)
	}

	newBalance := account.Balance - amount
	if err := s.applyBalance(tx, accountID, newBalance, 0, amount); err != nil {
		return nil, err
	}

	return s.appendEntry(tx, accountID, txType, amount, models.DirectionDebit, newBalance, description, ref)
}

// Transfer moves amount between two accounts in one atomic unit. Accounts are
// locked in id order to prevent deadlocks between opposing transfers.
func (s *LedgerService) Transfer(fromID, toID, amount int64, description string, ref *LedgerRef) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return &DomainError{CodeInvalidAmount, "cannot transfer to the same account"}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	firstLock, secondLock := fromID, toID
	if fromID > toID {
		firstLock, secondLock = toID, fromID
	}

	first, err := s.lockAccount(tx, firstLock)
	if err != nil {
		return err
	}
	second, err := s.lockAccount(tx, secondLock)
	if err != nil {
		return err
	}

	from, to := first, second
	if firstLock != fromID {
		from, to = second, first
	}

	if from.Status != models.AccountStatusActive || to.Status != models.AccountStatusActive {
		return ErrAccountNotActive
	}
	if from.Balance < amount {
		return insufficientBalanceError(from.Balance, amount)
	}

	if err := s.applyBalance(tx, from.ID, from.Balance-amount, 0, amount); err != nil {
		return err
	}
	if _, err := s.appendEntry(tx, from.ID, models.TxTypeTransferOut, amount, models.DirectionDebit, from.Balance-amount, description, ref); err != nil {
		return err
	}

	if err := s.applyBalance(tx, to.ID, to.Balance+amount, amount, 0); err != nil {
		return err
	}
	if _, err := s.appendEntry(tx, to.ID, models.TxTypeTransferIn, amount, models.DirectionCredit, to.Balance+amount, description, ref); err != nil {
		return err
	}

	return tx.Commit()
}

// ReleaseReference detaches a ledger entry from its business reference,
// freeing the (reference_type, reference_id, type) idempotency claim. Used
// when a compensated operation has to stay retryable; the entry itself stays
// in the log untouched.
func (s *LedgerService) ReleaseReference(entryID int64) error {
	_, err := s.db.Exec(`
		UPDATE virtual_transactions SET reference_type = NULL, reference_id = NULL WHERE id = $1`,
		entryID)
	return err
}

// IntegrityReport is the result of recomputing an account's balance from its
// transaction log.
type IntegrityReport struct {
	AccountID       int64 `json:"account_id"`
	StoredBalance   int64 `json:"stored_balance"`
	ComputedBalance int64 `json:"computed_balance"`
	StoredCredits   int64 `json:"stored_credits"`
	ComputedCredits int64 `json:"computed_credits"`
	StoredDebits    int64 `json:"stored_debits"`
	ComputedDebits  int64 `json:"computed_debits"`
	Consistent      bool  `json:"consistent"`
}

// VerifyIntegrity recomputes credits and debits from the append-only log and
// compares them against the stored balance. A mismatch is a data-corruption
// signal for operators; it is reported, never silently repaired.
func (s *LedgerService) VerifyIntegrity(accountID int64) (*IntegrityReport, error) {
	report := &IntegrityReport{AccountID: accountID}

	err := s.db.QueryRow(`
		SELECT balance, total_credits, total_debits FROM virtual_accounts WHERE id = $1`,
		accountID).Scan(&report.StoredBalance, &report.StoredCredits, &report.StoredDebits)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'CREDIT'), 0),
			COALESCE(SUM(amount) FILTER (WHERE direction = 'DEBIT'), 0)
		FROM virtual_transactions
		WHERE account_id = $1 AND status = 'COMPLETED'`,
		accountID).Scan(&report.ComputedCredits, &report.ComputedDebits)
	if err != nil {
		return nil, err
	}

	report.ComputedBalance = report.ComputedCredits - report.ComputedDebits
	report.Consistent = report.StoredBalance == report.ComputedBalance &&
		report.StoredCredits == report.ComputedCredits &&
		report.StoredDebits == report.ComputedDebits

	if !report.Consistent {
		log.Printf("[ALERT] [LEDGER] Integrity violation on account %d: stored balance %d, computed %d (credits %d/%d, debits %d/%d)",
			accountID, report.StoredBalance, report.ComputedBalance,
			report.StoredCredits, report.ComputedCredits,
			report.StoredDebits, report.ComputedDebits)
		return report, ErrIntegrityViolation
	}

	return report, nil
}

// IntegritySweepResult tallies a full pass of VerifyIntegrity over all
// accounts.
type IntegritySweepResult struct {
	Checked    int     `json:"checked"`
	Violations int     `json:"violations"`
	Failed     int     `json:"failed"`
	BadAccount []int64 `json:"bad_accounts,omitempty"`
}

// RunIntegritySweep verifies every account, continuing past per-account
// failures. Violations are already alerted by VerifyIntegrity; the sweep only
// aggregates them for the scheduler's log line.
func (s *LedgerService) RunIntegritySweep() (*IntegritySweepResult, error) {
	rows, err := s.db.Query(`SELECT id FROM virtual_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accountIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		accountIDs = append(accountIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &IntegritySweepResult{}
	for _, accountID := range accountIDs {
		result.Checked++
		_, err := s.VerifyIntegrity(accountID)
		switch {
		case errors.Is(err, ErrIntegrityViolation):
			result.Violations++
			result.BadAccount = append(result.BadAccount, accountID)
		case err != nil:
			result.Failed++
			log.Printf("[LEDGER] Integrity check on account %d failed: %v", accountID, err)
		}
	}

	log.Printf("[LEDGER] Integrity sweep: %d accounts checked, %d violations, %d failed",
		result.Checked, result.Violations, result.Failed)
	return result, nil
}

// GetTransactions lists ledger entries matching the filter, newest first.
func (s *LedgerService) GetTransactions(filter models.TransactionFilter) ([]models.VirtualTransaction, error) {
	query := `
		SELECT id, transaction_id, account_id, type, amount, direction, balance_after,
		       COALESCE(reference_type, ''), COALESCE(reference_id, 0), status, description, created_at
		FROM virtual_transactions
		WHERE account_id = $1`
	args := []interface{}{filter.AccountID}
	argIndex := 2

	if filter.Direction != "" {
		query += fmt.Sprintf(" AND direction = $%d", argIndex)
		args = append(args, filter.Direction)
		argIndex++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, filter.Type)
		argIndex++
	}
	if filter.ReferenceType != "" {
		query += fmt.Sprintf(" AND reference_type = $%d", argIndex)
		args = append(args, filter.ReferenceType)
		argIndex++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.VirtualTransaction{}
	for rows.Next() {
		var vt models.VirtualTransaction
		err := rows.Scan(&vt.ID, &vt.TransactionID, &vt.AccountID, &vt.Type, &vt.Amount,
			&vt.Direction, &vt.BalanceAfter, &vt.ReferenceType, &vt.ReferenceID,
			&vt.Status, &vt.Description, &vt.CreatedAt)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, vt)
	}

	return transactions, rows.Err()
}

func (s *LedgerService) lockAccount(tx *sql.Tx, accountID int64) (*models.VirtualAccount, error) {
	account := &models.VirtualAccount{ID: accountID}
	err := tx.QueryRow(`
		SELECT balance, total_credits, total_debits, status
		FROM virtual_accounts
		WHERE id = $1
		FOR UPDATE`,
		accountID).Scan(&account.Balance, &account.TotalCredits, &account.TotalDebits, &account.Status)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *LedgerService) applyBalance(tx *sql.Tx, accountID, newBalance, creditDelta, debitDelta int64) error {
	_, err := tx.Exec(`
		UPDATE virtual_accounts
		SET balance = $1, total_credits = total_credits + $2, total_debits = total_debits + $3, updated_at = $4
		WHERE id = $5`,
		newBalance, creditDelta, debitDelta, time.Now(), accountID)
	return err
}

func (s *LedgerService) appendEntry(tx *sql.Tx, accountID int64, txType string, amount int64, direction string, balanceAfter int64, description string, ref *LedgerRef) (*models.VirtualTransaction, error) {
	entry := &models.VirtualTransaction{
		TransactionID: uuid.New().String(),
		AccountID:     accountID,
		Type:          txType,
		Amount:        amount,
		Direction:     direction,
		BalanceAfter:  balanceAfter,
		Status:        "COMPLETED",
		Description:   description,
		CreatedAt:     time.Now(),
	}

	var refType interface{}
	var refID interface{}
	if ref != nil {
		entry.ReferenceType = ref.Type
		entry.ReferenceID = ref.ID
		refType, refID = ref.Type, ref.ID
	}

	err := tx.QueryRow(`
		INSERT INTO virtual_transactions
		(transaction_id, account_id, type, amount, direction, balance_after, reference_type, reference_id, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		entry.TransactionID, accountID, txType, amount, direction, balanceAfter,
		refType, refID, entry.Status, description, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// Unique (reference_type, reference_id, type): a replayed
			// confirmation already produced this entry.
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}

	return entry, nil
}
