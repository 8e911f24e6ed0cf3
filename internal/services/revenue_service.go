package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/talenthub/backend/internal/models"
)

// RevenueService aggregates paid revenue per region, splits it between
// licensee and platform, and batches pending revenue into payable settlements.
// Calendar-month boundaries are taken in the configured batch timezone.
type RevenueService struct {
	db       *sql.DB
	exporter *SettlementExporter
	loc      *time.Location
}

func NewRevenueService(db *sql.DB, exporter *SettlementExporter, loc *time.Location) *RevenueService {
	if loc == nil {
		loc = time.UTC
	}
	return &RevenueService{db: db, exporter: exporter, loc: loc}
}

// CalculateMonthlyRevenue sums paid job payments and subscription bills for
// companies in the region over the calendar month containing `month`, and
// applies the region's active licensee share percentage. Shares are computed
// with decimal arithmetic and rounded to whole cents.
func (rs *RevenueService) CalculateMonthlyRevenue(regionID int64, month time.Time) (*models.RegionalRevenue, error) {
	periodStart := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, rs.loc)
	periodEnd := periodStart.AddDate(0, 1, 0)

	var licenseeID sql.NullInt64
	var sharePct float64
	var active bool
	err := rs.db.QueryRow(`
		SELECT licensee_id, licensee_share_pct, active FROM regions WHERE id = $1`,
		regionID).Scan(&licenseeID, &sharePct, &active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("region %d not found", regionID)
	}
	if err != nil {
		return nil, err
	}

	var jobRevenue int64
	err = rs.db.QueryRow(`
		SELECT COALESCE(SUM(p.amount), 0)
		FROM job_payments p
		JOIN companies c ON p.company_id = c.id
		WHERE c.region_id = $1 AND p.status = 'PAID' AND p.paid_at >= $2 AND p.paid_at < $3`,
		regionID, periodStart, periodEnd).Scan(&jobRevenue)
	if err != nil {
		return nil, err
	}

	var subscriptionRevenue int64
	err = rs.db.QueryRow(`
		SELECT COALESCE(SUM(b.amount), 0)
		FROM subscription_bills b
		JOIN companies c ON b.company_id = c.id
		WHERE c.region_id = $1 AND b.status = 'PAID' AND b.paid_at >= $2 AND b.paid_at < $3`,
		regionID, periodStart, periodEnd).Scan(&subscriptionRevenue)
	if err != nil {
		return nil, err
	}

	total := jobRevenue + subscriptionRevenue

	// No active licensee means the platform keeps everything.
	var licenseeShare int64
	if licenseeID.Valid && active && sharePct > 0 {
		licenseeShare = decimal.NewFromInt(total).
			Mul(decimal.NewFromFloat(sharePct)).
			Div(decimal.NewFromInt(100)).
			Round(0).IntPart()
	}

	revenue := &models.RegionalRevenue{
		RegionID:      regionID,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		TotalRevenue:  total,
		LicenseeShare: licenseeShare,
		PlatformShare: total - licenseeShare,
		Status:        models.RevenueStatusPending,
	}
	if licenseeID.Valid {
		revenue.LicenseeID = &licenseeID.Int64
	}

	return revenue, nil
}

// CreateOrUpdateMonthlyRevenue upserts the single row for (region, month).
// A row already settled (PAID) is left untouched; a PENDING row is recomputed
// in place, which makes the monthly job idempotent and safely re-runnable.
func (rs *RevenueService) CreateOrUpdateMonthlyRevenue(regionID int64, month time.Time) (*models.RegionalRevenue, error) {
	revenue, err := rs.CalculateMonthlyRevenue(regionID, month)
	if err != nil {
		return nil, err
	}

	tx, err := rs.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var existingID int64
	var existingStatus string
	err = tx.QueryRow(`
		SELECT id, status FROM regional_revenues
		WHERE region_id = $1 AND period_start = $2
		FOR UPDATE`,
		regionID, revenue.PeriodStart).Scan(&existingID, &existingStatus)

	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRow(`
			INSERT INTO regional_revenues
			(region_id, licensee_id, period_start, period_end, total_revenue, licensee_share, platform_share, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', NOW(), NOW())
			RETURNING id`,
			regionID, nullableID(revenue.LicenseeID), revenue.PeriodStart, revenue.PeriodEnd,
			revenue.TotalRevenue, revenue.LicenseeShare, revenue.PlatformShare).Scan(&revenue.ID)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case existingStatus == models.RevenueStatusPaid:
		// Frozen once settled.
		log.Printf("[REVENUE] Region %d period %s already settled, skipping recompute", regionID, revenue.PeriodStart.Format("2006-01"))
		revenue.ID = existingID
		revenue.Status = models.RevenueStatusPaid
		return revenue, tx.Commit()
	default:
		_, err = tx.Exec(`
			UPDATE regional_revenues
			SET licensee_id = $1, total_revenue = $2, licensee_share = $3, platform_share = $4, updated_at = NOW()
			WHERE id = $5`,
			nullableID(revenue.LicenseeID), revenue.TotalRevenue, revenue.LicenseeShare,
			revenue.PlatformShare, existingID)
		if err != nil {
			return nil, err
		}
		revenue.ID = existingID
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[REVENUE] Region %d period %s: total %d, licensee %d, platform %d",
		regionID, revenue.PeriodStart.Format("2006-01"), revenue.TotalRevenue,
		revenue.LicenseeShare, revenue.PlatformShare)
	return revenue, nil
}

// ProcessAllRegionsForMonth runs the monthly aggregation for every active
// region, continuing past per-region failures and returning a tally instead
// of aborting the whole batch.
func (rs *RevenueService) ProcessAllRegionsForMonth(month time.Time) (*models.BatchResult, error) {
	rows, err := rs.db.Query(`SELECT id FROM regions WHERE active = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regionIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		regionIDs = append(regionIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &models.BatchResult{}
	for _, regionID := range regionIDs {
		if _, err := rs.CreateOrUpdateMonthlyRevenue(regionID, month); err != nil {
			log.Printf("[REVENUE] Region %d failed: %v", regionID, err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("region %d: %v", regionID, err))
			continue
		}
		result.Processed++
	}

	log.Printf("[REVENUE] Monthly batch for %s: %d processed, %d failed", month.Format("2006-01"), result.Processed, result.Failed)
	return result, nil
}

// GenerateSettlement batches every PENDING revenue row for the licensee up to
// periodEnd into one settlement and flips those rows to PAID in the same
// transaction, so a later run cannot pick them up again.
func (rs *RevenueService) GenerateSettlement(licenseeID int64, periodEnd time.Time) (*models.Settlement, error) {
	tx, err := rs.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, licensee_share FROM regional_revenues
		WHERE licensee_id = $1 AND status = 'PENDING' AND period_end <= $2
		ORDER BY period_start ASC
		FOR UPDATE`,
		licenseeID, periodEnd)
	if err != nil {
		return nil, err
	}

	var revenueIDs []int64
	var total int64
	for rows.Next() {
		var id, share int64
		if err := rows.Scan(&id, &share); err != nil {
			rows.Close()
			return nil, err
		}
		revenueIDs = append(revenueIDs, id)
		total += share
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(revenueIDs) == 0 {
		return nil, &DomainError{CodeInvalidStateTransition, "no pending revenue to settle"}
	}

	settlement := &models.Settlement{
		LicenseeID:  licenseeID,
		Reference:   uuid.New().String(),
		RevenueIDs:  revenueIDs,
		TotalAmount: total,
		Status:      models.SettlementStatusPending,
		CreatedAt:   time.Now(),
	}

	err = tx.QueryRow(`
		INSERT INTO settlements (licensee_id, reference, revenue_ids, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, 'PENDING', $5)
		RETURNING id`,
		licenseeID, settlement.Reference, pq.Array(revenueIDs), total, settlement.CreatedAt).Scan(&settlement.ID)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE regional_revenues SET status = 'PAID', updated_at = NOW() WHERE id = ANY($1)`,
		pq.Array(revenueIDs))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[SETTLEMENT] Generated settlement %d for licensee %d: %d cents over %d revenue rows",
		settlement.ID, licenseeID, total, len(revenueIDs))

	// Payout instruction for the out-of-band bank transfer. Failure to build
	// it does not undo the settlement; it is retried from the admin UI.
	if rs.exporter != nil {
		if err := rs.exporter.ExportPayoutInstruction(settlement); err != nil {
			log.Printf("[SETTLEMENT] Failed to export payout instruction for settlement %d: %v", settlement.ID, err)
		}
	}

	return settlement, nil
}

// GenerateAllPendingSettlements runs settlement generation per licensee with
// the same partial-failure tolerance as the monthly revenue batch.
func (rs *RevenueService) GenerateAllPendingSettlements(periodEnd time.Time) (*models.BatchResult, error) {
	rows, err := rs.db.Query(`
		SELECT DISTINCT licensee_id FROM regional_revenues
		WHERE status = 'PENDING' AND licensee_id IS NOT NULL AND period_end <= $1
		ORDER BY licensee_id`,
		periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenseeIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		licenseeIDs = append(licenseeIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &models.BatchResult{}
	for _, licenseeID := range licenseeIDs {
		if _, err := rs.GenerateSettlement(licenseeID, periodEnd); err != nil {
			log.Printf("[SETTLEMENT] Licensee %d failed: %v", licenseeID, err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("licensee %d: %v", licenseeID, err))
			continue
		}
		result.Processed++
	}

	return result, nil
}

// MarkSettlementPaid is the terminal transition once the licensee has been
// paid out-of-band.
func (rs *RevenueService) MarkSettlementPaid(settlementID int64, paymentReference string) error {
	tx, err := rs.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status, reference string
	err = tx.QueryRow(`
		SELECT status, reference FROM settlements WHERE id = $1 FOR UPDATE`,
		settlementID).Scan(&status, &reference)
	if err == sql.ErrNoRows {
		return &DomainError{CodeInvalidStateTransition, "settlement not found"}
	}
	if err != nil {
		return err
	}
	if status != models.SettlementStatusPending {
		return invalidTransitionError(status, models.SettlementStatusPaid)
	}

	_, err = tx.Exec(`
		UPDATE settlements SET status = 'PAID', payment_reference = $1, paid_at = $2 WHERE id = $3`,
		paymentReference, time.Now(), settlementID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[SETTLEMENT] Settlement %d marked paid, ref %s", settlementID, paymentReference)

	if rs.exporter != nil {
		if err := rs.exporter.ExportStatusReport(reference, paymentReference); err != nil {
			log.Printf("[SETTLEMENT] Failed to export status report for settlement %d: %v", settlementID, err)
		}
	}

	return nil
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

// HTTP handlers

// RunMonthlyRevenueHandler triggers the monthly aggregation batch
// @Summary Run monthly regional revenue aggregation
// @Description Recomputes pending revenue rows for all active regions for the given month
// @Tags revenue
// @Produce json
// @Param month query string true "Month in YYYY-MM format"
// @Success 200 {object} models.BatchResult
// @Failure 400 {object} ErrorResponse
// @Router /revenue/run [post]
func (rs *RevenueService) RunMonthlyRevenueHandler(w http.ResponseWriter, r *http.Request) {
	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		SendErrorResponse(w, "month must be YYYY-MM", http.StatusBadRequest, nil)
		return
	}

	result, err := rs.ProcessAllRegionsForMonth(month)
	if err != nil {
		SendErrorResponse(w, "Failed to run monthly revenue batch", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GenerateSettlementsHandler batches pending revenue into settlements
// @Summary Generate settlements for all licensees with pending revenue
// @Tags revenue
// @Produce json
// @Param periodEnd query string true "Period end in YYYY-MM-DD format"
// @Success 200 {object} models.BatchResult
// @Failure 400 {object} ErrorResponse
// @Router /settlements/generate [post]
func (rs *RevenueService) GenerateSettlementsHandler(w http.ResponseWriter, r *http.Request) {
	periodEnd, err := time.Parse("2006-01-02", r.URL.Query().Get("periodEnd"))
	if err != nil {
		SendErrorResponse(w, "periodEnd must be YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}

	result, err := rs.GenerateAllPendingSettlements(periodEnd)
	if err != nil {
		SendErrorResponse(w, "Failed to generate settlements", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// MarkSettlementPaidHandler records the out-of-band payout
// @Summary Mark a settlement as paid
// @Tags revenue
// @Accept json
// @Produce json
// @Param settlementId path int true "Settlement ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} ErrorResponse
// @Router /settlements/{settlementId}/paid [post]
func (rs *RevenueService) MarkSettlementPaidHandler(w http.ResponseWriter, r *http.Request) {
	settlementID, err := strconv.ParseInt(chi.URLParam(r, "settlementId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid settlement id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		PaymentReference string `json:"payment_reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := rs.MarkSettlementPaid(settlementID, req.PaymentReference); err != nil {
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "paid"})
}
