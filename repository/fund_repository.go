package repository

import (
	"context"
	"fmt"
	"time"

	"chamapool/database"
	"chamapool/models"
	"chamapool/payments"
	"chamapool/service"
	"github.com/jackc/pgx/v5"
)

const fundColumns = `
	id, name, creator_phone, currency, contribution_amount, frequency,
	custom_days, collection_weekday, rotation_type, require_all_before_payout,
	allow_partial_payment, collection_threshold_bps, current_cycle,
	current_rotation_index, total_cycles, status, next_collection_date,
	account_id, account_name, sub_ledger_id, sub_ledger_name,
	created_at, updated_at`

// FundRepository implements the FundRepository interface
type FundRepository struct {
	q queryable
}

// NewFundRepository creates a new fund repository
func NewFundRepository(db *database.DB) *FundRepository {
	return &FundRepository{q: db.Pool}
}

// newFundRepositoryWithTx creates a new fund repository with a transaction
func newFundRepositoryWithTx(tx queryable) service.FundRepository {
	return &FundRepository{q: tx}
}

func scanFund(row pgx.Row) (*models.Fund, error) {
	var fund models.Fund
	var weekday int
	err := row.Scan(
		&fund.ID,
		&fund.Name,
		&fund.CreatorPhone,
		&fund.Currency,
		&fund.ContributionAmount,
		&fund.Frequency,
		&fund.CustomDays,
		&weekday,
		&fund.RotationType,
		&fund.RequireAllBeforePayout,
		&fund.AllowPartialPayment,
		&fund.CollectionThresholdBps,
		&fund.CurrentCycle,
		&fund.CurrentRotationIndex,
		&fund.TotalCycles,
		&fund.Status,
		&fund.NextCollectionDate,
		&fund.AccountID,
		&fund.AccountName,
		&fund.SubLedgerID,
		&fund.SubLedgerName,
		&fund.CreatedAt,
		&fund.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	fund.CollectionWeekday = time.Weekday(weekday)
	return &fund, nil
}

// Create creates a new fund
func (r *FundRepository) Create(ctx context.Context, fund *models.Fund) error {
	query := `
		INSERT INTO funds (
			name, creator_phone, currency, contribution_amount, frequency,
			custom_days, collection_weekday, rotation_type,
			require_all_before_payout, allow_partial_payment,
			collection_threshold_bps, current_cycle, current_rotation_index,
			total_cycles, status, next_collection_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		fund.Name,
		fund.CreatorPhone,
		fund.Currency,
		fund.ContributionAmount,
		fund.Frequency,
		fund.CustomDays,
		int(fund.CollectionWeekday),
		fund.RotationType,
		fund.RequireAllBeforePayout,
		fund.AllowPartialPayment,
		fund.CollectionThresholdBps,
		fund.CurrentCycle,
		fund.CurrentRotationIndex,
		fund.TotalCycles,
		fund.Status,
		fund.NextCollectionDate,
	).Scan(&fund.ID, &fund.CreatedAt, &fund.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create fund: %w", err)
	}

	return nil
}

// GetByID retrieves a fund by its ID
func (r *FundRepository) GetByID(ctx context.Context, id int64) (*models.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE id = $1`

	fund, err := scanFund(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fund %d: %w", id, err)
	}

	return fund, nil
}

// Update updates a fund's mutable fields
func (r *FundRepository) Update(ctx context.Context, fund *models.Fund) error {
	query := `
		UPDATE funds
		SET current_cycle = $2, current_rotation_index = $3, status = $4,
		    next_collection_date = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query,
		fund.ID,
		fund.CurrentCycle,
		fund.CurrentRotationIndex,
		fund.Status,
		fund.NextCollectionDate,
	)
	if err != nil {
		return fmt.Errorf("failed to update fund %d: %w", fund.ID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("fund %d not found", fund.ID)
	}

	return nil
}

// SetCollectionAccount records the externally provisioned ledger account
func (r *FundRepository) SetCollectionAccount(ctx context.Context, fundID int64, account *payments.CollectionAccount) error {
	query := `
		UPDATE funds
		SET account_id = $2, account_name = $3, sub_ledger_id = $4,
		    sub_ledger_name = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query,
		fundID,
		account.AccountID,
		account.AccountName,
		account.SubLedgerID,
		account.SubLedgerName,
	)
	if err != nil {
		return fmt.Errorf("failed to set collection account for fund %d: %w", fundID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("fund %d not found", fundID)
	}

	return nil
}

// GetActive returns all active funds
func (r *FundRepository) GetActive(ctx context.Context) ([]*models.Fund, error) {
	query := `SELECT ` + fundColumns + ` FROM funds WHERE status = 'active' ORDER BY id`
	return r.queryFunds(ctx, query)
}

// GetDueForCollection returns active funds whose next collection date has passed
func (r *FundRepository) GetDueForCollection(ctx context.Context, asOf time.Time) ([]*models.Fund, error) {
	query := `SELECT ` + fundColumns + `
		FROM funds
		WHERE status = 'active' AND next_collection_date IS NOT NULL AND next_collection_date <= $1
		ORDER BY next_collection_date`
	return r.queryFunds(ctx, query, asOf)
}

// GetUnprovisioned returns active funds with no collection account yet
func (r *FundRepository) GetUnprovisioned(ctx context.Context) ([]*models.Fund, error) {
	query := `SELECT ` + fundColumns + `
		FROM funds
		WHERE status = 'active' AND (account_id IS NULL OR account_id = '')
		ORDER BY id`
	return r.queryFunds(ctx, query)
}

func (r *FundRepository) queryFunds(ctx context.Context, query string, args ...any) ([]*models.Fund, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query funds: %w", err)
	}
	defer rows.Close()

	var funds []*models.Fund
	for rows.Next() {
		fund, err := scanFund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fund: %w", err)
		}
		funds = append(funds, fund)
	}

	return funds, nil
}
