package repository

import (
	"context"
	"fmt"

	"chamapool/database"
	"chamapool/models"
	"chamapool/service"
	"github.com/jackc/pgx/v5"
)

const payoutColumns = `
	id, cycle_id, fund_id, member_id, amount, reference, transaction_ref,
	status, error_detail, created_at, completed_at`

// PayoutRepository implements the PayoutRepository interface
type PayoutRepository struct {
	q queryable
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *database.DB) *PayoutRepository {
	return &PayoutRepository{q: db.Pool}
}

// newPayoutRepositoryWithTx creates a new payout repository with a transaction
func newPayoutRepositoryWithTx(tx queryable) service.PayoutRepository {
	return &PayoutRepository{q: tx}
}

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var payout models.Payout
	err := row.Scan(
		&payout.ID,
		&payout.CycleID,
		&payout.FundID,
		&payout.MemberID,
		&payout.Amount,
		&payout.Reference,
		&payout.TransactionRef,
		&payout.Status,
		&payout.ErrorDetail,
		&payout.CreatedAt,
		&payout.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// Create creates a new pending payout
func (r *PayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	query := `
		INSERT INTO payouts (
			cycle_id, fund_id, member_id, amount, reference, status
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		payout.CycleID,
		payout.FundID,
		payout.MemberID,
		payout.Amount,
		payout.Reference,
		payout.Status,
	).Scan(&payout.ID, &payout.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}

	return nil
}

// GetByCycle returns the cycle's most recent payout, if any
func (r *PayoutRepository) GetByCycle(ctx context.Context, cycleID int64) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + `
		FROM payouts
		WHERE cycle_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	payout, err := scanPayout(r.q.QueryRow(ctx, query, cycleID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout for cycle %d: %w", cycleID, err)
	}

	return payout, nil
}

// MarkCompleted completes the payout if it is still pending. Together with
// the partial unique index on (cycle_id) WHERE status = 'completed', this
// keeps completed payouts immutable and unique per cycle.
func (r *PayoutRepository) MarkCompleted(ctx context.Context, id int64, transactionRef string) (bool, error) {
	query := `
		UPDATE payouts
		SET status = 'completed', transaction_ref = $2,
		    completed_at = CURRENT_TIMESTAMP, error_detail = NULL
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, id, transactionRef)
	if err != nil {
		return false, fmt.Errorf("failed to mark payout %d completed: %w", id, err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkFailed records a payout failure with its error detail
func (r *PayoutRepository) MarkFailed(ctx context.Context, id int64, errorDetail string) error {
	query := `
		UPDATE payouts
		SET status = 'failed', error_detail = $2
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, id, errorDetail)
	if err != nil {
		return fmt.Errorf("failed to mark payout %d failed: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("payout %d is not pending", id)
	}

	return nil
}
