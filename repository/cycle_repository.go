package repository

import (
	"context"
	"fmt"

	"chamapool/database"
	"chamapool/models"
	"chamapool/service"
	"github.com/jackc/pgx/v5"
)

const cycleColumns = `
	id, fund_id, cycle_number, expected_amount, collected_amount,
	paid_count, pending_count, failed_count, recipient_member_id, status,
	started_at, collected_at, completed_at, created_at, updated_at`

// CycleRepository implements the CycleRepository interface
type CycleRepository struct {
	q queryable
}

// NewCycleRepository creates a new cycle repository
func NewCycleRepository(db *database.DB) *CycleRepository {
	return &CycleRepository{q: db.Pool}
}

// newCycleRepositoryWithTx creates a new cycle repository with a transaction
func newCycleRepositoryWithTx(tx queryable) service.CycleRepository {
	return &CycleRepository{q: tx}
}

func scanCycle(row pgx.Row) (*models.Cycle, error) {
	var cycle models.Cycle
	err := row.Scan(
		&cycle.ID,
		&cycle.FundID,
		&cycle.CycleNumber,
		&cycle.ExpectedAmount,
		&cycle.CollectedAmount,
		&cycle.PaidCount,
		&cycle.PendingCount,
		&cycle.FailedCount,
		&cycle.RecipientMemberID,
		&cycle.Status,
		&cycle.StartedAt,
		&cycle.CollectedAt,
		&cycle.CompletedAt,
		&cycle.CreatedAt,
		&cycle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// Create creates a new cycle
func (r *CycleRepository) Create(ctx context.Context, cycle *models.Cycle) error {
	query := `
		INSERT INTO cycles (
			fund_id, cycle_number, expected_amount, status, started_at
		)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		cycle.FundID,
		cycle.CycleNumber,
		cycle.ExpectedAmount,
		cycle.Status,
		cycle.StartedAt,
	).Scan(&cycle.ID, &cycle.CreatedAt, &cycle.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create cycle: %w", err)
	}

	return nil
}

// GetByID retrieves a cycle by its ID
func (r *CycleRepository) GetByID(ctx context.Context, id int64) (*models.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1`

	cycle, err := scanCycle(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle %d: %w", id, err)
	}

	return cycle, nil
}

// GetOpenByFund returns the fund's open (collecting or collected) cycle, if any
func (r *CycleRepository) GetOpenByFund(ctx context.Context, fundID int64) (*models.Cycle, error) {
	query := `SELECT ` + cycleColumns + `
		FROM cycles
		WHERE fund_id = $1 AND status IN ('collecting', 'collected', 'distributing')
		ORDER BY cycle_number DESC
		LIMIT 1`

	cycle, err := scanCycle(r.q.QueryRow(ctx, query, fundID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open cycle for fund %d: %w", fundID, err)
	}

	return cycle, nil
}

// TransitionStatus moves the cycle from one status to another only if it is
// still in the expected prior status. The row-level precondition is what
// makes the distributing state a single-writer gate.
func (r *CycleRepository) TransitionStatus(ctx context.Context, cycleID int64, from, to models.CycleStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal cycle transition %s -> %s", from, to)
	}

	query := `
		UPDATE cycles
		SET status = $3,
		    collected_at = CASE WHEN $3 = 'collected' THEN CURRENT_TIMESTAMP ELSE collected_at END,
		    completed_at = CASE WHEN $3 = 'completed' THEN CURRENT_TIMESTAMP ELSE completed_at END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $2
	`

	result, err := r.q.Exec(ctx, query, cycleID, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to transition cycle %d from %s to %s: %w", cycleID, from, to, err)
	}

	return result.RowsAffected() > 0, nil
}

// AddCollected atomically adds a settled amount to the cycle total
func (r *CycleRepository) AddCollected(ctx context.Context, cycleID int64, amount int64) error {
	query := `
		UPDATE cycles
		SET collected_amount = collected_amount + $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, cycleID, amount)
	if err != nil {
		return fmt.Errorf("failed to add collected amount to cycle %d: %w", cycleID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("cycle %d not found", cycleID)
	}

	return nil
}

// UpdateAggregates replaces the cycle's per-status member counts
func (r *CycleRepository) UpdateAggregates(ctx context.Context, cycleID int64, paid, pending, failed int) error {
	query := `
		UPDATE cycles
		SET paid_count = $2, pending_count = $3, failed_count = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, cycleID, paid, pending, failed)
	if err != nil {
		return fmt.Errorf("failed to update aggregates for cycle %d: %w", cycleID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("cycle %d not found", cycleID)
	}

	return nil
}

// SetRecipient records the payout recipient for the cycle
func (r *CycleRepository) SetRecipient(ctx context.Context, cycleID int64, memberID int64) error {
	query := `
		UPDATE cycles
		SET recipient_member_id = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, cycleID, memberID)
	if err != nil {
		return fmt.Errorf("failed to set recipient for cycle %d: %w", cycleID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("cycle %d not found", cycleID)
	}

	return nil
}
