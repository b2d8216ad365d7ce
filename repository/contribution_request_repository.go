package repository

import (
	"context"
	"fmt"
	"time"

	"chamapool/database"
	"chamapool/models"
	"chamapool/service"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `
	id, cycle_id, member_id, fund_id, phone, amount, correlation_ref,
	account_number, attempt_count, max_attempts, status, error_detail,
	receipt_ref, settled_at, created_at, updated_at`

// ContributionRequestRepository implements the ContributionRequestRepository interface
type ContributionRequestRepository struct {
	q queryable
}

// NewContributionRequestRepository creates a new contribution request repository
func NewContributionRequestRepository(db *database.DB) *ContributionRequestRepository {
	return &ContributionRequestRepository{q: db.Pool}
}

// newContributionRequestRepositoryWithTx creates a new contribution request repository with a transaction
func newContributionRequestRepositoryWithTx(tx queryable) service.ContributionRequestRepository {
	return &ContributionRequestRepository{q: tx}
}

func scanRequest(row pgx.Row) (*models.ContributionRequest, error) {
	var request models.ContributionRequest
	err := row.Scan(
		&request.ID,
		&request.CycleID,
		&request.MemberID,
		&request.FundID,
		&request.Phone,
		&request.Amount,
		&request.CorrelationRef,
		&request.AccountNumber,
		&request.AttemptCount,
		&request.MaxAttempts,
		&request.Status,
		&request.ErrorDetail,
		&request.ReceiptRef,
		&request.SettledAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Create creates a new request; the unique constraint on (cycle_id, member_id)
// guarantees at most one request per member per cycle
func (r *ContributionRequestRepository) Create(ctx context.Context, request *models.ContributionRequest) error {
	query := `
		INSERT INTO contribution_requests (
			cycle_id, member_id, fund_id, phone, amount, max_attempts, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		request.CycleID,
		request.MemberID,
		request.FundID,
		request.Phone,
		request.Amount,
		request.MaxAttempts,
		request.Status,
	).Scan(&request.ID, &request.CreatedAt, &request.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create contribution request: %w", err)
	}

	return nil
}

// GetByID retrieves a request by its ID
func (r *ContributionRequestRepository) GetByID(ctx context.Context, id int64) (*models.ContributionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM contribution_requests WHERE id = $1`

	request, err := scanRequest(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution request %d: %w", id, err)
	}

	return request, nil
}

// GetByCycle returns every request for a cycle
func (r *ContributionRequestRepository) GetByCycle(ctx context.Context, cycleID int64) ([]*models.ContributionRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM contribution_requests
		WHERE cycle_id = $1
		ORDER BY created_at`
	return r.queryRequests(ctx, query, cycleID)
}

// GetOpenByCycle returns the cycle's non-terminal requests ordered by creation
// time, which is also the tie-break order for settlement matching
func (r *ContributionRequestRepository) GetOpenByCycle(ctx context.Context, cycleID int64) ([]*models.ContributionRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM contribution_requests
		WHERE cycle_id = $1 AND status IN ('pending', 'sent', 'failed')
		ORDER BY created_at`
	return r.queryRequests(ctx, query, cycleID)
}

// MarkDispatched records the outcome of a push attempt. The status
// precondition loses against a request that was cancelled or settled while
// the push was in flight; the caller treats a lost write as a skip.
func (r *ContributionRequestRepository) MarkDispatched(ctx context.Context, id int64, status models.RequestStatus, correlationRef, accountNumber, errorDetail *string) (bool, error) {
	query := `
		UPDATE contribution_requests
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    correlation_ref = COALESCE($3, correlation_ref),
		    account_number = COALESCE($4, account_number),
		    error_detail = $5,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('pending', 'sent', 'failed')
	`

	result, err := r.q.Exec(ctx, query, id, status, correlationRef, accountNumber, errorDetail)
	if err != nil {
		return false, fmt.Errorf("failed to mark contribution request %d dispatched: %w", id, err)
	}

	return result.RowsAffected() > 0, nil
}

// MarkCompleted settles the request only if it has not already reached a
// terminal state. The status precondition is the at-most-once guard: of any
// number of concurrent sweeps, exactly one observes a row transition.
func (r *ContributionRequestRepository) MarkCompleted(ctx context.Context, id int64, receiptRef string, settledAt time.Time) (bool, error) {
	query := `
		UPDATE contribution_requests
		SET status = 'completed', receipt_ref = $2, settled_at = $3,
		    error_detail = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('pending', 'sent', 'failed')
	`

	result, err := r.q.Exec(ctx, query, id, receiptRef, settledAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark contribution request %d completed: %w", id, err)
	}

	return result.RowsAffected() > 0, nil
}

// CancelOpenByCycle cancels every non-terminal request for a cycle
func (r *ContributionRequestRepository) CancelOpenByCycle(ctx context.Context, cycleID int64) (int, error) {
	query := `
		UPDATE contribution_requests
		SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE cycle_id = $1 AND status IN ('pending', 'sent', 'failed')
	`

	result, err := r.q.Exec(ctx, query, cycleID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel open requests for cycle %d: %w", cycleID, err)
	}

	return int(result.RowsAffected()), nil
}

// ExpireOlderThan expires the cycle's unsettled requests created before the cutoff
func (r *ContributionRequestRepository) ExpireOlderThan(ctx context.Context, cycleID int64, cutoff time.Time) (int, error) {
	query := `
		UPDATE contribution_requests
		SET status = 'expired', updated_at = CURRENT_TIMESTAMP
		WHERE cycle_id = $1 AND status IN ('pending', 'sent') AND created_at < $2
	`

	result, err := r.q.Exec(ctx, query, cycleID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire requests for cycle %d: %w", cycleID, err)
	}

	return int(result.RowsAffected()), nil
}

// CountByStatus returns the cycle's request counts grouped by status
func (r *ContributionRequestRepository) CountByStatus(ctx context.Context, cycleID int64) (map[models.RequestStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM contribution_requests
		WHERE cycle_id = $1
		GROUP BY status
	`

	rows, err := r.q.Query(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests for cycle %d: %w", cycleID, err)
	}
	defer rows.Close()

	counts := make(map[models.RequestStatus]int)
	for rows.Next() {
		var status models.RequestStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan request count: %w", err)
		}
		counts[status] = count
	}

	return counts, nil
}

func (r *ContributionRequestRepository) queryRequests(ctx context.Context, query string, args ...any) ([]*models.ContributionRequest, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contribution requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.ContributionRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, nil
}
