package repository

import (
	"context"
	"fmt"

	"chamapool/database"
	"chamapool/models"
	"chamapool/service"
	"github.com/jackc/pgx/v5"
)

const memberColumns = `
	id, fund_id, phone, name, role, rotation_position, account_status,
	total_contributed, total_received, has_received_payout, created_at, updated_at`

// MemberRepository implements the MemberRepository interface
type MemberRepository struct {
	q queryable
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *database.DB) *MemberRepository {
	return &MemberRepository{q: db.Pool}
}

// newMemberRepositoryWithTx creates a new member repository with a transaction
func newMemberRepositoryWithTx(tx queryable) service.MemberRepository {
	return &MemberRepository{q: tx}
}

func scanMember(row pgx.Row) (*models.Member, error) {
	var member models.Member
	err := row.Scan(
		&member.ID,
		&member.FundID,
		&member.Phone,
		&member.Name,
		&member.Role,
		&member.RotationPosition,
		&member.AccountStatus,
		&member.TotalContributed,
		&member.TotalReceived,
		&member.HasReceivedPayout,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// Create creates a new member at the given rotation position
func (r *MemberRepository) Create(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (
			fund_id, phone, name, role, rotation_position, account_status
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		member.FundID,
		member.Phone,
		member.Name,
		member.Role,
		member.RotationPosition,
		member.AccountStatus,
	).Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}

	return nil
}

// GetByID retrieves a member by its ID
func (r *MemberRepository) GetByID(ctx context.Context, id int64) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

	member, err := scanMember(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member %d: %w", id, err)
	}

	return member, nil
}

// GetByPhone retrieves a fund's member by phone number
func (r *MemberRepository) GetByPhone(ctx context.Context, fundID int64, phone string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE fund_id = $1 AND phone = $2`

	member, err := scanMember(r.q.QueryRow(ctx, query, fundID, phone))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member by phone: %w", err)
	}

	return member, nil
}

// GetByFund returns a fund's members ordered by rotation position
func (r *MemberRepository) GetByFund(ctx context.Context, fundID int64) ([]*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE fund_id = $1 ORDER BY rotation_position`

	rows, err := r.q.Query(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	return members, nil
}

// ReassignPositions replaces every member's rotation position in one pass.
// The unique constraint on (fund_id, rotation_position) is deferred, so the
// intermediate states inside the transaction may collide.
func (r *MemberRepository) ReassignPositions(ctx context.Context, fundID int64, positions map[int64]int) error {
	for memberID, position := range positions {
		query := `
			UPDATE members
			SET rotation_position = $3, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND fund_id = $2
		`

		result, err := r.q.Exec(ctx, query, memberID, fundID, position)
		if err != nil {
			return fmt.Errorf("failed to reassign position for member %d: %w", memberID, err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("member %d not found in fund %d", memberID, fundID)
		}
	}

	return nil
}

// CreditContribution adds to a member's cumulative contributed total
func (r *MemberRepository) CreditContribution(ctx context.Context, memberID int64, amount int64) error {
	query := `
		UPDATE members
		SET total_contributed = total_contributed + $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, memberID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit contribution for member %d: %w", memberID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("member %d not found", memberID)
	}

	return nil
}

// RecordPayout adds to a member's cumulative received total and flags them as paid
func (r *MemberRepository) RecordPayout(ctx context.Context, memberID int64, amount int64) error {
	query := `
		UPDATE members
		SET total_received = total_received + $2, has_received_payout = TRUE,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, memberID, amount)
	if err != nil {
		return fmt.Errorf("failed to record payout for member %d: %w", memberID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("member %d not found", memberID)
	}

	return nil
}

// UpdateAccountStatus sets a member's linked-account status
func (r *MemberRepository) UpdateAccountStatus(ctx context.Context, memberID int64, status models.AccountStatus) error {
	query := `
		UPDATE members
		SET account_status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, memberID, status)
	if err != nil {
		return fmt.Errorf("failed to update account status for member %d: %w", memberID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("member %d not found", memberID)
	}

	return nil
}
