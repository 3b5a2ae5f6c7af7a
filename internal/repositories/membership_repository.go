package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"activamigos-chat/internal/models"
)

var ErrMembershipNotFound = errors.New("membership not found")

// MembershipRepository abstracts group and activity memberships.
type MembershipRepository interface {
	Get(ctx context.Context, room models.RoomRef, userID int64) (models.Membership, error)
	GetByID(ctx context.Context, membershipID int64) (models.Membership, error)
	TouchChatActivity(ctx context.Context, room models.RoomRef, userID int64) error
	Unban(ctx context.Context, membershipID int64) (models.Membership, error)
}

// MembershipRepo is a sqlx implementation of MembershipRepository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs a MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

const membershipColumns = `id, context_type, context_id, user_id, role, warning_count, status, is_active, joined_at, last_chat_at`

// Get fetches the membership of a user in a room.
func (r *MembershipRepo) Get(ctx context.Context, room models.RoomRef, userID int64) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `SELECT `+membershipColumns+` FROM memberships WHERE context_type=$1 AND context_id=$2 AND user_id=$3`,
		room.ContextType, room.ContextID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return m, err
}

// GetByID fetches a membership by id.
func (r *MembershipRepo) GetByID(ctx context.Context, membershipID int64) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `SELECT `+membershipColumns+` FROM memberships WHERE id=$1`, membershipID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return m, err
}

// TouchChatActivity records that the member chatted.
func (r *MembershipRepo) TouchChatActivity(ctx context.Context, room models.RoomRef, userID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE memberships SET last_chat_at = NOW() WHERE context_type=$1 AND context_id=$2 AND user_id=$3`,
		room.ContextType, room.ContextID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// Unban restores an ACTIVE status. The warning count is kept.
func (r *MembershipRepo) Unban(ctx context.Context, membershipID int64) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `UPDATE memberships SET status='ACTIVE' WHERE id=$1 RETURNING `+membershipColumns, membershipID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return m, err
}
