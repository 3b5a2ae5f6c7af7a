package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"activamigos-chat/internal/models"
)

// WarningInput describes a warning to record.
type WarningInput struct {
	Room         models.RoomRef
	TargetUserID int64
	IssuedBy     int64
	Reason       string
}

// NoticeFunc renders the system message posted with a warning, given the
// target's new warning count and whether the warning banned them.
type NoticeFunc func(warningCount int, banned bool) (string, models.MessageType)

// WarningOutcome is everything a warning changed.
type WarningOutcome struct {
	Warning    models.Warning
	Membership models.Membership
	Notice     models.ChatMessage
}

// Banned reports whether the target is banned after the warning.
func (o WarningOutcome) Banned() bool {
	return o.Membership.WarningCount >= models.BanThreshold
}

// WarningRepository records moderation warnings.
type WarningRepository interface {
	Issue(ctx context.Context, in WarningInput, notice NoticeFunc) (WarningOutcome, error)
	List(ctx context.Context, room models.RoomRef) ([]models.Warning, error)
}

// WarningRepo is a sqlx implementation of WarningRepository.
type WarningRepo struct {
	db *sqlx.DB
}

// NewWarningRepo constructs a WarningRepo.
func NewWarningRepo(db *sqlx.DB) *WarningRepo {
	return &WarningRepo{db: db}
}

// Issue inserts the warning, bumps the member's warning count (banning at
// the threshold), deducts penalty points and posts the notice, atomically.
func (r *WarningRepo) Issue(ctx context.Context, in WarningInput, notice NoticeFunc) (out WarningOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return WarningOutcome{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var membershipID int64
	if err = tx.GetContext(ctx, &membershipID, `SELECT id FROM memberships WHERE context_type=$1 AND context_id=$2 AND user_id=$3 FOR UPDATE`,
		in.Room.ContextType, in.Room.ContextID, in.TargetUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrMembershipNotFound
		}
		return WarningOutcome{}, err
	}

	if err = tx.GetContext(ctx, &out.Warning, `INSERT INTO warnings (context_type, context_id, target_user_id, issued_by, reason)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, context_type, context_id, target_user_id, issued_by, reason, created_at`,
		in.Room.ContextType, in.Room.ContextID, in.TargetUserID, in.IssuedBy, in.Reason); err != nil {
		return WarningOutcome{}, err
	}

	if err = tx.GetContext(ctx, &out.Membership, `UPDATE memberships
        SET warning_count = warning_count + 1,
            status = CASE WHEN warning_count + 1 >= $2 THEN 'BANNED' ELSE status END
        WHERE id=$1
        RETURNING `+membershipColumns, membershipID, models.BanThreshold); err != nil {
		return WarningOutcome{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO points_ledger (user_id, points, reason, context_type, context_id, created_by)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		in.TargetUserID, -models.WarningPenaltyPoints, fmt.Sprintf("Warning issued: %s", in.Reason),
		in.Room.ContextType, in.Room.ContextID, in.IssuedBy); err != nil {
		return WarningOutcome{}, err
	}

	if notice != nil {
		content, kind := notice(out.Membership.WarningCount, out.Banned())
		if out.Notice, err = createSystemMessage(ctx, tx, in.Room, content, kind); err != nil {
			return WarningOutcome{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return WarningOutcome{}, err
	}
	return out, nil
}

type warningRow struct {
	models.Warning
	TargetUsername string `db:"target_username"`
	IssuerUsername string `db:"issuer_username"`
}

// List returns the warnings issued in a room, newest first.
func (r *WarningRepo) List(ctx context.Context, room models.RoomRef) ([]models.Warning, error) {
	query := `SELECT w.id, w.context_type, w.context_id, w.target_user_id, w.issued_by, w.reason, w.created_at,
            t.username AS target_username, i.username AS issuer_username
        FROM warnings w
        JOIN users t ON t.id = w.target_user_id
        JOIN users i ON i.id = w.issued_by
        WHERE w.context_type=$1 AND w.context_id=$2
        ORDER BY w.created_at DESC, w.id DESC`

	var rows []warningRow
	if err := r.db.SelectContext(ctx, &rows, query, room.ContextType, room.ContextID); err != nil {
		return nil, err
	}
	warnings := make([]models.Warning, 0, len(rows))
	for _, row := range rows {
		w := row.Warning
		w.TargetUser = &models.UserRef{ID: w.TargetUserID, Username: row.TargetUsername}
		w.Issuer = &models.UserRef{ID: w.IssuedBy, Username: row.IssuerUsername}
		warnings = append(warnings, w)
	}
	return warnings, nil
}
