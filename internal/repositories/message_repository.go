package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"activamigos-chat/internal/models"
)

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	Create(ctx context.Context, room models.RoomRef, senderID int64, content string) (models.ChatMessage, error)
	CreateSystem(ctx context.Context, room models.RoomRef, content string, kind models.MessageType) (models.ChatMessage, error)
	ListPage(ctx context.Context, room models.RoomRef, q models.HistoryQuery) (models.HistoryPage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	ID           int64              `db:"id"`
	ContextType  models.ContextType `db:"context_type"`
	ContextID    int64              `db:"context_id"`
	SenderID     sql.NullInt64      `db:"sender_id"`
	Content      string             `db:"content"`
	MessageType  models.MessageType `db:"message_type"`
	CreatedAt    time.Time          `db:"created_at"`
	Username     sql.NullString     `db:"username"`
	FirstName    sql.NullString     `db:"first_name"`
	LastName     sql.NullString     `db:"last_name"`
	ProfileImage sql.NullString     `db:"profile_image"`
}

func (r messageRow) toModel() models.ChatMessage {
	msg := models.ChatMessage{
		ID:          r.ID,
		ContextType: r.ContextType,
		ContextID:   r.ContextID,
		Content:     r.Content,
		CreatedAt:   r.CreatedAt,
		MessageType: r.MessageType,
		IsSystem:    r.MessageType != models.MessageUser,
	}
	if r.SenderID.Valid {
		id := r.SenderID.Int64
		msg.SenderID = &id
		msg.Sender = &models.Sender{
			ID:           id,
			Username:     r.Username.String,
			FirstName:    r.FirstName.String,
			LastName:     r.LastName.String,
			ProfileImage: r.ProfileImage.String,
		}
	}
	return msg
}

const insertMessageQuery = `WITH inserted AS (
            INSERT INTO messages (context_type, context_id, sender_id, content, message_type)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id, context_type, context_id, sender_id, content, message_type, created_at
        )
        SELECT i.id, i.context_type, i.context_id, i.sender_id, i.content, i.message_type, i.created_at,
            u.username, u.first_name, u.last_name, u.profile_image
        FROM inserted i LEFT JOIN users u ON u.id = i.sender_id`

// Create stores a user message and returns it with the sender joined.
func (r *MessageRepo) Create(ctx context.Context, room models.RoomRef, senderID int64, content string) (models.ChatMessage, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, insertMessageQuery, room.ContextType, room.ContextID, senderID, content, models.MessageUser)
	return row.toModel(), err
}

// CreateSystem stores a sender-less moderation notice.
func (r *MessageRepo) CreateSystem(ctx context.Context, room models.RoomRef, content string, kind models.MessageType) (models.ChatMessage, error) {
	return createSystemMessage(ctx, r.db, room, content, kind)
}

func createSystemMessage(ctx context.Context, q sqlx.QueryerContext, room models.RoomRef, content string, kind models.MessageType) (models.ChatMessage, error) {
	var row messageRow
	err := sqlx.GetContext(ctx, q, &row, insertMessageQuery, room.ContextType, room.ContextID, nil, content, kind)
	return row.toModel(), err
}

// ListPage returns one page of history counted from the newest message,
// ordered ascending by id.
func (r *MessageRepo) ListPage(ctx context.Context, room models.RoomRef, q models.HistoryQuery) (models.HistoryPage, error) {
	q = q.Normalize()
	query := `SELECT m.id, m.context_type, m.context_id, m.sender_id, m.content, m.message_type, m.created_at,
            u.username, u.first_name, u.last_name, u.profile_image
        FROM messages m
        LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.context_type=$1 AND m.context_id=$2 AND ($3 = 0 OR m.id < $3)
        ORDER BY m.id DESC
        LIMIT $4 OFFSET $5`

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, room.ContextType, room.ContextID, q.BeforeID, q.PerPage+1, (q.Page-1)*q.PerPage); err != nil {
		return models.HistoryPage{}, err
	}

	hasNext := len(rows) > q.PerPage
	if hasNext {
		rows = rows[:q.PerPage]
	}
	msgs := make([]models.ChatMessage, len(rows))
	for i, row := range rows {
		msgs[len(rows)-1-i] = row.toModel()
	}
	return models.HistoryPage{
		Messages:   msgs,
		Pagination: models.Pagination{Page: q.Page, PerPage: q.PerPage, HasNext: hasNext},
	}, nil
}
