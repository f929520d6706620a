package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pawzr/marketplace/internal/postgres"
)

var ErrNotFound = errors.New("notification not found")

const (
	TypeNewOrder    = "NEW_ORDER"
	TypeOrderStatus = "ORDER_STATUS"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// Insert writes n through q, so callers can include it in their transaction.
// ID and CreatedAt are filled when empty.
func Insert(ctx context.Context, q postgres.Querier, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO notifications(id, user_id, type, title, message, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Link, n.CreatedAt)
	return err
}

type Store struct{ DB postgres.Querier }

func (s *Store) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, user_id, type, title, message, link, is_read, created_at
		FROM notifications
		WHERE user_id=$1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead only touches rows owned by userID; someone else's id reads as not found.
func (s *Store) MarkRead(ctx context.Context, userID, id string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE notifications SET is_read=true WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
