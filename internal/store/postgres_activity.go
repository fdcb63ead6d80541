package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) InsertActivity(ctx context.Context, a Activity) error {
	if a.Data == nil {
		a.Data = map[string]any{}
	}
	data, err := json.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("encode activity data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activities (id, board_id, card_id, actor_id, type, data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.BoardID, a.CardID, a.ActorID, a.Type, string(data))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivities returns a board's activity records newest first.
func (s *PostgresStore) ListActivities(ctx context.Context, boardID string, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.board_id, a.card_id, a.actor_id, a.type, a.data, a.created_at, u.name, u.email, u.avatar_url
		FROM activities a
		JOIN users u ON u.id = a.actor_id
		WHERE a.board_id=$1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $2
	`, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var a Activity
		var data []byte
		if err := rows.Scan(&a.ID, &a.BoardID, &a.CardID, &a.ActorID, &a.Type, &data, &a.CreatedAt, &a.Actor.Name, &a.Actor.Email, &a.Actor.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if err := json.Unmarshal(data, &a.Data); err != nil {
			return nil, fmt.Errorf("decode activity data: %w", err)
		}
		a.Actor.ID = a.ActorID
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, actor_id, type, board_id, card_id, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.ActorID, n.Type, n.BoardID, n.CardID, n.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's most recent notifications plus the
// total unread count, which the client shows as a badge.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.user_id, n.actor_id, n.type, n.board_id, n.card_id, n.message, n.read, n.created_at,
			COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.avatar_url, '')
		FROM notifications n
		LEFT JOIN users u ON u.id = n.actor_id
		WHERE n.user_id=$1
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ActorID, &n.Type, &n.BoardID, &n.CardID, &n.Message, &n.Read, &n.CreatedAt, &n.Actor.Name, &n.Actor.Email, &n.Actor.AvatarURL); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		n.Actor.ID = n.ActorID
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var unread int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read=FALSE`, userID).Scan(&unread)
	if err != nil {
		return nil, 0, fmt.Errorf("count unread: %w", err)
	}
	return items, unread, nil
}

// MarkNotificationRead is scoped to the owner so one user cannot touch
// another's notifications by guessing ids.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE user_id=$1 AND read=FALSE`, userID)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
