package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) CreateComment(ctx context.Context, c Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, card_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, c.ID, c.CardID, c.AuthorID, c.Text).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT cm.id, cm.card_id, cm.author_id, cm.body, cm.edited, cm.edited_at, cm.created_at, cm.updated_at, u.name, u.email, u.avatar_url
		FROM comments cm
		JOIN users u ON u.id = cm.author_id
		WHERE cm.id=$1
	`, commentID).Scan(&c.ID, &c.CardID, &c.AuthorID, &c.Text, &c.Edited, &c.EditedAt, &c.CreatedAt, &c.UpdatedAt, &c.Author.Name, &c.Author.Email, &c.Author.AvatarURL)
	if err != nil {
		return Comment{}, err
	}
	c.Author.ID = c.AuthorID
	return c, nil
}

// ListComments returns a card's comments oldest first, with the author
// joined in for display.
func (s *PostgresStore) ListComments(ctx context.Context, cardID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cm.id, cm.card_id, cm.author_id, cm.body, cm.edited, cm.edited_at, cm.created_at, cm.updated_at, u.name, u.email, u.avatar_url
		FROM comments cm
		JOIN users u ON u.id = cm.author_id
		WHERE cm.card_id=$1
		ORDER BY cm.created_at, cm.id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.CardID, &c.AuthorID, &c.Text, &c.Edited, &c.EditedAt, &c.CreatedAt, &c.UpdatedAt, &c.Author.Name, &c.Author.Email, &c.Author.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Author.ID = c.AuthorID
		items = append(items, c)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID, body string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		UPDATE comments SET body=$2, edited=TRUE, edited_at=NOW(), updated_at=NOW()
		WHERE id=$1
		RETURNING id, card_id, author_id, body, edited, edited_at, created_at, updated_at
	`, commentID, body).Scan(&c.ID, &c.CardID, &c.AuthorID, &c.Text, &c.Edited, &c.EditedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
