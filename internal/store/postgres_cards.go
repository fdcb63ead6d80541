package store

import (
	"context"
	"encoding/json"
	"fmt"
)

const cardColumns = `id, title, description, list_id, board_id, position, labels, member_ids, start_date, due_date, priority, cover, attachments, checklists, archived, completed, created_by, created_at, updated_at`

func scanCard(scan func(dest ...any) error) (Card, error) {
	var c Card
	var labels, memberIDs, attachments, checklists []byte
	err := scan(&c.ID, &c.Title, &c.Description, &c.ListID, &c.BoardID, &c.Position,
		&labels, &memberIDs, &c.StartDate, &c.DueDate, &c.Priority, &c.Cover,
		&attachments, &checklists, &c.Archived, &c.Completed, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{labels, &c.Labels},
		{memberIDs, &c.MemberIDs},
		{attachments, &c.Attachments},
		{checklists, &c.Checklists},
	} {
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return Card{}, fmt.Errorf("decode card field: %w", err)
		}
	}
	return c, nil
}

func encodeCardJSON(c Card) (labels, memberIDs, attachments, checklists string, err error) {
	if c.Labels == nil {
		c.Labels = []Label{}
	}
	if c.MemberIDs == nil {
		c.MemberIDs = []string{}
	}
	if c.Attachments == nil {
		c.Attachments = []Attachment{}
	}
	if c.Checklists == nil {
		c.Checklists = []Checklist{}
	}
	for _, field := range []struct {
		v   any
		out *string
	}{
		{c.Labels, &labels},
		{c.MemberIDs, &memberIDs},
		{c.Attachments, &attachments},
		{c.Checklists, &checklists},
	} {
		raw, merr := json.Marshal(field.v)
		if merr != nil {
			err = fmt.Errorf("encode card field: %w", merr)
			return
		}
		*field.out = string(raw)
	}
	return
}

func (s *PostgresStore) CreateCard(ctx context.Context, c Card) (Card, error) {
	labels, memberIDs, attachments, checklists, err := encodeCardJSON(c)
	if err != nil {
		return Card{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO cards (id, title, description, list_id, board_id, position, labels, member_ids, start_date, due_date, priority, cover, attachments, checklists, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+cardColumns,
		c.ID, c.Title, c.Description, c.ListID, c.BoardID, c.Position,
		labels, memberIDs, c.StartDate, c.DueDate, c.Priority, c.Cover,
		attachments, checklists, c.CreatedBy)
	created, err := scanCard(row.Scan)
	if err != nil {
		return Card{}, fmt.Errorf("insert card: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, cardID string) (Card, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id=$1`, cardID)
	return scanCard(row.Scan)
}

// ListCardsForBoard returns the board's non-archived cards ordered within
// each list by position with a stable tie-break.
func (s *PostgresStore) ListCardsForBoard(ctx context.Context, boardID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM cards
		WHERE board_id=$1 AND archived=FALSE
		ORDER BY list_id, position, created_at, id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	items := make([]Card, 0)
	for rows.Next() {
		c, err := scanCard(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateCard(ctx context.Context, c Card) (Card, error) {
	labels, memberIDs, attachments, checklists, err := encodeCardJSON(c)
	if err != nil {
		return Card{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE cards
		SET title=$2, description=$3, labels=$4, member_ids=$5, start_date=$6, due_date=$7,
			priority=$8, cover=$9, attachments=$10, checklists=$11, archived=$12, completed=$13, updated_at=NOW()
		WHERE id=$1
		RETURNING `+cardColumns,
		c.ID, c.Title, c.Description, labels, memberIDs, c.StartDate, c.DueDate,
		c.Priority, c.Cover, attachments, checklists, c.Archived, c.Completed)
	updated, err := scanCard(row.Scan)
	if err != nil {
		return Card{}, err
	}
	return updated, nil
}

// DeleteCard removes the card and closes the gap it leaves in its list.
func (s *PostgresStore) DeleteCard(ctx context.Context, cardID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete card: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var listID string
	var position int
	err = tx.QueryRowContext(ctx, `SELECT list_id, position FROM cards WHERE id=$1`, cardID).Scan(&listID, &position)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id=$1`, cardID); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE cards SET position = position - 1 WHERE list_id=$1 AND position > $2
	`, listID, position); err != nil {
		return fmt.Errorf("compact positions: %w", err)
	}
	return tx.Commit()
}

// MoveCard relocates a card to (toListID, position) and shifts every
// affected sibling in the same transaction, so readers never observe a
// half-applied move. Returns the card as stored after the move.
func (s *PostgresStore) MoveCard(ctx context.Context, cardID, toListID string, position int) (Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Card{}, fmt.Errorf("begin move card: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fromListID string
	var oldPosition int
	err = tx.QueryRowContext(ctx, `SELECT list_id, position FROM cards WHERE id=$1 FOR UPDATE`, cardID).Scan(&fromListID, &oldPosition)
	if err != nil {
		return Card{}, err
	}

	if fromListID == toListID {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cards SET position = position + 1
			WHERE list_id=$1 AND position >= $2 AND id <> $3
		`, toListID, position, cardID); err != nil {
			return Card{}, fmt.Errorf("shift siblings: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cards SET position = position - 1
			WHERE list_id=$1 AND position > $2
		`, fromListID, oldPosition); err != nil {
			return Card{}, fmt.Errorf("close source gap: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE cards SET position = position + 1
			WHERE list_id=$1 AND position >= $2
		`, toListID, position); err != nil {
			return Card{}, fmt.Errorf("open destination gap: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE cards SET list_id=$2, position=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING `+cardColumns, cardID, toListID, position)
	moved, err := scanCard(row.Scan)
	if err != nil {
		return Card{}, fmt.Errorf("place card: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Card{}, fmt.Errorf("commit move card: %w", err)
	}
	return moved, nil
}

// ReorderCards is the authoritative bulk rewrite: each card takes the
// index of its slot within its list in the submitted order, so positions
// come out contiguous from zero regardless of prior drift.
func (s *PostgresStore) ReorderCards(ctx context.Context, boardID string, items []CardReorder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder cards: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	next := make(map[string]int)
	for _, item := range items {
		pos := next[item.ListID]
		next[item.ListID] = pos + 1
		if _, err := tx.ExecContext(ctx, `
			UPDATE cards SET list_id=$3, position=$4, updated_at=NOW()
			WHERE id=$1 AND board_id=$2
		`, item.CardID, boardID, item.ListID, pos); err != nil {
			return fmt.Errorf("reorder card %s: %w", item.CardID, err)
		}
	}
	return tx.Commit()
}

// CommentCountsForBoard returns the per-card comment counts of a board in
// one grouped query. The aggregation read path depends on this staying a
// single round trip.
func (s *PostgresStore) CommentCountsForBoard(ctx context.Context, boardID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.card_id, COUNT(*)
		FROM comments c
		JOIN cards ca ON ca.id = c.card_id
		WHERE ca.board_id = $1
		GROUP BY c.card_id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cardID string
		var n int
		if err := rows.Scan(&cardID, &n); err != nil {
			return nil, fmt.Errorf("scan comment count: %w", err)
		}
		counts[cardID] = n
	}
	return counts, rows.Err()
}
