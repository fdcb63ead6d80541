package store

import (
	"context"
	"database/sql"
	"fmt"
)

const listColumns = `id, board_id, title, position, archived, created_at, updated_at`

func scanList(scan func(dest ...any) error) (List, error) {
	var l List
	err := scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.Archived, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return List{}, err
	}
	return l, nil
}

func (s *PostgresStore) CreateList(ctx context.Context, l List) (List, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO lists (id, board_id, title, position)
		VALUES ($1, $2, $3, $4)
		RETURNING `+listColumns, l.ID, l.BoardID, l.Title, l.Position)
	created, err := scanList(row.Scan)
	if err != nil {
		return List{}, fmt.Errorf("insert list: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetList(ctx context.Context, listID string) (List, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id=$1`, listID)
	return scanList(row.Scan)
}

// ListLists returns the non-archived lists of a board ordered by position,
// with creation time and id breaking position ties deterministically.
func (s *PostgresStore) ListLists(ctx context.Context, boardID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listColumns+` FROM lists
		WHERE board_id=$1 AND archived=FALSE
		ORDER BY position, created_at, id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	items := make([]List, 0)
	for rows.Next() {
		l, err := scanList(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateList(ctx context.Context, l List) (List, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE lists SET title=$2, position=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING `+listColumns, l.ID, l.Title, l.Position)
	updated, err := scanList(row.Scan)
	if err != nil {
		return List{}, err
	}
	return updated, nil
}

// ArchiveList archives the list and every card in it, in one transaction.
func (s *PostgresStore) ArchiveList(ctx context.Context, listID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE lists SET archived=TRUE, updated_at=NOW() WHERE id=$1`, listID)
	if err != nil {
		return fmt.Errorf("archive list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `UPDATE cards SET archived=TRUE, updated_at=NOW() WHERE list_id=$1`, listID); err != nil {
		return fmt.Errorf("archive list cards: %w", err)
	}
	return tx.Commit()
}

// ReorderLists rewrites the positions of a board's lists to the index of
// each id in the submitted order. Ids not belonging to the board are
// ignored by the WHERE clause rather than corrupting another board.
func (s *PostgresStore) ReorderLists(ctx context.Context, boardID string, orderedIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder lists: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE lists SET position=$3, updated_at=NOW() WHERE id=$1 AND board_id=$2
		`, id, boardID, i); err != nil {
			return fmt.Errorf("reorder list %s: %w", id, err)
		}
	}
	return tx.Commit()
}
