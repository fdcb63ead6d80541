package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const boardColumns = `id, title, description, owner_id, visibility, background, labels, archived, created_at, updated_at`

func scanBoard(scan func(dest ...any) error) (Board, error) {
	var b Board
	var labels []byte
	err := scan(&b.ID, &b.Title, &b.Description, &b.OwnerID, &b.Visibility, &b.Background, &labels, &b.Archived, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	if err := json.Unmarshal(labels, &b.Labels); err != nil {
		return Board{}, fmt.Errorf("decode board labels: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) CreateBoard(ctx context.Context, b Board) (Board, error) {
	labels, err := json.Marshal(orEmptyLabels(b.Labels))
	if err != nil {
		return Board{}, fmt.Errorf("encode labels: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO boards (id, title, description, owner_id, visibility, background, labels)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+boardColumns, b.ID, b.Title, b.Description, b.OwnerID, b.Visibility, b.Background, string(labels))
	created, err := scanBoard(row.Scan)
	if err != nil {
		return Board{}, fmt.Errorf("insert board: %w", err)
	}
	created.Members = []BoardMember{}
	return created, nil
}

// GetBoard loads a board with its membership list. Archived boards are
// returned; callers decide whether direct-id access to them is allowed.
func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE id=$1`, boardID)
	b, err := scanBoard(row.Scan)
	if err != nil {
		return Board{}, err
	}
	members, err := s.listBoardMembers(ctx, boardID)
	if err != nil {
		return Board{}, err
	}
	b.Members = members
	return b, nil
}

func (s *PostgresStore) listBoardMembers(ctx context.Context, boardID string) ([]BoardMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bm.board_id, bm.user_id, bm.role, bm.joined_at, u.name, u.email, u.avatar_url
		FROM board_members bm
		JOIN users u ON u.id = bm.user_id
		WHERE bm.board_id = $1
		ORDER BY bm.joined_at
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board members: %w", err)
	}
	defer rows.Close()

	members := make([]BoardMember, 0)
	for rows.Next() {
		var m BoardMember
		if err := rows.Scan(&m.BoardID, &m.UserID, &m.Role, &m.JoinedAt, &m.User.Name, &m.User.Email, &m.User.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan board member: %w", err)
		}
		m.User.ID = m.UserID
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListBoardsForUser returns non-archived boards the user owns, is a
// member of, or that are public, most recently updated first.
func (s *PostgresStore) ListBoardsForUser(ctx context.Context, userID string) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+boardColumns+` FROM boards
		WHERE archived = FALSE
			AND (owner_id = $1
				OR id IN (SELECT board_id FROM board_members WHERE user_id = $1)
				OR visibility = 'public')
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	boards := make([]Board, 0)
	for rows.Next() {
		b, err := scanBoard(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachBoardMembers(ctx, boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// attachBoardMembers loads the membership lists for a page of boards in
// one query.
func (s *PostgresStore) attachBoardMembers(ctx context.Context, boards []Board) error {
	if len(boards) == 0 {
		return nil
	}
	ids := make([]string, 0, len(boards))
	for _, b := range boards {
		ids = append(ids, b.ID)
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode board ids: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT bm.board_id, bm.user_id, bm.role, bm.joined_at, u.name, u.email, u.avatar_url
		FROM board_members bm
		JOIN users u ON u.id = bm.user_id
		WHERE bm.board_id IN (SELECT jsonb_array_elements_text($1::jsonb))
		ORDER BY bm.joined_at
	`, string(encoded))
	if err != nil {
		return fmt.Errorf("list board members: %w", err)
	}
	defer rows.Close()

	byBoard := make(map[string][]BoardMember, len(boards))
	for rows.Next() {
		var m BoardMember
		if err := rows.Scan(&m.BoardID, &m.UserID, &m.Role, &m.JoinedAt, &m.User.Name, &m.User.Email, &m.User.AvatarURL); err != nil {
			return fmt.Errorf("scan board member: %w", err)
		}
		m.User.ID = m.UserID
		byBoard[m.BoardID] = append(byBoard[m.BoardID], m)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range boards {
		members := byBoard[boards[i].ID]
		if members == nil {
			members = []BoardMember{}
		}
		boards[i].Members = members
	}
	return nil
}

func (s *PostgresStore) UpdateBoard(ctx context.Context, b Board) (Board, error) {
	labels, err := json.Marshal(orEmptyLabels(b.Labels))
	if err != nil {
		return Board{}, fmt.Errorf("encode labels: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE boards
		SET title=$2, description=$3, visibility=$4, background=$5, labels=$6, updated_at=NOW()
		WHERE id=$1
		RETURNING `+boardColumns, b.ID, b.Title, b.Description, b.Visibility, b.Background, string(labels))
	updated, err := scanBoard(row.Scan)
	if err != nil {
		return Board{}, err
	}
	updated.Members = b.Members
	return updated, nil
}

// ArchiveBoard soft-deletes; the board and its contents stay queryable by id.
func (s *PostgresStore) ArchiveBoard(ctx context.Context, boardID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE boards SET archived=TRUE, updated_at=NOW() WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("archive board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) AddBoardMember(ctx context.Context, boardID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (board_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, boardID, userID, role)
	if err != nil {
		return fmt.Errorf("add board member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveBoardMember(ctx context.Context, boardID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM board_members WHERE board_id=$1 AND user_id=$2`, boardID, userID)
	if err != nil {
		return fmt.Errorf("remove board member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) TouchBoard(ctx context.Context, boardID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE boards SET updated_at=NOW() WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("touch board: %w", err)
	}
	return nil
}

func orEmptyLabels(labels []Label) []Label {
	if labels == nil {
		return []Label{}
	}
	return labels
}
