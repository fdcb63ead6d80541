package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const boardAccessWhere = `(b.owner_id = $2 OR b.visibility = 'public'
		OR b.id IN (SELECT board_id FROM board_members WHERE user_id = $2))`

// Search executes a UNION ALL query across boards, cards, and users using
// plainto_tsquery and ts_rank, with ts_headline for snippets. The tsvector
// is computed inline; the tables carry no stored FTS column.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.UserID}
	argN := 3

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultBoard {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'board'::text AS type, b.id, b.title,
				ts_headline('english', coalesce(b.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.id AS board_id, ''::text AS list_id,
				ts_rank(to_tsvector('english', b.title || ' ' || b.description), %s) AS rank
			FROM boards b
			WHERE b.archived = FALSE
				AND to_tsvector('english', b.title || ' ' || b.description) @@ %s
				AND %s`, tsQuery, tsQuery, tsQuery, boardAccessWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultCard {
		cardWhere := ""
		if q.FilterBoardID != "" {
			cardWhere = fmt.Sprintf(" AND c.board_id = $%d", argN)
			args = append(args, q.FilterBoardID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'card'::text AS type, c.id, c.title,
				ts_headline('english', coalesce(c.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.board_id, c.list_id,
				ts_rank(to_tsvector('english', c.title || ' ' || c.description), %s) AS rank
			FROM cards c
			JOIN boards b ON b.id = c.board_id
			WHERE c.archived = FALSE
				AND to_tsvector('english', c.title || ' ' || c.description) @@ %s
				AND %s%s`, tsQuery, tsQuery, tsQuery, boardAccessWhere, cardWhere))
	}

	// User hits exclude the requester; searching for people is always
	// about finding someone else to add.
	if q.FilterType == "" || q.FilterType == ResultUser {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'user'::text AS type, u.id, u.name, u.email AS snippet,
				''::text AS board_id, ''::text AS list_id,
				ts_rank(to_tsvector('english', u.name || ' ' || u.email), %s) AS rank
			FROM users u
			WHERE to_tsvector('english', u.name || ' ' || u.email) @@ %s
				AND u.id <> $2`, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, board_id, list_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.BoardID, &r.ListID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]BoardRecord, []CardRecord, []UserRecord, error) {
	boardRows, err := p.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.description, b.owner_id, b.visibility,
			COALESCE((SELECT json_agg(user_id) FROM board_members WHERE board_id = b.id), '[]')
		FROM boards b
		WHERE b.archived = FALSE
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load boards: %w", err)
	}
	defer boardRows.Close()

	boards := make([]BoardRecord, 0)
	boardMembers := make(map[string][]string)
	for boardRows.Next() {
		var b BoardRecord
		var members []byte
		if err := boardRows.Scan(&b.ID, &b.Title, &b.Description, &b.OwnerID, &b.Visibility, &members); err != nil {
			return nil, nil, nil, fmt.Errorf("scan board: %w", err)
		}
		if err := json.Unmarshal(members, &b.MemberIDs); err != nil {
			return nil, nil, nil, fmt.Errorf("decode board members: %w", err)
		}
		boards = append(boards, b)
		boardMembers[b.ID] = b.MemberIDs
	}
	if err := boardRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate boards: %w", err)
	}

	cardRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.description, c.board_id, c.list_id, b.owner_id, b.visibility
		FROM cards c
		JOIN boards b ON b.id = c.board_id
		WHERE c.archived = FALSE AND b.archived = FALSE
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load cards: %w", err)
	}
	defer cardRows.Close()

	cards := make([]CardRecord, 0)
	for cardRows.Next() {
		var c CardRecord
		if err := cardRows.Scan(&c.ID, &c.Title, &c.Description, &c.BoardID, &c.ListID, &c.OwnerID, &c.Visibility); err != nil {
			return nil, nil, nil, fmt.Errorf("scan card: %w", err)
		}
		c.MemberIDs = boardMembers[c.BoardID]
		cards = append(cards, c)
	}
	if err := cardRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate cards: %w", err)
	}

	userRows, err := p.db.QueryContext(ctx, `SELECT id, name, email FROM users`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load users: %w", err)
	}
	defer userRows.Close()

	users := make([]UserRecord, 0)
	for userRows.Next() {
		var u UserRecord
		if err := userRows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, nil, nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := userRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate users: %w", err)
	}

	return boards, cards, users, nil
}
