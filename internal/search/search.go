package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBoard ResultType = "board"
	ResultCard  ResultType = "card"
	ResultUser  ResultType = "user"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	BoardID string     `json:"boardId,omitempty"`
	ListID  string     `json:"listId,omitempty"`
}

// Query describes a search request. UserID scopes board and card hits to
// boards the requester can see.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterBoardID string
	UserID        string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexBoard(b BoardRecord) error
	IndexCard(c CardRecord) error
	IndexUser(u UserRecord) error
	DeleteBoard(id string) error
	DeleteCard(id string) error
}

// BoardRecord is the data we index for a board. OwnerID, MemberIDs, and
// Visibility are filterable so hits can be scoped to the requester.
type BoardRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	OwnerID     string   `json:"ownerId"`
	MemberIDs   []string `json:"memberIds"`
	Visibility  string   `json:"visibility"`
}

// CardRecord is the data we index for a card.
type CardRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	BoardID     string   `json:"boardId"`
	ListID      string   `json:"listId"`
	OwnerID     string   `json:"ownerId"`
	MemberIDs   []string `json:"memberIds"`
	Visibility  string   `json:"visibility"`
}

// UserRecord is the data we index for a user.
type UserRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
