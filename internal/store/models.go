package store

import "time"

type User struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	AvatarURL      string
	Bio            string
	Theme          string
	EmailNotify    bool
	ResetTokenHash string
	ResetExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PublicUser is the projection embedded in API responses and member lists.
type PublicUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL}
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Board struct {
	ID          string
	Title       string
	Description string
	OwnerID     string
	Visibility  string
	Background  string
	Labels      []Label
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Members     []BoardMember
}

type BoardMember struct {
	BoardID  string     `json:"-"`
	UserID   string     `json:"userId"`
	Role     string     `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
	User     PublicUser `json:"user"`
}

type List struct {
	ID        string
	BoardID   string
	Title     string
	Position  int
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Attachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	UploadedBy string    `json:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type ChecklistItem struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	CompletedBy string     `json:"completedBy,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type Checklist struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Items []ChecklistItem `json:"items"`
}

type Card struct {
	ID          string
	Title       string
	Description string
	ListID      string
	BoardID     string
	Position    int
	Labels      []Label
	MemberIDs   []string
	StartDate   *time.Time
	DueDate     *time.Time
	Priority    string
	Cover       string
	Attachments []Attachment
	Checklists  []Checklist
	Archived    bool
	Completed   bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Comment struct {
	ID        string
	CardID    string
	AuthorID  string
	Text      string
	Edited    bool
	EditedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Author    PublicUser
}

type Activity struct {
	ID        string
	BoardID   string
	CardID    string
	ActorID   string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
	Actor     PublicUser
}

type Notification struct {
	ID        string
	UserID    string
	ActorID   string
	Type      string
	BoardID   string
	CardID    string
	Message   string
	Read      bool
	CreatedAt time.Time
	Actor     PublicUser
}

// CardReorder is one element of a bulk position rewrite submitted by a
// client after drag-and-drop settles.
type CardReorder struct {
	CardID string
	ListID string
}
