package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"taskboard/api/internal/rbac"
	"taskboard/api/internal/realtime"
	"taskboard/api/internal/store"
)

// fakeStore implements dataStore with per-method overrides. Getters
// default to sql.ErrNoRows, mutators to echoing their input. Activities
// and notifications are captured so tests can assert on side effects.
type fakeStore struct {
	mu            sync.Mutex
	activities    []store.Activity
	notifications []store.Notification

	createUserFn          func(context.Context, store.User) (store.User, error)
	getUserByIDFn         func(context.Context, string) (store.User, error)
	getUserByEmailFn      func(context.Context, string) (store.User, error)
	updateUserProfileFn   func(context.Context, store.User) (store.User, error)
	setUserPasswordFn     func(context.Context, string, string) error
	setResetTokenFn       func(context.Context, string, string, time.Time) error
	getUserByResetTokenFn func(context.Context, string) (store.User, error)
	searchUsersFn         func(context.Context, string, int) ([]store.User, error)

	saveRefreshFn   func(context.Context, string, string, time.Time) error
	lookupRefreshFn func(context.Context, string) (store.User, error)
	revokeRefreshFn func(context.Context, string) error

	createBoardFn       func(context.Context, store.Board) (store.Board, error)
	getBoardFn          func(context.Context, string) (store.Board, error)
	listBoardsForUserFn func(context.Context, string) ([]store.Board, error)
	updateBoardFn       func(context.Context, store.Board) (store.Board, error)
	archiveBoardFn      func(context.Context, string) error
	addBoardMemberFn    func(context.Context, string, string, string) error
	removeBoardMemberFn func(context.Context, string, string) error

	createListFn   func(context.Context, store.List) (store.List, error)
	getListFn      func(context.Context, string) (store.List, error)
	listListsFn    func(context.Context, string) ([]store.List, error)
	updateListFn   func(context.Context, store.List) (store.List, error)
	archiveListFn  func(context.Context, string) error
	reorderListsFn func(context.Context, string, []string) error

	createCardFn        func(context.Context, store.Card) (store.Card, error)
	getCardFn           func(context.Context, string) (store.Card, error)
	listCardsForBoardFn func(context.Context, string) ([]store.Card, error)
	updateCardFn        func(context.Context, store.Card) (store.Card, error)
	deleteCardFn        func(context.Context, string) error
	moveCardFn          func(context.Context, string, string, int) (store.Card, error)
	reorderCardsFn      func(context.Context, string, []store.CardReorder) error
	commentCountsFn     func(context.Context, string) (map[string]int, error)

	createCommentFn func(context.Context, store.Comment) (store.Comment, error)
	getCommentFn    func(context.Context, string) (store.Comment, error)
	listCommentsFn  func(context.Context, string) ([]store.Comment, error)
	updateCommentFn func(context.Context, string, string) (store.Comment, error)
	deleteCommentFn func(context.Context, string) error

	listActivitiesFn    func(context.Context, string, int) ([]store.Activity, error)
	listNotificationsFn func(context.Context, string, int) ([]store.Notification, int, error)
}

func (f *fakeStore) CreateUser(ctx context.Context, u store.User) (store.User, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, u)
	}
	return u, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateUserProfile(ctx context.Context, u store.User) (store.User, error) {
	if f.updateUserProfileFn != nil {
		return f.updateUserProfileFn(ctx, u)
	}
	return u, nil
}

func (f *fakeStore) SetUserAvatar(context.Context, string, string) error { return nil }

func (f *fakeStore) SetUserPassword(ctx context.Context, userID, hash string) error {
	if f.setUserPasswordFn != nil {
		return f.setUserPasswordFn(ctx, userID, hash)
	}
	return nil
}

func (f *fakeStore) SetResetToken(ctx context.Context, userID, hash string, expires time.Time) error {
	if f.setResetTokenFn != nil {
		return f.setResetTokenFn(ctx, userID, hash, expires)
	}
	return nil
}

func (f *fakeStore) GetUserByResetToken(ctx context.Context, hash string) (store.User, error) {
	if f.getUserByResetTokenFn != nil {
		return f.getUserByResetTokenFn(ctx, hash)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) SearchUsers(ctx context.Context, q string, limit int) ([]store.User, error) {
	if f.searchUsersFn != nil {
		return f.searchUsersFn(ctx, q, limit)
	}
	return nil, nil
}

func (f *fakeStore) GetUsersByIDs(context.Context, []string) ([]store.User, error) { return nil, nil }

func (f *fakeStore) SaveRefreshSession(ctx context.Context, hash, userID string, expires time.Time) error {
	if f.saveRefreshFn != nil {
		return f.saveRefreshFn(ctx, hash, userID, expires)
	}
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, hash string) (store.User, error) {
	if f.lookupRefreshFn != nil {
		return f.lookupRefreshFn(ctx, hash)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, hash string) error {
	if f.revokeRefreshFn != nil {
		return f.revokeRefreshFn(ctx, hash)
	}
	return nil
}

func (f *fakeStore) CreateBoard(ctx context.Context, b store.Board) (store.Board, error) {
	if f.createBoardFn != nil {
		return f.createBoardFn(ctx, b)
	}
	return b, nil
}

func (f *fakeStore) GetBoard(ctx context.Context, id string) (store.Board, error) {
	if f.getBoardFn != nil {
		return f.getBoardFn(ctx, id)
	}
	return store.Board{}, sql.ErrNoRows
}

func (f *fakeStore) ListBoardsForUser(ctx context.Context, userID string) ([]store.Board, error) {
	if f.listBoardsForUserFn != nil {
		return f.listBoardsForUserFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeStore) UpdateBoard(ctx context.Context, b store.Board) (store.Board, error) {
	if f.updateBoardFn != nil {
		return f.updateBoardFn(ctx, b)
	}
	return b, nil
}

func (f *fakeStore) ArchiveBoard(ctx context.Context, id string) error {
	if f.archiveBoardFn != nil {
		return f.archiveBoardFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) AddBoardMember(ctx context.Context, boardID, userID, role string) error {
	if f.addBoardMemberFn != nil {
		return f.addBoardMemberFn(ctx, boardID, userID, role)
	}
	return nil
}

func (f *fakeStore) RemoveBoardMember(ctx context.Context, boardID, userID string) error {
	if f.removeBoardMemberFn != nil {
		return f.removeBoardMemberFn(ctx, boardID, userID)
	}
	return nil
}

func (f *fakeStore) TouchBoard(context.Context, string) error { return nil }

func (f *fakeStore) CreateList(ctx context.Context, l store.List) (store.List, error) {
	if f.createListFn != nil {
		return f.createListFn(ctx, l)
	}
	return l, nil
}

func (f *fakeStore) GetList(ctx context.Context, id string) (store.List, error) {
	if f.getListFn != nil {
		return f.getListFn(ctx, id)
	}
	return store.List{}, sql.ErrNoRows
}

func (f *fakeStore) ListLists(ctx context.Context, boardID string) ([]store.List, error) {
	if f.listListsFn != nil {
		return f.listListsFn(ctx, boardID)
	}
	return nil, nil
}

func (f *fakeStore) UpdateList(ctx context.Context, l store.List) (store.List, error) {
	if f.updateListFn != nil {
		return f.updateListFn(ctx, l)
	}
	return l, nil
}

func (f *fakeStore) ArchiveList(ctx context.Context, id string) error {
	if f.archiveListFn != nil {
		return f.archiveListFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) ReorderLists(ctx context.Context, boardID string, ids []string) error {
	if f.reorderListsFn != nil {
		return f.reorderListsFn(ctx, boardID, ids)
	}
	return nil
}

func (f *fakeStore) CreateCard(ctx context.Context, c store.Card) (store.Card, error) {
	if f.createCardFn != nil {
		return f.createCardFn(ctx, c)
	}
	return c, nil
}

func (f *fakeStore) GetCard(ctx context.Context, id string) (store.Card, error) {
	if f.getCardFn != nil {
		return f.getCardFn(ctx, id)
	}
	return store.Card{}, sql.ErrNoRows
}

func (f *fakeStore) ListCardsForBoard(ctx context.Context, boardID string) ([]store.Card, error) {
	if f.listCardsForBoardFn != nil {
		return f.listCardsForBoardFn(ctx, boardID)
	}
	return nil, nil
}

func (f *fakeStore) UpdateCard(ctx context.Context, c store.Card) (store.Card, error) {
	if f.updateCardFn != nil {
		return f.updateCardFn(ctx, c)
	}
	return c, nil
}

func (f *fakeStore) DeleteCard(ctx context.Context, id string) error {
	if f.deleteCardFn != nil {
		return f.deleteCardFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) MoveCard(ctx context.Context, cardID, listID string, position int) (store.Card, error) {
	if f.moveCardFn != nil {
		return f.moveCardFn(ctx, cardID, listID, position)
	}
	return store.Card{}, sql.ErrNoRows
}

func (f *fakeStore) ReorderCards(ctx context.Context, boardID string, items []store.CardReorder) error {
	if f.reorderCardsFn != nil {
		return f.reorderCardsFn(ctx, boardID, items)
	}
	return nil
}

func (f *fakeStore) CommentCountsForBoard(ctx context.Context, boardID string) (map[string]int, error) {
	if f.commentCountsFn != nil {
		return f.commentCountsFn(ctx, boardID)
	}
	return map[string]int{}, nil
}

func (f *fakeStore) CreateComment(ctx context.Context, c store.Comment) (store.Comment, error) {
	if f.createCommentFn != nil {
		return f.createCommentFn(ctx, c)
	}
	return c, nil
}

func (f *fakeStore) GetComment(ctx context.Context, id string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, id)
	}
	return store.Comment{}, sql.ErrNoRows
}

func (f *fakeStore) ListComments(ctx context.Context, cardID string) ([]store.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, cardID)
	}
	return nil, nil
}

func (f *fakeStore) UpdateComment(ctx context.Context, id, text string) (store.Comment, error) {
	if f.updateCommentFn != nil {
		return f.updateCommentFn(ctx, id, text)
	}
	now := time.Now()
	return store.Comment{ID: id, Text: text, Edited: true, EditedAt: &now}, nil
}

func (f *fakeStore) DeleteComment(ctx context.Context, id string) error {
	if f.deleteCommentFn != nil {
		return f.deleteCommentFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) InsertActivity(ctx context.Context, a store.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeStore) ListActivities(ctx context.Context, boardID string, limit int) ([]store.Activity, error) {
	if f.listActivitiesFn != nil {
		return f.listActivitiesFn(ctx, boardID, limit)
	}
	return nil, nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n store.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, int, error) {
	if f.listNotificationsFn != nil {
		return f.listNotificationsFn(ctx, userID, limit)
	}
	return nil, 0, nil
}

func (f *fakeStore) MarkNotificationRead(context.Context, string, string) error { return nil }
func (f *fakeStore) MarkAllNotificationsRead(context.Context, string) error     { return nil }
func (f *fakeStore) DeleteNotification(context.Context, string, string) error   { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) capturedNotifications() []store.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Notification, len(f.notifications))
	copy(out, f.notifications)
	return out
}

func (f *fakeStore) capturedActivities() []store.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Activity, len(f.activities))
	copy(out, f.activities)
	return out
}

func newTestService(fake *fakeStore) *Service {
	return &Service{
		cfg:    testConfig(),
		store:  fake,
		hub:    realtime.NewHub(),
		policy: rbac.DefaultPolicy,
	}
}
