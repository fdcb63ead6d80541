package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/authpw"
	"taskboard/api/internal/blob"
	"taskboard/api/internal/config"
	"taskboard/api/internal/email"
	"taskboard/api/internal/rbac"
	"taskboard/api/internal/realtime"
	"taskboard/api/internal/search"
	"taskboard/api/internal/session"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	UserEmail    string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the slice of the Postgres store the service needs. Tests
// substitute a fake that overrides individual methods.
type dataStore interface {
	CreateUser(context.Context, store.User) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	UpdateUserProfile(context.Context, store.User) (store.User, error)
	SetUserAvatar(context.Context, string, string) error
	SetUserPassword(context.Context, string, string) error
	SetResetToken(context.Context, string, string, time.Time) error
	GetUserByResetToken(context.Context, string) (store.User, error)
	SearchUsers(context.Context, string, int) ([]store.User, error)
	GetUsersByIDs(context.Context, []string) ([]store.User, error)

	SaveRefreshSession(context.Context, string, string, time.Time) error
	RevokeRefreshSession(context.Context, string) error
	LookupRefreshSession(context.Context, string) (store.User, error)

	CreateBoard(context.Context, store.Board) (store.Board, error)
	GetBoard(context.Context, string) (store.Board, error)
	ListBoardsForUser(context.Context, string) ([]store.Board, error)
	UpdateBoard(context.Context, store.Board) (store.Board, error)
	ArchiveBoard(context.Context, string) error
	AddBoardMember(context.Context, string, string, string) error
	RemoveBoardMember(context.Context, string, string) error
	TouchBoard(context.Context, string) error

	CreateList(context.Context, store.List) (store.List, error)
	GetList(context.Context, string) (store.List, error)
	ListLists(context.Context, string) ([]store.List, error)
	UpdateList(context.Context, store.List) (store.List, error)
	ArchiveList(context.Context, string) error
	ReorderLists(context.Context, string, []string) error

	CreateCard(context.Context, store.Card) (store.Card, error)
	GetCard(context.Context, string) (store.Card, error)
	ListCardsForBoard(context.Context, string) ([]store.Card, error)
	UpdateCard(context.Context, store.Card) (store.Card, error)
	DeleteCard(context.Context, string) error
	MoveCard(context.Context, string, string, int) (store.Card, error)
	ReorderCards(context.Context, string, []store.CardReorder) error
	CommentCountsForBoard(context.Context, string) (map[string]int, error)

	CreateComment(context.Context, store.Comment) (store.Comment, error)
	GetComment(context.Context, string) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	UpdateComment(context.Context, string, string) (store.Comment, error)
	DeleteComment(context.Context, string) error

	InsertActivity(context.Context, store.Activity) error
	ListActivities(context.Context, string, int) ([]store.Activity, error)
	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, int) ([]store.Notification, int, error)
	MarkNotificationRead(context.Context, string, string) error
	MarkAllNotificationsRead(context.Context, string) error
	DeleteNotification(context.Context, string, string) error

	Ping(ctx context.Context) error
}

// refreshStore is the Redis-backed session store. Nil means refresh
// sessions live in Postgres instead.
type refreshStore interface {
	Save(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.TokenData, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexBoard(b search.BoardRecord)
	IndexCard(c search.CardRecord)
	IndexUser(u search.UserRecord)
	DeleteBoard(id string)
	DeleteCard(id string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	email    *email.Service
	blob     *blob.Service
	search   searchService
	hub      *realtime.Hub
	policy   rbac.Policy
}

type Options struct {
	Sessions *session.RedisStore
	AuthPW   *authpw.Service
	Email    *email.Service
	Blob     *blob.Service
	Search   *search.Service
	Hub      *realtime.Hub
	Policy   *rbac.Policy
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts Options) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		authpw: opts.AuthPW,
		email:  opts.Email,
		blob:   opts.Blob,
		hub:    opts.Hub,
		policy: rbac.DefaultPolicy,
	}
	if opts.Sessions != nil {
		s.sessions = opts.Sessions
	}
	if opts.Search != nil {
		s.search = opts.Search
	}
	if opts.Hub == nil {
		s.hub = realtime.NewHub()
	}
	if opts.Policy != nil {
		s.policy = *opts.Policy
	}
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service { return s.authpw }
func (s *Service) BlobService() *blob.Service           { return s.blob }
func (s *Service) Hub() *realtime.Hub                   { return s.hub }

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ── Sessions ──

func (s *Service) IssueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.Name,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	refreshHash := auth.HashToken(refresh)
	if s.sessions != nil {
		err = s.sessions.Save(ctx, refreshHash, session.TokenData{
			UserID: user.ID,
			Name:   user.Name,
			Email:  user.Email,
		}, refreshExpires)
	} else {
		err = s.store.SaveRefreshSession(ctx, refreshHash, user.ID, refreshExpires)
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		UserEmail:    user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	var user store.User
	if s.sessions != nil {
		data, err := s.sessions.Lookup(ctx, tokenHash)
		if err != nil {
			return Session{}, err
		}
		user, err = s.store.GetUserByID(ctx, data.UserID)
		if err != nil {
			return Session{}, err
		}
		if err := s.sessions.Revoke(ctx, tokenHash); err != nil {
			return Session{}, err
		}
	} else {
		var err error
		user, err = s.store.LookupRefreshSession(ctx, tokenHash)
		if err != nil {
			return Session{}, err
		}
		if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
			return Session{}, err
		}
	}
	return s.IssueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		UserEmail: claims.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	tokenHash := auth.HashToken(refreshToken)
	if s.sessions != nil {
		return s.sessions.Revoke(ctx, tokenHash)
	}
	return s.store.RevokeRefreshSession(ctx, tokenHash)
}

// ── Auth ──

func (s *Service) Register(ctx context.Context, name, userEmail, password string) (Session, store.User, error) {
	if s.authpw == nil {
		return Session{}, store.User{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	user, err := s.authpw.Register(ctx, authpw.RegisterRequest{Name: name, Email: userEmail, Password: password})
	if err != nil {
		return Session{}, store.User{}, mapAuthError(err)
	}
	s.indexUser(user)
	sess, err := s.IssueSession(ctx, user)
	if err != nil {
		return Session{}, store.User{}, err
	}
	return sess, user, nil
}

func (s *Service) Login(ctx context.Context, userEmail, password string) (Session, store.User, error) {
	if s.authpw == nil {
		return Session{}, store.User{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	user, err := s.authpw.Login(ctx, userEmail, password)
	if err != nil {
		return Session{}, store.User{}, mapAuthError(err)
	}
	sess, err := s.IssueSession(ctx, user)
	if err != nil {
		return Session{}, store.User{}, err
	}
	return sess, user, nil
}

// ForgotPassword creates a reset token and mails it. The returned token is
// only surfaced to the client when SMTP is not configured (dev bypass).
func (s *Service) ForgotPassword(ctx context.Context, userEmail string) (string, error) {
	if s.authpw == nil {
		return "", domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	token, user, err := s.authpw.RequestPasswordReset(ctx, userEmail)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}
	if s.SMTPConfigured() {
		resetURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/reset-password/" + token
		if err := s.email.SendPasswordResetEmail(user.Email, user.Name, resetURL); err != nil {
			log.Printf("password reset email to %s failed: %v", user.Email, err)
		}
		return "", nil
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if s.authpw == nil {
		return domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
	}
	if err := s.authpw.ResetPassword(ctx, token, newPassword); err != nil {
		return mapAuthError(err)
	}
	return nil
}

func mapAuthError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "EMAIL_EXISTS", err.Error(), nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return errUnauthorized("Invalid email or password")
	case errors.Is(err, authpw.ErrWeakPassword), errors.Is(err, authpw.ErrInvalidResetToken):
		return errValidation(err.Error())
	default:
		if strings.Contains(err.Error(), "required") {
			return errValidation(err.Error())
		}
		return err
	}
}

// ── Users ──

func (s *Service) Me(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

type UpdateProfileInput struct {
	Name        *string `json:"name"`
	Bio         *string `json:"bio"`
	Theme       *string `json:"theme"`
	EmailNotify *bool   `json:"emailNotify"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errValidation("name cannot be empty")
		}
		user.Name = name
	}
	if input.Bio != nil {
		user.Bio = *input.Bio
	}
	if input.Theme != nil {
		user.Theme = *input.Theme
	}
	if input.EmailNotify != nil {
		user.EmailNotify = *input.EmailNotify
	}
	updated, err := s.store.UpdateUserProfile(ctx, user)
	if err != nil {
		return nil, err
	}
	s.indexUser(updated)
	return userPayload(updated), nil
}

func (s *Service) SetAvatar(ctx context.Context, userID, avatarURL string) (map[string]any, error) {
	if err := s.store.SetUserAvatar(ctx, userID, avatarURL); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

// SearchUsers finds users to add to boards; the requester is excluded.
func (s *Service) SearchUsers(ctx context.Context, requesterID, query string) ([]store.PublicUser, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []store.PublicUser{}, nil
	}
	users, err := s.store.SearchUsers(ctx, query, 10)
	if err != nil {
		return nil, err
	}
	results := make([]store.PublicUser, 0, len(users))
	for _, u := range users {
		if u.ID == requesterID {
			continue
		}
		results = append(results, u.Public())
	}
	return results, nil
}

// ── Notifications ──

func (s *Service) ListNotifications(ctx context.Context, userID string) (map[string]any, error) {
	items, unread, err := s.store.ListNotifications(ctx, userID, 50)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, n := range items {
		payload = append(payload, notificationPayload(n))
	}
	return map[string]any{"notifications": payload, "unreadCount": unread}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, userID, notificationID)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

func (s *Service) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	return s.store.DeleteNotification(ctx, userID, notificationID)
}

// ── Search ──

func (s *Service) Search(ctx context.Context, userID, text, filterType, boardID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(search.Query{
		Text:          text,
		FilterType:    search.ResultType(filterType),
		FilterBoardID: boardID,
		UserID:        userID,
		Limit:         limit,
		Offset:        offset,
	}), nil
}

// ── Access helper ──

// boardRole loads a board and resolves the caller's effective role on it.
func (s *Service) boardRole(ctx context.Context, boardID, userID string) (store.Board, rbac.Role, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, rbac.RoleNone, err
	}
	members := make([]rbac.Member, 0, len(board.Members))
	for _, m := range board.Members {
		members = append(members, rbac.Member{UserID: m.UserID, Role: rbac.Role(m.Role)})
	}
	role := rbac.Evaluate(board.OwnerID, members, board.Visibility, userID)
	return board, role, nil
}

// ── Side effects ──

// recordActivity persists an activity entry. Failures are logged, never
// surfaced: the mutation already committed.
func (s *Service) recordActivity(ctx context.Context, boardID, cardID, actorID, actType string, data map[string]any) {
	err := s.store.InsertActivity(ctx, store.Activity{
		ID:      util.NewID("act"),
		BoardID: boardID,
		CardID:  cardID,
		ActorID: actorID,
		Type:    actType,
		Data:    data,
	})
	if err != nil {
		log.Printf("record activity %s on board %s: %v", actType, boardID, err)
	}
}

func (s *Service) notify(ctx context.Context, userID, actorID, ntfType, boardID, cardID, message string) {
	if userID == "" || userID == actorID {
		return
	}
	err := s.store.InsertNotification(ctx, store.Notification{
		ID:      util.NewID("ntf"),
		UserID:  userID,
		ActorID: actorID,
		Type:    ntfType,
		BoardID: boardID,
		CardID:  cardID,
		Message: message,
	})
	if err != nil {
		log.Printf("notify %s (%s): %v", userID, ntfType, err)
	}
}

func (s *Service) publish(ev realtime.Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

var mentionPattern = regexp.MustCompile(`@[\w.-]+`)

func hasMention(text string) bool {
	return mentionPattern.MatchString(text)
}

func (s *Service) indexUser(u store.User) {
	if s.search == nil {
		return
	}
	s.search.IndexUser(search.UserRecord{ID: u.ID, Name: u.Name, Email: u.Email})
}

func (s *Service) indexBoard(b store.Board) {
	if s.search == nil {
		return
	}
	s.search.IndexBoard(search.BoardRecord{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		OwnerID:     b.OwnerID,
		MemberIDs:   memberIDs(b),
		Visibility:  b.Visibility,
	})
}

func (s *Service) indexCard(b store.Board, c store.Card) {
	if s.search == nil {
		return
	}
	s.search.IndexCard(search.CardRecord{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		BoardID:     c.BoardID,
		ListID:      c.ListID,
		OwnerID:     b.OwnerID,
		MemberIDs:   memberIDs(b),
		Visibility:  b.Visibility,
	})
}

func memberIDs(b store.Board) []string {
	ids := make([]string, 0, len(b.Members))
	for _, m := range b.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}
