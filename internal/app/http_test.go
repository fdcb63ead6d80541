package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"taskboard/api/internal/authpw"
	"taskboard/api/internal/store"
)

func newTestHandler(fake *fakeStore) http.Handler {
	svc := newTestService(fake)
	svc.authpw = authpw.NewService(fake)
	return NewHTTPServer(svc, "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

// statefulUsers wires the user and refresh-session fake methods to an
// in-memory map so register, login, and refresh flows round-trip.
func statefulUsers(fake *fakeStore) {
	var mu sync.Mutex
	usersByEmail := map[string]store.User{}
	usersByID := map[string]store.User{}
	refreshByHash := map[string]string{}

	fake.createUserFn = func(_ context.Context, u store.User) (store.User, error) {
		mu.Lock()
		defer mu.Unlock()
		usersByEmail[u.Email] = u
		usersByID[u.ID] = u
		return u, nil
	}
	fake.getUserByEmailFn = func(_ context.Context, email string) (store.User, error) {
		mu.Lock()
		defer mu.Unlock()
		if u, ok := usersByEmail[email]; ok {
			return u, nil
		}
		return store.User{}, sql.ErrNoRows
	}
	fake.getUserByIDFn = func(_ context.Context, id string) (store.User, error) {
		mu.Lock()
		defer mu.Unlock()
		if u, ok := usersByID[id]; ok {
			return u, nil
		}
		return store.User{}, sql.ErrNoRows
	}
	fake.saveRefreshFn = func(_ context.Context, hash, userID string, _ time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		refreshByHash[hash] = userID
		return nil
	}
	fake.lookupRefreshFn = func(_ context.Context, hash string) (store.User, error) {
		mu.Lock()
		defer mu.Unlock()
		userID, ok := refreshByHash[hash]
		if !ok {
			return store.User{}, sql.ErrNoRows
		}
		return usersByID[userID], nil
	}
	fake.revokeRefreshFn = func(_ context.Context, hash string) error {
		mu.Lock()
		defer mu.Unlock()
		delete(refreshByHash, hash)
		return nil
	}
}

func TestRegisterLoginMeFlow(t *testing.T) {
	fake := &fakeStore{}
	statefulUsers(fake)
	handler := newTestHandler(fake)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     "Avery",
		"email":    "avery@example.com",
		"password": "hunter22",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status %d: %v", rec.Code, body)
	}
	session := body["session"].(map[string]any)
	token := session["accessToken"].(string)
	if token == "" {
		t.Fatal("expected access token")
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status %d: %v", rec.Code, body)
	}
	user := body["user"].(map[string]any)
	if user["email"] != "avery@example.com" {
		t.Fatalf("unexpected me payload %v", user)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "avery@example.com",
		"password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "avery@example.com",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status %d: %v", rec.Code, body)
	}
	if body["success"] != false {
		t.Fatalf("expected error envelope, got %v", body)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	fake := &fakeStore{}
	statefulUsers(fake)
	handler := newTestHandler(fake)

	payload := map[string]any{"name": "Avery", "email": "avery@example.com", "password": "hunter22"}
	rec, _ := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register status %d", rec.Code)
	}
	rec, body := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status %d: %v", rec.Code, body)
	}
	if body["code"] != "EMAIL_EXISTS" {
		t.Fatalf("expected EMAIL_EXISTS, got %v", body["code"])
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fake := &fakeStore{}
	statefulUsers(fake)
	handler := newTestHandler(fake)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     "Avery",
		"email":    "avery@example.com",
		"password": "hunter22",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status %d: %v", rec.Code, body)
	}
	refresh := body["session"].(map[string]any)["refreshToken"].(string)

	rec, body = doJSON(t, handler, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status %d: %v", rec.Code, body)
	}
	rotated := body["session"].(map[string]any)["refreshToken"].(string)
	if rotated == refresh {
		t.Fatal("refresh token must rotate")
	}

	// The old token was revoked by the rotation.
	rec, body = doJSON(t, handler, http.MethodPost, "/api/auth/refresh", "", map[string]any{"refreshToken": refresh})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status %d: %v", rec.Code, body)
	}
}

func TestRequestsWithoutTokenRejected(t *testing.T) {
	handler := newTestHandler(&fakeStore{})
	rec, body := doJSON(t, handler, http.MethodGet, "/api/boards", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d: %v", rec.Code, body)
	}
	if body["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %v", body["code"])
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	handler := newTestHandler(&fakeStore{})
	rec, _ := doJSON(t, handler, http.MethodGet, "/api/boards", "not-a-real-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func issueToken(t *testing.T, fake *fakeStore, userID, name string) string {
	t.Helper()
	svc := newTestService(fake)
	sess, err := svc.IssueSession(context.Background(), store.User{ID: userID, Name: name, Email: name + "@example.com"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return sess.Token
}

func TestBoardAggregateEndpoint(t *testing.T) {
	fake := &fakeStore{
		getBoardFn: func(context.Context, string) (store.Board, error) {
			return testBoard("usr_owner"), nil
		},
		listListsFn: func(context.Context, string) ([]store.List, error) {
			return []store.List{{ID: "lst_1", BoardID: "brd_1", Title: "Todo"}}, nil
		},
		listCardsForBoardFn: func(context.Context, string) ([]store.Card, error) {
			return []store.Card{{ID: "crd_1", ListID: "lst_1", BoardID: "brd_1", Title: "Ship it"}}, nil
		},
		commentCountsFn: func(context.Context, string) (map[string]int, error) {
			return map[string]int{"crd_1": 2}, nil
		},
	}
	handler := newTestHandler(fake)
	token := issueToken(t, fake, "usr_owner", "Avery")

	rec, body := doJSON(t, handler, http.MethodGet, "/api/boards/brd_1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, body)
	}
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	board := body["board"].(map[string]any)
	if board["role"] != "owner" {
		t.Fatalf("expected owner role, got %v", board["role"])
	}
	lists := board["lists"].([]any)
	if len(lists) != 1 {
		t.Fatalf("expected 1 list, got %d", len(lists))
	}
	cards := lists[0].(map[string]any)["cards"].([]any)
	if len(cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(cards))
	}
	if cards[0].(map[string]any)["commentsCount"] != float64(2) {
		t.Fatalf("expected commentsCount 2, got %v", cards[0].(map[string]any)["commentsCount"])
	}
}

func TestCreateBoardValidationError(t *testing.T) {
	fake := &fakeStore{}
	handler := newTestHandler(fake)
	token := issueToken(t, fake, "usr_1", "Avery")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/boards", token, map[string]any{"title": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %v", rec.Code, body)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", body["code"])
	}
}

func TestUnknownCardReturns404(t *testing.T) {
	fake := &fakeStore{}
	handler := newTestHandler(fake)
	token := issueToken(t, fake, "usr_1", "Avery")

	rec, body := doJSON(t, handler, http.MethodGet, "/api/cards/crd_missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d: %v", rec.Code, body)
	}
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", body["code"])
	}
}

func TestArchiveBoardReturnsMessage(t *testing.T) {
	fake := &fakeStore{
		getBoardFn: func(context.Context, string) (store.Board, error) {
			return testBoard("usr_owner"), nil
		},
	}
	handler := newTestHandler(fake)
	token := issueToken(t, fake, "usr_owner", "Avery")

	rec, body := doJSON(t, handler, http.MethodDelete, "/api/boards/brd_1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, body)
	}
	if body["message"] != "Board archived" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	handler := newTestHandler(&fakeStore{})
	req := httptest.NewRequest(http.MethodOptions, "/api/boards", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS origin header")
	}
}

func TestRequestIDPropagates(t *testing.T) {
	handler := newTestHandler(&fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("expected propagated request id, got %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestHealthAndReady(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec, body := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("health status %d: %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status %d: %v", rec.Code, body)
	}
	checks := body["checks"].(map[string]any)
	database := checks["database"].(map[string]any)
	if database["status"] != "ok" {
		t.Fatalf("unexpected database check %v", database)
	}
}

func TestSearchValidatesLimit(t *testing.T) {
	fake := &fakeStore{}
	handler := newTestHandler(fake)
	token := issueToken(t, fake, "usr_1", "Avery")

	rec, body := doJSON(t, handler, http.MethodGet, "/api/search?q=launch&limit=banana", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %v", rec.Code, body)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", body["code"])
	}
}
