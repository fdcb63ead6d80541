package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskboard/api/internal/store"
)

type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
	resets     map[string]struct {
		userID    string
		expiresAt time.Time
	}
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
		resets: make(map[string]struct {
			userID    string
			expiresAt time.Time
		}),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func (m *mockUserStore) SetUserPassword(ctx context.Context, userID, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.resets[tokenHash] = struct {
		userID    string
		expiresAt time.Time
	}{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *mockUserStore) GetUserByResetToken(ctx context.Context, tokenHash string) (store.User, error) {
	if reset, ok := m.resets[tokenHash]; ok && time.Now().Before(reset.expiresAt) {
		return m.users[reset.userID], nil
	}
	return store.User{}, errors.New("invalid or expired token")
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore())

	t.Run("successful registration", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterRequest{
			Name:     "Test User",
			Email:    "test@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID == "" {
			t.Error("expected user id to be set")
		}
		if user.PasswordHash == "password123" {
			t.Error("password must not be stored in the clear")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Name:     "Test User 2",
			Email:    "test@example.com",
			Password: "password123",
		})
		if !errors.Is(err, ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterRequest{
			Name:     "Test User",
			Email:    "test2@example.com",
			Password: "short",
		})
		if !errors.Is(err, ErrWeakPassword) {
			t.Errorf("expected ErrWeakPassword, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.Register(ctx, RegisterRequest{}); err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMockUserStore())

	if _, err := svc.Register(ctx, RegisterRequest{
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "password123",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("successful login", func(t *testing.T) {
		user, err := svc.Login(ctx, "test@example.com", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected email test@example.com, got %s", user.Email)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.Login(ctx, "test@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	if _, err := svc.Register(ctx, RegisterRequest{
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "password123",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("request reset for existing user", func(t *testing.T) {
		token, user, err := svc.RequestPasswordReset(ctx, "test@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token == "" {
			t.Error("expected token to be generated")
		}
		if user.Email != "test@example.com" {
			t.Errorf("unexpected user: %+v", user)
		}
		if _, ok := mockStore.resets[token]; ok {
			t.Error("raw token must not be stored, only its hash")
		}
	})

	t.Run("request reset for unknown email stays silent", func(t *testing.T) {
		token, _, err := svc.RequestPasswordReset(ctx, "nobody@example.com")
		if err != nil {
			t.Errorf("expected no error for unknown email, got %v", err)
		}
		if token != "" {
			t.Error("expected no token for unknown email")
		}
	})

	t.Run("reset with valid token", func(t *testing.T) {
		token, _, _ := svc.RequestPasswordReset(ctx, "test@example.com")

		if err := svc.ResetPassword(ctx, token, "newpassword123"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := svc.Login(ctx, "test@example.com", "password123"); err == nil {
			t.Error("old password should no longer work")
		}
		if _, err := svc.Login(ctx, "test@example.com", "newpassword123"); err != nil {
			t.Errorf("new password should work: %v", err)
		}
	})

	t.Run("reset with invalid token", func(t *testing.T) {
		if err := svc.ResetPassword(ctx, "invalid-token", "newpassword123"); !errors.Is(err, ErrInvalidResetToken) {
			t.Errorf("expected ErrInvalidResetToken, got %v", err)
		}
	})

	t.Run("reset with short password", func(t *testing.T) {
		if err := svc.ResetPassword(ctx, "some-token", "short"); !errors.Is(err, ErrWeakPassword) {
			t.Errorf("expected ErrWeakPassword, got %v", err)
		}
	})
}
