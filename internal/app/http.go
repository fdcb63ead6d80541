package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/session"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /api/auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("PUT /api/auth/reset-password/{token}", s.handleResetPassword)
	mux.HandleFunc("GET /api/auth/me", s.auth(s.handleMe))

	mux.HandleFunc("GET /api/users/profile", s.auth(s.handleMe))
	mux.HandleFunc("PUT /api/users/profile", s.auth(s.handleUpdateProfile))
	mux.HandleFunc("POST /api/users/avatar", s.auth(s.handleUploadAvatar))
	mux.HandleFunc("GET /api/users/search", s.auth(s.handleSearchUsers))

	mux.HandleFunc("GET /api/boards", s.auth(s.handleListBoards))
	mux.HandleFunc("POST /api/boards", s.auth(s.handleCreateBoard))
	mux.HandleFunc("GET /api/boards/{id}", s.auth(s.handleGetBoard))
	mux.HandleFunc("PUT /api/boards/{id}", s.auth(s.handleUpdateBoard))
	mux.HandleFunc("DELETE /api/boards/{id}", s.auth(s.handleArchiveBoard))
	mux.HandleFunc("POST /api/boards/{id}/members", s.auth(s.handleAddBoardMember))
	mux.HandleFunc("DELETE /api/boards/{id}/members/{userId}", s.auth(s.handleRemoveBoardMember))
	mux.HandleFunc("GET /api/boards/{id}/activities", s.auth(s.handleBoardActivities))
	mux.HandleFunc("GET /api/boards/{id}/events", s.handleBoardEvents)

	mux.HandleFunc("POST /api/lists", s.auth(s.handleCreateList))
	mux.HandleFunc("PUT /api/lists/reorder", s.auth(s.handleReorderLists))
	mux.HandleFunc("PUT /api/lists/{id}", s.auth(s.handleUpdateList))
	mux.HandleFunc("DELETE /api/lists/{id}", s.auth(s.handleArchiveList))

	mux.HandleFunc("POST /api/cards", s.auth(s.handleCreateCard))
	mux.HandleFunc("PUT /api/cards/reorder", s.auth(s.handleReorderCards))
	mux.HandleFunc("GET /api/cards/{id}", s.auth(s.handleGetCard))
	mux.HandleFunc("PUT /api/cards/{id}", s.auth(s.handleUpdateCard))
	mux.HandleFunc("DELETE /api/cards/{id}", s.auth(s.handleDeleteCard))
	mux.HandleFunc("PUT /api/cards/{id}/move", s.auth(s.handleMoveCard))
	mux.HandleFunc("POST /api/cards/{id}/members", s.auth(s.handleAddCardMember))
	mux.HandleFunc("DELETE /api/cards/{id}/members/{userId}", s.auth(s.handleRemoveCardMember))
	mux.HandleFunc("POST /api/cards/{id}/attachments", s.auth(s.handleUploadAttachment))
	mux.HandleFunc("POST /api/cards/{id}/checklists", s.auth(s.handleCreateChecklist))
	mux.HandleFunc("PUT /api/cards/{id}/checklists/{checklistId}", s.auth(s.handleUpdateChecklist))

	mux.HandleFunc("GET /api/comments/card/{cardId}", s.auth(s.handleListComments))
	mux.HandleFunc("POST /api/comments", s.auth(s.handleCreateComment))
	mux.HandleFunc("PUT /api/comments/{id}", s.auth(s.handleUpdateComment))
	mux.HandleFunc("DELETE /api/comments/{id}", s.auth(s.handleDeleteComment))

	mux.HandleFunc("GET /api/notifications", s.auth(s.handleListNotifications))
	mux.HandleFunc("PUT /api/notifications/read-all", s.auth(s.handleMarkAllNotificationsRead))
	mux.HandleFunc("PUT /api/notifications/{id}/read", s.auth(s.handleMarkNotificationRead))
	mux.HandleFunc("DELETE /api/notifications/{id}", s.auth(s.handleDeleteNotification))

	mux.HandleFunc("GET /api/search", s.auth(s.handleSearch))

	return s.withMiddleware(mux)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess Session)

// auth wraps a handler with bearer-token authentication.
func (s *HTTPServer) auth(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		next(w, r, sess)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	return sess, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets SSE responses stream through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess writes the {success, <resource>} response envelope.
func writeSuccess(w http.ResponseWriter, status int, key string, value any) {
	writeJSON(w, status, map[string]any{"success": true, key: value})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": true, "message": message})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) ||
		errors.Is(err, session.ErrSessionNotFound) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
