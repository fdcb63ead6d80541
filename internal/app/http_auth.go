package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"taskboard/api/internal/blob"
)

func sessionPayload(sess Session) map[string]any {
	return map[string]any{
		"accessToken":  sess.Token,
		"refreshToken": sess.RefreshToken,
		"expiresAt":    sess.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, user, err := s.service.Register(r.Context(), body.Name, body.Email, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    userPayload(user),
		"session": sessionPayload(sess),
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, user, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userPayload(user),
		"session": sessionPayload(sess),
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeSuccess(w, http.StatusOK, "session", sessionPayload(sess))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), body.RefreshToken)
	writeMessage(w, http.StatusOK, "Logged out")
}

func (s *HTTPServer) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	devToken, err := s.service.ForgotPassword(r.Context(), body.Email)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	response := map[string]any{
		"success": true,
		"message": "If an account exists, a reset email has been sent",
	}
	// Dev bypass: surface the token when no mailer is configured.
	if devToken != "" {
		response["devResetToken"] = devToken
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ResetPassword(r.Context(), token, body.Password); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successfully")
}

// ── Users ──

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request, sess Session) {
	payload, err := s.service.Me(r.Context(), sess.UserID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "user", payload)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request, sess Session) {
	var input UpdateProfileInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.UpdateProfile(r.Context(), sess.UserID, input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "user", payload)
}

func (s *HTTPServer) handleUploadAvatar(w http.ResponseWriter, r *http.Request, sess Session) {
	svc := s.service.BlobService()
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Object storage not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, blob.MaxAvatarSize+1<<20)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "avatar file is required", nil)
		return
	}
	defer file.Close()

	url, err := svc.PutAvatar(r.Context(), sess.UserID, header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		writeMappedError(w, mapBlobError(err))
		return
	}
	payload, err := s.service.SetAvatar(r.Context(), sess.UserID, url)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "user", payload)
}

func (s *HTTPServer) handleSearchUsers(w http.ResponseWriter, r *http.Request, sess Session) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	users, err := s.service.SearchUsers(r.Context(), sess.UserID, query)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "users", users)
}

// ── Notifications ──

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request, sess Session) {
	payload, err := s.service.ListNotifications(r.Context(), sess.UserID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	payload["success"] = true
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := s.service.MarkNotificationRead(r.Context(), sess.UserID, r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Notification marked as read")
}

func (s *HTTPServer) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := s.service.MarkAllNotificationsRead(r.Context(), sess.UserID); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "All notifications marked as read")
}

func (s *HTTPServer) handleDeleteNotification(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := s.service.DeleteNotification(r.Context(), sess.UserID, r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Notification deleted")
}

// ── Search ──

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, sess Session) {
	q := r.URL.Query()
	limit := 20
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		offset = parsed
	}
	payload, err := s.service.Search(r.Context(), sess.UserID,
		strings.TrimSpace(q.Get("q")),
		strings.TrimSpace(q.Get("type")),
		strings.TrimSpace(q.Get("boardId")),
		limit, offset)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": payload.Results,
		"total":   payload.Total,
		"query":   payload.Query,
	})
}

func mapBlobError(err error) error {
	switch {
	case errors.Is(err, blob.ErrTooLarge):
		return errValidation("File exceeds the size limit")
	case errors.Is(err, blob.ErrNotAnImage):
		return errValidation("Avatar must be an image")
	case errors.Is(err, blob.ErrNotConfigured):
		return domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Object storage not configured", nil)
	default:
		return err
	}
}
