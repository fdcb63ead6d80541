package app

import (
	"net/http"
	"strconv"
	"strings"

	"taskboard/api/internal/rbac"
)

func (s *HTTPServer) handleListBoards(w http.ResponseWriter, r *http.Request, sess Session) {
	boards, err := s.service.ListBoards(r.Context(), sess.UserID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "boards", boards)
}

func (s *HTTPServer) handleCreateBoard(w http.ResponseWriter, r *http.Request, sess Session) {
	var input CreateBoardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	board, err := s.service.CreateBoard(r.Context(), sess, input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "board", board)
}

func (s *HTTPServer) handleGetBoard(w http.ResponseWriter, r *http.Request, sess Session) {
	board, err := s.service.GetBoardAggregate(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "board", board)
}

func (s *HTTPServer) handleUpdateBoard(w http.ResponseWriter, r *http.Request, sess Session) {
	var input UpdateBoardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	board, err := s.service.UpdateBoard(r.Context(), sess, r.PathValue("id"), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "board", board)
}

func (s *HTTPServer) handleArchiveBoard(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := s.service.ArchiveBoard(r.Context(), sess, r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Board archived")
}

func (s *HTTPServer) handleAddBoardMember(w http.ResponseWriter, r *http.Request, sess Session) {
	var input AddMemberInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	board, err := s.service.AddBoardMember(r.Context(), sess, r.PathValue("id"), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "board", board)
}

func (s *HTTPServer) handleRemoveBoardMember(w http.ResponseWriter, r *http.Request, sess Session) {
	board, err := s.service.RemoveBoardMember(r.Context(), sess, r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "board", board)
}

func (s *HTTPServer) handleBoardActivities(w http.ResponseWriter, r *http.Request, sess Session) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	activities, err := s.service.ListBoardActivities(r.Context(), sess, r.PathValue("id"), limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "activities", activities)
}

// handleBoardEvents is the SSE stream for a board channel. EventSource
// cannot set headers, so the access token may also arrive as a query
// parameter.
func (s *HTTPServer) handleBoardEvents(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	boardID := r.PathValue("id")
	_, role, err := s.service.boardRole(r.Context(), boardID, sess.UserID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if !s.service.policy.Can(role, rbac.ActionRead) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this board", nil)
		return
	}
	s.service.Hub().ServeSSE(w, r, boardID)
}

// ── Lists ──

func (s *HTTPServer) handleCreateList(w http.ResponseWriter, r *http.Request, sess Session) {
	var input CreateListInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	list, err := s.service.CreateList(r.Context(), sess, input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "list", list)
}

func (s *HTTPServer) handleUpdateList(w http.ResponseWriter, r *http.Request, sess Session) {
	var input UpdateListInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	list, err := s.service.UpdateList(r.Context(), sess, r.PathValue("id"), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "list", list)
}

func (s *HTTPServer) handleArchiveList(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := s.service.ArchiveList(r.Context(), sess, r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "List archived")
}

func (s *HTTPServer) handleReorderLists(w http.ResponseWriter, r *http.Request, sess Session) {
	var input ReorderListsInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	lists, err := s.service.ReorderLists(r.Context(), sess, input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "lists", lists)
}
