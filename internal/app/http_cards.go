package app

import (
	"net/http"

	"taskboard/api/internal/blob"
	"taskboard/api/internal/store"
)

func (s *HTTPServer) handleCreateCard(w http.ResponseWriter, r *http.Request, sess Session) {
	var input CreateCardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	card, err := s.service.CreateCard(r.Context(), sess, input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "card", card)
}

func (s *HTTPServer) handleGetCard(w http.ResponseWriter, r *http.Request, sess Session) {
	card, err := s.service.GetCard(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "card", card)
}

func (s *HTTPServer) handleUpdateCard(w http.ResponseWriter, r *http.Request, sess Session) {
	var input UpdateCardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	card, err := s.service.UpdateCard(r.Context(), sess, r.PathValue("id"), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "card", card)
}

func (s *HTTPServer) handleDeleteCard(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := s.service.DeleteCard(r.Context(), sess, r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Card deleted")
}

func (s *HTTPServer) handleMoveCard(w http.ResponseWriter, r *http.Request, sess Session) {
	var input MoveCardInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	card, err := s.service.MoveCard(r.Context(), sess, r.PathValue("id"), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "card", card)
}

func (s *HTTPServer) handleReorderCards(w http.ResponseWriter, r *http.Request, sess Session) {
	var input ReorderCardsInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ReorderCards(r.Context(), sess, input); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Cards reordered")
}

func (s *HTTPServer) handleAddCardMember(w http.ResponseWriter, r *http.Request, sess Session) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	card, err := s.service.AddCardMember(r.Context(), sess, r.PathValue("id"), body.UserID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "card", card)
}

func (s *HTTPServer) handleRemoveCardMember(w http.ResponseWriter, r *http.Request, sess Session) {
	card, err := s.service.RemoveCardMember(r.Context(), sess, r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "card", card)
}

func (s *HTTPServer) handleUploadAttachment(w http.ResponseWriter, r *http.Request, sess Session) {
	svc := s.service.BlobService()
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Object storage not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, blob.MaxAttachmentSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
		return
	}
	defer file.Close()

	cardID := r.PathValue("id")
	contentType := header.Header.Get("Content-Type")
	url, err := svc.PutAttachment(r.Context(), cardID, header.Filename, contentType, header.Size, file)
	if err != nil {
		writeMappedError(w, mapBlobError(err))
		return
	}
	card, err := s.service.AddAttachment(r.Context(), sess, cardID, store.Attachment{
		Name: header.Filename,
		URL:  url,
		Type: contentType,
		Size: header.Size,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "card", card)
}

func (s *HTTPServer) handleCreateChecklist(w http.ResponseWriter, r *http.Request, sess Session) {
	var input CreateChecklistInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	card, err := s.service.CreateChecklist(r.Context(), sess, r.PathValue("id"), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "card", card)
}

func (s *HTTPServer) handleUpdateChecklist(w http.ResponseWriter, r *http.Request, sess Session) {
	var input UpdateChecklistInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	card, err := s.service.UpdateChecklist(r.Context(), sess, r.PathValue("id"), r.PathValue("checklistId"), input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "card", card)
}

// ── Comments ──

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request, sess Session) {
	comments, err := s.service.ListComments(r.Context(), sess, r.PathValue("cardId"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "comments", comments)
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request, sess Session) {
	var input CreateCommentInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	comment, err := s.service.CreateComment(r.Context(), sess, input)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "comment", comment)
}

func (s *HTTPServer) handleUpdateComment(w http.ResponseWriter, r *http.Request, sess Session) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	comment, err := s.service.UpdateComment(r.Context(), sess, r.PathValue("id"), body.Text)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "comment", comment)
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := s.service.DeleteComment(r.Context(), sess, r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Comment deleted")
}
