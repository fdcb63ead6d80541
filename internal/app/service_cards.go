package app

import (
	"context"
	"strings"
	"time"

	"taskboard/api/internal/rbac"
	"taskboard/api/internal/realtime"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

// cardBoardRole loads a card, its board, and the caller's role in one go.
func (s *Service) cardBoardRole(ctx context.Context, cardID, userID string) (store.Card, store.Board, rbac.Role, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return store.Card{}, store.Board{}, rbac.RoleNone, err
	}
	board, role, err := s.boardRole(ctx, card.BoardID, userID)
	if err != nil {
		return store.Card{}, store.Board{}, rbac.RoleNone, err
	}
	return card, board, role, nil
}

// ── Cards ──

type CreateCardInput struct {
	ListID      string        `json:"listId"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Position    *int          `json:"position"`
	Priority    string        `json:"priority"`
	StartDate   *time.Time    `json:"startDate"`
	DueDate     *time.Time    `json:"dueDate"`
	Labels      []store.Label `json:"labels"`
}

func (s *Service) CreateCard(ctx context.Context, sess Session, input CreateCardInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errValidation("title is required")
	}
	if input.ListID == "" {
		return nil, errValidation("listId is required")
	}
	list, err := s.store.GetList(ctx, input.ListID)
	if err != nil {
		return nil, err
	}
	board, role, err := s.boardRole(ctx, list.BoardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}

	position := 0
	if input.Position != nil {
		position = *input.Position
	}
	card, err := s.store.CreateCard(ctx, store.Card{
		ID:          util.NewID("crd"),
		Title:       title,
		Description: input.Description,
		ListID:      input.ListID,
		BoardID:     list.BoardID,
		Position:    position,
		Priority:    input.Priority,
		StartDate:   input.StartDate,
		DueDate:     input.DueDate,
		Labels:      input.Labels,
		CreatedBy:   sess.UserID,
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, card.BoardID, card.ID, sess.UserID, "card_created", map[string]any{
		"title": card.Title,
		"list":  list.Title,
	})
	_ = s.store.TouchBoard(ctx, card.BoardID)
	s.indexCard(board, card)
	s.publish(realtime.Event{Type: realtime.EventCardCreated, BoardID: card.BoardID, Payload: cardPayload(card)})
	return cardPayload(card), nil
}

// GetCard returns the card detail payload with its comments embedded.
func (s *Service) GetCard(ctx context.Context, sess Session, cardID string) (map[string]any, error) {
	card, _, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionRead) {
		return nil, errForbidden("You do not have access to this board")
	}
	comments, err := s.store.ListComments(ctx, cardID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		items = append(items, commentPayload(c))
	}
	payload := cardPayload(card)
	payload["comments"] = items
	return payload, nil
}

type UpdateCardInput struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Priority    *string        `json:"priority"`
	Cover       *string        `json:"cover"`
	StartDate   *time.Time     `json:"startDate"`
	DueDate     *time.Time     `json:"dueDate"`
	Labels      *[]store.Label `json:"labels"`
	Completed   *bool          `json:"completed"`
	Archived    *bool          `json:"archived"`
}

func (s *Service) UpdateCard(ctx context.Context, sess Session, cardID string, input UpdateCardInput) (map[string]any, error) {
	card, board, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}

	// Snapshot old and new values of the tracked fields for the activity
	// feed. Untracked fields update silently.
	changes := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errValidation("title cannot be empty")
		}
		if title != card.Title {
			changes["title"] = map[string]any{"old": card.Title, "new": title}
		}
		card.Title = title
	}
	if input.Description != nil {
		if *input.Description != card.Description {
			changes["description"] = map[string]any{"old": card.Description, "new": *input.Description}
		}
		card.Description = *input.Description
	}
	if input.Priority != nil {
		if *input.Priority != card.Priority {
			changes["priority"] = map[string]any{"old": card.Priority, "new": *input.Priority}
		}
		card.Priority = *input.Priority
	}
	if input.DueDate != nil {
		changes["dueDate"] = map[string]any{"old": formatDate(card.DueDate), "new": formatDate(input.DueDate)}
		card.DueDate = input.DueDate
	}
	if input.StartDate != nil {
		card.StartDate = input.StartDate
	}
	if input.Cover != nil {
		card.Cover = *input.Cover
	}
	if input.Labels != nil {
		card.Labels = *input.Labels
	}
	if input.Completed != nil {
		card.Completed = *input.Completed
	}
	if input.Archived != nil {
		card.Archived = *input.Archived
	}

	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.recordActivity(ctx, card.BoardID, card.ID, sess.UserID, "card_updated", changes)
	}
	_ = s.store.TouchBoard(ctx, card.BoardID)
	s.indexCard(board, updated)
	s.publish(realtime.Event{Type: realtime.EventCardUpdated, BoardID: card.BoardID, Payload: cardPayload(updated)})
	return cardPayload(updated), nil
}

// DeleteCard removes a card; sibling positions behind it compact by one.
func (s *Service) DeleteCard(ctx context.Context, sess Session, cardID string) error {
	card, _, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return errForbidden("You cannot edit this board")
	}
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return err
	}

	s.recordActivity(ctx, card.BoardID, "", sess.UserID, "card_deleted", map[string]any{"title": card.Title})
	_ = s.store.TouchBoard(ctx, card.BoardID)
	if s.search != nil {
		s.search.DeleteCard(cardID)
	}
	s.publish(realtime.Event{
		Type:      realtime.EventCardDeleted,
		BoardID:   card.BoardID,
		OldListID: card.ListID,
		Payload:   map[string]any{"id": cardID},
	})
	return nil
}

type MoveCardInput struct {
	ListID   string `json:"listId"`
	Position int    `json:"position"`
}

func (s *Service) MoveCard(ctx context.Context, sess Session, cardID string, input MoveCardInput) (map[string]any, error) {
	card, board, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}
	if input.ListID == "" {
		return nil, errValidation("listId is required")
	}
	if input.Position < 0 {
		return nil, errValidation("position cannot be negative")
	}
	dest, err := s.store.GetList(ctx, input.ListID)
	if err != nil {
		return nil, err
	}
	if dest.BoardID != card.BoardID {
		return nil, errValidation("cannot move a card to another board")
	}

	oldListID := card.ListID
	moved, err := s.store.MoveCard(ctx, cardID, input.ListID, input.Position)
	if err != nil {
		return nil, err
	}

	if oldListID != moved.ListID {
		source, err := s.store.GetList(ctx, oldListID)
		sourceTitle := oldListID
		if err == nil {
			sourceTitle = source.Title
		}
		s.recordActivity(ctx, moved.BoardID, moved.ID, sess.UserID, "card_moved", map[string]any{
			"title": moved.Title,
			"from":  sourceTitle,
			"to":    dest.Title,
		})
	}
	_ = s.store.TouchBoard(ctx, moved.BoardID)
	s.indexCard(board, moved)
	s.publish(realtime.Event{
		Type:      realtime.EventCardMoved,
		BoardID:   moved.BoardID,
		OldListID: oldListID,
		NewListID: moved.ListID,
		Payload:   cardPayload(moved),
	})
	return cardPayload(moved), nil
}

type ReorderCardsInput struct {
	BoardID string `json:"boardId"`
	Cards   []struct {
		CardID string `json:"cardId"`
		ListID string `json:"listId"`
	} `json:"cards"`
}

// ReorderCards rewrites positions for the submitted cards to 0..N-1 per
// list, in submission order, and may reassign lists at the same time.
func (s *Service) ReorderCards(ctx context.Context, sess Session, input ReorderCardsInput) error {
	if input.BoardID == "" {
		return errValidation("boardId is required")
	}
	if len(input.Cards) == 0 {
		return errValidation("cards is required")
	}
	_, role, err := s.boardRole(ctx, input.BoardID, sess.UserID)
	if err != nil {
		return err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return errForbidden("You cannot edit this board")
	}

	items := make([]store.CardReorder, 0, len(input.Cards))
	for _, c := range input.Cards {
		if c.CardID == "" || c.ListID == "" {
			return errValidation("every card needs cardId and listId")
		}
		items = append(items, store.CardReorder{CardID: c.CardID, ListID: c.ListID})
	}
	if err := s.store.ReorderCards(ctx, input.BoardID, items); err != nil {
		return err
	}

	_ = s.store.TouchBoard(ctx, input.BoardID)
	s.publish(realtime.Event{Type: realtime.EventCardUpdated, BoardID: input.BoardID, Payload: map[string]any{"reordered": true}})
	return nil
}

// ── Card members ──

func (s *Service) AddCardMember(ctx context.Context, sess Session, cardID, userID string) (map[string]any, error) {
	card, board, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}
	if userID == "" {
		return nil, errValidation("userId is required")
	}
	if rbac.Evaluate(board.OwnerID, boardMembers(board), board.Visibility, userID) == rbac.RoleNone {
		return nil, errValidation("User is not a member of this board")
	}
	for _, id := range card.MemberIDs {
		if id == userID {
			return cardPayload(card), nil
		}
	}

	card.MemberIDs = append(card.MemberIDs, userID)
	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, card.BoardID, card.ID, sess.UserID, "card_member_added", map[string]any{
		"title":    card.Title,
		"memberId": userID,
	})
	s.notify(ctx, userID, sess.UserID, "card_assigned", card.BoardID, card.ID,
		sess.UserName+" assigned you to the card \""+card.Title+"\"")
	s.publish(realtime.Event{Type: realtime.EventCardUpdated, BoardID: card.BoardID, Payload: cardPayload(updated)})
	return cardPayload(updated), nil
}

func (s *Service) RemoveCardMember(ctx context.Context, sess Session, cardID, userID string) (map[string]any, error) {
	card, _, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}

	kept := card.MemberIDs[:0]
	for _, id := range card.MemberIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	card.MemberIDs = kept
	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return nil, err
	}

	s.publish(realtime.Event{Type: realtime.EventCardUpdated, BoardID: card.BoardID, Payload: cardPayload(updated)})
	return cardPayload(updated), nil
}

func boardMembers(b store.Board) []rbac.Member {
	members := make([]rbac.Member, 0, len(b.Members))
	for _, m := range b.Members {
		members = append(members, rbac.Member{UserID: m.UserID, Role: rbac.Role(m.Role)})
	}
	return members
}

// ── Attachments ──

func (s *Service) AddAttachment(ctx context.Context, sess Session, cardID string, att store.Attachment) (map[string]any, error) {
	card, _, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}

	att.ID = util.NewID("att")
	att.UploadedBy = sess.UserID
	att.UploadedAt = time.Now()
	card.Attachments = append(card.Attachments, att)
	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, card.BoardID, card.ID, sess.UserID, "attachment_added", map[string]any{
		"title": card.Title,
		"name":  att.Name,
	})
	s.publish(realtime.Event{Type: realtime.EventCardUpdated, BoardID: card.BoardID, Payload: cardPayload(updated)})
	return cardPayload(updated), nil
}

// ── Checklists ──

type CreateChecklistInput struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

func (s *Service) CreateChecklist(ctx context.Context, sess Session, cardID string, input CreateChecklistInput) (map[string]any, error) {
	card, _, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errValidation("title is required")
	}

	checklist := store.Checklist{ID: util.NewID("chk"), Title: title, Items: []store.ChecklistItem{}}
	for _, text := range input.Items {
		if strings.TrimSpace(text) == "" {
			continue
		}
		checklist.Items = append(checklist.Items, store.ChecklistItem{ID: util.NewID("cki"), Text: text})
	}
	card.Checklists = append(card.Checklists, checklist)
	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return nil, err
	}

	s.publish(realtime.Event{Type: realtime.EventCardUpdated, BoardID: card.BoardID, Payload: cardPayload(updated)})
	return cardPayload(updated), nil
}

type UpdateChecklistInput struct {
	Title *string                `json:"title"`
	Items *[]store.ChecklistItem `json:"items"`
}

func (s *Service) UpdateChecklist(ctx context.Context, sess Session, cardID, checklistID string, input UpdateChecklistInput) (map[string]any, error) {
	card, _, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}

	found := false
	for i := range card.Checklists {
		if card.Checklists[i].ID != checklistID {
			continue
		}
		found = true
		if input.Title != nil {
			card.Checklists[i].Title = *input.Title
		}
		if input.Items != nil {
			items := *input.Items
			now := time.Now()
			for j := range items {
				if items[j].ID == "" {
					items[j].ID = util.NewID("cki")
				}
				if items[j].Completed && items[j].CompletedAt == nil {
					items[j].CompletedBy = sess.UserID
					items[j].CompletedAt = &now
				}
				if !items[j].Completed {
					items[j].CompletedBy = ""
					items[j].CompletedAt = nil
				}
			}
			card.Checklists[i].Items = items
		}
		break
	}
	if !found {
		return nil, errNotFound("Checklist not found")
	}

	updated, err := s.store.UpdateCard(ctx, card)
	if err != nil {
		return nil, err
	}
	s.publish(realtime.Event{Type: realtime.EventCardUpdated, BoardID: card.BoardID, Payload: cardPayload(updated)})
	return cardPayload(updated), nil
}

// ── Comments ──

func (s *Service) ListComments(ctx context.Context, sess Session, cardID string) ([]map[string]any, error) {
	_, _, role, err := s.cardBoardRole(ctx, cardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionRead) {
		return nil, errForbidden("You do not have access to this board")
	}
	comments, err := s.store.ListComments(ctx, cardID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		items = append(items, commentPayload(c))
	}
	return items, nil
}

type CreateCommentInput struct {
	CardID string `json:"cardId"`
	Text   string `json:"text"`
}

func (s *Service) CreateComment(ctx context.Context, sess Session, input CreateCommentInput) (map[string]any, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, errValidation("text is required")
	}
	if input.CardID == "" {
		return nil, errValidation("cardId is required")
	}
	card, _, role, err := s.cardBoardRole(ctx, input.CardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionComment) {
		return nil, errForbidden("You cannot comment on this board")
	}

	comment, err := s.store.CreateComment(ctx, store.Comment{
		ID:       util.NewID("cmt"),
		CardID:   input.CardID,
		AuthorID: sess.UserID,
		Text:     text,
	})
	if err != nil {
		return nil, err
	}
	comment.Author = store.PublicUser{ID: sess.UserID, Name: sess.UserName, Email: sess.UserEmail}

	s.recordActivity(ctx, card.BoardID, card.ID, sess.UserID, "comment_added", map[string]any{"title": card.Title})
	// A mention notifies everyone on the card except the author.
	if hasMention(text) {
		for _, memberID := range card.MemberIDs {
			s.notify(ctx, memberID, sess.UserID, "mention", card.BoardID, card.ID,
				sess.UserName+" mentioned you on \""+card.Title+"\"")
		}
	}
	_ = s.store.TouchBoard(ctx, card.BoardID)
	s.publish(realtime.Event{Type: realtime.EventCommentAdded, BoardID: card.BoardID, Payload: commentPayload(comment)})
	return commentPayload(comment), nil
}

func (s *Service) UpdateComment(ctx context.Context, sess Session, commentID, text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errValidation("text is required")
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != sess.UserID {
		return nil, errForbidden("You can only edit your own comments")
	}
	updated, err := s.store.UpdateComment(ctx, commentID, text)
	if err != nil {
		return nil, err
	}
	updated.Author = comment.Author
	return commentPayload(updated), nil
}

// DeleteComment allows the author, or an owner or admin of the board.
func (s *Service) DeleteComment(ctx context.Context, sess Session, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != sess.UserID {
		_, _, role, err := s.cardBoardRole(ctx, comment.CardID, sess.UserID)
		if err != nil {
			return err
		}
		if !s.policy.Can(role, rbac.ActionManageBoard) {
			return errForbidden("You cannot delete this comment")
		}
	}
	return s.store.DeleteComment(ctx, commentID)
}
