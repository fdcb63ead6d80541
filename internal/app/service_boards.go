package app

import (
	"context"
	"log"
	"strings"

	"taskboard/api/internal/rbac"
	"taskboard/api/internal/realtime"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

// ── Boards ──

func (s *Service) ListBoards(ctx context.Context, userID string) ([]map[string]any, error) {
	boards, err := s.store.ListBoardsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(boards))
	for _, b := range boards {
		items = append(items, boardPayload(b))
	}
	return items, nil
}

type CreateBoardInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	Background  string `json:"background"`
}

func (s *Service) CreateBoard(ctx context.Context, sess Session, input CreateBoardInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errValidation("title is required")
	}
	visibility := input.Visibility
	if visibility != "public" {
		visibility = "private"
	}
	board, err := s.store.CreateBoard(ctx, store.Board{
		ID:          util.NewID("brd"),
		Title:       title,
		Description: input.Description,
		OwnerID:     sess.UserID,
		Visibility:  visibility,
		Background:  input.Background,
	})
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, board.ID, "", sess.UserID, "board_created", map[string]any{"title": board.Title})
	s.indexBoard(board)
	return boardPayload(board), nil
}

// GetBoardAggregate resolves a board with its non-archived lists, their
// non-archived cards, and per-card comment counts in one batched query.
func (s *Service) GetBoardAggregate(ctx context.Context, sess Session, boardID string) (map[string]any, error) {
	board, role, err := s.boardRole(ctx, boardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionRead) {
		return nil, errForbidden("You do not have access to this board")
	}

	lists, err := s.store.ListLists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.ListCardsForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CommentCountsForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	cardsByList := make(map[string][]map[string]any, len(lists))
	for _, c := range cards {
		payload := cardPayload(c)
		payload["commentsCount"] = counts[c.ID]
		cardsByList[c.ListID] = append(cardsByList[c.ListID], payload)
	}

	listPayloads := make([]map[string]any, 0, len(lists))
	for _, l := range lists {
		payload := listPayload(l)
		cardsPayload := cardsByList[l.ID]
		if cardsPayload == nil {
			cardsPayload = []map[string]any{}
		}
		payload["cards"] = cardsPayload
		listPayloads = append(listPayloads, payload)
	}

	payload := boardPayload(board)
	payload["lists"] = listPayloads
	payload["role"] = role
	return payload, nil
}

type UpdateBoardInput struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Visibility  *string        `json:"visibility"`
	Background  *string        `json:"background"`
	Labels      *[]store.Label `json:"labels"`
}

func (s *Service) UpdateBoard(ctx context.Context, sess Session, boardID string, input UpdateBoardInput) (map[string]any, error) {
	board, role, err := s.boardRole(ctx, boardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionManageBoard) {
		return nil, errForbidden("Only the owner or an admin can update this board")
	}

	changes := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errValidation("title cannot be empty")
		}
		if title != board.Title {
			changes["title"] = map[string]any{"old": board.Title, "new": title}
		}
		board.Title = title
	}
	if input.Description != nil {
		if *input.Description != board.Description {
			changes["description"] = map[string]any{"old": board.Description, "new": *input.Description}
		}
		board.Description = *input.Description
	}
	if input.Visibility != nil {
		if *input.Visibility != "public" && *input.Visibility != "private" {
			return nil, errValidation("visibility must be public or private")
		}
		board.Visibility = *input.Visibility
	}
	if input.Background != nil {
		board.Background = *input.Background
	}
	if input.Labels != nil {
		board.Labels = *input.Labels
	}

	updated, err := s.store.UpdateBoard(ctx, board)
	if err != nil {
		return nil, err
	}
	updated.Members = board.Members
	if len(changes) > 0 {
		s.recordActivity(ctx, boardID, "", sess.UserID, "board_updated", changes)
	}
	s.indexBoard(updated)
	return boardPayload(updated), nil
}

func (s *Service) ArchiveBoard(ctx context.Context, sess Session, boardID string) error {
	board, role, err := s.boardRole(ctx, boardID, sess.UserID)
	if err != nil {
		return err
	}
	if !s.policy.Can(role, rbac.ActionArchiveBoard) {
		return errForbidden("Only the owner can archive this board")
	}
	if err := s.store.ArchiveBoard(ctx, boardID); err != nil {
		return err
	}
	s.recordActivity(ctx, boardID, "", sess.UserID, "board_archived", map[string]any{"title": board.Title})
	if s.search != nil {
		s.search.DeleteBoard(boardID)
	}
	return nil
}

// ── Members ──

type AddMemberInput struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (s *Service) AddBoardMember(ctx context.Context, sess Session, boardID string, input AddMemberInput) (map[string]any, error) {
	board, role, err := s.boardRole(ctx, boardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionManageBoard) {
		return nil, errForbidden("Only the owner or an admin can manage members")
	}

	var invitee store.User
	switch {
	case input.UserID != "":
		invitee, err = s.store.GetUserByID(ctx, input.UserID)
	case input.Email != "":
		invitee, err = s.store.GetUserByEmail(ctx, input.Email)
	default:
		return nil, errValidation("userId or email is required")
	}
	if err != nil {
		if store.ErrNotFound(err) {
			return nil, errNotFound("User not found")
		}
		return nil, err
	}
	if invitee.ID == board.OwnerID {
		return nil, errValidation("The owner is already a member")
	}

	memberRole := string(rbac.Normalize(input.Role))
	if err := s.store.AddBoardMember(ctx, boardID, invitee.ID, memberRole); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, boardID, "", sess.UserID, "member_added", map[string]any{
		"memberId":   invitee.ID,
		"memberName": invitee.Name,
		"role":       memberRole,
	})
	s.notify(ctx, invitee.ID, sess.UserID, "board_invite", boardID, "",
		sess.UserName+" added you to the board \""+board.Title+"\"")
	if s.SMTPConfigured() && invitee.EmailNotify {
		boardURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/boards/" + boardID
		if err := s.email.SendBoardInviteEmail(invitee.Email, invitee.Name, sess.UserName, board.Title, boardURL); err != nil {
			log.Printf("board invite email to %s failed: %v", invitee.Email, err)
		}
	}

	updated, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	s.indexBoard(updated)
	s.publish(realtime.Event{
		Type:    realtime.EventMemberAdded,
		BoardID: boardID,
		Payload: map[string]any{"userId": invitee.ID, "role": memberRole, "user": invitee.Public()},
	})
	return boardPayload(updated), nil
}

func (s *Service) RemoveBoardMember(ctx context.Context, sess Session, boardID, userID string) (map[string]any, error) {
	board, role, err := s.boardRole(ctx, boardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	// Members may remove themselves; anyone else requires manage rights.
	if userID != sess.UserID && !s.policy.Can(role, rbac.ActionManageBoard) {
		return nil, errForbidden("Only the owner or an admin can manage members")
	}
	if userID == board.OwnerID {
		return nil, errValidation("The owner cannot be removed")
	}
	if err := s.store.RemoveBoardMember(ctx, boardID, userID); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, boardID, "", sess.UserID, "member_removed", map[string]any{"memberId": userID})
	s.notify(ctx, userID, sess.UserID, "board_removed", boardID, "",
		sess.UserName+" removed you from the board \""+board.Title+"\"")

	updated, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	s.indexBoard(updated)
	s.publish(realtime.Event{
		Type:    realtime.EventMemberRemoved,
		BoardID: boardID,
		Payload: map[string]any{"userId": userID},
	})
	return boardPayload(updated), nil
}

// ── Activities ──

func (s *Service) ListBoardActivities(ctx context.Context, sess Session, boardID string, limit int) ([]map[string]any, error) {
	_, role, err := s.boardRole(ctx, boardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionRead) {
		return nil, errForbidden("You do not have access to this board")
	}
	activities, err := s.store.ListActivities(ctx, boardID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(activities))
	for _, a := range activities {
		items = append(items, activityPayload(a))
	}
	return items, nil
}

// ── Lists ──

type CreateListInput struct {
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Position *int   `json:"position"`
}

func (s *Service) CreateList(ctx context.Context, sess Session, input CreateListInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errValidation("title is required")
	}
	if input.BoardID == "" {
		return nil, errValidation("boardId is required")
	}
	_, role, err := s.boardRole(ctx, input.BoardID, sess.UserID)
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
	list, err := s.store.CreateList(ctx, store.List{
		ID:       util.NewID("lst"),
		BoardID:  input.BoardID,
		Title:    title,
		Position: position,
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, input.BoardID, "", sess.UserID, "list_created", map[string]any{"title": list.Title})
	_ = s.store.TouchBoard(ctx, input.BoardID)
	s.publish(realtime.Event{Type: realtime.EventListCreated, BoardID: input.BoardID, Payload: listPayload(list)})
	return listPayload(list), nil
}

type UpdateListInput struct {
	Title    *string `json:"title"`
	Position *int    `json:"position"`
}

func (s *Service) UpdateList(ctx context.Context, sess Session, listID string, input UpdateListInput) (map[string]any, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	_, role, err := s.boardRole(ctx, list.BoardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errValidation("title cannot be empty")
		}
		list.Title = title
	}
	if input.Position != nil {
		list.Position = *input.Position
	}
	updated, err := s.store.UpdateList(ctx, list)
	if err != nil {
		return nil, err
	}

	_ = s.store.TouchBoard(ctx, list.BoardID)
	s.publish(realtime.Event{Type: realtime.EventListUpdated, BoardID: list.BoardID, Payload: listPayload(updated)})
	return listPayload(updated), nil
}

// ArchiveList archives a list and every card on it.
func (s *Service) ArchiveList(ctx context.Context, sess Session, listID string) error {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return err
	}
	_, role, err := s.boardRole(ctx, list.BoardID, sess.UserID)
	if err != nil {
		return err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return errForbidden("You cannot edit this board")
	}
	if err := s.store.ArchiveList(ctx, listID); err != nil {
		return err
	}

	s.recordActivity(ctx, list.BoardID, "", sess.UserID, "list_archived", map[string]any{"title": list.Title})
	_ = s.store.TouchBoard(ctx, list.BoardID)
	s.publish(realtime.Event{Type: realtime.EventListDeleted, BoardID: list.BoardID, Payload: map[string]any{"id": listID}})
	return nil
}

type ReorderListsInput struct {
	BoardID string   `json:"boardId"`
	ListIDs []string `json:"listIds"`
}

// ReorderLists rewrites every list position on a board to its index in the
// submitted order. This is the normalization path after drag-and-drop.
func (s *Service) ReorderLists(ctx context.Context, sess Session, input ReorderListsInput) ([]map[string]any, error) {
	if input.BoardID == "" {
		return nil, errValidation("boardId is required")
	}
	if len(input.ListIDs) == 0 {
		return nil, errValidation("listIds is required")
	}
	_, role, err := s.boardRole(ctx, input.BoardID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Can(role, rbac.ActionEditCards) {
		return nil, errForbidden("You cannot edit this board")
	}
	if err := s.store.ReorderLists(ctx, input.BoardID, input.ListIDs); err != nil {
		return nil, err
	}

	lists, err := s.store.ListLists(ctx, input.BoardID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(lists))
	for _, l := range lists {
		items = append(items, listPayload(l))
	}
	_ = s.store.TouchBoard(ctx, input.BoardID)
	s.publish(realtime.Event{Type: realtime.EventListUpdated, BoardID: input.BoardID, Payload: map[string]any{"reordered": input.ListIDs}})
	return items, nil
}
