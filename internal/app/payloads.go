package app

import (
	"time"

	"taskboard/api/internal/store"
)

// Payload builders shape entities for the wire. Collections are never
// null in responses, so nil slices become empty ones here.

func userPayload(u store.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"name":        u.Name,
		"email":       u.Email,
		"avatarUrl":   u.AvatarURL,
		"bio":         u.Bio,
		"theme":       u.Theme,
		"emailNotify": u.EmailNotify,
		"createdAt":   u.CreatedAt,
	}
}

func boardPayload(b store.Board) map[string]any {
	members := b.Members
	if members == nil {
		members = []store.BoardMember{}
	}
	labels := b.Labels
	if labels == nil {
		labels = []store.Label{}
	}
	return map[string]any{
		"id":          b.ID,
		"title":       b.Title,
		"description": b.Description,
		"ownerId":     b.OwnerID,
		"visibility":  b.Visibility,
		"background":  b.Background,
		"labels":      labels,
		"archived":    b.Archived,
		"members":     members,
		"createdAt":   b.CreatedAt,
		"updatedAt":   b.UpdatedAt,
	}
}

func listPayload(l store.List) map[string]any {
	return map[string]any{
		"id":        l.ID,
		"boardId":   l.BoardID,
		"title":     l.Title,
		"position":  l.Position,
		"archived":  l.Archived,
		"createdAt": l.CreatedAt,
		"updatedAt": l.UpdatedAt,
	}
}

func cardPayload(c store.Card) map[string]any {
	labels := c.Labels
	if labels == nil {
		labels = []store.Label{}
	}
	members := c.MemberIDs
	if members == nil {
		members = []string{}
	}
	attachments := c.Attachments
	if attachments == nil {
		attachments = []store.Attachment{}
	}
	checklists := c.Checklists
	if checklists == nil {
		checklists = []store.Checklist{}
	}
	return map[string]any{
		"id":          c.ID,
		"title":       c.Title,
		"description": c.Description,
		"listId":      c.ListID,
		"boardId":     c.BoardID,
		"position":    c.Position,
		"labels":      labels,
		"members":     members,
		"startDate":   c.StartDate,
		"dueDate":     c.DueDate,
		"priority":    c.Priority,
		"cover":       c.Cover,
		"attachments": attachments,
		"checklists":  checklists,
		"archived":    c.Archived,
		"completed":   c.Completed,
		"createdBy":   c.CreatedBy,
		"createdAt":   c.CreatedAt,
		"updatedAt":   c.UpdatedAt,
	}
}

func commentPayload(c store.Comment) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"cardId":    c.CardID,
		"authorId":  c.AuthorID,
		"text":      c.Text,
		"author":    c.Author,
		"edited":    c.Edited,
		"editedAt":  formatDate(c.EditedAt),
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}

func activityPayload(a store.Activity) map[string]any {
	data := a.Data
	if data == nil {
		data = map[string]any{}
	}
	payload := map[string]any{
		"id":        a.ID,
		"boardId":   a.BoardID,
		"actorId":   a.ActorID,
		"type":      a.Type,
		"data":      data,
		"actor":     a.Actor,
		"createdAt": a.CreatedAt,
	}
	if a.CardID != "" {
		payload["cardId"] = a.CardID
	}
	return payload
}

func notificationPayload(n store.Notification) map[string]any {
	payload := map[string]any{
		"id":        n.ID,
		"type":      n.Type,
		"message":   n.Message,
		"read":      n.Read,
		"actor":     n.Actor,
		"createdAt": n.CreatedAt,
	}
	if n.BoardID != "" {
		payload["boardId"] = n.BoardID
	}
	if n.CardID != "" {
		payload["cardId"] = n.CardID
	}
	return payload
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
