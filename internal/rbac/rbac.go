package rbac

type Role string
type Action string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
	RoleNone   Role = "none"
)

const (
	ActionRead         Action = "read"
	ActionEditCards    Action = "edit_cards"
	ActionComment      Action = "comment"
	ActionManageBoard  Action = "manage_board"
	ActionArchiveBoard Action = "archive_board"
)

// Member is the slice element of a board's membership list as stored.
type Member struct {
	UserID string
	Role   Role
}

// Policy holds access rules that are deliberate product decisions rather
// than fixed role semantics. ViewersCanEditCards keeps the historical
// behavior where any resolved role short of none may mutate cards and
// comments; set it to false to restrict those actions to member and above.
type Policy struct {
	ViewersCanEditCards bool
}

var DefaultPolicy = Policy{ViewersCanEditCards: true}

// Evaluate resolves the effective role of userID on a board. Owner wins
// over any membership entry; a stored membership role wins over public
// visibility; a public board grants viewer to everyone else.
func Evaluate(ownerID string, members []Member, visibility string, userID string) Role {
	if userID != "" && userID == ownerID {
		return RoleOwner
	}
	for _, m := range members {
		if m.UserID == userID {
			return m.Role
		}
	}
	if visibility == "public" {
		return RoleViewer
	}
	return RoleNone
}

func (p Policy) Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleAdmin:
		return action != ActionArchiveBoard
	case RoleMember:
		return action == ActionRead || action == ActionEditCards || action == ActionComment
	case RoleViewer:
		if action == ActionRead {
			return true
		}
		if p.ViewersCanEditCards {
			return action == ActionEditCards || action == ActionComment
		}
		return false
	default:
		return false
	}
}

func Can(role Role, action Action) bool {
	return DefaultPolicy.Can(role, action)
}

// Normalize maps a stored role string to a grantable membership role.
// Owner is never stored in the membership list, so it is not grantable here.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleMember, RoleViewer:
		return Role(role)
	default:
		return RoleMember
	}
}
