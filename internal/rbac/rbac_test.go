package rbac

import "testing"

func TestEvaluate(t *testing.T) {
	members := []Member{
		{UserID: "usr_admin", Role: RoleAdmin},
		{UserID: "usr_viewer", Role: RoleViewer},
	}

	cases := []struct {
		name       string
		owner      string
		visibility string
		userID     string
		want       Role
	}{
		{name: "owner", owner: "usr_owner", visibility: "private", userID: "usr_owner", want: RoleOwner},
		{name: "owner wins over membership", owner: "usr_admin", visibility: "private", userID: "usr_admin", want: RoleOwner},
		{name: "stored admin", owner: "usr_owner", visibility: "private", userID: "usr_admin", want: RoleAdmin},
		{name: "stored viewer on public board", owner: "usr_owner", visibility: "public", userID: "usr_viewer", want: RoleViewer},
		{name: "stranger on public board", owner: "usr_owner", visibility: "public", userID: "usr_other", want: RoleViewer},
		{name: "stranger on private board", owner: "usr_owner", visibility: "private", userID: "usr_other", want: RoleNone},
		{name: "anonymous on private board", owner: "usr_owner", visibility: "private", userID: "", want: RoleNone},
		{name: "anonymous on public board", owner: "usr_owner", visibility: "public", userID: "", want: RoleViewer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.owner, members, tc.visibility, tc.userID); got != tc.want {
				t.Fatalf("Evaluate(%q) = %q, want %q", tc.userID, got, tc.want)
			}
		})
	}
}

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "owner archive", role: RoleOwner, action: ActionArchiveBoard, allow: true},
		{name: "admin archive", role: RoleAdmin, action: ActionArchiveBoard, allow: false},
		{name: "admin manage", role: RoleAdmin, action: ActionManageBoard, allow: true},
		{name: "member manage", role: RoleMember, action: ActionManageBoard, allow: false},
		{name: "member edit cards", role: RoleMember, action: ActionEditCards, allow: true},
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer edit cards permissive", role: RoleViewer, action: ActionEditCards, allow: true},
		{name: "none read", role: RoleNone, action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestPolicyRestrictsViewers(t *testing.T) {
	strict := Policy{ViewersCanEditCards: false}
	if strict.Can(RoleViewer, ActionEditCards) {
		t.Fatal("strict policy should deny viewer card edits")
	}
	if !strict.Can(RoleViewer, ActionRead) {
		t.Fatal("strict policy should still allow viewer reads")
	}
	if !strict.Can(RoleMember, ActionEditCards) {
		t.Fatal("strict policy should not affect members")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("viewer"); got != RoleViewer {
		t.Fatalf("Normalize(viewer) = %q", got)
	}
	if got := Normalize("owner"); got != RoleMember {
		t.Fatalf("Normalize(owner) = %q, want member", got)
	}
	if got := Normalize("bogus"); got != RoleMember {
		t.Fatalf("Normalize(bogus) = %q, want member", got)
	}
}
