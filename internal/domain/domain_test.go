package domain

import "testing"

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"Admin", RoleAdmin, true},
		{"manager", RoleManager, true},
		{" Member ", RoleMember, true},
		{"owner", RoleUnknown, false},
		{"", RoleUnknown, false},
	}
	for _, tc := range cases {
		got, ok := ParseRole(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseRole(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRoleLevels(t *testing.T) {
	if RoleAdmin.Level() != 3 || RoleManager.Level() != 2 || RoleMember.Level() != 1 {
		t.Fatalf("unexpected levels")
	}
	if RoleUnknown.Level() != 0 || Role(42).Level() != 0 {
		t.Fatalf("unknown roles must have level 0")
	}
	if Role(42).String() != "Unknown" {
		t.Fatalf("unexpected name %s", Role(42))
	}
}

func TestRoleTextRoundTrip(t *testing.T) {
	var r Role
	if err := r.UnmarshalText([]byte("Manager")); err != nil || r != RoleManager {
		t.Fatalf("unmarshal: %v %v", r, err)
	}
	if err := r.UnmarshalText([]byte("root")); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestParseStatusAcceptsLegacyLabels(t *testing.T) {
	for in, want := range map[string]Status{
		"ToDo":        StatusToDo,
		"To Do":       StatusToDo,
		"in progress": StatusInProgress,
		"InProgress":  StatusInProgress,
		"Done":        StatusDone,
	} {
		got, ok := ParseStatus(in)
		if !ok || got != want {
			t.Fatalf("ParseStatus(%q) = %q,%v", in, got, ok)
		}
	}
	if _, ok := ParseStatus("Archived"); ok {
		t.Fatalf("expected Archived to be rejected")
	}
	if Status("To Do").Valid() {
		t.Fatalf("legacy label is not a canonical status")
	}
}

func TestPatchRestrictDropsUnpermittedFields(t *testing.T) {
	title := "x"
	done := StatusDone
	p := TaskPatch{Title: &title, Status: &done}
	if p.Fields() != NewFieldSet(FieldTitle, FieldStatus) {
		t.Fatalf("unexpected fields %s", p.Fields())
	}
	r := p.Restrict(NewFieldSet(FieldStatus))
	if r.Title != nil {
		t.Fatalf("title should be dropped")
	}
	if r.Status == nil || *r.Status != StatusDone {
		t.Fatalf("status should be kept")
	}
	task := r.Apply(Task{Title: "orig", Status: StatusToDo})
	if task.Title != "orig" || task.Status != StatusDone {
		t.Fatalf("unexpected task %+v", task)
	}
}
