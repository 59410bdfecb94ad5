package engine_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"teamtask/internal/config"
	"teamtask/internal/db"
	"teamtask/internal/domain"
	"teamtask/internal/engine"
	"teamtask/internal/engine/auth"
	"teamtask/internal/migrate"
	"teamtask/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Admin   *domain.Principal
	Manager *domain.Principal
	Alice   *domain.Principal
	Bob     *domain.Principal
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	logger := log.New()
	logger.SetOutput(io.Discard)
	eng.Log = logger
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()
	users := []domain.User{
		{ID: "admin", Name: "Ada", Email: "ada@example.com", Role: domain.RoleAdmin},
		{ID: "mgr", Name: "Max", Email: "max@example.com", Role: domain.RoleManager},
		{ID: "alice", Name: "Alice", Email: "alice@example.com", Role: domain.RoleMember},
		{ID: "bob", Name: "Bob", Email: "bob@example.com", Role: domain.RoleMember},
	}
	for _, u := range users {
		u.PasswordHash = "unused"
		u.CreatedAt = "2024-01-01T00:00:00.000000Z"
		if err := eng.Repo.InsertUser(ctx, nil, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return testEnv{
		Engine:  eng,
		Ctx:     ctx,
		Admin:   &domain.Principal{ID: "admin", Role: domain.RoleAdmin},
		Manager: &domain.Principal{ID: "mgr", Role: domain.RoleManager},
		Alice:   &domain.Principal{ID: "alice", Role: domain.RoleMember},
		Bob:     &domain.Principal{ID: "bob", Role: domain.RoleMember},
	}
}

func (env testEnv) createTask(t *testing.T, assignee string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, env.Manager, engine.TaskCreateOptions{
		Title:       "Write report",
		Description: "Quarterly numbers",
		AssignedTo:  assignee,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.Status) *domain.Status { return &s }

func wantKind(t *testing.T, err error, kind auth.Kind) {
	t.Helper()
	got, ok := auth.KindOf(err)
	if !ok || got != kind {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}

func TestCreateTaskByManager(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")
	if task.Status != domain.StatusToDo || task.CreatedBy != "mgr" || task.AssignedTo != "alice" {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.ID == "" || task.CreatedAt == "" || task.CreatedAt != task.UpdatedAt {
		t.Fatalf("expected id and timestamps, got %+v", task)
	}
	stored, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || stored != task {
		t.Fatalf("stored task mismatch: %+v %v", stored, err)
	}
}

func TestCreateTaskByMemberIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, env.Alice, engine.TaskCreateOptions{Title: "x", Description: "y", AssignedTo: "alice"})
	wantKind(t, err, auth.KindForbidden)
	if err.Error() != "access denied: required role Manager, you are Member" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	tasks, _ := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{})
	if len(tasks) != 0 {
		t.Fatalf("nothing should be stored, got %d tasks", len(tasks))
	}
}

func TestCreateTaskUnknownAssignee(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, env.Admin, engine.TaskCreateOptions{Title: "x", Description: "y", AssignedTo: "ghost"})
	wantKind(t, err, auth.KindValidation)
	tasks, _ := env.Engine.Repo.ListTasks(env.Ctx, repo.TaskFilters{})
	if len(tasks) != 0 {
		t.Fatalf("nothing should be stored, got %d tasks", len(tasks))
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name  string
		opts  engine.TaskCreateOptions
		field string
	}{
		{"missing title", engine.TaskCreateOptions{Description: "d", AssignedTo: "alice"}, "title"},
		{"blank description", engine.TaskCreateOptions{Title: "t", Description: "   ", AssignedTo: "alice"}, "description"},
		{"missing assignee", engine.TaskCreateOptions{Title: "t", Description: "d"}, "assigned_to"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateTask(env.Ctx, env.Manager, tc.opts)
			var verr auth.ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
		})
	}
}

func TestUnauthenticatedCalls(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")
	_, err := env.Engine.GetTask(env.Ctx, nil, task.ID)
	wantKind(t, err, auth.KindUnauthenticated)
	_, err = env.Engine.ListTasks(env.Ctx, nil, engine.TaskListOptions{})
	wantKind(t, err, auth.KindUnauthenticated)
	err = env.Engine.DeleteTask(env.Ctx, &domain.Principal{}, task.ID)
	wantKind(t, err, auth.KindUnauthenticated)
}

func TestListTasksScoping(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.createTask(t, "alice")
	env.createTask(t, "bob")
	a2 := env.createTask(t, "alice")

	mine, err := env.Engine.ListTasks(env.Ctx, env.Alice, engine.TaskListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != a2.ID || mine[1].ID != a1.ID {
		t.Fatalf("expected alice's tasks newest first, got %+v", mine)
	}

	// The assignee filter is replaced for members, not merged.
	spoofed, _ := env.Engine.ListTasks(env.Ctx, env.Alice, engine.TaskListOptions{AssignedTo: "bob"})
	if len(spoofed) != 2 {
		t.Fatalf("member must only see own tasks, got %d", len(spoofed))
	}

	all, _ := env.Engine.ListTasks(env.Ctx, env.Manager, engine.TaskListOptions{})
	if len(all) != 3 {
		t.Fatalf("manager should see all tasks, got %d", len(all))
	}
	bobs, _ := env.Engine.ListTasks(env.Ctx, env.Admin, engine.TaskListOptions{AssignedTo: "bob"})
	if len(bobs) != 1 || bobs[0].AssignedTo != "bob" {
		t.Fatalf("admin filter by assignee failed: %+v", bobs)
	}

	_, err = env.Engine.ListTasks(env.Ctx, env.Alice, engine.TaskListOptions{Status: "Blocked"})
	wantKind(t, err, auth.KindValidation)
}

func TestListTasksStatusFilterAndStats(t *testing.T) {
	env := newTestEnv(t)
	a1 := env.createTask(t, "alice")
	env.createTask(t, "alice")
	env.createTask(t, "bob")
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Alice, a1.ID, domain.TaskPatch{Status: statusPtr(domain.StatusDone)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	done, err := env.Engine.ListTasks(env.Ctx, env.Alice, engine.TaskListOptions{Status: "done"})
	if err != nil || len(done) != 1 || done[0].ID != a1.ID {
		t.Fatalf("status filter: %+v %v", done, err)
	}
	stats, err := env.Engine.TaskStats(env.Ctx, env.Alice, engine.TaskListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[domain.StatusToDo] != 1 || stats[domain.StatusDone] != 1 || stats[domain.StatusInProgress] != 0 {
		t.Fatalf("unexpected member stats %v", stats)
	}
	stats, _ = env.Engine.TaskStats(env.Ctx, env.Manager, engine.TaskListOptions{})
	if stats[domain.StatusToDo] != 2 {
		t.Fatalf("unexpected manager stats %v", stats)
	}
}

func TestGetTaskOwnership(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")

	if _, err := env.Engine.GetTask(env.Ctx, env.Alice, task.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, env.Manager, task.ID); err != nil {
		t.Fatalf("manager read: %v", err)
	}
	_, err := env.Engine.GetTask(env.Ctx, env.Bob, task.ID)
	wantKind(t, err, auth.KindForbidden)
	if err.Error() != "access denied: you may only view tasks assigned to you" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestNotFoundBeforePolicy(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GetTask(env.Ctx, env.Bob, "missing")
	wantKind(t, err, auth.KindNotFound)
	_, err = env.Engine.UpdateTask(env.Ctx, env.Bob, "missing", domain.TaskPatch{Title: strPtr("x")})
	wantKind(t, err, auth.KindNotFound)
	err = env.Engine.DeleteTask(env.Ctx, env.Bob, "missing")
	wantKind(t, err, auth.KindNotFound)
}

func TestMemberUpdateIsNarrowedToStatus(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")

	updated, err := env.Engine.UpdateTask(env.Ctx, env.Alice, task.ID, domain.TaskPatch{
		Title:      strPtr("Hijacked"),
		AssignedTo: strPtr("bob"),
		Status:     statusPtr("In Progress"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != task.Title || updated.AssignedTo != "alice" || updated.Status != domain.StatusInProgress {
		t.Fatalf("expected only status change, got %+v", updated)
	}
	if updated.UpdatedAt == task.UpdatedAt {
		t.Fatalf("updated_at should move forward")
	}
	stored, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if stored != updated {
		t.Fatalf("stored %+v, returned %+v", stored, updated)
	}

	// A dropped field is not validated, and a patch narrowed to nothing is a no-op.
	same, err := env.Engine.UpdateTask(env.Ctx, env.Alice, task.ID, domain.TaskPatch{Title: strPtr("")})
	if err != nil {
		t.Fatalf("empty dropped title should be ignored: %v", err)
	}
	if same != updated {
		t.Fatalf("no-op update changed the task: %+v", same)
	}
}

func TestMemberCannotUpdateForeignTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")
	_, err := env.Engine.UpdateTask(env.Ctx, env.Bob, task.ID, domain.TaskPatch{Status: statusPtr(domain.StatusDone)})
	wantKind(t, err, auth.KindForbidden)
	stored, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if stored != task {
		t.Fatalf("task must be unchanged, got %+v", stored)
	}
}

func TestManagerUpdateAllFields(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")
	updated, err := env.Engine.UpdateTask(env.Ctx, env.Manager, task.ID, domain.TaskPatch{
		Title:       strPtr("New title"),
		Description: strPtr("New description"),
		AssignedTo:  strPtr("bob"),
		Status:      statusPtr(domain.StatusDone),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "New title" || updated.Description != "New description" || updated.AssignedTo != "bob" || updated.Status != domain.StatusDone {
		t.Fatalf("unexpected task %+v", updated)
	}
	if updated.CreatedBy != "mgr" || updated.CreatedAt != task.CreatedAt {
		t.Fatalf("creator and creation time must be preserved: %+v", updated)
	}
	// Status may go back from Done.
	back, err := env.Engine.UpdateTask(env.Ctx, env.Admin, task.ID, domain.TaskPatch{Status: statusPtr(domain.StatusToDo)})
	if err != nil || back.Status != domain.StatusToDo {
		t.Fatalf("reopen: %+v %v", back, err)
	}
}

func TestUpdateValidationLeavesTaskUnchanged(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")
	cases := []struct {
		name  string
		actor *domain.Principal
		patch domain.TaskPatch
		field string
	}{
		{"unknown assignee", env.Manager, domain.TaskPatch{AssignedTo: strPtr("ghost"), Title: strPtr("changed")}, "assigned_to"},
		{"bad status", env.Alice, domain.TaskPatch{Status: statusPtr("Blocked")}, "status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.UpdateTask(env.Ctx, tc.actor, task.ID, tc.patch)
			var verr auth.ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
			stored, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
			if stored != task {
				t.Fatalf("task changed: %+v", stored)
			}
		})
	}
}

func TestUpdateIgnoresBlankFields(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")

	same, err := env.Engine.UpdateTask(env.Ctx, env.Manager, task.ID, domain.TaskPatch{
		Title:       strPtr("  "),
		Description: strPtr(""),
		AssignedTo:  strPtr(""),
		Status:      statusPtr(""),
	})
	if err != nil {
		t.Fatalf("blank patch: %v", err)
	}
	if same != task {
		t.Fatalf("blank patch changed the task: %+v", same)
	}

	updated, err := env.Engine.UpdateTask(env.Ctx, env.Manager, task.ID, domain.TaskPatch{
		Title:  strPtr(""),
		Status: statusPtr(domain.StatusDone),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != task.Title || updated.Status != domain.StatusDone {
		t.Fatalf("expected only status change, got %+v", updated)
	}
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")

	err := env.Engine.DeleteTask(env.Ctx, env.Alice, task.ID)
	wantKind(t, err, auth.KindForbidden)

	if err := env.Engine.DeleteTask(env.Ctx, env.Manager, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = env.Engine.GetTask(env.Ctx, env.Admin, task.ID)
	wantKind(t, err, auth.KindNotFound)
	err = env.Engine.DeleteTask(env.Ctx, env.Admin, task.ID)
	wantKind(t, err, auth.KindNotFound)
}

func TestUnknownRoleBehavesLikeMember(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "alice")
	stranger := &domain.Principal{ID: "alice", Role: domain.RoleUnknown}
	if _, err := env.Engine.GetTask(env.Ctx, stranger, task.ID); err != nil {
		t.Fatalf("owner read with unknown role: %v", err)
	}
	_, err := env.Engine.CreateTask(env.Ctx, stranger, engine.TaskCreateOptions{Title: "t", Description: "d", AssignedTo: "alice"})
	wantKind(t, err, auth.KindForbidden)
}

func TestUsersAdministration(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateUser(env.Ctx, env.Manager, engine.UserCreateOptions{Name: "Cy", Email: "cy@example.com", Role: "Member", Password: "secret1"})
	wantKind(t, err, auth.KindForbidden)

	u, err := env.Engine.CreateUser(env.Ctx, env.Admin, engine.UserCreateOptions{Name: "Cy", Email: "Cy@Example.com", Role: "member", Password: "secret1"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == "" || u.Email != "cy@example.com" || u.Role != domain.RoleMember || u.PasswordHash != "" {
		t.Fatalf("unexpected user %+v", u)
	}

	_, err = env.Engine.CreateUser(env.Ctx, env.Admin, engine.UserCreateOptions{Name: "Cy", Email: "cy@example.com", Role: "Member", Password: "secret1"})
	wantKind(t, err, auth.KindValidation)
	_, err = env.Engine.CreateUser(env.Ctx, env.Admin, engine.UserCreateOptions{Name: "Dee", Email: "dee@example.com", Role: "Owner", Password: "secret1"})
	wantKind(t, err, auth.KindValidation)
	_, err = env.Engine.CreateUser(env.Ctx, env.Admin, engine.UserCreateOptions{Name: "Dee", Email: "dee@example.com", Role: "Member", Password: "123"})
	wantKind(t, err, auth.KindValidation)

	logged, err := env.Engine.Login(env.Ctx, "cy@example.com", "secret1")
	if err != nil || logged.ID != u.ID {
		t.Fatalf("login: %+v %v", logged, err)
	}
	_, err = env.Engine.Login(env.Ctx, "cy@example.com", "wrong")
	if !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	promoted, err := env.Engine.SetUserRole(env.Ctx, env.Admin, u.ID, "Manager")
	if err != nil || promoted.Role != domain.RoleManager {
		t.Fatalf("set role: %+v %v", promoted, err)
	}
	p, err := env.Engine.ResolvePrincipal(env.Ctx, u.ID)
	if err != nil || p.Role != domain.RoleManager {
		t.Fatalf("resolve: %+v %v", p, err)
	}
	_, err = env.Engine.SetUserRole(env.Ctx, env.Admin, "ghost", "Manager")
	wantKind(t, err, auth.KindNotFound)
	_, err = env.Engine.SetUserRole(env.Ctx, env.Alice, u.ID, "Admin")
	wantKind(t, err, auth.KindForbidden)

	users, err := env.Engine.ListUsers(env.Ctx, env.Bob)
	if err != nil || len(users) != 5 {
		t.Fatalf("list users: %d %v", len(users), err)
	}
}

func TestSeedUsersAndAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	seeds := []config.SeedUser{
		{ID: "admin", Name: "Ada", Email: "ada@example.com", Role: "Admin", Password: "change-me"},
		{ID: "ops", Name: "Ops", Email: "ops@example.com", Role: "Manager", Password: "change-me"},
	}
	n, err := env.Engine.SeedUsers(env.Ctx, seeds)
	if err != nil || n != 1 {
		t.Fatalf("seed: %d %v", n, err)
	}
	n, err = env.Engine.SeedUsers(env.Ctx, seeds)
	if err != nil || n != 0 {
		t.Fatalf("reseed should be a no-op: %d %v", n, err)
	}

	raw, key, err := env.Engine.CreateAPIKey(env.Ctx, "ops", "ci")
	if err != nil || raw == "" || key.UserID != "ops" {
		t.Fatalf("create key: %q %+v %v", raw, key, err)
	}
	p, err := env.Engine.AuthenticateAPIKey(env.Ctx, raw)
	if err != nil || p.ID != "ops" || p.Role != domain.RoleManager {
		t.Fatalf("authenticate: %+v %v", p, err)
	}
	_, err = env.Engine.AuthenticateAPIKey(env.Ctx, "tt_bogus")
	wantKind(t, err, auth.KindUnauthenticated)
	_, _, err = env.Engine.CreateAPIKey(env.Ctx, "ghost", "x")
	wantKind(t, err, auth.KindNotFound)
}
