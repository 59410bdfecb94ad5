package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"teamtask/internal/domain"
	"teamtask/internal/engine/auth"
	"teamtask/internal/engine/policy"
	"teamtask/internal/repo"
)

// TimeLayout is the sortable UTC layout used for stored timestamps.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// UserDirectory resolves users by id. repo.Repo and *cache.Users satisfy it.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	UserExists(ctx context.Context, id string) (bool, error)
}

type evicter interface {
	Evict(ctx context.Context, id string)
}

type Engine struct {
	DB    *sql.DB
	Repo  repo.Repo
	Users UserDirectory
	Log   log.FieldLogger
	Now   func() time.Time
}

func New(db *sql.DB) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:    db,
		Repo:  r,
		Users: r,
		Log:   log.StandardLogger(),
		Now:   time.Now,
	}
}

func (e Engine) now() string {
	if e.Now != nil {
		return e.Now().UTC().Format(TimeLayout)
	}
	return time.Now().UTC().Format(TimeLayout)
}

func (e Engine) logger() log.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return log.StandardLogger()
}

func (e Engine) users() UserDirectory {
	if e.Users != nil {
		return e.Users
	}
	return e.Repo
}

func principal(p *domain.Principal) (domain.Principal, error) {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return domain.Principal{}, auth.ErrUnauthenticated
	}
	return *p, nil
}

// denied logs an access-control refusal and returns err unchanged.
func (e Engine) denied(op string, p domain.Principal, taskID string, err error) error {
	if kind, ok := auth.KindOf(err); ok {
		e.logger().WithFields(log.Fields{
			"op":      op,
			"user_id": p.ID,
			"role":    p.Role.String(),
			"task_id": taskID,
			"kind":    string(kind),
		}).Debug(err.Error())
	}
	return err
}

func (e Engine) loadTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, auth.NotFoundError{Entity: "task", ID: id}
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("load task %s: %w", id, err)
	}
	return t, nil
}

func (e Engine) requireAssignee(ctx context.Context, id string) error {
	ok, err := e.users().UserExists(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup user %s: %w", id, err)
	}
	if !ok {
		return auth.ValidationError{Field: "assigned_to", Reason: "assigned user not found"}
	}
	return nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"required,max=5000"`
	AssignedTo  string `validate:"required"`
}

// CreateTask stores a new task in the ToDo state with the caller as creator.
// Nothing is persisted when the assignee does not exist.
func (e Engine) CreateTask(ctx context.Context, actor *domain.Principal, opts TaskCreateOptions) (domain.Task, error) {
	p, err := principal(actor)
	if err != nil {
		return domain.Task{}, err
	}
	if err := policy.AuthorizeCreate(p); err != nil {
		return domain.Task{}, e.denied("create", p, "", err)
	}
	opts.Title = strings.TrimSpace(opts.Title)
	opts.Description = strings.TrimSpace(opts.Description)
	opts.AssignedTo = strings.TrimSpace(opts.AssignedTo)
	if err := validateStruct(opts); err != nil {
		return domain.Task{}, err
	}
	if err := e.requireAssignee(ctx, opts.AssignedTo); err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		AssignedTo:  opts.AssignedTo,
		CreatedBy:   p.ID,
		Status:      domain.StatusToDo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertTask(ctx, nil, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	e.logger().WithFields(log.Fields{"task_id": t.ID, "user_id": p.ID, "assigned_to": t.AssignedTo}).Info("task created")
	return t, nil
}

// TaskListOptions filter a task listing. AssignedTo is only honoured for
// privileged callers.
type TaskListOptions struct {
	AssignedTo      string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (e Engine) scopedFilters(p domain.Principal, opts TaskListOptions) (repo.TaskFilters, error) {
	q := policy.TaskQuery{AssignedTo: strings.TrimSpace(opts.AssignedTo)}
	if s := strings.TrimSpace(opts.Status); s != "" {
		status, ok := domain.ParseStatus(s)
		if !ok {
			return repo.TaskFilters{}, auth.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
		}
		q.Status = status
	}
	q = policy.Scope(p, q)
	return repo.TaskFilters{
		AssignedTo:      q.AssignedTo,
		Status:          string(q.Status),
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	}, nil
}

// ListTasks returns the tasks visible to the caller, newest first.
func (e Engine) ListTasks(ctx context.Context, actor *domain.Principal, opts TaskListOptions) ([]domain.Task, error) {
	p, err := principal(actor)
	if err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, auth.ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	f, err := e.scopedFilters(p, opts)
	if err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// TaskStats counts the caller's visible tasks per status.
func (e Engine) TaskStats(ctx context.Context, actor *domain.Principal, opts TaskListOptions) (map[domain.Status]int, error) {
	p, err := principal(actor)
	if err != nil {
		return nil, err
	}
	f, err := e.scopedFilters(p, opts)
	if err != nil {
		return nil, err
	}
	raw, err := e.Repo.CountTasksByStatus(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	out := make(map[domain.Status]int, len(domain.Statuses()))
	for _, s := range domain.Statuses() {
		out[s] = raw[string(s)]
	}
	return out, nil
}

// GetTask returns one task. A missing task is reported before any
// ownership check.
func (e Engine) GetTask(ctx context.Context, actor *domain.Principal, id string) (domain.Task, error) {
	p, err := principal(actor)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.loadTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := policy.AuthorizeRead(p, t); err != nil {
		return domain.Task{}, e.denied("read", p, id, err)
	}
	return t, nil
}

// UpdateTask applies patch after narrowing it to the fields the caller may
// write. Fields outside that set are dropped silently. On any error the
// stored task is unchanged.
func (e Engine) UpdateTask(ctx context.Context, actor *domain.Principal, id string, patch domain.TaskPatch) (domain.Task, error) {
	p, err := principal(actor)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.loadTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	allowed, err := policy.AuthorizeUpdate(p, t, patch)
	if err != nil {
		return domain.Task{}, e.denied("update", p, id, err)
	}
	allowed, err = e.normalizePatch(ctx, allowed)
	if err != nil {
		return domain.Task{}, err
	}
	if allowed.Fields().Empty() {
		return t, nil
	}
	updated := allowed.Apply(t)
	updated.UpdatedAt = e.now()
	if err := e.Repo.UpdateTask(ctx, nil, updated); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, auth.NotFoundError{Entity: "task", ID: id}
		}
		return domain.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	e.logger().WithFields(log.Fields{"task_id": id, "user_id": p.ID, "fields": allowed.Fields().String()}).Info("task updated")
	return updated, nil
}

// normalizePatch trims values and treats blank ones as not sent.
func (e Engine) normalizePatch(ctx context.Context, patch domain.TaskPatch) (domain.TaskPatch, error) {
	patch.Title = nonBlank(patch.Title)
	patch.Description = nonBlank(patch.Description)
	patch.AssignedTo = nonBlank(patch.AssignedTo)
	if patch.Status != nil {
		raw := strings.TrimSpace(string(*patch.Status))
		if raw == "" {
			patch.Status = nil
		} else {
			s, ok := domain.ParseStatus(raw)
			if !ok {
				return patch, auth.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", raw)}
			}
			patch.Status = &s
		}
	}
	if patch.AssignedTo != nil {
		if err := e.requireAssignee(ctx, *patch.AssignedTo); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

func nonBlank(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// DeleteTask removes a task permanently.
func (e Engine) DeleteTask(ctx context.Context, actor *domain.Principal, id string) error {
	p, err := principal(actor)
	if err != nil {
		return err
	}
	t, err := e.loadTask(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.AuthorizeDelete(p, t); err != nil {
		return e.denied("delete", p, id, err)
	}
	if err := e.Repo.DeleteTask(ctx, nil, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.NotFoundError{Entity: "task", ID: id}
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	e.logger().WithFields(log.Fields{"task_id": id, "user_id": p.ID}).Info("task deleted")
	return nil
}
