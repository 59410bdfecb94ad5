package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"teamtask/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) q(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

const taskColumns = `id,title,description,assigned_to,created_by,status,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var status string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.AssignedTo, &t.CreatedBy, &status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	t.Status = domain.Status(status)
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, t.AssignedTo, t.CreatedBy, string(t.Status), t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTask writes every mutable column. created_by is never written.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET title=?, description=?, assigned_to=?, status=?, updated_at=? WHERE id=?`,
		t.Title, t.Description, t.AssignedTo, string(t.Status), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

type TaskFilters struct {
	AssignedTo      string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (f TaskFilters) where() (string, []any) {
	var clauses []string
	var args []any
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListTasks returns matching tasks, newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	where, args := f.where()
	query := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountTasksByStatus counts tasks per status; cursor and limit are ignored.
func (r Repo) CountTasksByStatus(ctx context.Context, f TaskFilters) (map[string]int, error) {
	f.CursorCreatedAt, f.CursorID = "", ""
	where, args := f.where()
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
