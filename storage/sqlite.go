package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fareidzulkifli/task-manager/domain"
)

// SQLite is a Store backed by an embedded SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// sqlitePragmas are applied by the driver to every new connection.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

// sqliteDSN appends the connection pragmas to path.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// OpenSQLite opens the database at path. ":memory:" gives a private
// in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Migrate applies pending schema migrations.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	applied := make(map[int]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return fmt.Errorf("query migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate migrations: %w", err)
	}

	ms, err := migrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range ms {
		if applied[m.version] {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (version) VALUES (?)", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (domain.Task, error) {
	var (
		t         domain.Task
		status    string
		due       sql.NullString
		completed sql.NullString
		created   string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Summary, &t.NotesMarkdown, &status, &t.Urgent, &t.Important,
		&due, &t.OrderIndex, &completed, &created); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.Status(status)
	if due.Valid {
		t.DueDate = &due.String
	}
	ts, err := parseTime(completed.String)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s completed at: %w", t.ID, err)
	}
	t.CompletedAt = ts
	if ts, err = parseTime(created); err != nil {
		return domain.Task{}, fmt.Errorf("task %s created at: %w", t.ID, err)
	}
	if ts != nil {
		t.CreatedAt = *ts
	}
	return t, nil
}

func scanSQLiteProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.OrderIndex, &p.Goal, &p.Description, &p.Focus, &p.AIInstructions)
	return p, err
}

func scanSQLiteOrg(row rowScanner) (domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.Name, &o.OrderIndex)
	return o, err
}

func sqliteErr(op, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func queryAll[T any](ctx context.Context, db *sql.DB, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// sqliteValue converts timestamps to their stored text form.
func sqliteValue(v any) any {
	if t, ok := v.(*time.Time); ok {
		if t == nil {
			return nil
		}
		return formatTime(t)
	}
	return v
}

func (s *SQLite) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	orgs, err := queryAll(ctx, s.db, scanSQLiteOrg, `SELECT `+orgColumns+` FROM organizations ORDER BY order_index, id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return orgs, nil
}

func (s *SQLite) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	o, err := scanSQLiteOrg(s.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id))
	if err != nil {
		return domain.Organization{}, sqliteErr("get organization", id, err)
	}
	return o, nil
}

// CreateOrganization inserts an organization.
func (s *SQLite) CreateOrganization(ctx context.Context, o domain.Organization) (domain.Organization, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO organizations (`+orgColumns+`) VALUES (?, ?, ?)`, o.ID, o.Name, o.OrderIndex); err != nil {
		return domain.Organization{}, fmt.Errorf("create organization: %w", err)
	}
	return o, nil
}

func (s *SQLite) PatchOrganization(ctx context.Context, id string, p domain.OrgPatch) (domain.Organization, error) {
	if set := orgAssignments(p); len(set) > 0 {
		q, args := updateStatement("organizations", set, id, question)
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return domain.Organization{}, fmt.Errorf("patch organization %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Organization{}, fmt.Errorf("patch organization %s: %w", id, domain.ErrNotFound)
		}
	}
	return s.GetOrganization(ctx, id)
}

// DeleteOrganization removes the organization; its projects and their tasks
// go with it.
func (s *SQLite) DeleteOrganization(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "organizations", "delete organization", id)
}

func (s *SQLite) ListProjects(ctx context.Context, orgID string) ([]domain.Project, error) {
	projects, err := queryAll(ctx, s.db, scanSQLiteProject, `SELECT `+projectColumns+` FROM projects WHERE org_id = ? ORDER BY order_index, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *SQLite) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanSQLiteProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil {
		return domain.Project{}, sqliteErr("get project", id, err)
	}
	return p, nil
}

func (s *SQLite) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrgID, p.Name, p.OrderIndex, p.Goal, p.Description, p.Focus, p.AIInstructions)
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *SQLite) PatchProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error) {
	if set := projectAssignments(p); len(set) > 0 {
		q, args := updateStatement("projects", set, id, question)
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return domain.Project{}, fmt.Errorf("patch project %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Project{}, fmt.Errorf("patch project %s: %w", id, domain.ErrNotFound)
		}
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes the project; its tasks go with it.
func (s *SQLite) DeleteProject(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "projects", "delete project", id)
}

func (s *SQLite) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	tasks, err := queryAll(ctx, s.db, scanSQLiteTask, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY order_index, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *SQLite) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanSQLiteTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return domain.Task{}, sqliteErr("get task", id, err)
	}
	return t, nil
}

func (s *SQLite) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Summary, t.NotesMarkdown, string(t.Status), t.Urgent, t.Important,
		t.DueDate, t.OrderIndex, sqliteValue(t.CompletedAt), formatTime(&t.CreatedAt))
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return s.GetTask(ctx, t.ID)
}

func (s *SQLite) PatchTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	if set := taskAssignments(p, s.now()); len(set) > 0 {
		for i := range set {
			set[i].value = sqliteValue(set[i].value)
		}
		q, args := updateStatement("tasks", set, id, question)
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return domain.Task{}, fmt.Errorf("patch task %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Task{}, fmt.Errorf("patch task %s: %w", id, domain.ErrNotFound)
		}
	}
	return s.GetTask(ctx, id)
}

func (s *SQLite) DeleteTask(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "tasks", "delete task", id)
}

func (s *SQLite) deleteByID(ctx context.Context, table, op, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrNotFound)
	}
	return nil
}
