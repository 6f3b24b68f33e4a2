package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fareidzulkifli/task-manager/domain"
)

// Postgres is a Store backed by PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres connects a pool to databaseURL.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool, now: time.Now}, nil
}

// Close releases the pool.
func (s *Postgres) Close() { s.pool.Close() }

// Migrate applies pending schema migrations.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	ms, err := migrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range ms {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM _migrations WHERE version = $1)`, m.version).Scan(&exists); err != nil {
			return fmt.Errorf("query migrations: %w", err)
		}
		if exists {
			continue
		}
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO _migrations (version) VALUES ($1)`, m.version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func scanPgOrg(row pgx.Row) (domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.Name, &o.OrderIndex)
	return o, err
}

func scanPgProject(row pgx.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.OrderIndex, &p.Goal, &p.Description, &p.Focus, &p.AIInstructions)
	return p, err
}

func scanPgTask(row pgx.Row) (domain.Task, error) {
	var (
		t      domain.Task
		status string
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.Summary, &t.NotesMarkdown, &status, &t.Urgent, &t.Important,
		&t.DueDate, &t.OrderIndex, &t.CompletedAt, &t.CreatedAt)
	t.Status = domain.Status(status)
	return t, err
}

func pgErr(op, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
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

func (s *Postgres) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY order_index, id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return collect(rows, scanPgOrg)
}

func (s *Postgres) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	o, err := scanPgOrg(s.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		return domain.Organization{}, pgErr("get organization", id, err)
	}
	return o, nil
}

// CreateOrganization inserts an organization.
func (s *Postgres) CreateOrganization(ctx context.Context, o domain.Organization) (domain.Organization, error) {
	if _, err := s.pool.Exec(ctx, `INSERT INTO organizations (`+orgColumns+`) VALUES ($1, $2, $3)`, o.ID, o.Name, o.OrderIndex); err != nil {
		return domain.Organization{}, fmt.Errorf("create organization: %w", err)
	}
	return o, nil
}

func (s *Postgres) PatchOrganization(ctx context.Context, id string, p domain.OrgPatch) (domain.Organization, error) {
	set := orgAssignments(p)
	if len(set) == 0 {
		return s.GetOrganization(ctx, id)
	}
	q, args := updateStatement("organizations", set, id, dollar)
	updated, err := scanPgOrg(s.pool.QueryRow(ctx, q+` RETURNING `+orgColumns, args...))
	if err != nil {
		return domain.Organization{}, pgErr("patch organization", id, err)
	}
	return updated, nil
}

// DeleteOrganization removes the organization; its projects and their tasks
// go with it.
func (s *Postgres) DeleteOrganization(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete organization %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Postgres) ListProjects(ctx context.Context, orgID string) ([]domain.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects WHERE org_id = $1 ORDER BY order_index, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return collect(rows, scanPgProject)
}

func (s *Postgres) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanPgProject(s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return domain.Project{}, pgErr("get project", id, err)
	}
	return p, nil
}

func (s *Postgres) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+projectColumns,
		p.ID, p.OrgID, p.Name, p.OrderIndex, p.Goal, p.Description, p.Focus, p.AIInstructions)
	created, err := scanPgProject(row)
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return created, nil
}

func (s *Postgres) PatchProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error) {
	set := projectAssignments(p)
	if len(set) == 0 {
		return s.GetProject(ctx, id)
	}
	q, args := updateStatement("projects", set, id, dollar)
	updated, err := scanPgProject(s.pool.QueryRow(ctx, q+` RETURNING `+projectColumns, args...))
	if err != nil {
		return domain.Project{}, pgErr("patch project", id, err)
	}
	return updated, nil
}

// DeleteProject removes the project; its tasks go with it.
func (s *Postgres) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete project %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Postgres) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 ORDER BY order_index, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collect(rows, scanPgTask)
}

func (s *Postgres) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanPgTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return domain.Task{}, pgErr("get task", id, err)
	}
	return t, nil
}

func (s *Postgres) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING `+taskColumns,
		t.ID, t.ProjectID, t.Summary, t.NotesMarkdown, string(t.Status), t.Urgent, t.Important,
		t.DueDate, t.OrderIndex, t.CompletedAt, t.CreatedAt)
	created, err := scanPgTask(row)
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

func (s *Postgres) PatchTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	set := taskAssignments(p, s.now())
	if len(set) == 0 {
		return s.GetTask(ctx, id)
	}
	q, args := updateStatement("tasks", set, id, dollar)
	updated, err := scanPgTask(s.pool.QueryRow(ctx, q+` RETURNING `+taskColumns, args...))
	if err != nil {
		return domain.Task{}, pgErr("patch task", id, err)
	}
	return updated, nil
}

func (s *Postgres) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
