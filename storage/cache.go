package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/domain"
)

// Cache wraps a Store with Redis-backed caching for list reads. Writes go
// to the base store and evict the lists they touch.
type Cache struct {
	base  board.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base board.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func orgsCacheKey() string { return "orgs" }

func projectsCacheKey(orgID string) string { return "projects:" + orgID }

func tasksCacheKey(projectID string) string { return "tasks:" + projectID }

func load[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	if c.redis == nil {
		return v, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return v, false
	}
	if err := sonic.Unmarshal(data, &v); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return v, false
	}
	return v, true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil || len(keys) == 0 {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func (c *Cache) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	if orgs, ok := load[[]domain.Organization](ctx, c, orgsCacheKey()); ok {
		return orgs, nil
	}
	orgs, err := c.base.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, orgsCacheKey(), orgs)
	return orgs, nil
}

func (c *Cache) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	return c.base.GetOrganization(ctx, id)
}

func (c *Cache) CreateOrganization(ctx context.Context, o domain.Organization) (domain.Organization, error) {
	created, err := c.base.CreateOrganization(ctx, o)
	if err != nil {
		return domain.Organization{}, err
	}
	c.evict(ctx, orgsCacheKey())
	return created, nil
}

func (c *Cache) PatchOrganization(ctx context.Context, id string, p domain.OrgPatch) (domain.Organization, error) {
	updated, err := c.base.PatchOrganization(ctx, id, p)
	if err != nil {
		return domain.Organization{}, err
	}
	c.evict(ctx, orgsCacheKey())
	return updated, nil
}

// DeleteOrganization evicts the organization list, its project list and the
// task list of every project it held.
func (c *Cache) DeleteOrganization(ctx context.Context, id string) error {
	projects, err := c.base.ListProjects(ctx, id)
	if err != nil {
		return err
	}
	if err := c.base.DeleteOrganization(ctx, id); err != nil {
		return err
	}
	keys := []string{orgsCacheKey(), projectsCacheKey(id)}
	for _, p := range projects {
		keys = append(keys, tasksCacheKey(p.ID))
	}
	c.evict(ctx, keys...)
	return nil
}

func (c *Cache) ListProjects(ctx context.Context, orgID string) ([]domain.Project, error) {
	if projects, ok := load[[]domain.Project](ctx, c, projectsCacheKey(orgID)); ok {
		return projects, nil
	}
	projects, err := c.base.ListProjects(ctx, orgID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, projectsCacheKey(orgID), projects)
	return projects, nil
}

func (c *Cache) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return c.base.GetProject(ctx, id)
}

func (c *Cache) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	created, err := c.base.CreateProject(ctx, p)
	if err != nil {
		return domain.Project{}, err
	}
	c.evict(ctx, projectsCacheKey(created.OrgID))
	return created, nil
}

func (c *Cache) PatchProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error) {
	updated, err := c.base.PatchProject(ctx, id, p)
	if err != nil {
		return domain.Project{}, err
	}
	c.evict(ctx, projectsCacheKey(updated.OrgID))
	return updated, nil
}

func (c *Cache) DeleteProject(ctx context.Context, id string) error {
	p, err := c.base.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := c.base.DeleteProject(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, projectsCacheKey(p.OrgID), tasksCacheKey(id))
	return nil
}

func (c *Cache) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if tasks, ok := load[[]domain.Task](ctx, c, tasksCacheKey(projectID)); ok {
		return tasks, nil
	}
	tasks, err := c.base.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(projectID), tasks)
	return tasks, nil
}

func (c *Cache) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, tasksCacheKey(created.ProjectID))
	return created, nil
}

// PatchTask evicts the task's list, and when the patch moves the task, the
// list it left as well.
func (c *Cache) PatchTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	var from string
	if p.ProjectID != nil {
		if cur, err := c.base.GetTask(ctx, id); err == nil {
			from = cur.ProjectID
		}
	}
	updated, err := c.base.PatchTask(ctx, id, p)
	if err != nil {
		return domain.Task{}, err
	}
	keys := []string{tasksCacheKey(updated.ProjectID)}
	if from != "" && from != updated.ProjectID {
		keys = append(keys, tasksCacheKey(from))
	}
	c.evict(ctx, keys...)
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	t, err := c.base.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(t.ProjectID))
	return nil
}
