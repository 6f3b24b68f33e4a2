package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/domain"
)

// countingStore counts list reads that reach the base store.
type countingStore struct {
	board.Store
	mu       sync.Mutex
	tasks    int
	projects int
}

func (c *countingStore) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	c.mu.Lock()
	c.tasks++
	c.mu.Unlock()
	return c.Store.ListTasks(ctx, projectID)
}

func (c *countingStore) ListProjects(ctx context.Context, orgID string) ([]domain.Project, error) {
	c.mu.Lock()
	c.projects++
	c.mu.Unlock()
	return c.Store.ListProjects(ctx, orgID)
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	base := &countingStore{Store: newTestSQLite(t)}
	seed(t, base)
	return NewCache(base, client, ttl), base, mr
}

func TestCacheListTasksMissThenHit(t *testing.T) {
	cache, base, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	first, err := cache.ListTasks(ctx, "A")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := cache.ListTasks(ctx, "A")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if base.tasks != 1 {
		t.Fatalf("expected 1 call to backend, got %d", base.tasks)
	}
	if len(first) != 3 || len(second) != 3 || second[2].ID != first[2].ID {
		t.Fatalf("cached list differs: %v vs %v", domain.TaskIDs(first), domain.TaskIDs(second))
	}
	if second[2].DueDate == nil || *second[2].DueDate != "2024-06-01" {
		t.Fatalf("due date lost in cache: %#v", second[2])
	}
	if ttl := mr.TTL(tasksCacheKey("A")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCachePatchTaskEvictsBothColumnsOnMove(t *testing.T) {
	cache, base, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	for _, pid := range []string{"A", "B"} {
		if _, err := cache.ListTasks(ctx, pid); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if _, err := cache.PatchTask(ctx, "a1", domain.MovePatch("B", 1)); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if mr.Exists(tasksCacheKey("A")) || mr.Exists(tasksCacheKey("B")) {
		t.Fatalf("expected both task lists evicted")
	}

	b, err := cache.ListTasks(ctx, "B")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(b) != 2 || base.tasks != 3 {
		t.Fatalf("expected fresh read of B, got %v after %d reads", domain.TaskIDs(b), base.tasks)
	}
}

func TestCachePatchProjectEvictsProjects(t *testing.T) {
	cache, base, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if _, err := cache.ListProjects(ctx, "o1"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := cache.PatchProject(ctx, "B", domain.ProjectOrderPatch(0)); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if mr.Exists(projectsCacheKey("o1")) {
		t.Fatalf("expected project list evicted")
	}
	if _, err := cache.ListProjects(ctx, "o1"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if base.projects != 2 {
		t.Fatalf("expected 2 backend reads, got %d", base.projects)
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	cache, base, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := mr.Set(tasksCacheKey("A"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tasks, err := cache.ListTasks(ctx, "A")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 3 || base.tasks != 1 {
		t.Fatalf("expected backend fallback, got %d tasks after %d reads", len(tasks), base.tasks)
	}
}

func TestCacheZeroTTLDisablesStore(t *testing.T) {
	cache, base, mr := newTestCache(t, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.ListTasks(ctx, "A"); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if base.tasks != 2 {
		t.Fatalf("expected every read to hit backend, got %d", base.tasks)
	}
	if mr.Exists(tasksCacheKey("A")) {
		t.Fatalf("unexpected cache entry")
	}
}

func TestCacheDeleteTaskEvicts(t *testing.T) {
	cache, _, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if _, err := cache.ListTasks(ctx, "A"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := cache.DeleteTask(ctx, "a2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(tasksCacheKey("A")) {
		t.Fatalf("expected task list evicted")
	}
}

func TestCacheDeleteOrganizationEvicts(t *testing.T) {
	cache, _, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if _, err := cache.ListOrganizations(ctx); err != nil {
		t.Fatalf("list orgs: %v", err)
	}
	if _, err := cache.ListProjects(ctx, "o1"); err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if _, err := cache.ListTasks(ctx, "A"); err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if err := cache.DeleteOrganization(ctx, "o1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, key := range []string{orgsCacheKey(), projectsCacheKey("o1"), tasksCacheKey("A")} {
		if mr.Exists(key) {
			t.Fatalf("expected %s evicted", key)
		}
	}
	orgs, err := cache.ListOrganizations(ctx)
	if err != nil || len(orgs) != 0 {
		t.Fatalf("expected no organizations, got %v (%v)", orgs, err)
	}
}

func TestCachePatchOrganizationEvicts(t *testing.T) {
	cache, _, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if _, err := cache.ListOrganizations(ctx); err != nil {
		t.Fatalf("list orgs: %v", err)
	}
	name := "Renamed"
	if _, err := cache.PatchOrganization(ctx, "o1", domain.OrgPatch{Name: &name}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if mr.Exists(orgsCacheKey()) {
		t.Fatalf("expected org list evicted")
	}
	orgs, err := cache.ListOrganizations(ctx)
	if err != nil || len(orgs) != 1 || orgs[0].Name != name {
		t.Fatalf("unexpected orgs %v (%v)", orgs, err)
	}
}
