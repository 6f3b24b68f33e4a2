package board

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/fareidzulkifli/task-manager/domain"
)

type patchCall struct {
	entity  string
	id      string
	task    domain.TaskPatch
	project domain.ProjectPatch
}

// recordingPersister captures scheduled patches synchronously.
type recordingPersister struct {
	mu    sync.Mutex
	calls []patchCall
}

func (r *recordingPersister) PatchTask(id string, p domain.TaskPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, patchCall{entity: domain.EntityTask, id: id, task: p})
}

func (r *recordingPersister) PatchProject(id string, p domain.ProjectPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, patchCall{entity: domain.EntityProject, id: id, project: p})
}

func (r *recordingPersister) snapshot() []patchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]patchCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu       sync.Mutex
	orgs     map[string]domain.Organization
	projects map[string]domain.Project
	tasks    map[string]domain.Task
	patchErr error
	patches  int
	orgReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:     map[string]domain.Organization{},
		projects: map[string]domain.Project{},
		tasks:    map[string]domain.Task{},
	}
}

func (f *fakeStore) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Organization
	for _, o := range f.orgs {
		out = append(out, o)
	}
	return domain.SortOrganizations(out), nil
}

func (f *fakeStore) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgReads++
	o, ok := f.orgs[id]
	if !ok {
		return domain.Organization{}, fmt.Errorf("organization %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (f *fakeStore) CreateOrganization(ctx context.Context, o domain.Organization) (domain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orgs[o.ID] = o
	return o, nil
}

func (f *fakeStore) PatchOrganization(ctx context.Context, id string, p domain.OrgPatch) (domain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return domain.Organization{}, domain.ErrNotFound
	}
	p.Apply(&o)
	f.orgs[id] = o
	return o, nil
}

func (f *fakeStore) DeleteOrganization(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.orgs, id)
	for pid, p := range f.projects {
		if p.OrgID != id {
			continue
		}
		delete(f.projects, pid)
		for tid, t := range f.tasks {
			if t.ProjectID == pid {
				delete(f.tasks, tid)
			}
		}
	}
	return nil
}

func (f *fakeStore) ListProjects(ctx context.Context, orgID string) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Project
	for _, p := range f.projects {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	return domain.SortProjects(out), nil
}

func (f *fakeStore) GetProject(ctx context.Context, id string) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeStore) PatchProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches++
	if f.patchErr != nil {
		return domain.Project{}, f.patchErr
	}
	cur, ok := f.projects[id]
	if !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	p.Apply(&cur)
	f.projects[id] = cur
	return cur, nil
}

func (f *fakeStore) DeleteProject(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, t := range f.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return sortByOrder(out), nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeStore) PatchTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches++
	if f.patchErr != nil {
		return domain.Task{}, f.patchErr
	}
	cur, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	p.Apply(&cur, cur.CreatedAt)
	f.tasks[id] = cur
	return cur, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patches
}

func sortByOrder(tasks []domain.Task) []domain.Task {
	out := slices.Clone(tasks)
	slices.SortFunc(out, func(a, b domain.Task) int {
		if c := cmp.Compare(a.OrderIndex, b.OrderIndex); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// newBoard builds org o1 with projects in the given order; tasks are
// specified per project as ids, all In Progress, indexed densely.
func newBoard(layout map[string][]string, projectOrder ...string) *State {
	org := domain.Organization{ID: "o1", Name: "Org"}
	var projects []domain.Project
	var tasks []domain.Task
	for i, pid := range projectOrder {
		projects = append(projects, domain.Project{ID: pid, OrgID: "o1", Name: pid, OrderIndex: i})
		for j, tid := range layout[pid] {
			tasks = append(tasks, domain.Task{ID: tid, ProjectID: pid, Summary: tid, Status: domain.StatusInProgress, OrderIndex: j})
		}
	}
	return NewState(org, projects, tasks)
}

func orderOf(s *State, projectID string) map[string]int {
	out := map[string]int{}
	for _, t := range s.TasksByProject(projectID) {
		out[t.ID] = t.OrderIndex
	}
	return out
}
