package board

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fareidzulkifli/task-manager/domain"
)

// maxLoadFanout bounds concurrent task listings during a load.
const maxLoadFanout = 8

// Load fetches an organization with its projects and their tasks and builds
// a fresh State. It is also how local drift from the remote store is
// resolved: callers replace their State with the reloaded one.
func Load(ctx context.Context, st Loader, orgID string) (*State, error) {
	var (
		org      domain.Organization
		projects []domain.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := st.GetOrganization(gctx, orgID)
		if err != nil {
			return fmt.Errorf("get organization %s: %w", orgID, err)
		}
		org = o
		return nil
	})
	g.Go(func() error {
		ps, err := st.ListProjects(gctx, orgID)
		if err != nil {
			return fmt.Errorf("list projects of %s: %w", orgID, err)
		}
		projects = ps
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		tasks []domain.Task
	)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(maxLoadFanout)
	for _, p := range projects {
		g.Go(func() error {
			ts, err := st.ListTasks(gctx, p.ID)
			if err != nil {
				return fmt.Errorf("list tasks of %s: %w", p.ID, err)
			}
			mu.Lock()
			tasks = append(tasks, ts...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewState(org, projects, tasks), nil
}
