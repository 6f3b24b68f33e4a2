package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/domain"
)

// Single record reads answer from an open board when there is one, since it
// may hold writes the store has not seen yet.

func (s *Server) getOrganization(c echo.Context, m *requestMetrics) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	o, err := s.registry.Store().GetOrganization(ctx, id)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	if session, ok := s.registry.Loaded(id); ok {
		err := session.Do(ctx, func(co *board.Coordinator) error {
			o = co.State().Organization()
			return nil
		})
		if err != nil {
			return s.fail(c, m, "board", err)
		}
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) patchOrganization(c echo.Context, m *requestMetrics) error {
	var p domain.OrgPatch
	if err := decode(c, &p); err != nil {
		return s.badRequest(c, m, "invalid organization patch")
	}
	if p.Empty() {
		return s.badRequest(c, m, "empty organization patch")
	}
	if err := p.Validate(); err != nil {
		return s.fail(c, m, "invalid_request", err)
	}
	id := c.Param("id")
	ctx := c.Request().Context()
	updated, err := s.registry.Store().PatchOrganization(ctx, id, p)
	if err != nil {
		return s.fail(c, m, "patch", err)
	}
	if session, ok := s.registry.Loaded(id); ok {
		err := session.Do(ctx, func(co *board.Coordinator) error {
			return co.State().PatchOrganization(p)
		})
		if err != nil {
			s.log.WithError(err).WithField("org", id).Warn("open board missed organization patch")
		}
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteOrganization(c echo.Context, m *requestMetrics) error {
	id := c.Param("id")
	if err := s.registry.Store().DeleteOrganization(c.Request().Context(), id); err != nil {
		return s.fail(c, m, "delete", err)
	}
	s.registry.Drop(id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getProject(c echo.Context, m *requestMetrics) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	p, err := s.registry.Store().GetProject(ctx, id)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	if session, ok := s.registry.Loaded(p.OrgID); ok {
		err := session.Do(ctx, func(co *board.Coordinator) error {
			if local, ok := co.State().Project(id); ok {
				p = local
			}
			return nil
		})
		if err != nil {
			return s.fail(c, m, "board", err)
		}
	}
	return c.JSON(http.StatusOK, p)
}

// patchProject updates project settings. Project order changes through drag
// and keyboard moves only.
func (s *Server) patchProject(c echo.Context, m *requestMetrics) error {
	var p domain.ProjectPatch
	if err := decode(c, &p); err != nil {
		return s.badRequest(c, m, "invalid project patch")
	}
	if p.Empty() {
		return s.badRequest(c, m, "empty project patch")
	}
	id := c.Param("id")
	orgID, err := s.orgOfProject(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	var updated domain.Project
	err = s.do(c, m, orgID, func(co *board.Coordinator) error {
		if err := co.UpdateProject(id, p); err != nil {
			return err
		}
		updated, _ = co.State().Project(id)
		return nil
	})
	if err != nil {
		return s.fail(c, m, "board", err)
	}
	m.SetPatches(1)
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) getTask(c echo.Context, m *requestMetrics) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	t, err := s.registry.Store().GetTask(ctx, id)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	orgID, err := s.orgOfProject(ctx, t.ProjectID)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	if session, ok := s.registry.Loaded(orgID); ok {
		err := session.Do(ctx, func(co *board.Coordinator) error {
			if local, ok := co.State().Task(id); ok {
				t = local
			}
			return nil
		})
		if err != nil {
			return s.fail(c, m, "board", err)
		}
	}
	return c.JSON(http.StatusOK, t)
}

// getDashboard lists the most recently worked on projects across every
// organization.
func (s *Server) getDashboard(c echo.Context, m *requestMetrics) error {
	ctx := c.Request().Context()
	orgs, err := s.registry.Store().ListOrganizations(ctx)
	if err != nil {
		return s.fail(c, m, "list", err)
	}
	var projects []domain.Project
	var tasks []domain.Task
	for _, o := range orgs {
		ps, ts, err := s.boardRecords(c, o.ID)
		if err != nil {
			return s.fail(c, m, "dashboard", err)
		}
		projects = append(projects, ps...)
		tasks = append(tasks, ts...)
	}
	return c.JSON(http.StatusOK, domain.RecentProjects(orgs, projects, tasks, domain.RecentProjectsLimit))
}

// boardRecords returns the projects and tasks of orgID, from memory when the
// board is open.
func (s *Server) boardRecords(c echo.Context, orgID string) ([]domain.Project, []domain.Task, error) {
	ctx := c.Request().Context()
	if session, ok := s.registry.Loaded(orgID); ok {
		var projects []domain.Project
		var tasks []domain.Task
		err := session.Do(ctx, func(co *board.Coordinator) error {
			projects = co.State().Projects()
			tasks = co.State().Tasks()
			return nil
		})
		return projects, tasks, err
	}
	store := s.registry.Store()
	projects, err := store.ListProjects(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	var tasks []domain.Task
	for _, p := range projects {
		ts, err := store.ListTasks(ctx, p.ID)
		if err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, ts...)
	}
	return projects, tasks, nil
}
