package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/domain"
)

// AlertSource publishes persistence failures.
type AlertSource interface {
	Alerts(buffer int) *board.Subscription[*domain.PersistenceError]
}

// Server serves the board over HTTP.
type Server struct {
	registry *board.Registry
	alerts   AlertSource
	auth     Authenticator
	log      *log.Logger
	newID    func() string
	now      func() time.Time
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, registry *board.Registry, alerts AlertSource, auth Authenticator, logger *log.Logger) *Server {
	s := &Server{registry: registry, alerts: alerts, auth: auth, log: logger, newID: uuid.NewString, now: time.Now}

	e.GET("/healthz", s.healthz)
	e.GET("/api/nav", s.authed("/api/nav", s.getNav))
	e.GET("/api/dashboard", s.authed("/api/dashboard", s.getDashboard))
	e.POST("/api/orgs", s.authed("/api/orgs", s.postOrganization))
	e.GET("/api/orgs/:id", s.authed("/api/orgs/:id", s.getOrganization))
	e.PATCH("/api/orgs/:id", s.authed("/api/orgs/:id", s.patchOrganization))
	e.DELETE("/api/orgs/:id", s.authed("/api/orgs/:id", s.deleteOrganization))
	e.GET("/api/orgs/:id/board", s.authed("/api/orgs/:id/board", s.getBoard))
	e.POST("/api/orgs/:id/drag", s.authed("/api/orgs/:id/drag", s.postDrag))
	e.POST("/api/orgs/:id/keyboard", s.authed("/api/orgs/:id/keyboard", s.postKeyboard))
	e.POST("/api/orgs/:id/reload", s.authed("/api/orgs/:id/reload", s.postReload))
	e.GET("/api/orgs/:id/stream", s.streamChanges)
	e.GET("/api/orgs/:id/alerts", s.streamAlerts)
	e.POST("/api/projects", s.authed("/api/projects", s.postProject))
	e.GET("/api/projects/:id", s.authed("/api/projects/:id", s.getProject))
	e.PATCH("/api/projects/:id", s.authed("/api/projects/:id", s.patchProject))
	e.DELETE("/api/projects/:id", s.authed("/api/projects/:id", s.deleteProject))
	e.POST("/api/projects/:id/optimize", s.authed("/api/projects/:id/optimize", s.postOptimize))
	e.POST("/api/tasks", s.authed("/api/tasks", s.postTask))
	e.GET("/api/tasks/:id", s.authed("/api/tasks/:id", s.getTask))
	e.PATCH("/api/tasks/:id", s.authed("/api/tasks/:id", s.patchTask))
	e.POST("/api/tasks/:id/restore", s.authed("/api/tasks/:id/restore", s.postRestore))
	e.DELETE("/api/tasks/:id", s.authed("/api/tasks/:id", s.deleteTask))
	return s
}

type handlerFunc func(c echo.Context, m *requestMetrics) error

// authed authenticates the request and logs one metrics entry for it.
func (s *Server) authed(route string, h handlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := newRequestMetrics(s.log, route)
		defer func() {
			m.Log(c.Response().Status, m.err)
		}()
		authStart := time.Now()
		_, authErr := s.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		m.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			m.SetErrorStage("auth")
			m.err = authErr
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
		}
		return h(c, m)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, board.ErrSessionClosed), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c echo.Context, m *requestMetrics, stage string, err error) error {
	m.SetErrorStage(stage)
	m.err = err
	return c.JSON(statusOf(err), errorResponse{Error: err.Error()})
}

func (s *Server) badRequest(c echo.Context, m *requestMetrics, msg string) error {
	m.SetErrorStage("invalid_request")
	m.err = errors.New(msg)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func decode(c echo.Context, v any) error {
	return sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(v)
}

// do runs fn on the board session of orgID.
func (s *Server) do(c echo.Context, m *requestMetrics, orgID string, fn func(co *board.Coordinator) error) error {
	ctx := c.Request().Context()
	start := time.Now()
	defer func() { m.ObserveBoard(time.Since(start)) }()
	session, err := s.registry.Session(ctx, orgID)
	if err != nil {
		return err
	}
	return session.Do(ctx, fn)
}

func (s *Server) orgOfProject(ctx context.Context, projectID string) (string, error) {
	p, err := s.registry.Store().GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	return p.OrgID, nil
}

func (s *Server) orgOfTask(ctx context.Context, taskID string) (string, error) {
	t, err := s.registry.Store().GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	return s.orgOfProject(ctx, t.ProjectID)
}

func (s *Server) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func snapshot(st *board.State) boardResponse {
	resp := boardResponse{Organization: st.Organization(), Columns: []column{}}
	for _, p := range st.Projects() {
		resp.Columns = append(resp.Columns, column{Project: p, Tasks: st.TasksByProject(p.ID)})
	}
	return resp
}

func (s *Server) getBoard(c echo.Context, m *requestMetrics) error {
	var resp boardResponse
	err := s.do(c, m, c.Param("id"), func(co *board.Coordinator) error {
		resp = snapshot(co.State())
		return nil
	})
	if err != nil {
		return s.fail(c, m, "board", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) respondOutcome(c echo.Context, m *requestMetrics, out board.Outcome, err error) error {
	var cf *domain.ClassificationFailure
	if errors.As(err, &cf) {
		// Unresolvable drops behave like a cancelled drag.
		s.log.WithFields(log.Fields{"active": cf.ActiveID, "over": cf.OverID}).Debug("drop ignored")
		return c.JSON(http.StatusOK, outcomeResponse{Intent: board.IntentNone})
	}
	if err != nil {
		return s.fail(c, m, "board", err)
	}
	m.SetPatches(out.Patches)
	return c.JSON(http.StatusOK, outcomeResponse{Intent: out.Intent, Patches: out.Patches})
}

func (s *Server) postDrag(c echo.Context, m *requestMetrics) error {
	var ev board.DragEvent
	if err := decode(c, &ev); err != nil || ev.ActiveID == "" {
		return s.badRequest(c, m, "invalid drag event")
	}
	var out board.Outcome
	err := s.do(c, m, c.Param("id"), func(co *board.Coordinator) error {
		var err error
		out, err = co.Drop(ev)
		return err
	})
	return s.respondOutcome(c, m, out, err)
}

func validKey(k board.Key) bool {
	switch k {
	case board.KeyUp, board.KeyDown, board.KeyLeft, board.KeyRight:
		return true
	}
	return false
}

func (s *Server) postKeyboard(c echo.Context, m *requestMetrics) error {
	var req keyboardRequest
	if err := decode(c, &req); err != nil || req.ActiveID == "" || !validKey(req.Key) {
		return s.badRequest(c, m, "invalid keyboard event")
	}
	var out board.Outcome
	err := s.do(c, m, c.Param("id"), func(co *board.Coordinator) error {
		var err error
		out, err = board.NewKeyboardAdapter(co).Press(req.ActiveID, req.Key)
		return err
	})
	return s.respondOutcome(c, m, out, err)
}

func (s *Server) postReload(c echo.Context, m *requestMetrics) error {
	if err := s.registry.Reload(c.Request().Context(), c.Param("id")); err != nil {
		return s.fail(c, m, "reload", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) postOptimize(c echo.Context, m *requestMetrics) error {
	pid := c.Param("id")
	orgID, err := s.orgOfProject(c.Request().Context(), pid)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	var out board.Outcome
	err = s.do(c, m, orgID, func(co *board.Coordinator) error {
		var err error
		out, err = co.Optimize(pid)
		return err
	})
	return s.respondOutcome(c, m, out, err)
}

func (s *Server) updateTask(c echo.Context, m *requestMetrics, id string, apply func(co *board.Coordinator) error) error {
	orgID, err := s.orgOfTask(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	var updated domain.Task
	err = s.do(c, m, orgID, func(co *board.Coordinator) error {
		if err := apply(co); err != nil {
			return err
		}
		updated, _ = co.State().Task(id)
		return nil
	})
	if err != nil {
		return s.fail(c, m, "board", err)
	}
	m.SetPatches(1)
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) patchTask(c echo.Context, m *requestMetrics) error {
	var p domain.TaskPatch
	if err := decode(c, &p); err != nil {
		return s.badRequest(c, m, "invalid task patch")
	}
	if p.Empty() {
		return s.badRequest(c, m, "empty task patch")
	}
	id := c.Param("id")
	return s.updateTask(c, m, id, func(co *board.Coordinator) error { return co.UpdateTask(id, p) })
}

func (s *Server) postRestore(c echo.Context, m *requestMetrics) error {
	id := c.Param("id")
	return s.updateTask(c, m, id, func(co *board.Coordinator) error { return co.RestoreTask(id) })
}

func (s *Server) postOrganization(c echo.Context, m *requestMetrics) error {
	var req createOrganizationRequest
	if err := decode(c, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		return s.badRequest(c, m, "organization name is required")
	}
	ctx := c.Request().Context()
	orgs, err := s.registry.Store().ListOrganizations(ctx)
	if err != nil {
		return s.fail(c, m, "list", err)
	}
	created, err := s.registry.Store().CreateOrganization(ctx, domain.Organization{ID: s.newID(), Name: req.Name, OrderIndex: len(orgs)})
	if err != nil {
		return s.fail(c, m, "create", err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) postProject(c echo.Context, m *requestMetrics) error {
	var req createProjectRequest
	if err := decode(c, &req); err != nil || req.OrgID == "" || strings.TrimSpace(req.Name) == "" {
		return s.badRequest(c, m, "org_id and name are required")
	}
	ctx := c.Request().Context()
	var created domain.Project
	err := s.do(c, m, req.OrgID, func(co *board.Coordinator) error {
		p := domain.Project{
			ID:             s.newID(),
			OrgID:          req.OrgID,
			Name:           req.Name,
			OrderIndex:     co.State().NextProjectIndex(),
			Goal:           req.Goal,
			Description:    req.Description,
			Focus:          req.Focus,
			AIInstructions: req.AIInstructions,
		}
		var err error
		if created, err = s.registry.Store().CreateProject(ctx, p); err != nil {
			return err
		}
		return co.State().AddProject(created)
	})
	if err != nil {
		return s.fail(c, m, "create", err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) postTask(c echo.Context, m *requestMetrics) error {
	var req createTaskRequest
	if err := decode(c, &req); err != nil || req.ProjectID == "" || strings.TrimSpace(req.Summary) == "" {
		return s.badRequest(c, m, "project_id and summary are required")
	}
	if req.Status == "" {
		req.Status = domain.StatusInProgress
	}
	check := domain.TaskPatch{Status: &req.Status, DueDate: req.DueDate}
	if err := check.Validate(); err != nil {
		return s.fail(c, m, "invalid_request", err)
	}
	ctx := c.Request().Context()
	orgID, err := s.orgOfProject(ctx, req.ProjectID)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	var created domain.Task
	err = s.do(c, m, orgID, func(co *board.Coordinator) error {
		t := domain.Task{
			ID:            s.newID(),
			ProjectID:     req.ProjectID,
			Summary:       req.Summary,
			NotesMarkdown: req.NotesMarkdown,
			Status:        req.Status,
			Urgent:        req.Urgent,
			Important:     req.Important,
			OrderIndex:    co.State().NextTaskIndex(req.ProjectID),
			CreatedAt:     s.now().UTC(),
		}
		if req.DueDate != nil && *req.DueDate != "" {
			t.DueDate = req.DueDate
		}
		if t.Done() {
			t.CompletedAt = &t.CreatedAt
		}
		var err error
		if created, err = s.registry.Store().CreateTask(ctx, t); err != nil {
			return err
		}
		return co.State().AddTask(created)
	})
	if err != nil {
		return s.fail(c, m, "create", err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) deleteTask(c echo.Context, m *requestMetrics) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	orgID, err := s.orgOfTask(ctx, id)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	if err := s.registry.Store().DeleteTask(ctx, id); err != nil {
		return s.fail(c, m, "delete", err)
	}
	if session, ok := s.registry.Loaded(orgID); ok {
		err := session.Do(ctx, func(co *board.Coordinator) error {
			if co.State().IsTask(id) {
				return co.State().RemoveTask(id)
			}
			return nil
		})
		if err != nil {
			s.log.WithError(err).WithFields(log.Fields{"org": orgID, "task": id}).Warn("open board kept deleted task")
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteProject(c echo.Context, m *requestMetrics) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	orgID, err := s.orgOfProject(ctx, id)
	if err != nil {
		return s.fail(c, m, "lookup", err)
	}
	if err := s.registry.Store().DeleteProject(ctx, id); err != nil {
		return s.fail(c, m, "delete", err)
	}
	if session, ok := s.registry.Loaded(orgID); ok {
		err := session.Do(ctx, func(co *board.Coordinator) error {
			if co.State().IsProject(id) {
				return co.State().RemoveProject(id)
			}
			return nil
		})
		if err != nil {
			s.log.WithError(err).WithFields(log.Fields{"org": orgID, "project": id}).Warn("open board kept deleted project")
		}
	}
	return c.NoContent(http.StatusNoContent)
}
