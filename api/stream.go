package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/fareidzulkifli/task-manager/board"
	"github.com/fareidzulkifli/task-manager/domain"
)

const streamBuffer = 64

// alertResponse is the client view of a failed write.
type alertResponse struct {
	Entity string   `json:"entity"`
	ID     string   `json:"id"`
	Fields []string `json:"fields"`
	Error  string   `json:"error"`
}

// sse writes server-sent events to the response.
type sse struct {
	c       echo.Context
	flusher http.Flusher
}

// startStream authenticates the request and switches the response to an
// event stream. EventSource cannot set headers, so ?token= is accepted too.
func (s *Server) startStream(c echo.Context) (*sse, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if token := c.QueryParam("token"); authHeader == "" && token != "" {
		authHeader = "Bearer " + token
	}
	if _, err := s.auth.UserIDFromAuthHeader(authHeader); err != nil {
		return nil, c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
	}
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, c.String(http.StatusInternalServerError, "stream unsupported")
	}
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	return &sse{c: c, flusher: flusher}, nil
}

func (w *sse) send(event string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	res := w.c.Response()
	for _, chunk := range [][]byte{[]byte("event: " + event + "\ndata: "), data, []byte("\n\n")} {
		if _, err := res.Write(chunk); err != nil {
			return err
		}
	}
	w.flusher.Flush()
	return nil
}

// streamChanges forwards the board's change notifications.
func (s *Server) streamChanges(c echo.Context) error {
	ctx := c.Request().Context()
	orgID := c.Param("id")
	session, err := s.registry.Session(ctx, orgID)
	if err != nil {
		return c.JSON(statusOf(err), errorResponse{Error: err.Error()})
	}
	w, err := s.startStream(c)
	if w == nil {
		return err
	}
	sub, err := session.Subscribe(ctx, streamBuffer)
	if err != nil {
		return err
	}
	defer sub.Close()
	if err := w.send("ready", board.Change{OrgID: orgID}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := w.send("change", ch); err != nil {
				s.log.WithError(err).WithField("org", orgID).Debug("stream closed")
				return nil
			}
		}
	}
}

// streamAlerts forwards persistence failures of records on the board.
func (s *Server) streamAlerts(c echo.Context) error {
	ctx := c.Request().Context()
	orgID := c.Param("id")
	session, err := s.registry.Session(ctx, orgID)
	if err != nil {
		return c.JSON(statusOf(err), errorResponse{Error: err.Error()})
	}
	w, err := s.startStream(c)
	if w == nil {
		return err
	}
	sub := s.alerts.Alerts(streamBuffer)
	defer sub.Close()
	if err := w.send("ready", alertResponse{}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case pe, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !onBoard(c, session, pe) {
				continue
			}
			if err := w.send("alert", newAlertResponse(pe)); err != nil {
				s.log.WithError(err).WithField("org", orgID).Debug("alert stream closed")
				return nil
			}
		}
	}
}

func newAlertResponse(pe *domain.PersistenceError) alertResponse {
	resp := alertResponse{Entity: pe.Entity, ID: pe.ID, Fields: pe.Fields}
	if pe.Err != nil {
		resp.Error = pe.Err.Error()
	}
	return resp
}

func onBoard(c echo.Context, session *board.Session, pe *domain.PersistenceError) bool {
	var found bool
	_ = session.Do(c.Request().Context(), func(co *board.Coordinator) error {
		if pe.Entity == domain.EntityTask {
			found = co.State().IsTask(pe.ID)
		} else {
			found = co.State().IsProject(pe.ID)
		}
		return nil
	})
	return found
}

// getNav returns every organization with its projects and incomplete task
// counts. Open boards answer from memory.
func (s *Server) getNav(c echo.Context, m *requestMetrics) error {
	ctx := c.Request().Context()
	store := s.registry.Store()
	orgs, err := store.ListOrganizations(ctx)
	if err != nil {
		return s.fail(c, m, "list", err)
	}
	nav := make([]domain.NavOrganization, 0, len(orgs))
	for _, o := range domain.SortOrganizations(orgs) {
		entry := domain.NavOrganization{Organization: o, Projects: []domain.NavProject{}}
		projects, counts, err := s.navProjects(c, o.ID)
		if err != nil {
			return s.fail(c, m, "nav", err)
		}
		for _, p := range projects {
			entry.Projects = append(entry.Projects, domain.NavProject{Project: p, IncompleteTasks: counts[p.ID]})
		}
		nav = append(nav, entry)
	}
	return c.JSON(http.StatusOK, nav)
}

func (s *Server) navProjects(c echo.Context, orgID string) ([]domain.Project, map[string]int, error) {
	ctx := c.Request().Context()
	if session, ok := s.registry.Loaded(orgID); ok {
		var projects []domain.Project
		var counts map[string]int
		err := session.Do(ctx, func(co *board.Coordinator) error {
			projects = co.State().Projects()
			counts = co.State().IncompleteCounts()
			return nil
		})
		return projects, counts, err
	}
	store := s.registry.Store()
	projects, err := store.ListProjects(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	counts := make(map[string]int, len(projects))
	for _, p := range projects {
		tasks, err := store.ListTasks(ctx, p.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, t := range tasks {
			if !t.Done() {
				counts[p.ID]++
			}
		}
	}
	return domain.SortProjects(projects), counts, nil
}

