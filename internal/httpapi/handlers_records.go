package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xaxixak/oracle-v2/internal/consult"
	"github.com/xaxixak/oracle-v2/internal/decision"
	"github.com/xaxixak/oracle-v2/internal/forum"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/trace"
)

func consultRequest(c echo.Context, project *string) consult.Request {
	return consult.Request{
		Decision: c.QueryParam("q"),
		Context:  c.QueryParam("context"),
		Project:  project,
		Cwd:      c.QueryParam("cwd"),
	}
}

// ---- dashboard ----

func (s *Server) handleDashboardSummary(c echo.Context) error {
	sum, err := s.deps.Dashboard.Summary()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) handleDashboardActivity(c echo.Context) error {
	activity, err := s.deps.Dashboard.Activity(intParam(c, "days", 7))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"activity": activity})
}

func (s *Server) handleDashboardGrowth(c echo.Context) error {
	period := c.QueryParam("period")
	if period == "" {
		period = "week"
	}
	points, err := s.deps.Dashboard.Growth(period)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"period": period, "growth": points})
}

func (s *Server) handleSessionStats(c echo.Context) error {
	since := time.Now().Add(-time.Hour)
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return oracle.Invalidf("since %q is not RFC 3339", raw)
		}
		since = parsed
	}
	counts, err := s.deps.Dashboard.SessionStats(since)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, counts)
}

// ---- forum ----

func (s *Server) handleThreads(c echo.Context) error {
	threads, err := s.deps.Forum.Threads(
		store.ThreadStatus(c.QueryParam("status")),
		intParam(c, "limit", 20),
		intParam(c, "offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"threads": threads})
}

type threadMessageBody struct {
	Message  string `json:"message"`
	ThreadID int64  `json:"thread_id"`
	Title    string `json:"title"`
	Role     string `json:"role"`
	Model    string `json:"model"`
	Project  string `json:"project"`
}

func (s *Server) handleThreadMessage(c echo.Context) error {
	var body threadMessageBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := s.deps.Forum.HandleMessage(c.Request().Context(), forum.MessageRequest{
		Message:  body.Message,
		ThreadID: body.ThreadID,
		Title:    body.Title,
		Role:     body.Role,
		Model:    body.Model,
		Project:  body.Project,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleThreadRead(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	thread, messages, err := s.deps.Forum.Thread(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"thread": thread, "messages": messages})
}

func (s *Server) handleThreadStatus(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	thread, err := s.deps.Forum.SetStatus(id, store.ThreadStatus(body.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, thread)
}

// ---- decisions ----

func (s *Server) handleDecisionsList(c echo.Context) error {
	decisions, err := s.deps.Decision.List(
		store.DecisionStatus(c.QueryParam("status")),
		c.QueryParam("project"),
		intParam(c, "limit", 20),
		intParam(c, "offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"decisions": decisions})
}

type decisionCreateBody struct {
	Title   string   `json:"title"`
	Context string   `json:"context"`
	Options []string `json:"options"`
	Project string   `json:"project"`
	Tags    []string `json:"tags"`
}

func (s *Server) handleDecisionsCreate(c echo.Context) error {
	var body decisionCreateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := s.deps.Decision.Create(decision.CreateRequest{
		Title:   body.Title,
		Context: body.Context,
		Options: body.Options,
		Project: body.Project,
		Tags:    body.Tags,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (s *Server) handleDecisionsGet(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	d, err := s.deps.Decision.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

type decisionUpdateBody struct {
	Title     *string  `json:"title"`
	Context   *string  `json:"context"`
	Options   []string `json:"options"`
	Decision  *string  `json:"decision"`
	Rationale *string  `json:"rationale"`
	Tags      []string `json:"tags"`
}

func (s *Server) handleDecisionsUpdate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var body decisionUpdateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := s.deps.Decision.Update(id, store.DecisionUpdate{
		Title:     body.Title,
		Context:   body.Context,
		Options:   body.Options,
		Decision:  body.Decision,
		Rationale: body.Rationale,
		Tags:      body.Tags,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) handleDecisionsTransition(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var body struct {
		Status    string `json:"status"`
		DecidedBy string `json:"decided_by"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := s.deps.Decision.Transition(id, store.DecisionStatus(body.Status), body.DecidedBy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

// ---- traces ----

func (s *Server) handleTraceList(c echo.Context) error {
	traces, err := s.deps.Trace.List(
		store.TraceStatus(c.QueryParam("status")),
		c.QueryParam("query_type"),
		intParam(c, "limit", 20),
		intParam(c, "offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"traces": traces})
}

type traceCreateBody struct {
	Query         string          `json:"query"`
	QueryType     string          `json:"query_type"`
	DigPoints     store.DigPoints `json:"dig_points"`
	ParentTraceID string          `json:"parent_trace_id"`
	Project       *string         `json:"project"`
	Cwd           string          `json:"cwd"`

	// Distill fields; their presence selects the distill action.
	TraceID           string `json:"trace_id"`
	Awakening         string `json:"awakening"`
	PromoteToLearning bool   `json:"promote_to_learning"`
}

func (s *Server) handleTraceCreate(c echo.Context) error {
	var body traceCreateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.TraceID != "" {
		t, err := s.deps.Trace.Distill(trace.DistillRequest{
			TraceID:           body.TraceID,
			Awakening:         body.Awakening,
			PromoteToLearning: body.PromoteToLearning,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, t)
	}
	t, err := s.deps.Trace.Create(trace.CreateRequest{
		Query:         body.Query,
		QueryType:     body.QueryType,
		DigPoints:     body.DigPoints,
		ParentTraceID: body.ParentTraceID,
		Project:       body.Project,
		Cwd:           body.Cwd,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) handleTraceGet(c echo.Context) error {
	traceID := c.Param("id")
	if direction := c.QueryParam("direction"); direction != "" {
		chain, err := s.deps.Trace.GetChain(traceID, direction)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, chain)
	}
	t, err := s.deps.Trace.Get(traceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}
