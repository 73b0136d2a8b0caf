package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/roach88/convtest/internal/flow"
	"github.com/roach88/convtest/internal/harness"
	"github.com/roach88/convtest/internal/store"
)

// Runner executes flows.
type Runner interface {
	Run(ctx context.Context, f *flow.FlowDefinition) (*harness.RunResult, error)
}

// RunStore persists run results. It may be nil, in which case runs are not
// stored and the listing routes answer 503.
type RunStore interface {
	SaveRun(ctx context.Context, run *harness.RunResult) error
	GetRun(ctx context.Context, runID string) (*harness.RunResult, error)
	ListRuns(ctx context.Context, opts store.ListOptions) ([]store.RunSummary, error)
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// ValidateResponse is the body of POST /v1/flows/validate. Valid reports
// whether the document parses; Issues and Lint are advisory.
type ValidateResponse struct {
	Valid  bool                 `json:"valid"`
	Error  string               `json:"error,omitempty"`
	Issues []string             `json:"issues"`
	Lint   []string             `json:"lint"`
	Flow   *flow.FlowDefinition `json:"flow,omitempty"`
}

// maxBodyBytes bounds flow documents.
const maxBodyBytes = 4 << 20

// Server implements the HTTP API.
type Server struct {
	runner Runner
	runs   RunStore
	parser *flow.Parser
	logger *slog.Logger
}

// NewServer creates a server. runs may be nil.
func NewServer(runner Runner, runs RunStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runner: runner,
		runs:   runs,
		parser: flow.NewParser(logger),
		logger: logger,
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return s.logger
		}),
	))

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/v1")
	{
		v1.POST("/runs", s.createRun)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:runID", s.getRun)
		v1.POST("/flows/validate", s.validateFlow)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": s.runs != nil})
}

func (s *Server) createRun(c *gin.Context) {
	data, ok := s.readBody(c)
	if !ok {
		return
	}

	f, err := s.parser.ParseDocument(data)
	if err != nil {
		s.parseError(c, err)
		return
	}

	result, err := s.runner.Run(c.Request.Context(), f)
	if err != nil {
		s.fail(c, http.StatusUnprocessableEntity, err)
		return
	}

	if s.runs != nil {
		if err := s.runs.SaveRun(c.Request.Context(), result); err != nil {
			s.logger.Error("failed to save run", "run", result.RunID, "error", err)
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) listRuns(c *gin.Context) {
	if s.runs == nil {
		s.fail(c, http.StatusServiceUnavailable, errNoStore)
		return
	}

	opts := store.ListOptions{FlowID: c.Query("flow_id")}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(c, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}

	runs, err := s.runs.ListRuns(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) getRun(c *gin.Context) {
	if s.runs == nil {
		s.fail(c, http.StatusServiceUnavailable, errNoStore)
		return
	}

	run, err := s.runs.GetRun(c.Request.Context(), c.Param("runID"))
	if errors.Is(err, store.ErrNotFound) {
		s.fail(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) validateFlow(c *gin.Context) {
	data, ok := s.readBody(c)
	if !ok {
		return
	}

	resp := ValidateResponse{Issues: []string{}, Lint: []string{}}
	f, err := s.parser.ParseDocument(data)
	switch {
	case flow.IsStructureError(err):
		resp.Error = err.Error()
	case err != nil:
		s.fail(c, http.StatusBadRequest, err)
		return
	default:
		resp.Flow = f
		resp.Issues = append(resp.Issues, flow.ValidateFlow(f)...)
	}

	lint, err := flow.Lint(data)
	if err != nil {
		s.logger.Warn("schema lint failed", "error", err)
	}
	resp.Lint = append(resp.Lint, lint...)
	resp.Valid = resp.Error == ""
	c.JSON(http.StatusOK, resp)
}

var errNoStore = errors.New("run store is not configured")

func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		s.fail(c, http.StatusRequestEntityTooLarge, err)
		return nil, false
	}
	return data, true
}

func (s *Server) parseError(c *gin.Context, err error) {
	if flow.IsStructureError(err) {
		s.fail(c, http.StatusUnprocessableEntity, err)
		return
	}
	s.fail(c, http.StatusBadRequest, err)
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{Error: err.Error(), Status: status})
}
