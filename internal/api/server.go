package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/config"
	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/metrics"
)

// Service is the subset of the orchestrator the handlers call.
type Service interface {
	GetBySource(ctx context.Context, source legislation.Source) ([]legislation.StoredRecord, bool, error)
	RefreshAll(ctx context.Context) (legislation.RefreshResult, error)
	Search(ctx context.Context, keyword string, source legislation.Source) ([]legislation.StoredRecord, error)
	Stats(ctx context.Context) (legislation.Stats, error)
}

// Server wires HTTP handlers to the orchestrator.
type Server struct {
	router chi.Router
	svc    Service
	clock  legislation.Clock
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Service, clock legislation.Clock, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:    svc,
		clock:  clock,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(assignRequestID)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout()))

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/legislation", func(r chi.Router) {
		r.Get("/all", s.getAll)
		r.Get("/search", s.search)
		r.Get("/stats", s.stats)
		r.Get("/{source}", s.getBySource)
		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Post("/refresh", s.refresh)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// listResponse is the envelope of every record-list route.
type listResponse struct {
	Success    bool                       `json:"success"`
	Message    string                     `json:"message"`
	Data       []legislation.StoredRecord `json:"data"`
	TotalCount int                        `json:"total_count"`
	CacheHit   bool                       `json:"cache_hit"`
	Timestamp  string                     `json:"timestamp"`
}

type refreshResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	RunID         string `json:"run_id"`
	NationalCount int    `json:"national_count"`
	AdminCount    int    `json:"admin_count"`
	TotalCount    int    `json:"total_count"`
	Timestamp     string `json:"timestamp"`
}

type statsResponse struct {
	Success   bool              `json:"success"`
	Data      legislation.Stats `json:"data"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "legislative notice api is running"})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": s.timestamp()})
}

func (s *Server) getBySource(w http.ResponseWriter, r *http.Request) {
	source, err := legislation.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown source", "invalid_source")
		return
	}
	rows, hit, err := s.svc.GetBySource(r.Context(), source)
	if err != nil {
		s.fail(w, r, "read "+string(source), err)
		return
	}
	s.writeList(w, rows, hit, string(source)+" notices loaded")
}

func (s *Server) getAll(w http.ResponseWriter, r *http.Request) {
	all := []legislation.StoredRecord{}
	hit := true
	for _, source := range legislation.Sources {
		rows, sourceHit, err := s.svc.GetBySource(r.Context(), source)
		if err != nil {
			s.fail(w, r, "read "+string(source), err)
			return
		}
		hit = hit && sourceHit
		all = append(all, rows...)
	}
	s.writeList(w, all, hit, "all notices loaded")
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("q"))
	if keyword == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required", "missing_query")
		return
	}
	var source legislation.Source
	if raw := r.URL.Query().Get("source"); raw != "" {
		parsed, err := legislation.ParseSource(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "unknown source", "invalid_source")
			return
		}
		source = parsed
	}
	rows, err := s.svc.Search(r.Context(), keyword, source)
	if err != nil {
		s.fail(w, r, "search", err)
		return
	}
	s.writeList(w, rows, false, "search finished")
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.fail(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, Data: stats, Timestamp: s.timestamp()})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.RefreshAll(r.Context())
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Success:       true,
		Message:       "notices refreshed",
		RunID:         result.RunID,
		NationalCount: result.National,
		AdminCount:    result.Admin,
		TotalCount:    result.Total(),
		Timestamp:     s.timestamp(),
	})
}

func (s *Server) writeList(w http.ResponseWriter, rows []legislation.StoredRecord, hit bool, msg string) {
	if rows == nil {
		rows = []legislation.StoredRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Success:    true,
		Message:    msg,
		Data:       rows,
		TotalCount: len(rows),
		CacheHit:   hit,
		Timestamp:  s.timestamp(),
	})
}

// fail maps a service error to a response and logs it with the request id.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, legislation.ErrInvalidSource):
		status, code = http.StatusBadRequest, "invalid_source"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	}
	s.logger.Error(op+" failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	s.writeError(w, status, op+" failed", code)
}
