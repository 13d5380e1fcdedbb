// Package http exposes explorer views over a JSON API with a server-sent
// event stream per view.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/skyscope"
	"github.com/aretw0/skyscope/internal/logging"
	"github.com/aretw0/skyscope/pkg/domain"
	"github.com/aretw0/skyscope/pkg/explorer"
	"github.com/aretw0/skyscope/pkg/highlight"
	"github.com/aretw0/skyscope/pkg/ports"
	"github.com/aretw0/skyscope/pkg/purge"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the views of a Manager.
type Server struct {
	Views   *explorer.Manager
	Backend ports.GraphBackend
	Streams *StreamManager

	logger    *slog.Logger
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	keepAlive time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry registers the HTTP metrics in reg and serves reg at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithKeepAlive sets the interval of SSE keep-alive comments.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		s.keepAlive = d
	}
}

// NewHandler creates the HTTP handler. Purge requests are sent to backend.
func NewHandler(views *explorer.Manager, backend ports.GraphBackend, opts ...Option) (http.Handler, error) {
	s := &Server{
		Views:     views,
		Backend:   backend,
		logger:    logging.NewNop(),
		keepAlive: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	views.Subscribe(s.Streams.Publish)

	router, err := newRouter()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.registry != nil {
		s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyscope",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"})
		if err := s.registry.Register(s.requests); err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
		r.Use(s.countRequests)
	}
	r.Use(requestValidator(router, s.validationError))

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Get("/views", s.ListViews)
	r.Route("/views/{id}", func(r chi.Router) {
		r.Post("/", s.OpenView)
		r.Get("/", s.GetView)
		r.Delete("/", s.DeleteView)
		r.Post("/search", s.Search)
		r.Post("/toggle/{hash}", s.Toggle)
		r.Post("/collapse", s.Collapse)
		r.Post("/refresh", s.Refresh)
		r.Get("/graph", s.GetGraph)
		r.Get("/events", s.SubscribeEvents)
	})
	r.Post("/purge", s.Purge)

	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(r.Method, route, fmt.Sprint(status)).Inc()
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Skyscope API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// viewResponse is the JSON form of a view.
type viewResponse struct {
	ID        string          `json:"id"`
	Pattern   string          `json:"pattern"`
	Expanded  bool            `json:"expanded"`
	MaxTotal  int             `json:"max_total"`
	Total     int             `json:"total"`
	NodeCount string          `json:"node_count"`
	Visible   []string        `json:"visible"`
	Rows      []highlight.Row `json:"rows"`
	HasGraph  bool            `json:"has_graph"`
	UpdatedAt time.Time       `json:"updated_at"`
	// Subscribers counts the open event streams of the view.
	Subscribers int `json:"subscribers"`
}

func (s *Server) viewResponse(ex *explorer.Explorer) viewResponse {
	v := ex.View()
	_, hasGraph := ex.Graph()
	rows := ex.Rows()
	if rows == nil {
		rows = []highlight.Row{}
	}
	return viewResponse{
		ID:        v.ID,
		Pattern:   v.Pattern,
		Expanded:  v.Expanded,
		MaxTotal:  v.MaxTotal,
		Total:     ex.Total(),
		NodeCount: ex.NodeCountLabel(),
		Visible:   v.Visible.Hashes(),
		Rows:      rows,
		HasGraph:  hasGraph,
		UpdatedAt: v.UpdatedAt,

		Subscribers: s.Streams.Subscribers(v.ID),
	}
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "skyscope-http",
		"version":     strings.TrimSpace(skyscope.Version),
		"api_version": apiVersion,
	})
}

// ListViews handles GET /views.
func (s *Server) ListViews(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Views.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"views":  ids,
		"active": s.Views.Active(),
	})
}

// OpenView handles POST /views/{id}.
func (s *Server) OpenView(w http.ResponseWriter, r *http.Request) {
	id, ok := s.viewID(w, r)
	if !ok {
		return
	}
	ex, err := s.Views.Open(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(ex))
}

// GetView handles GET /views/{id}.
func (s *Server) GetView(w http.ResponseWriter, r *http.Request) {
	ex, ok := s.explorer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(ex))
}

// DeleteView handles DELETE /views/{id}.
func (s *Server) DeleteView(w http.ResponseWriter, r *http.Request) {
	id, ok := s.viewID(w, r)
	if !ok {
		return
	}
	if err := s.Views.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles POST /views/{id}/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	ex, ok := s.explorer(w, r)
	if !ok {
		return
	}
	var pattern *string
	if err := runtime.BindQueryParameter("form", true, false, "pattern", r.URL.Query(), &pattern); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	p := ""
	if pattern != nil {
		p = *pattern
	}
	ex.Search(p)
	w.WriteHeader(http.StatusAccepted)
}

// Toggle handles POST /views/{id}/toggle/{hash}.
func (s *Server) Toggle(w http.ResponseWriter, r *http.Request) {
	ex, ok := s.explorer(w, r)
	if !ok {
		return
	}
	var hash string
	if err := runtime.BindStyledParameterWithOptions("simple", "hash", chi.URLParam(r, "hash"), &hash,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true}); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	visible, err := ex.Toggle(r.Context(), hash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"visible": visible})
}

// Collapse handles POST /views/{id}/collapse.
func (s *Server) Collapse(w http.ResponseWriter, r *http.Request) {
	ex, ok := s.explorer(w, r)
	if !ok {
		return
	}
	if err := ex.Collapse(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(ex))
}

// Refresh handles POST /views/{id}/refresh.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	ex, ok := s.explorer(w, r)
	if !ok {
		return
	}
	ex.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

// GetGraph handles GET /views/{id}/graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	ex, ok := s.explorer(w, r)
	if !ok {
		return
	}
	svg, rendered := ex.Graph()
	if !rendered {
		s.fail(w, r, fmt.Errorf("%w: %s", domain.ErrGraphNotRendered, ex.ID()))
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

// SubscribeEvents handles GET /views/{id}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	ex, ok := s.explorer(w, r)
	if !ok {
		return
	}

	ch, cancel := s.Streams.Subscribe(ex.ID())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribed to view", "view_id", ex.ID())

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "view_id", ex.ID())
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}

type purgeRequest struct {
	Paths []string `json:"paths"`
}

// Purge handles POST /purge. Every listed path is checked and deleted, as if
// the bulk delete button had been pressed twice.
func (s *Server) Purge(w http.ResponseWriter, r *http.Request) {
	var body purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, r, fmt.Errorf("%w: invalid request body: %w", errBadRequest, err))
		return
	}

	sel := purge.NewSelection(s.Backend, body.Paths, purge.WithLogger(s.logger))
	if _, _, err := sel.Press(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	_, report, err := sel.Press(r.Context())
	if report.Deleted == nil {
		report.Deleted = []string{}
	}
	if err != nil {
		s.logger.Warn("Purge incomplete", "failed", len(report.Failed), "err", err)
		writeJSON(w, http.StatusBadGateway, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// -- Helpers --

var errBadRequest = errors.New("bad request")

func (s *Server) viewID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	if err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true}); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return "", false
	}
	if err := domain.ValidateViewID(id); err != nil {
		s.fail(w, r, err)
		return "", false
	}
	return id, true
}

func (s *Server) explorer(w http.ResponseWriter, r *http.Request) (*explorer.Explorer, bool) {
	id, ok := s.viewID(w, r)
	if !ok {
		return nil, false
	}
	ex, err := s.Views.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return ex, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrViewNotFound), errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, domain.ErrGraphNotRendered):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidViewID), errors.Is(err, domain.ErrEmptyPattern),
		errors.Is(err, purge.ErrUnknownPath), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBackend):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) validationError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Debug("Request failed validation", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
