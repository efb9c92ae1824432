// Package httpapi implements the HTTP surface named in spec.md §6.2:
// read endpoints over the Query Facade plus a refresh trigger, wrapped
// in the {success, data, error} JSON envelope. Built as a thin adapter
// over internal/query.Service and internal/refresh.Controller the way
// the teacher's internal/handler/http/article handlers are thin
// adapters over internal/usecase/article.Service, reusing the
// teacher's respond package for JSON/error writing.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	httpmw "trendaggr/internal/handler/http"
	"trendaggr/internal/handler/http/middleware"
	"trendaggr/internal/handler/http/pathutil"
	"trendaggr/internal/handler/http/respond"
	"trendaggr/internal/observability/metrics"
	"trendaggr/internal/observability/tracing"
	"trendaggr/internal/query"
	"trendaggr/internal/refresh"
)

// envelope is the {success, data, error, last_update, total} response
// shape spec.md §6.2 documents for every JSON endpoint.
type envelope struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data,omitempty"`
	Error      string     `json:"error,omitempty"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
	Total      int        `json:"total,omitempty"`
}

// Server wires the Query Facade and Refresh Controller into an
// http.Handler. RefreshTimeout bounds how long POST /refresh waits for
// a coalesced in-flight run before returning 202 instead of 200.
type Server struct {
	facade           *query.Service
	controller       *refresh.Controller
	apiKeyConfigured bool
	refreshTimeout   time.Duration
	refreshLimiter   *middleware.IPRateLimiter
	mux              *http.ServeMux
}

// NewServer wires the Query Facade and Refresh Controller behind the
// route mux. refreshLimiter may be nil, in which case POST /refresh is
// unthrottled; when set, it rate-limits refresh requests by client IP
// the same way the teacher's middleware.IPRateLimiter protects any
// other expensive, triggerable endpoint.
func NewServer(facade *query.Service, controller *refresh.Controller, apiKeyConfigured bool, refreshTimeout time.Duration, refreshLimiter *middleware.IPRateLimiter) *Server {
	s := &Server{
		facade:           facade,
		controller:       controller,
		apiKeyConfigured: apiKeyConfigured,
		refreshTimeout:   refreshTimeout,
		refreshLimiter:   refreshLimiter,
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// ServeHTTP chains the request through tracing, structured logging,
// panic recovery, a per-request timeout, and a Prometheus-recording
// wrapper before handing off to the route mux, in the same
// outer-to-inner order the teacher composes its own middleware stack.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := tracing.Middleware(s.recordMetrics(s.mux))
	handler = httpmw.Recover(slog.Default())(handler)
	handler = httpmw.Logging(slog.Default())(handler)
	handler = httpmw.Timeout(s.refreshTimeout)(handler)
	handler.ServeHTTP(w, r)
}

// recordMetrics wraps next with the observability metrics registry's
// HTTP counters, normalizing path-parameter routes (e.g.
// /keywords/details/{keyword}) so per-keyword cardinality never leaks
// into Prometheus label values.
func (s *Server) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Method, pathutil.NormalizePath(r.URL.Path), strconv.Itoa(rec.status), time.Since(start), int(r.ContentLength), rec.size)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /keywords/hot", s.handleHotKeywords)
	s.mux.HandleFunc("GET /topics", s.handleTopics)
	s.mux.HandleFunc("GET /topics/{id}/hooks", s.handleTopicHooks)
	s.mux.HandleFunc("GET /keywords/details/{keyword}", s.handleKeywordDetails)
	s.mux.HandleFunc("GET /status", s.handleStatus)

	var refreshHandler http.Handler = http.HandlerFunc(s.handleRefresh)
	if s.refreshLimiter != nil {
		refreshHandler = s.refreshLimiter.Middleware()(refreshHandler)
	}
	s.mux.Handle("POST /refresh", refreshHandler)

	s.mux.Handle("GET /swagger/", httpSwagger.WrapHandler)
}

// handleHotKeywords godoc
//
//	@Summary	Ranked hot keywords
//	@Param		n	query	int	false	"result limit"
//	@Success	200	{object}	envelope
//	@Router		/keywords/hot [get]
func (s *Server) handleHotKeywords(w http.ResponseWriter, r *http.Request) {
	n := intQuery(r, "n", 0)
	keywords := s.facade.HotKeywords(n)
	snap := s.controller.Snapshot()
	respond.JSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       keywords,
		LastUpdate: timestampOrNil(snap.Timestamp),
		Total:      len(keywords),
	})
}

// handleTopics godoc
//
//	@Summary	Clustered topics
//	@Param		n	query	int	false	"result limit"
//	@Success	200	{object}	envelope
//	@Router		/topics [get]
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	n := intQuery(r, "n", 0)
	topics := s.facade.Topics(n)
	respond.JSON(w, http.StatusOK, envelope{Success: true, Data: topics, Total: len(topics)})
}

// handleTopicHooks godoc
//
//	@Summary	Content hooks for a topic
//	@Param		id	path	string	true	"topic id"
//	@Success	200	{object}	envelope
//	@Failure	404	{object}	envelope
//	@Router		/topics/{id}/hooks [get]
func (s *Server) handleTopicHooks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	topic, ok := s.facade.Topic(id)
	if !ok {
		respond.JSON(w, http.StatusNotFound, envelope{Success: false, Error: "topic not found"})
		return
	}
	respond.JSON(w, http.StatusOK, envelope{Success: true, Data: topic.Hooks})
}

// handleKeywordDetails godoc
//
//	@Summary	Fused score, raw records, and history for one keyword
//	@Param		keyword	path	string	true	"keyword"
//	@Success	200	{object}	envelope
//	@Failure	404	{object}	envelope
//	@Router		/keywords/details/{keyword} [get]
func (s *Server) handleKeywordDetails(w http.ResponseWriter, r *http.Request) {
	keyword := r.PathValue("keyword")
	detail, err := s.facade.KeywordDetails(keyword)
	if err != nil {
		respond.JSON(w, http.StatusNotFound, envelope{Success: false, Error: err.Error()})
		return
	}
	respond.JSON(w, http.StatusOK, envelope{Success: true, Data: detail})
}

// handleStatus godoc
//
//	@Summary	Controller health and last-refresh status
//	@Success	200	{object}	envelope
//	@Router		/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.facade.Status(s.apiKeyConfigured)
	respond.JSON(w, http.StatusOK, envelope{Success: true, Data: status})
}

// handleRefresh godoc
//
//	@Summary	Trigger an immediate refresh
//	@Description	Coalesces with any in-flight run and returns the resulting snapshot's hot keywords, or 504 if the wait exceeds the server's refresh timeout.
//	@Success	200	{object}	envelope
//	@Failure	504	{object}	envelope
//	@Router		/refresh [post]
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.refreshTimeout)
	defer cancel()

	snap, err := s.controller.RefreshNow(ctx)
	if err != nil {
		respond.JSON(w, http.StatusGatewayTimeout, envelope{Success: false, Error: err.Error()})
		return
	}
	respond.JSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       snap.HotKeywords,
		LastUpdate: timestampOrNil(snap.Timestamp),
		Total:      len(snap.HotKeywords),
	})
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func timestampOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
