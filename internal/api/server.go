// Package api exposes the analyzer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/logging"
	"github.com/IshaanNene/ShopSense/internal/types"
)

// Analyzer is the work behind the two endpoints.
// *analysis.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, url string) (*types.Run, error)
	Chat(ctx context.Context, url, question string) (string, error)
}

// AnalyzeRequest is the body of POST /analyze-url.
type AnalyzeRequest struct {
	URL string `json:"url" validate:"required"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	URL      string `json:"url" validate:"required"`
	Question string `json:"question" validate:"required"`
}

// Server provides the HTTP API.
type Server struct {
	cfg      config.ServerConfig
	analyzer Analyzer
	router   chi.Router
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics mounts h at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		if h != nil && path != "" {
			s.router.Method(http.MethodGet, path, h)
		}
	}
}

// NewServer creates a new API server.
func NewServer(cfg config.ServerConfig, analyzer Analyzer, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		validate: validator.New(),
		logger:   logger.With("component", "api_server"),
	}
	s.router = s.routes()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.cfg.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(s.cfg.MaxBodyBytes))
	}

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))

	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
	}

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(timeout(s.cfg.RequestTimeout))
		r.Post("/analyze-url", s.handleAnalyze)
		r.Post("/chat", s.handleChat)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeRequest
	if !s.decode(w, r, &body, "URL is required") {
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		s.errorResponse(w, http.StatusBadRequest, "URL is required")
		return
	}
	if err := config.ValidateURL(body.URL); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.analyzer.Analyze(r.Context(), body.URL)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"markdown": run.Markdown})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequest
	if !s.decode(w, r, &body, "Missing URL or question") {
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	body.Question = strings.TrimSpace(body.Question)
	if body.URL == "" || body.Question == "" {
		s.errorResponse(w, http.StatusBadRequest, "Missing URL or question")
		return
	}
	if err := config.ValidateURL(body.URL); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := s.analyzer.Chat(r.Context(), body.URL, body.Question)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"answer": answer})
}

// decode reads and validates a JSON body. On failure it writes a 400 with
// missing as the message and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, missing string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, missing)
		return false
	}
	return true
}

// failure reports an analysis error. Request problems are 400; every
// other failure is 500 with the cause named in the code field.
func (s *Server) failure(w http.ResponseWriter, r *http.Request, err error) {
	code := errorCode(err)
	status := http.StatusInternalServerError
	if code == codeBadRequest {
		status = http.StatusBadRequest
	}
	logging.FromContext(r.Context(), s.logger).Error("request failed", "path", r.URL.Path, "status", status, "code", code, "error", err)
	s.jsonResponse(w, status, map[string]string{"error": publicMessage(err), "code": code})
}

// Error codes carried next to the message in failure responses.
const (
	codeBadRequest         = "bad_request"
	codeBlocked            = "blocked"
	codeTimeout            = "timeout"
	codeProductUnavailable = "product_unavailable"
	codeCanceled           = "canceled"
	codeInternal           = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrEmptyURL), errors.Is(err, types.ErrInvalidURL):
		return codeBadRequest
	case errors.Is(err, types.ErrBlocked):
		return codeBlocked
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, types.ErrLLMTimeout):
		return codeTimeout
	case errors.Is(err, types.ErrProductUnavailable):
		return codeProductUnavailable
	case errors.Is(err, context.Canceled):
		return codeCanceled
	default:
		return codeInternal
	}
}

// publicMessage drops the pipeline framing so clients see the cause.
func publicMessage(err error) string {
	var perr *types.PipelineError
	if errors.As(err, &perr) && perr.Err != nil {
		err = perr.Err
	}
	switch {
	case errors.Is(err, types.ErrProductUnavailable):
		return "Product data not available"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	}
	return err.Error()
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]string{"error": msg})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}
