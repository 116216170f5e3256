// Package api provides the ops HTTP surface: order intake and status,
// checkpoint resolution, and Prometheus metrics. It is an operator
// tool, not a client-facing product API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/motiongranted/draftengine/internal/checkpoint"
	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/service/workflow"
)

// Server provides HTTP endpoints for order and checkpoint operations.
type Server struct {
	router      chi.Router
	store       core.Store
	exec        *workflow.Executor
	checkpoints *checkpoint.Manager
	logger      *logging.Logger
	corsOrigins []string
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORSOrigins sets the allowed CORS origins. Empty means no
// cross-origin access.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// NewServer creates the ops API server.
func NewServer(store core.Store, exec *workflow.Executor, cps *checkpoint.Manager, opts ...ServerOption) *Server {
	s := &Server{
		store:       store,
		exec:        exec,
		checkpoints: cps,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.loggingMiddleware)

	if len(s.corsOrigins) > 0 {
		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
			AllowCredentials: false,
			MaxAge:           300,
		})
		r.Use(corsHandler.Handler)
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.handleCreateOrder)

			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", s.handleGetOrder)
				r.Post("/advance", s.handleAdvanceOrder)
				r.Post("/approve", s.handleApproveOrder)
				r.Get("/citations", s.handleListCitations)
				r.Get("/outputs", s.handleListOutputs)
			})
		})

		r.Post("/checkpoints/{checkpointID}/resolve", s.handleResolveCheckpoint)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// Orders
// =============================================================================

type createOrderRequest struct {
	ID         string `json:"id"`
	Tier       string `json:"tier"`
	MotionType string `json:"motion_type"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	tier, err := core.ParseTier(req.Tier)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	motionType := core.MotionType(req.MotionType)
	switch motionType {
	case core.MotionTypeStandard, core.MotionTypeMSJ:
	case "":
		motionType = core.MotionTypeStandard
	default:
		respondError(w, http.StatusUnprocessableEntity, "motion_type must be standard or msj")
		return
	}

	id := core.OrderID(req.ID)
	if id == "" {
		id = core.OrderID(uuid.NewString())
	}

	order := core.NewOrder(id, tier, motionType)
	if err := s.store.CreateOrder(r.Context(), order); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, orderView(order, nil))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := core.OrderID(chi.URLParam(r, "orderID"))
	order, err := s.store.GetOrder(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	pending, err := s.store.PendingCheckpoints(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderView(order, pending))
}

func (s *Server) handleAdvanceOrder(w http.ResponseWriter, r *http.Request) {
	id := core.OrderID(chi.URLParam(r, "orderID"))
	res, err := s.exec.Run(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, advanceView(res))
}

func (s *Server) handleApproveOrder(w http.ResponseWriter, r *http.Request) {
	id := core.OrderID(chi.URLParam(r, "orderID"))
	if err := s.exec.Approve(r.Context(), id); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusCompleted)})
}

func (s *Server) handleListCitations(w http.ResponseWriter, r *http.Request) {
	id := core.OrderID(chi.URLParam(r, "orderID"))
	if _, err := s.store.GetOrder(r.Context(), id); err != nil {
		s.respondDomainError(w, err)
		return
	}

	cites, err := s.store.ListCitations(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	verifs, err := s.store.ListVerifications(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, citationLedgerView(cites, verifs))
}

func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	id := core.OrderID(chi.URLParam(r, "orderID"))
	if _, err := s.store.GetOrder(r.Context(), id); err != nil {
		s.respondDomainError(w, err)
		return
	}

	outs, err := s.store.ListPhaseOutputs(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	views := make([]phaseOutputView, 0, len(outs))
	for _, out := range outs {
		views = append(views, outputView(out))
	}
	respondJSON(w, http.StatusOK, map[string]any{"outputs": views})
}

// =============================================================================
// Checkpoints
// =============================================================================

type resolveRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

// handleResolveCheckpoint applies a human decision to a pending
// checkpoint. Replayed webhooks hit the already-resolved conflict and
// get an idempotent 200 instead of an error.
func (s *Server) handleResolveCheckpoint(w http.ResponseWriter, r *http.Request) {
	cpID := chi.URLParam(r, "checkpointID")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	decision := core.Resolution(req.Decision)

	cp, err := s.store.GetCheckpoint(r.Context(), cpID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	if cp.Status == core.CheckpointResolved {
		if cp.Resolution == decision {
			respondJSON(w, http.StatusOK, map[string]string{
				"status":     "already_resolved",
				"resolution": string(cp.Resolution),
			})
			return
		}
		respondError(w, http.StatusConflict, "checkpoint already resolved with a different decision")
		return
	}

	switch cp.Type {
	case core.CheckpointBlocking:
		res, err := s.exec.ResolveGate(r.Context(), cp.OrderID, cpID, decision)
		if err != nil {
			s.respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, advanceView(res))

	case core.CheckpointHold:
		if _, err := s.checkpoints.Resolve(r.Context(), cpID, checkpoint.Resolution{Decision: decision, Note: req.Note}); err != nil {
			s.respondDomainError(w, err)
			return
		}
		if decision == core.ResolutionInfoGiven {
			if err := s.exec.ReleaseHold(r.Context(), cp.OrderID); err != nil {
				s.respondDomainError(w, err)
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})

	default:
		if _, err := s.checkpoints.Resolve(r.Context(), cpID, checkpoint.Resolution{Decision: decision, Note: req.Note}); err != nil {
			s.respondDomainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
	}
}

// =============================================================================
// Serving
// =============================================================================

// ListenAndServe starts the HTTP server and shuts it down when ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting ops API server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
