// Package api exposes the launch pipeline, the gallery and the scan log over
// HTTP for the browser client.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"larpx402/internal/launch"
	"larpx402/internal/solana"
	"larpx402/internal/storage"
	"larpx402/internal/threat"
)

// ImageGenerator turns a threat into artwork.
type ImageGenerator interface {
	Generate(ctx context.Context, t threat.Threat) (string, error)
}

// Options for creating Server.
type Options struct {
	// API is the token-launch aggregator. Launch preparation routes answer
	// 503 when nil.
	API launch.API
	// Ledger verifies client-submitted signatures and reports the slot.
	Ledger solana.RPCClient
	Images ImageGenerator

	Launches storage.LaunchStore
	Scans    storage.ScanHistoryStore

	// Stream serves the realtime gallery. Nil disables the route.
	Stream http.Handler

	Network solana.Network
	Backend string
	Logger  *zap.Logger

	// Test hooks
	Now   func() time.Time
	NewID func() string
}

// Server holds the HTTP handlers.
type Server struct {
	pipeline *launch.Pipeline
	hasAPI   bool
	ledger   solana.RPCClient
	images   ImageGenerator
	launches storage.LaunchStore
	scans    storage.ScanHistoryStore
	stream   http.Handler
	network  solana.Network
	backend  string
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	s := &Server{
		hasAPI:   opts.API != nil,
		ledger:   opts.Ledger,
		images:   opts.Images,
		launches: opts.Launches,
		scans:    opts.Scans,
		stream:   opts.Stream,
		network:  opts.Network,
		backend:  opts.Backend,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("api")
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.network == "" {
		s.network = solana.Mainnet
	}
	// Browser flows sign client-side; the pipeline here only talks to the
	// aggregator.
	s.pipeline = launch.New(launch.Options{
		API:     opts.API,
		Network: s.network,
		Logger:  s.logger,
		Now:     s.now,
		NewID:   s.newID,
	})
	return s
}

// Router builds the route table with permissive CORS.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         300,
	}))
	r.MethodNotAllowed(methodNotAllowed)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/token-info", s.handleTokenInfo)
		r.Post("/fee-config", s.handleFeeConfig)
		r.Post("/launch-transaction", s.handleLaunchTransaction)

		r.Route("/launches", func(r chi.Router) {
			r.Get("/", s.handleListLaunches)
			r.Post("/", s.handleRecordLaunch)
			if s.stream != nil {
				r.Get("/stream", s.stream.ServeHTTP)
			}
			r.Get("/{mint}", s.handleGetLaunch)
		})

		r.Route("/scans", func(r chi.Router) {
			r.Get("/", s.handleListScans)
			r.Post("/", s.handleRecordScan)
			r.Delete("/", s.handleClearScans)
		})

		r.Get("/threats", s.handleThreats)
		r.Post("/generate-image", s.handleGenerateImage)
	})
	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Network     string `json:"network"`
	Backend     string `json:"backend"`
	Slot        int64  `json:"slot,omitempty"`
	LedgerError string `json:"ledgerError,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Network: string(s.network),
		Backend: s.backend,
	}
	if s.ledger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		slot, err := s.ledger.GetSlot(ctx)
		if err != nil {
			resp.Status = "degraded"
			resp.LedgerError = err.Error()
		} else {
			resp.Slot = slot
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
