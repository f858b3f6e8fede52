// Package server streams step records to websocket clients and serves the
// run's recent history, summary and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zappabad/herdmarket/internal/engine"
	"github.com/zappabad/herdmarket/internal/feed/service"
	"github.com/zappabad/herdmarket/internal/logger"
	"github.com/zappabad/herdmarket/internal/metrics"
	"github.com/zappabad/herdmarket/internal/reporting"
)

// Options describe the run being served.
type Options struct {
	RunID        string
	InitialPrice float64
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

// Server routes HTTP and websocket requests over a feed service.
type Server struct {
	cfg      Config
	opts     Options
	feed     *service.FeedService
	hub      *Hub
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a server. It becomes the only consumer of feed.Events().
func New(cfg Config, feed *service.FeedService, opts Options) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:  cfg,
		opts: opts,
		feed: feed,
		hub:  NewHub(feed.Events(), cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /api/steps", s.handleSteps)
	s.mux.HandleFunc("GET /api/steps/latest", s.handleLatest)
	s.mux.HandleFunc("GET /api/switches", s.handleSwitches)
	s.mux.HandleFunc("GET /api/summary", s.handleSummary)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", metrics.Handler(opts.Gatherer))
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server: listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// Close disconnects websocket clients.
func (s *Server) Close() {
	s.hub.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Server: websocket upgrade failed: %v", err)
		return
	}

	s.hub.Attach(conn, func() []*engine.StepRecord {
		return s.feed.Latest(s.cfg.Replay)
	})
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	n, err := queryLimit(r, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.feed.View().LatestModels(n))
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	rec, ok := s.feed.View().Last()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no steps yet"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSwitches(w http.ResponseWriter, r *http.Request) {
	n, err := queryLimit(r, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.feed.View().Switches(n))
}

// handleSummary summarizes the steps retained by the feed view.
func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	v := s.feed.View()
	models := v.LatestModels(v.Count())

	initial := s.opts.InitialPrice
	if len(models) > 0 && models[0].Step > 0 {
		// window starts mid-run; anchor on the first retained price
		initial = models[0].Price
		models = models[1:]
	}
	writeJSON(w, http.StatusOK, reporting.Summarize(s.opts.RunID, initial, models))
}

type health struct {
	Status  string `json:"status"`
	RunID   string `json:"run_id,omitempty"`
	Steps   int    `json:"steps"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, health{
		Status:  "ok",
		RunID:   s.opts.RunID,
		Steps:   s.feed.View().Total(),
		Clients: s.hub.Clients(),
	})
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid n %q", raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Server: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
