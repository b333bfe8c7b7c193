package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unifyhq/botsync/internal/botsync"
	"github.com/unifyhq/botsync/internal/connection"
	"github.com/unifyhq/botsync/internal/model"
)

// Source is the subsystem as seen by the HTTP handlers.
type Source interface {
	Snapshot(ctx context.Context) (botsync.Snapshot, error)
	Bot(ctx context.Context, id string) (model.BotView, bool, error)
	Refresh(ctx context.Context) error
	Join(ctx context.Context, id string) (bool, error)
	Leave(ctx context.Context, id string) (bool, error)
}

// Pinger checks backend reachability.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// Options holds server settings.
type Options struct {
	Addr           string
	MetricsPath    string        // defaults to /metrics
	MetricsHandler http.Handler  // defaults to promhttp.Handler()
	Pinger         Pinger        // optional; enables the api section of /health
	RequestTimeout time.Duration // per request; defaults to 30s
}

// Server serves the status API.
type Server struct {
	source Source
	opts   Options
	logger *slog.Logger
	server *http.Server
}

// New creates a Server.
func New(source Source, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	return &Server{
		source: source,
		opts:   opts,
		logger: logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status api shutdown", "error", err)
		}
	}()

	s.logger.Info("status api listening", "addr", s.opts.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/bots", s.handleListBots).Methods("GET")
	router.HandleFunc("/bots/{id}", s.handleGetBot).Methods("GET")
	router.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	router.HandleFunc("/rooms/{id}", s.handleJoinRoom).Methods("POST")
	router.HandleFunc("/rooms/{id}", s.handleLeaveRoom).Methods("DELETE")
	router.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	router.Handle(s.opts.MetricsPath, s.opts.MetricsHandler).Methods("GET")

	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.opts.RequestTimeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Subsystem unavailable")
		return
	}

	h := Health{
		Status:        "ok",
		Connection:    snap.State.String(),
		LastError:     errString(snap.LastError),
		LastRefreshed: timePtr(snap.LastRefreshed),
		FetchError:    errString(snap.LastFetchError),
		Bots:          len(snap.Bots),
		Rooms:         len(snap.Rooms),
	}
	if snap.State != connection.StateConnected {
		h.Status = "degraded"
	}

	if s.opts.Pinger != nil {
		msg, err := s.opts.Pinger.Ping(ctx)
		h.API = &APIHealth{Reachable: err == nil, Message: msg, Error: errString(err)}
		if err != nil {
			h.Status = "degraded"
		}
	}

	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	var (
		status    = model.BotStatus(r.URL.Query().Get("status"))
		readyOnly bool
	)
	if status != "" && !status.Valid() {
		s.writeError(w, http.StatusBadRequest, "Unknown status")
		return
	}
	if v := r.URL.Query().Get("ready"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "ready must be a boolean")
			return
		}
		readyOnly = b
	}

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Subsystem unavailable")
		return
	}

	out := BotList{Data: make([]Bot, 0, len(snap.Bots))}
	for _, v := range snap.Bots {
		if status != "" && v.Status != status {
			continue
		}
		if readyOnly && !v.Ready() {
			continue
		}
		out.Data = append(out.Data, toBot(v))
	}
	out.Count = len(out.Data)
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	id := mux.Vars(r)["id"]
	v, ok, err := s.source.Bot(ctx, id)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Subsystem unavailable")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "Bot not found")
		return
	}
	s.writeJSON(w, http.StatusOK, toBot(v))
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Subsystem unavailable")
		return
	}
	rooms := snap.Rooms
	if rooms == nil {
		rooms = []string{}
	}
	s.writeJSON(w, http.StatusOK, RoomList{Count: len(rooms), Rooms: rooms})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	id := mux.Vars(r)["id"]
	added, err := s.source.Join(ctx, id)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Subsystem unavailable")
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, map[string]any{"room": id, "joined": added})
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	id := mux.Vars(r)["id"]
	removed, err := s.source.Leave(ctx, id)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Subsystem unavailable")
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "Room not joined")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"room": id, "left": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.source.Refresh(ctx); err != nil {
		s.logger.Warn("refresh via api failed", "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, botsync.ErrNotStarted) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "Subsystem unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"bots":          len(snap.Bots),
		"lastRefreshed": timePtr(snap.LastRefreshed),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
