package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"magnetstream/internal/bridge"
	"magnetstream/internal/domain"
	"magnetstream/internal/domain/ports"
	"magnetstream/internal/files"
	"magnetstream/internal/repository/mongo"
	"magnetstream/internal/store"
)

// HistoryStore lists recently finished downloads. Optional; endpoints degrade
// to 404 when unset.
type HistoryStore interface {
	ListRecent(ctx context.Context, limit int) ([]mongo.HistoryEntry, error)
}

const defaultMaxMagnetLength = 2048

type Server struct {
	store           *store.Store
	bridge          *bridge.Bridge
	engine          ports.Engine
	resolver        *files.Resolver
	lister          *files.Lister
	history         HistoryStore
	allowedOrigins  []string
	maxMagnetLength int
	logger          *slog.Logger
	handler         http.Handler
	wsHub           *wsHub

	sessionMu      sync.Mutex
	engineSessions map[string]ports.EngineSession
}

type ServerOption func(*Server)

func WithEngine(engine ports.Engine) ServerOption {
	return func(s *Server) { s.engine = engine }
}

func WithBridge(b *bridge.Bridge) ServerOption {
	return func(s *Server) { s.bridge = b }
}

// SetBridge wires the bridge after construction. The bridge's notifier is the
// server itself, so the two cannot be built in one shot.
func (s *Server) SetBridge(b *bridge.Bridge) {
	s.bridge = b
}

func WithLister(l *files.Lister) ServerOption {
	return func(s *Server) { s.lister = l }
}

func WithHistory(h HistoryStore) ServerOption {
	return func(s *Server) { s.history = h }
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func WithMaxMagnetLength(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxMagnetLength = n
		}
	}
}

func NewServer(st *store.Store, resolver *files.Resolver, opts ...ServerOption) *Server {
	s := &Server{
		store:           st,
		resolver:        resolver,
		maxMagnetLength: defaultMaxMagnetLength,
		engineSessions:  make(map[string]ports.EngineSession),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.lister == nil {
		s.lister = files.NewLister(resolver.Root(), s.logger)
	}

	s.wsHub = newWSHub(s.store.List, s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/downloads", s.handleDownloads)
	mux.HandleFunc("/api/downloads/", s.handleDownloadByID)
	mux.HandleFunc("/api/download", s.handleCreateDownload)
	mux.HandleFunc("/api/download/", s.handleRemoveDownload)
	mux.HandleFunc("/api/files", s.handleListFiles)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/files/", s.handleFileDownload)
	mux.HandleFunc("/stream/", s.handleStream)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "magnetstream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/api/health"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// SessionUpdated implements bridge.Notifier: one snapshot per push.
func (s *Server) SessionUpdated(snap domain.Snapshot) {
	s.wsHub.Broadcast("download-update", snap)
}

// Close disconnects all websocket clients. Engine sessions are destroyed by
// the engine's own Close.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) trackEngineSession(id string, es ports.EngineSession) {
	s.sessionMu.Lock()
	s.engineSessions[id] = es
	s.sessionMu.Unlock()
}

func (s *Server) takeEngineSession(id string) ports.EngineSession {
	s.sessionMu.Lock()
	es := s.engineSessions[id]
	delete(s.engineSessions, id)
	s.sessionMu.Unlock()
	return es
}

func trimPathPrefix(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "", false
	}
	return rest, true
}
