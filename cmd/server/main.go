package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "magnetstream/internal/api/http"
	"magnetstream/internal/app"
	"magnetstream/internal/bridge"
	"magnetstream/internal/domain"
	"magnetstream/internal/engine/anacrolix"
	"magnetstream/internal/files"
	"magnetstream/internal/metrics"
	mongorepo "magnetstream/internal/repository/mongo"
	"magnetstream/internal/store"
	"magnetstream/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "magnetstream")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "magnetstream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("downloadsDir", cfg.DownloadsDir),
		slog.Bool("historyEnabled", cfg.MongoURI != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DownloadsDir, 0o755); err != nil {
		logger.Error("create downloads dir failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	resolver, err := files.NewResolver(cfg.DownloadsDir)
	if err != nil {
		logger.Error("invalid downloads dir", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var historyRepo *mongorepo.HistoryRepository
	var mongoDisconnect func()
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI,
			options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			cancel()
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			cancel()
			os.Exit(1)
		}
		historyRepo = mongorepo.NewHistoryRepository(mongoClient, cfg.MongoDatabase, cfg.MongoCollection, logger)
		if err := historyRepo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
		cancel()
		mongoDisconnect = func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}
	}

	engine, err := anacrolix.New(anacrolix.Config{
		ListenPort:       cfg.ListenPort,
		MetadataTimeout:  time.Duration(cfg.MetadataTimeoutSec) * time.Second,
		ProgressInterval: time.Duration(cfg.UpdateIntervalMS) * time.Millisecond / 2,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sessions := store.New()

	serverOpts := []apihttp.ServerOption{
		apihttp.WithEngine(engine),
		apihttp.WithLogger(logger),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithMaxMagnetLength(cfg.MaxMagnetLength),
	}
	if historyRepo != nil {
		serverOpts = append(serverOpts, apihttp.WithHistory(historyRepo))
	}
	handler := apihttp.NewServer(sessions, resolver, serverOpts...)

	bridgeCfg := bridge.Config{
		Store:    sessions,
		Notifier: handler,
		Logger:   logger,
		Interval: time.Duration(cfg.UpdateIntervalMS) * time.Millisecond,
		URLFor: func(sessionID, rel string) string {
			return files.DownloadURL(sessionID + "/" + rel)
		},
	}
	if historyRepo != nil {
		bridgeCfg.Recorder = historyRepo
	}
	eventBridge := bridge.New(bridgeCfg)
	handler.SetBridge(eventBridge)

	go updateSessionMetrics(rootCtx, sessions)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Hard deadline: a wedged shutdown path must not keep the process alive.
	watchdog := time.AfterFunc(20*time.Second, func() {
		logger.Error("shutdown deadline exceeded, exiting")
		os.Exit(1)
	})
	defer watchdog.Stop()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	eventBridge.Close()
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}
	if mongoDisconnect != nil {
		mongoDisconnect()
	}

	logger.Info("server stopped")
}

// updateSessionMetrics refreshes the Prometheus gauges from the session store.
func updateSessionMetrics(ctx context.Context, sessions *store.Store) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var active int
			var dlTotal, ulTotal int64
			var peersTotal int
			for _, snap := range sessions.List() {
				if snap.Status == domain.StatusDownloading {
					active++
				}
				dlTotal += snap.DownloadRateBps
				ulTotal += snap.UploadRateBps
				peersTotal += snap.PeerCount
			}
			metrics.ActiveDownloads.Set(float64(active))
			metrics.DownloadSpeedBytes.Set(float64(dlTotal))
			metrics.UploadSpeedBytes.Set(float64(ulTotal))
			metrics.PeersConnected.Set(float64(peersTotal))
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
