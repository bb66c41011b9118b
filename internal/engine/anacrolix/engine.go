// Package anacrolix adapts the anacrolix/torrent client to the engine port.
// Each download gets its own output directory and its own event stream; the
// wire protocol, DHT and piece I/O stay inside the client.
package anacrolix

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"magnetstream/internal/domain"
	"magnetstream/internal/domain/ports"
)

// addTimeout caps the time we wait for the anacrolix client to accept a
// magnet link. AddTorrentSpec can block on an internal client mutex when the
// client is busy resolving metadata for another torrent.
const addTimeout = 10 * time.Second

// defaultMetadataTimeout bounds how long a session waits for metadata before
// giving up; zero-peer magnets would otherwise hang forever.
const defaultMetadataTimeout = 10 * time.Minute

const defaultProgressInterval = 500 * time.Millisecond

type Config struct {
	// DataDir is the client-level default data directory; every session binds
	// its own subdirectory via per-torrent storage, so this is a fallback.
	DataDir string
	// ListenPort for incoming peer connections; 0 picks the client default.
	ListenPort int
	// MetadataTimeout overrides the default metadata wait.
	MetadataTimeout time.Duration
	// ProgressInterval overrides the default progress sampling cadence.
	ProgressInterval time.Duration
	Logger           *slog.Logger
}

type Engine struct {
	client           *torrent.Client
	logger           *slog.Logger
	metadataTimeout  time.Duration
	progressInterval time.Duration
}

func New(cfg Config) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	if cfg.ListenPort > 0 {
		clientConfig.ListenPort = cfg.ListenPort
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}
	return newEngine(client, cfg), nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(client *torrent.Client, cfg Config) *Engine {
	return newEngine(client, cfg)
}

func newEngine(client *torrent.Client, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metadataTimeout := cfg.MetadataTimeout
	if metadataTimeout <= 0 {
		metadataTimeout = defaultMetadataTimeout
	}
	progressInterval := cfg.ProgressInterval
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}
	return &Engine{
		client:           client,
		logger:           logger,
		metadataTimeout:  metadataTimeout,
		progressInterval: progressInterval,
	}
}

func (e *Engine) AddMagnet(ctx context.Context, magnet, destDir string) (ports.EngineSession, error) {
	spec, err := torrent.TorrentSpecFromMagnetUri(magnet)
	if err != nil {
		return nil, domain.ErrInvalidMagnet
	}
	if e.client == nil {
		return nil, errors.New("torrent client not configured")
	}
	spec.Storage = storage.NewFile(destDir)

	// Run AddTorrentSpec with a timeout so we never block the HTTP handler
	// indefinitely if the client is busy.
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, _, addErr := e.client.AddTorrentSpec(spec)
		ch <- addResult{t, addErr}
	}()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		t = res.t
	case <-time.After(addTimeout):
		// AddTorrentSpec may still complete after we return; drop the
		// orphaned torrent when it does.
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, ctx.Err()
	}

	s := newSession(t, e.logger, e.metadataTimeout, e.progressInterval)
	go s.watch()
	return s, nil
}

func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}
