// Package bridge turns the engine's asynchronous event streams into session
// store mutations and fanout pushes. One consumer goroutine per session
// applies its events serially, so no two mutations for the same id ever
// interleave.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"magnetstream/internal/domain"
	"magnetstream/internal/domain/ports"
	"magnetstream/internal/metrics"
	"magnetstream/internal/store"
)

// Notifier receives session snapshots to push to connected clients.
type Notifier interface {
	SessionUpdated(snap domain.Snapshot)
}

// Recorder persists terminal sessions to the download history. Optional.
type Recorder interface {
	Record(ctx context.Context, snap domain.Snapshot)
}

type Bridge struct {
	store    *store.Store
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger
	interval time.Duration

	// urlFor builds the download URL for a file, given the session id and the
	// file's path relative to the session's output directory.
	urlFor func(sessionID, relPath string) string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

type Config struct {
	Store    *store.Store
	Notifier Notifier
	Recorder Recorder
	Logger   *slog.Logger
	Interval time.Duration
	URLFor   func(sessionID, relPath string) string
}

func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Bridge{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		recorder: cfg.Recorder,
		logger:   logger,
		interval: interval,
		urlFor:   cfg.URLFor,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Attach starts the consumer loop (and the periodic update ticker) for a
// session. Call once per session, right after store creation.
func (b *Bridge) Attach(id string, es ports.EngineSession) {
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	b.cancels[id] = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx, id, es)
	}()
}

// Detach stops the session's consumer loop and ticker. Synchronous with
// respect to future pushes: once Detach returns and the store entry is gone,
// no further updates for the id are emitted.
func (b *Bridge) Detach(id string) {
	b.mu.Lock()
	cancel, ok := b.cancels[id]
	delete(b.cancels, id)
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close detaches every session and waits for the consumer loops to exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) run(ctx context.Context, id string, es ports.EngineSession) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	defer b.forget(id)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-es.Events():
			if !ok {
				return
			}
			if terminal := b.apply(id, ev); terminal {
				// Ticker is torn down exactly once, here or on Detach —
				// never both into a live session.
				return
			}

		case <-ticker.C:
			snap, ok := b.store.Get(id)
			if !ok {
				// Removed concurrently; the loop will be cancelled shortly.
				continue
			}
			if snap.Status == domain.StatusDownloading {
				b.notifier.SessionUpdated(snap)
			}
		}
	}
}

// apply mutates the store for one event and reports whether the event was
// terminal. Metadata, done and error trigger an immediate push; raw progress
// ticks are left to the ticker cadence.
func (b *Bridge) apply(id string, ev domain.Event) bool {
	switch ev.Kind {
	case domain.EventMetadata:
		if b.store.Mutate(id, func(s *domain.Session) { s.ApplyMetadata(ev) }) {
			b.push(id)
		}
		return false

	case domain.EventProgress:
		b.store.Mutate(id, func(s *domain.Session) { s.ApplyProgress(ev) })
		return false

	case domain.EventDone:
		if b.store.Mutate(id, func(s *domain.Session) {
			s.ApplyDone(ev, func(rel string) string { return b.fileURL(id, rel) })
		}) {
			metrics.DownloadsCompletedTotal.Inc()
			b.push(id)
			b.record(id)
		}
		return true

	case domain.EventError:
		if b.store.Mutate(id, func(s *domain.Session) { s.ApplyError(ev) }) {
			metrics.DownloadsFailedTotal.Inc()
			b.logger.Warn("download failed",
				slog.String("id", id),
				slog.String("error", ev.Err),
			)
			b.push(id)
			b.record(id)
		}
		return true

	default:
		b.logger.Debug("ignoring unknown engine event",
			slog.String("id", id),
			slog.String("kind", string(ev.Kind)),
		)
		return false
	}
}

func (b *Bridge) push(id string) {
	if snap, ok := b.store.Get(id); ok {
		b.notifier.SessionUpdated(snap)
	}
}

func (b *Bridge) record(id string) {
	if b.recorder == nil {
		return
	}
	snap, ok := b.store.Get(id)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.recorder.Record(ctx, snap)
	}()
}

func (b *Bridge) fileURL(sessionID, rel string) string {
	if b.urlFor == nil {
		return ""
	}
	return b.urlFor(sessionID, rel)
}

// forget releases the session's cancel func when the loop exits on its own
// (terminal event or closed channel).
func (b *Bridge) forget(id string) {
	b.mu.Lock()
	cancel, ok := b.cancels[id]
	delete(b.cancels, id)
	b.mu.Unlock()
	if ok {
		cancel()
	}
}
