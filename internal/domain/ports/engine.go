package ports

import (
	"context"

	"magnetstream/internal/domain"
)

// Engine is the external torrent collaborator. The wire protocol, peer
// discovery and piece I/O all live behind this boundary.
type Engine interface {
	// AddMagnet starts a download of the given magnet link into destDir and
	// returns the session handle. The returned session's event channel carries
	// metadata, progress, done and error events until Destroy or a terminal
	// event.
	AddMagnet(ctx context.Context, magnet, destDir string) (EngineSession, error)
	Close() error
}

// EngineSession is one live engine-side download.
type EngineSession interface {
	InfoHash() string
	// Events returns the session's event stream. The channel is closed when
	// the session ends (terminal event or Destroy). Sends never block the
	// engine; consumers that fall behind may miss progress ticks.
	Events() <-chan domain.Event
	// Destroy tears the engine session down. Idempotent.
	Destroy(ctx context.Context) error
}
