package anacrolix

import (
	"context"
	"log/slog"
	"path"
	"runtime/debug"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"magnetstream/internal/domain"
)

// Session is one live download bound to an anacrolix torrent. watch is the
// only sender on events and closes it when the session ends.
type Session struct {
	torrent          *torrent.Torrent
	logger           *slog.Logger
	metadataTimeout  time.Duration
	progressInterval time.Duration
	events           chan domain.Event
	done             chan struct{}
	destroyOnce      sync.Once
}

func newSession(t *torrent.Torrent, logger *slog.Logger, metadataTimeout, progressInterval time.Duration) *Session {
	return &Session{
		torrent:          t,
		logger:           logger,
		metadataTimeout:  metadataTimeout,
		progressInterval: progressInterval,
		events:           make(chan domain.Event, 64),
		done:             make(chan struct{}),
	}
}

func (s *Session) InfoHash() string {
	return s.torrent.InfoHash().HexString()
}

func (s *Session) Events() <-chan domain.Event {
	return s.events
}

// Destroy drops the torrent from the client. Piece data already on disk is
// left alone; deleting output files is the caller's decision.
func (s *Session) Destroy(ctx context.Context) error {
	s.destroyOnce.Do(func() {
		close(s.done)
		s.torrent.Drop()
	})
	return nil
}

// watch drives the session's event stream: wait for metadata, then sample
// progress until the torrent is fully downloaded.
func (s *Session) watch() {
	defer close(s.events)

	t := s.torrent

	select {
	case <-s.done:
		return
	case <-t.Closed():
		s.emit(domain.Event{Kind: domain.EventError, Err: "torrent session closed by engine"})
		return
	case <-time.After(s.metadataTimeout):
		s.logger.Warn("metadata wait timed out",
			slog.String("infoHash", t.InfoHash().HexString()),
		)
		s.emit(domain.Event{Kind: domain.EventError, Err: "timed out waiting for torrent metadata"})
		return
	case <-t.GotInfo():
	}

	t.DownloadAll()
	s.emit(domain.Event{
		Kind:       domain.EventMetadata,
		Name:       t.Name(),
		TotalBytes: t.Length(),
		Files:      mapFiles(t),
	})

	ticker := time.NewTicker(s.progressInterval)
	defer ticker.Stop()

	var prev speedSample
	for {
		select {
		case <-s.done:
			return
		case <-t.Closed():
			s.emit(domain.Event{Kind: domain.EventError, Err: "torrent session closed by engine"})
			return
		case now := <-ticker.C:
			stats := t.Stats()
			completed := t.BytesCompleted()
			length := t.Length()

			downloadRate, uploadRate := prev.rates(stats, now)
			prev = speedSample{
				at:           now,
				bytesRead:    stats.BytesReadUsefulData.Int64(),
				bytesWritten: stats.BytesWrittenData.Int64(),
			}

			if length > 0 && completed >= length {
				s.emit(domain.Event{
					Kind:       domain.EventDone,
					Name:       t.Name(),
					TotalBytes: length,
					Files:      mapFiles(t),
				})
				return
			}

			s.emit(domain.Event{
				Kind:            domain.EventProgress,
				TotalBytes:      length,
				DownloadedBytes: completed,
				DownloadRateBps: downloadRate,
				UploadRateBps:   uploadRate,
				PeerCount:       stats.ActivePeers,
			})
		}
	}
}

// emit delivers an event to the consumer. Progress and metadata updates are
// disposable and dropped when the buffer is full; done and error are
// terminal and must land, so they block until the consumer drains or the
// session is destroyed.
func (s *Session) emit(ev domain.Event) {
	if ev.Kind == domain.EventDone || ev.Kind == domain.EventError {
		select {
		case s.events <- ev:
		case <-s.done:
		}
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

type speedSample struct {
	at           time.Time
	bytesRead    int64
	bytesWritten int64
}

// rates derives instantaneous byte rates from the delta to the previous
// sample, clamped at zero (counters can reset when peers churn).
func (prev speedSample) rates(stats torrent.TorrentStats, now time.Time) (download, upload int64) {
	if prev.at.IsZero() {
		return 0, 0
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}
	deltaRead := stats.BytesReadUsefulData.Int64() - prev.bytesRead
	deltaWritten := stats.BytesWrittenData.Int64() - prev.bytesWritten
	if deltaRead < 0 {
		deltaRead = 0
	}
	if deltaWritten < 0 {
		deltaWritten = 0
	}
	return int64(float64(deltaRead) / dt), int64(float64(deltaWritten) / dt)
}

func mapFiles(t *torrent.Torrent) (mapped []domain.FileInfo) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mapFiles panic recovered",
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())),
			)
			mapped = nil
		}
	}()

	files := t.Files()
	mapped = make([]domain.FileInfo, 0, len(files))
	for _, f := range files {
		p := f.Path()
		mapped = append(mapped, domain.FileInfo{
			Name: path.Base(p),
			Size: f.Length(),
			Path: p,
		})
	}
	return mapped
}
