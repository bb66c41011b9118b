package domain

type EventKind string

const (
	EventMetadata EventKind = "metadata"
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// FileInfo describes one file of a torrent as reported by the engine. Path is
// relative to the session's output directory, slash-separated.
type FileInfo struct {
	Name string
	Size int64
	Path string
}

// Event is a single typed message from an engine session. Which fields are
// meaningful depends on Kind: metadata carries Name/TotalBytes/Files, progress
// carries the counters, done carries the final Files, error carries Err.
type Event struct {
	Kind            EventKind
	Name            string
	TotalBytes      int64
	Files           []FileInfo
	DownloadedBytes int64
	DownloadRateBps int64
	UploadRateBps   int64
	PeerCount       int
	Err             string
}
