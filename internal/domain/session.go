package domain

import "math"

type Status string

const (
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// PlaceholderName is shown for a session until engine metadata arrives.
const PlaceholderName = "Fetching metadata..."

// SessionFile is the externally visible file entry of a session. DownloadURL
// is populated only once the session is completed.
type SessionFile struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	RelativePath string `json:"relativePath"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
}

// Session is the canonical mutable state of one download. The store owns the
// only live copy; everything outside the store sees Snapshot values.
type Session struct {
	ID              string
	DisplayName     string
	Status          Status
	ProgressPercent int
	TotalBytes      int64
	DownloadedBytes int64
	DownloadRateBps int64
	UploadRateBps   int64
	PeerCount       int
	Files           []SessionFile
	ErrorMessage    string
}

// Snapshot is the wire shape of a session. It is always an independent copy,
// never an alias into live store state.
type Snapshot struct {
	ID              string        `json:"id"`
	DisplayName     string        `json:"displayName"`
	Status          Status        `json:"status"`
	ProgressPercent int           `json:"progressPercent"`
	TotalBytes      int64         `json:"totalBytes"`
	DownloadedBytes int64         `json:"downloadedBytes"`
	DownloadRateBps int64         `json:"downloadRateBps"`
	UploadRateBps   int64         `json:"uploadRateBps"`
	PeerCount       int           `json:"peerCount"`
	Files           []SessionFile `json:"files"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
}

func NewSession(id string) *Session {
	return &Session{
		ID:          id,
		DisplayName: PlaceholderName,
		Status:      StatusDownloading,
		Files:       []SessionFile{},
	}
}

func (s *Session) Snapshot() Snapshot {
	files := make([]SessionFile, len(s.Files))
	copy(files, s.Files)
	return Snapshot{
		ID:              s.ID,
		DisplayName:     s.DisplayName,
		Status:          s.Status,
		ProgressPercent: s.ProgressPercent,
		TotalBytes:      s.TotalBytes,
		DownloadedBytes: s.DownloadedBytes,
		DownloadRateBps: s.DownloadRateBps,
		UploadRateBps:   s.UploadRateBps,
		PeerCount:       s.PeerCount,
		Files:           files,
		ErrorMessage:    s.ErrorMessage,
	}
}

func (s *Session) terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

// ApplyMetadata populates name, size and the file list. Download URLs are not
// set here — files are not complete yet.
func (s *Session) ApplyMetadata(ev Event) {
	if s.terminal() {
		return
	}
	if ev.Name != "" {
		s.DisplayName = ev.Name
	}
	s.TotalBytes = ev.TotalBytes
	s.Files = sessionFiles(ev.Files)
}

// ApplyProgress updates the counters. Status never changes here and
// ProgressPercent never decreases.
func (s *Session) ApplyProgress(ev Event) {
	if s.terminal() {
		return
	}
	if ev.DownloadedBytes > s.DownloadedBytes {
		s.DownloadedBytes = ev.DownloadedBytes
	}
	if s.TotalBytes > 0 && s.DownloadedBytes > s.TotalBytes {
		s.DownloadedBytes = s.TotalBytes
	}
	s.DownloadRateBps = ev.DownloadRateBps
	s.UploadRateBps = ev.UploadRateBps
	s.PeerCount = ev.PeerCount
	if pct := progressPercent(s.DownloadedBytes, s.TotalBytes); pct > s.ProgressPercent {
		s.ProgressPercent = pct
	}
}

// ApplyDone marks the session completed and rebuilds the file list with
// download URLs produced by urlFor (relative path in, URL out).
func (s *Session) ApplyDone(ev Event, urlFor func(relPath string) string) {
	if s.terminal() {
		return
	}
	s.Status = StatusCompleted
	s.ProgressPercent = 100
	if ev.TotalBytes > 0 {
		s.TotalBytes = ev.TotalBytes
	}
	s.DownloadedBytes = s.TotalBytes
	s.DownloadRateBps = 0
	s.UploadRateBps = 0
	if len(ev.Files) > 0 {
		s.Files = sessionFiles(ev.Files)
	}
	if urlFor != nil {
		for i := range s.Files {
			s.Files[i].DownloadURL = urlFor(s.Files[i].RelativePath)
		}
	}
}

// ApplyError marks the session failed. Terminal; later events are ignored.
func (s *Session) ApplyError(ev Event) {
	if s.terminal() {
		return
	}
	s.Status = StatusError
	s.ErrorMessage = ev.Err
	s.DownloadRateBps = 0
	s.UploadRateBps = 0
	s.PeerCount = 0
}

// progressPercent never reports a value before total size is known — the
// division is only defined once metadata has arrived.
func progressPercent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(done) / float64(total)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func sessionFiles(files []FileInfo) []SessionFile {
	out := make([]SessionFile, 0, len(files))
	for _, f := range files {
		out = append(out, SessionFile{
			Name:         f.Name,
			Size:         f.Size,
			RelativePath: f.Path,
		})
	}
	return out
}
