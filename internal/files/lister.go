package files

import (
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileEntry is one completed file under the downloads root, derived purely
// from filesystem state.
type FileEntry struct {
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
	SizeBytes    int64  `json:"sizeBytes"`
	DownloadURL  string `json:"downloadUrl"`
}

// Lister enumerates files under the downloads root for the browse view.
type Lister struct {
	root   string
	logger *slog.Logger
}

func NewLister(root string, logger *slog.Logger) *Lister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lister{root: filepath.Clean(root), logger: logger}
}

// List walks the root recursively. A subtree that cannot be read is logged
// and skipped; partial results beat total failure.
func (l *Lister) List() []FileEntry {
	entries := []FileEntry{}

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn("file listing: skipping subtree",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(l.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		info, infoErr := d.Info()
		if infoErr != nil {
			l.logger.Warn("file listing: stat failed",
				slog.String("path", path),
				slog.String("error", infoErr.Error()),
			)
			return nil
		}

		entries = append(entries, FileEntry{
			Name:         d.Name(),
			RelativePath: rel,
			SizeBytes:    info.Size(),
			DownloadURL:  DownloadURL(rel),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		l.logger.Warn("file listing failed", slog.String("error", err.Error()))
	}

	return entries
}

// DownloadURL builds the attachment URL for a slash-separated relative path,
// escaping each segment while keeping the separators.
func DownloadURL(rel string) string {
	segments := strings.Split(rel, "/")
	escaped := make([]string, 0, len(segments))
	for _, seg := range segments {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return "/files/" + strings.Join(escaped, "/")
}
