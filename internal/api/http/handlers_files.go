package apihttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.lister.List())
}

// resolveRequestFile maps a /files/ or /stream/ request path onto a regular
// file under the downloads root. Errors are already written to w.
func (s *Server) resolveRequestFile(w http.ResponseWriter, r *http.Request, prefix string) (string, os.FileInfo, bool) {
	rel, ok := trimPathPrefix(r.URL.Path, prefix)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_path", "file path is required")
		return "", nil, false
	}

	abs, err := s.resolver.Resolve(rel)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_path", "file path is invalid")
		return "", nil, false
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("stat file failed",
				slog.String("path", rel),
				slog.String("error", err.Error()))
		}
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return "", nil, false
	}
	return abs, info, true
}

func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	abs, info, ok := s.resolveRequestFile(w, r, "/files/")
	if !ok {
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(abs)))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to open file")
		return
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		s.logger.Debug("file download aborted",
			slog.String("path", abs),
			slog.String("error", err.Error()))
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	abs, info, ok := s.resolveRequestFile(w, r, "/stream/")
	if !ok {
		return
	}
	size := info.Size()

	contentType := mime.TypeByExtension(filepath.Ext(abs))
	if contentType == "" {
		contentType = fallbackContentType(filepath.Ext(abs))
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		f, err := os.Open(abs)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to open file")
			return
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			s.logger.Debug("stream aborted",
				slog.String("path", abs),
				slog.String("error", err.Error()))
		}
		return
	}

	start, end, err := parseByteRange(rangeHeader, size)
	if err != nil {
		if errors.Is(err, errRangeNotSatisfiable) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			writeError(w, http.StatusRequestedRangeNotSatisfiable, "range_not_satisfiable", "requested range is outside the file")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_range", "Range header is malformed")
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusPartialContent)
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to open file")
		return
	}
	defer f.Close()

	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.Copy(w, io.NewSectionReader(f, start, length)); err != nil {
		s.logger.Debug("stream aborted",
			slog.String("path", abs),
			slog.String("error", err.Error()))
	}
}
