package apihttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"magnetstream/internal/domain"
)

type createDownloadRequest struct {
	MagnetLink string `json:"magnetLink"`
}

type createDownloadResponse struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	InfoHash string `json:"infoHash"`
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleDownloadByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	id, ok := trimPathPrefix(r.URL.Path, "/api/downloads/")
	if !ok || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "download not found")
		return
	}
	snap, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "download not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.engine == nil || s.bridge == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "download engine is not configured")
		return
	}

	var req createDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with a magnetLink field")
		return
	}
	magnet := strings.TrimSpace(req.MagnetLink)
	if !strings.HasPrefix(magnet, "magnet:?") {
		writeError(w, http.StatusBadRequest, "invalid_magnet", "magnetLink must start with magnet:?")
		return
	}
	if len(magnet) > s.maxMagnetLength {
		writeError(w, http.StatusBadRequest, "invalid_magnet", "magnetLink exceeds the maximum allowed length")
		return
	}

	snap := s.store.Create()

	destDir := filepath.Join(s.resolver.Root(), snap.ID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		s.store.Remove(snap.ID)
		s.logger.Error("create download dir failed",
			slog.String("id", snap.ID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to prepare download directory")
		return
	}

	engineSession, err := s.engine.AddMagnet(r.Context(), magnet, destDir)
	if err != nil {
		s.store.Remove(snap.ID)
		if errors.Is(err, domain.ErrInvalidMagnet) {
			writeError(w, http.StatusBadRequest, "invalid_magnet", "magnetLink could not be parsed")
			return
		}
		s.logger.Error("add magnet failed",
			slog.String("id", snap.ID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start download")
		return
	}

	s.trackEngineSession(snap.ID, engineSession)
	s.bridge.Attach(snap.ID, engineSession)
	s.SessionUpdated(snap)

	s.logger.Info("download added",
		slog.String("id", snap.ID),
		slog.String("info_hash", engineSession.InfoHash()))

	writeJSON(w, http.StatusOK, createDownloadResponse{
		ID:       snap.ID,
		Message:  "download added",
		InfoHash: engineSession.InfoHash(),
	})
}

func (s *Server) handleRemoveDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	rest, ok := trimPathPrefix(r.URL.Path, "/api/download/")
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "download not found")
		return
	}

	id := rest
	removeFiles := false
	if trimmed, found := strings.CutSuffix(rest, "/files"); found {
		id = trimmed
		removeFiles = true
	}
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "download not found")
		return
	}

	if !s.store.Remove(id) {
		writeError(w, http.StatusNotFound, "not_found", "download not found")
		return
	}
	s.bridge.Detach(id)

	if es := s.takeEngineSession(id); es != nil {
		if err := es.Destroy(r.Context()); err != nil {
			s.logger.Warn("engine session destroy failed",
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
	}

	if removeFiles {
		dir := filepath.Join(s.resolver.Root(), id)
		go func() {
			if err := os.RemoveAll(dir); err != nil {
				s.logger.Warn("remove download files failed",
					slog.String("id", id),
					slog.String("error", err.Error()))
			}
		}()
	}

	s.wsHub.Broadcast("downloads-list", s.store.List())
	s.logger.Info("download removed",
		slog.String("id", id),
		slog.Bool("with_files", removeFiles))

	writeJSON(w, http.StatusOK, map[string]string{"message": "download removed"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "not_found", "download history is not enabled")
		return
	}

	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
		return
	}

	entries, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load download history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
