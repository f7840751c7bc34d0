package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/54b3r/supportbot-go/internal/logging"
)

// uploadField is the multipart form field carrying the file.
const uploadField = "file"

// handleUpload handles POST /upload. The file is saved under UploadDir with
// its base name only, then ingested into the live index.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if r.ContentLength > s.cfg.MaxUploadBytes {
		s.rejectTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.rejectTooLarge(w)
			return
		}
		s.metrics.uploadsTotal.WithLabelValues("missing").Inc()
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	name := sanitizeFilename(header.Filename)
	if name == "" {
		s.metrics.uploadsTotal.WithLabelValues("missing").Inc()
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	log = log.With(slog.String("file", name), slog.Int64("size", header.Size))

	path, err := s.saveUpload(name, file)
	if err != nil {
		log.Error("upload save failed", slog.Any("error", err))
		s.metrics.uploadsTotal.WithLabelValues("save_error").Inc()
		writeError(w, http.StatusInternalServerError, "Error saving file")
		return
	}

	n, err := s.ingester.IngestFile(r.Context(), path)
	if err != nil {
		log.Error("upload ingestion failed", slog.Any("error", err))
		s.metrics.uploadsTotal.WithLabelValues("ingest_error").Inc()
		writeError(w, http.StatusInternalServerError, "Error processing file")
		return
	}

	log.Info("upload ingested", slog.Int("chunks", n))
	s.metrics.uploadsTotal.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(uploadResponse{
		Message: "File uploaded and processed",
		File:    name,
		Chunks:  n,
	})
}

// rejectTooLarge answers 413 for bodies over MaxUploadBytes.
func (s *Server) rejectTooLarge(w http.ResponseWriter) {
	s.metrics.uploadsTotal.WithLabelValues("too_large").Inc()
	writeError(w, http.StatusRequestEntityTooLarge, "File too large")
}

// saveUpload copies src to UploadDir/name and returns the written path.
func (s *Server) saveUpload(name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o750); err != nil {
		return "", fmt.Errorf("server: create upload dir: %w", err)
	}

	path := filepath.Join(s.cfg.UploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("server: create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("server: write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("server: close %s: %w", path, err)
	}
	return path, nil
}

// sanitizeFilename reduces a client-supplied name to its base name. It
// returns "" for names that do not denote a file.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(name)
	switch base {
	case ".", "..", "/":
		return ""
	}
	return base
}
