package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/internal/schedule"
	"github.com/confirmline/confirmline/internal/store"
	"github.com/confirmline/confirmline/pkg/logging"
)

// UploadHandler ingests schedule PDFs and exposes the resulting
// appointment list. Each upload replaces the previous schedule wholesale.
type UploadHandler struct {
	registry    *appointment.Registry
	parser      *schedule.Parser
	store       *store.Store
	logger      *logging.Logger
	uploadDir   string
	maxFileSize int64
}

type UploadHandlerConfig struct {
	Registry    *appointment.Registry
	Parser      *schedule.Parser
	Store       *store.Store
	Logger      *logging.Logger
	UploadDir   string
	MaxFileSize int64
}

func NewUploadHandler(cfg UploadHandlerConfig) *UploadHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 << 20
	}
	return &UploadHandler{
		registry:    cfg.Registry,
		parser:      cfg.Parser,
		store:       cfg.Store,
		logger:      cfg.Logger,
		uploadDir:   cfg.UploadDir,
		maxFileSize: cfg.MaxFileSize,
	}
}

// HandleUpload accepts a multipart schedule PDF, parses it, and replaces
// the in-memory appointment registry with the unconfirmed rows found.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large or malformed upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "only PDF files are accepted")
		return
	}

	path := filepath.Join(h.uploadDir, uuid.NewString()+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		h.logger.Error("failed to create upload file", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	size, err := io.Copy(dst, file)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		h.logger.Error("failed to write upload file", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.Remove(path)

	appointments, err := h.parser.ParseFile(path)
	if err != nil {
		h.logger.Error("schedule parse failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("failed to parse schedule: %v", err))
		return
	}

	h.registry.Clear()
	for _, apt := range appointments {
		h.registry.Add(apt)
		if err := h.store.SaveAppointment(r.Context(), *apt); err != nil {
			h.logger.Warn("failed to persist appointment", "appointment_id", apt.ID, "error", err)
		}
	}
	if err := h.store.RecordUpload(r.Context(), header.Filename, size, len(appointments)); err != nil {
		h.logger.Warn("failed to record upload", "filename", header.Filename, "error", err)
	}

	h.logger.Info("schedule uploaded",
		"filename", header.Filename,
		"size_bytes", size,
		"appointments_found", len(appointments),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":            "schedule processed",
		"filename":           header.Filename,
		"appointments_found": len(appointments),
		"appointments":       h.registry.All(),
	})
}

// HandleListAppointments returns the current schedule's appointments.
func (h *UploadHandler) HandleListAppointments(w http.ResponseWriter, r *http.Request) {
	appointments := h.registry.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(appointments),
		"appointments": appointments,
	})
}

// HandleRecentUploads lists upload history from the audit store.
func (h *UploadHandler) HandleRecentUploads(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.RecentUploads(r.Context(), 20)
	if err != nil {
		h.logger.Error("failed to list uploads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}
	if records == nil {
		records = []store.UploadRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": records})
}
