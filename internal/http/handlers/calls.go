package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/internal/calllog"
	"github.com/confirmline/confirmline/internal/callqueue"
	"github.com/confirmline/confirmline/internal/http/middleware"
	"github.com/confirmline/confirmline/internal/observability/metrics"
	"github.com/confirmline/confirmline/internal/store"
	"github.com/confirmline/confirmline/internal/telephony"
	"github.com/confirmline/confirmline/pkg/logging"
)

// CallHandler drives outbound confirmation calls: single calls, the
// sequential batch queue, and per-call event history.
type CallHandler struct {
	registry *appointment.Registry
	gateway  telephony.Gateway
	queue    *callqueue.Queue
	events   *calllog.Store
	store    *store.Store
	metrics  *metrics.CallMetrics
	logger   *logging.Logger
}

type CallHandlerConfig struct {
	Registry *appointment.Registry
	Gateway  telephony.Gateway
	Queue    *callqueue.Queue
	Events   *calllog.Store
	Store    *store.Store
	Metrics  *metrics.CallMetrics
	Logger   *logging.Logger
}

func NewCallHandler(cfg CallHandlerConfig) *CallHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &CallHandler{
		registry: cfg.Registry,
		gateway:  cfg.Gateway,
		queue:    cfg.Queue,
		events:   cfg.Events,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// HandleStartCall places one immediate call to the given appointment,
// outside the batch queue. override_window=true skips the calling-hours
// check for manual operator-initiated calls.
func (h *CallHandler) HandleStartCall(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "appointmentID")
	overrideWindow := r.URL.Query().Get("override_window") == "true"

	callSID, err := h.gateway.PlaceCall(r.Context(), appointmentID, overrideWindow)
	if err != nil {
		h.metrics.ObserveCallPlaced("error")
		switch {
		case errors.Is(err, telephony.ErrUnknownAppointment):
			writeError(w, http.StatusNotFound, "appointment not found")
		case errors.Is(err, telephony.ErrOutsideCallWindow):
			writeError(w, http.StatusConflict, "outside allowed calling hours")
		case errors.Is(err, telephony.ErrNotCallable):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, telephony.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "telephony is not configured")
		default:
			h.logger.Error("call placement failed", "appointment_id", appointmentID, "error", err)
			writeError(w, http.StatusBadGateway, "failed to place call")
		}
		return
	}

	h.metrics.ObserveCallPlaced("ok")
	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": appointmentID,
		"call_sid":       callSID,
	})
}

type startBatchRequest struct {
	AppointmentIDs []string `json:"appointment_ids"`
	OverrideWindow bool     `json:"override_window"`
}

// HandleStartBatch starts the sequential call queue. Without an explicit
// appointment list the batch covers every callable appointment in the
// registry.
func (h *CallHandler) HandleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ids := req.AppointmentIDs
	if len(ids) == 0 {
		for _, apt := range h.registry.All() {
			if apt.Status.Callable() {
				ids = append(ids, apt.ID)
			}
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusConflict, "no callable appointments")
		return
	}

	snapshot := h.queue.Start(r.Context(), ids, req.OverrideWindow)
	h.metrics.ObserveBatchStarted()
	h.logger.Info("call batch started",
		"requested", len(ids),
		"queued", snapshot.QueuedCount,
		"operator", middleware.AdminSubject(r.Context()),
	)

	writeJSON(w, http.StatusAccepted, snapshot)
}

// HandleBatchStatus reports the live queue snapshot.
func (h *CallHandler) HandleBatchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Status())
}

// HandleCancelBatch stops the queue from placing further calls. The
// in-flight call, if any, runs to completion.
func (h *CallHandler) HandleCancelBatch(w http.ResponseWriter, r *http.Request) {
	snapshot := h.queue.Cancel()
	h.logger.Info("call batch cancelled",
		"remaining_done", snapshot.DoneCount,
		"operator", middleware.AdminSubject(r.Context()),
	)
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleCallHistory returns the durable call history for one
// appointment. Unlike the per-SID event log, history spans every call
// ever placed for the appointment and survives restarts.
func (h *CallHandler) HandleCallHistory(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "appointmentID")

	records, err := h.store.CallHistory(r.Context(), appointmentID, 100)
	if err != nil {
		h.logger.Error("failed to list call history", "appointment_id", appointmentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list call history")
		return
	}
	if records == nil {
		records = []store.CallHistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointment_id": appointmentID,
		"history":        records,
	})
}

// HandleCallEvents returns the recorded event trail for one call SID.
func (h *CallHandler) HandleCallEvents(w http.ResponseWriter, r *http.Request) {
	callSID := chi.URLParam(r, "callSID")

	events, err := h.events.List(r.Context(), callSID, 100)
	if err != nil {
		h.logger.Error("failed to list call events", "call_sid", callSID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list call events")
		return
	}
	if events == nil {
		events = []calllog.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"call_sid": callSID,
		"events":   events,
	})
}
