package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/confirmline/confirmline/internal/telephony"
)

// HealthHandler reports process liveness plus the state of optional
// backing services. Check functions are registered by name; a nil map
// means a bare liveness probe.
type HealthHandler struct {
	telephonyEnabled bool
	window           *telephony.CallWindow
	checks           map[string]func(context.Context) error
}

func NewHealthHandler(telephonyEnabled bool, window *telephony.CallWindow, checks map[string]func(context.Context) error) *HealthHandler {
	return &HealthHandler{telephonyEnabled: telephonyEnabled, window: window, checks: checks}
}

func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[name] = "ok"
		}
	}

	payload := map[string]any{
		"status":             "ok",
		"telephony_enabled":  h.telephonyEnabled,
		"call_window":        h.window.String(),
		"call_window_active": h.window.Within(),
	}
	if status != http.StatusOK {
		payload["status"] = "degraded"
	}
	if len(results) > 0 {
		payload["checks"] = results
	}
	writeJSON(w, status, payload)
}
