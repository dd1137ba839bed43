package telephony

import (
	"fmt"
	"strings"
	"time"
)

// CallWindow is the practice's allowed calling window. The check lives
// here so every placement path (single call or batch advance) goes through
// the same policy; the override flag bypasses it.
type CallWindow struct {
	start    time.Time
	end      time.Time
	location *time.Location
	label    string

	// now is swappable for tests.
	now func() time.Time
}

// NewCallWindow parses HH:MM boundaries in the given IANA timezone.
// Overnight windows (start after end) wrap across midnight.
func NewCallWindow(start, end, timezone string) (*CallWindow, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(timezone))
	if err != nil {
		return nil, fmt.Errorf("telephony: invalid timezone %q: %w", timezone, err)
	}
	startT, err := time.Parse("15:04", strings.TrimSpace(start))
	if err != nil {
		return nil, fmt.Errorf("telephony: invalid window start %q: %w", start, err)
	}
	endT, err := time.Parse("15:04", strings.TrimSpace(end))
	if err != nil {
		return nil, fmt.Errorf("telephony: invalid window end %q: %w", end, err)
	}
	return &CallWindow{
		start:    startT,
		end:      endT,
		location: loc,
		label:    fmt.Sprintf("%s - %s %s", strings.TrimSpace(start), strings.TrimSpace(end), timezone),
		now:      time.Now,
	}, nil
}

// Within reports whether the current local time falls inside the window.
func (w *CallWindow) Within() bool {
	if w == nil {
		return true
	}
	now := w.now().In(w.location)
	cur := now.Hour()*60 + now.Minute()
	start := w.start.Hour()*60 + w.start.Minute()
	end := w.end.Hour()*60 + w.end.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	// Overnight wrap.
	return cur >= start || cur <= end
}

// String describes the window for health checks and error messages.
func (w *CallWindow) String() string {
	if w == nil {
		return "unrestricted"
	}
	return w.label
}
