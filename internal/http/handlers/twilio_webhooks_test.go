package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/internal/callflow"
	"github.com/confirmline/confirmline/internal/telephony"
	"github.com/confirmline/confirmline/pkg/logging"
)

type noopFinisher struct{ finished []string }

func (f *noopFinisher) OnCallFinished(callSID string) { f.finished = append(f.finished, callSID) }

func newWebhookFixture(t *testing.T, validate bool) (*TwilioWebhookHandler, *appointment.Registry, *noopFinisher) {
	t.Helper()
	reg := appointment.NewRegistry()
	scripts := telephony.NewScriptBuilder("Prisk Orthopaedics", "+14125257692", "https://calls.example.com", "alice", 0)
	finisher := &noopFinisher{}
	flow := callflow.NewService(reg, scripts, "+14125550199", finisher, nil, nil, nil, logging.New("error"))
	h := NewTwilioWebhookHandler(TwilioWebhookConfig{
		Flow:              flow,
		Scripts:           scripts,
		Logger:            logging.New("error"),
		AuthToken:         "token",
		PublicBaseURL:     "https://calls.example.com",
		ValidateSignature: validate,
	})
	return h, reg, finisher
}

func seedCall(t *testing.T, reg *appointment.Registry, callSID string) *appointment.Appointment {
	t.Helper()
	apt := appointment.New("Jane Doe", "4125550100", "9:30 AM", "Victor Prisk", "Follow-Up Visit", "Not confirmed")
	reg.Add(apt)
	reg.RecordCallPlaced(callSID, apt.ID)
	return apt
}

func postForm(h http.HandlerFunc, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleVoiceReturnsMenu(t *testing.T) {
	h, reg, _ := newWebhookFixture(t, false)
	seedCall(t, reg, "CA1")

	rec := postForm(h.HandleVoice, "/twilio/voice?attempt=1", url.Values{"CallSid": {"CA1"}})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Fatalf("expected text/xml, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Gather") || !strings.Contains(body, "Press 1 to confirm") {
		t.Fatalf("expected gather menu, got %s", body)
	}
}

func TestHandleVoiceMachineDetection(t *testing.T) {
	h, reg, _ := newWebhookFixture(t, false)
	seedCall(t, reg, "CA1")

	rec := postForm(h.HandleVoice, "/twilio/voice", url.Values{
		"CallSid":    {"CA1"},
		"AnsweredBy": {"machine_end_beep"},
	})

	if strings.Contains(rec.Body.String(), "<Gather") {
		t.Fatalf("voicemail script must not gather digits: %s", rec.Body.String())
	}
}

func TestHandleGatherDigitConfirms(t *testing.T) {
	h, reg, _ := newWebhookFixture(t, false)
	apt := seedCall(t, reg, "CA1")

	rec := postForm(h.HandleGather, "/twilio/gather", url.Values{
		"CallSid": {"CA1"},
		"Digits":  {"1"},
	})

	if !strings.Contains(rec.Body.String(), "confirmed") {
		t.Fatalf("expected confirmation script, got %s", rec.Body.String())
	}
	got, _ := reg.Get(apt.ID)
	if got.Status != appointment.StatusConfirmed {
		t.Fatalf("expected Confirmed, got %s", got.Status)
	}
}

func TestHandleGatherInvalidDigitKeepsAttempt(t *testing.T) {
	h, reg, _ := newWebhookFixture(t, false)
	seedCall(t, reg, "CA1")

	rec := postForm(h.HandleGather, "/twilio/gather?attempt=2", url.Values{
		"CallSid": {"CA1"},
		"Digits":  {"7"},
	})

	body := rec.Body.String()
	if !strings.Contains(body, "Invalid selection") {
		t.Fatalf("expected invalid-selection script, got %s", body)
	}
	if !strings.Contains(body, "/twilio/voice?attempt=2") {
		t.Fatalf("wrong digit must re-enter the menu at the same attempt, got %s", body)
	}
}

func TestHandleGatherEmptyDigitsRedirects(t *testing.T) {
	h, reg, _ := newWebhookFixture(t, false)
	seedCall(t, reg, "CA1")

	rec := postForm(h.HandleGather, "/twilio/gather", url.Values{"CallSid": {"CA1"}})

	body := rec.Body.String()
	if !strings.Contains(body, "/twilio/voice?attempt=2") {
		t.Fatalf("expected redirect back to the menu, got %s", body)
	}
	if strings.Contains(body, "Invalid selection") {
		t.Fatalf("timeout must not be treated as a wrong digit: %s", body)
	}
}

func TestHandleStatusFinalizesOutcome(t *testing.T) {
	h, reg, finisher := newWebhookFixture(t, false)
	apt := seedCall(t, reg, "CA1")

	rec := postForm(h.HandleStatus, "/twilio/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"no-answer"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, _ := reg.Get(apt.ID)
	if got.Status != appointment.StatusNotConfirmed || got.Notes != "Call no-answer" {
		t.Fatalf("unexpected outcome: %s / %q", got.Status, got.Notes)
	}
	if len(finisher.finished) != 1 || finisher.finished[0] != "CA1" {
		t.Fatalf("queue not signalled: %v", finisher.finished)
	}
}

func TestHandleDialStatusFailedTransfer(t *testing.T) {
	h, reg, _ := newWebhookFixture(t, false)
	seedCall(t, reg, "CA1")

	rec := postForm(h.HandleDialStatus, "/twilio/dial-status", url.Values{
		"CallSid":        {"CA1"},
		"DialCallStatus": {"busy"},
	})

	if !strings.Contains(rec.Body.String(), "unable to connect you") {
		t.Fatalf("expected transfer apology, got %s", rec.Body.String())
	}
}

func TestHandleVoiceRejectsBadSignatureWithTwiML(t *testing.T) {
	h, reg, _ := newWebhookFixture(t, true)
	apt := seedCall(t, reg, "CA1")

	rec := postForm(h.HandleVoice, "/twilio/voice", url.Values{"CallSid": {"CA1"}})

	// Unsigned requests may not steer the call, but the provider still
	// needs a valid document and a 200.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "technical difficulties") {
		t.Fatalf("expected fallback script, got %s", rec.Body.String())
	}
	got, _ := reg.Get(apt.ID)
	if got.Status != appointment.StatusCalling {
		t.Fatalf("unsigned request mutated state: %s", got.Status)
	}
}

func TestHandleStatusRejectsBadSignature(t *testing.T) {
	h, reg, finisher := newWebhookFixture(t, true)
	seedCall(t, reg, "CA1")

	rec := postForm(h.HandleStatus, "/twilio/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"completed"},
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(finisher.finished) != 0 {
		t.Fatalf("rejected callback must not signal the queue: %v", finisher.finished)
	}
}
