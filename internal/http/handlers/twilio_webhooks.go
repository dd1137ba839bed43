package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/internal/callflow"
	"github.com/confirmline/confirmline/internal/observability/metrics"
	"github.com/confirmline/confirmline/internal/telephony"
	"github.com/confirmline/confirmline/pkg/logging"
)

// TwilioWebhookHandler terminates the provider's call webhooks and feeds
// them to the call-flow service. Every TwiML-expecting endpoint answers
// 200 with a well-formed document no matter what went wrong; an error
// status would make the provider drop the live call.
type TwilioWebhookHandler struct {
	flow      *callflow.Service
	scripts   *telephony.ScriptBuilder
	metrics   *metrics.CallMetrics
	logger    *logging.Logger
	authToken string
	baseURL   string
	validate  bool
}

type TwilioWebhookConfig struct {
	Flow    *callflow.Service
	Scripts *telephony.ScriptBuilder
	Metrics *metrics.CallMetrics
	Logger  *logging.Logger

	// AuthToken + PublicBaseURL enable request signature validation.
	AuthToken         string
	PublicBaseURL     string
	ValidateSignature bool
}

func NewTwilioWebhookHandler(cfg TwilioWebhookConfig) *TwilioWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &TwilioWebhookHandler{
		flow:      cfg.Flow,
		scripts:   cfg.Scripts,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		authToken: cfg.AuthToken,
		baseURL:   cfg.PublicBaseURL,
		validate:  cfg.ValidateSignature && cfg.AuthToken != "",
	}
}

// HandleVoice answers the provider's request for the next voice script
// when a call connects or redirects back through the menu.
func (h *TwilioWebhookHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observeLatency("voice", start)

	if !h.checkSignature(w, r, "voice") {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.rejectWithFallback(w, "voice", err)
		return
	}

	attempt, _ := strconv.Atoi(r.URL.Query().Get("attempt"))
	doc := h.flow.VoiceEntry(r.Context(), callflow.VoiceEntryEvent{
		CallSID:    r.PostFormValue("CallSid"),
		AnsweredBy: appointment.AnsweredBy(r.PostFormValue("AnsweredBy")),
		Attempt:    attempt,
	})

	h.metrics.ObserveWebhook("voice", "ok")
	writeTwiML(w, doc)
}

// HandleGather receives the digits the patient pressed. A gather that
// timed out posts empty digits and loops back through the menu.
func (h *TwilioWebhookHandler) HandleGather(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observeLatency("gather", start)

	if !h.checkSignature(w, r, "gather") {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.rejectWithFallback(w, "gather", err)
		return
	}

	callSID := r.PostFormValue("CallSid")
	digits := r.PostFormValue("Digits")
	attempt, _ := strconv.Atoi(r.URL.Query().Get("attempt"))

	var doc string
	if digits == "" {
		doc = h.flow.EmptyGather(r.Context(), callSID)
	} else {
		doc = h.flow.Gather(r.Context(), callflow.GatherEvent{CallSID: callSID, Digits: digits, Attempt: attempt})
	}

	h.metrics.ObserveWebhook("gather", "ok")
	writeTwiML(w, doc)
}

// HandleDialStatus runs after the bridged office transfer ends.
func (h *TwilioWebhookHandler) HandleDialStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observeLatency("dial-status", start)

	if !h.checkSignature(w, r, "dial-status") {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.rejectWithFallback(w, "dial-status", err)
		return
	}

	doc := h.flow.DialStatus(r.Context(), callflow.DialStatusEvent{
		CallSID:        r.PostFormValue("CallSid"),
		DialCallStatus: r.PostFormValue("DialCallStatus"),
	})

	h.metrics.ObserveWebhook("dial-status", "ok")
	writeTwiML(w, doc)
}

// HandleStatus receives asynchronous call-status callbacks. No TwiML is
// expected back; the provider only wants a 2xx.
func (h *TwilioWebhookHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observeLatency("status", start)

	if h.validate && !telephony.ValidateSignature(r, h.authToken, h.baseURL+r.URL.RequestURI()) {
		h.metrics.ObserveWebhook("status", "rejected")
		h.logger.Warn("invalid webhook signature", "path", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.metrics.ObserveWebhook("status", "error")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.flow.StatusCallback(r.Context(), callflow.StatusEvent{
		CallSID:    r.PostFormValue("CallSid"),
		CallStatus: r.PostFormValue("CallStatus"),
		AnsweredBy: appointment.AnsweredBy(r.PostFormValue("AnsweredBy")),
	})

	h.metrics.ObserveWebhook("status", "ok")
	w.WriteHeader(http.StatusOK)
}

// checkSignature validates the provider signature on TwiML endpoints.
// Rejections still answer with valid TwiML: an unsigned request is not
// allowed to steer the call, but the provider must get a document.
func (h *TwilioWebhookHandler) checkSignature(w http.ResponseWriter, r *http.Request, event string) bool {
	if !h.validate {
		return true
	}
	if telephony.ValidateSignature(r, h.authToken, h.baseURL+r.URL.RequestURI()) {
		return true
	}
	h.metrics.ObserveWebhook(event, "rejected")
	h.logger.Warn("invalid webhook signature", "path", r.URL.Path)
	writeTwiML(w, h.scripts.TechnicalDifficulty())
	return false
}

func (h *TwilioWebhookHandler) rejectWithFallback(w http.ResponseWriter, event string, err error) {
	h.metrics.ObserveWebhook(event, "error")
	h.logger.Warn("malformed webhook form", "event", event, "error", err)
	writeTwiML(w, h.scripts.TechnicalDifficulty())
}

func (h *TwilioWebhookHandler) observeLatency(event string, start time.Time) {
	h.metrics.ObserveWebhookLatency(event, time.Since(start).Seconds())
}
