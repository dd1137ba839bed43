package telephony

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/pkg/logging"
)

// AMD modes accepted by TwilioGatewayConfig.
const (
	AMDModeNone             = "none"
	AMDModeEnable           = "enable"
	AMDModeDetectMessageEnd = "detect_message_end"
)

// TwilioGatewayConfig carries the provider credentials and placement
// options for the Twilio-backed gateway.
type TwilioGatewayConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	AMDMode    string
}

// TwilioGateway implements Gateway against the Twilio REST API.
type TwilioGateway struct {
	client  *twilio.RestClient
	from    string
	baseURL string
	amdMode string

	registry *appointment.Registry
	scripts  *ScriptBuilder
	window   *CallWindow
	logger   *logging.Logger
}

// NewTwilioGateway builds the gateway. Missing credentials leave the
// client nil; PlaceCall then fails with ErrNotConfigured instead of
// panicking at startup.
func NewTwilioGateway(cfg TwilioGatewayConfig, registry *appointment.Registry, scripts *ScriptBuilder, window *CallWindow, logger *logging.Logger) *TwilioGateway {
	if logger == nil {
		logger = logging.Default()
	}
	g := &TwilioGateway{
		from:     cfg.FromNumber,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		amdMode:  strings.ToLower(strings.TrimSpace(cfg.AMDMode)),
		registry: registry,
		scripts:  scripts,
		window:   window,
		logger:   logger,
	}
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		g.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
	} else {
		logger.Warn("twilio credentials not configured; call placement disabled")
	}
	return g
}

// PlaceCall dials the appointment's phone number and records the call in
// the registry (call index entry, attempt counter, Calling status). The
// call-window policy is enforced here so the single-call and batch paths
// behave identically.
func (g *TwilioGateway) PlaceCall(ctx context.Context, appointmentID string, overrideWindow bool) (string, error) {
	if g.client == nil {
		return "", ErrNotConfigured
	}
	if !overrideWindow && !g.window.Within() {
		return "", fmt.Errorf("%w (%s)", ErrOutsideCallWindow, g.window)
	}

	apt, ok := g.registry.Get(appointmentID)
	if !ok {
		return "", ErrUnknownAppointment
	}
	if !apt.Status.Callable() {
		return "", fmt.Errorf("%w: status %s", ErrNotCallable, apt.Status)
	}
	if apt.Phone == "" {
		return "", fmt.Errorf("telephony: appointment %s has no valid phone number", appointmentID)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(apt.Phone)
	params.SetFrom(g.from)

	if g.hasPublicWebhookURL() {
		params.SetUrl(g.baseURL + "/twilio/voice")
		params.SetStatusCallback(g.baseURL + "/twilio/status")
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
		params.SetStatusCallbackMethod("POST")
		switch g.amdMode {
		case AMDModeEnable:
			params.SetMachineDetection("Enable")
			params.SetMachineDetectionTimeout(30)
			// Async AMD only for simple detection; DetectMessageEnd needs
			// the synchronous result before the voice webhook fires.
			params.SetAsyncAmd("true")
		case AMDModeDetectMessageEnd:
			params.SetMachineDetection("DetectMessageEnd")
			params.SetMachineDetectionTimeout(30)
		}
	} else {
		// No public URL for webhooks; fall back to a self-contained script.
		doc, err := g.scripts.InlineMenu(&apt)
		if err != nil {
			return "", fmt.Errorf("telephony: build inline script: %w", err)
		}
		params.SetTwiml(doc)
		g.logger.Info("placing call with inline script", "base_url", g.baseURL)
	}

	resp, err := g.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("telephony: call placement returned no call SID")
	}
	callSID := *resp.Sid

	g.registry.RecordCallPlaced(callSID, appointmentID)
	g.logger.Info("call initiated", "call_sid", callSID, "appointment_id", appointmentID)
	return callSID, nil
}

func (g *TwilioGateway) hasPublicWebhookURL() bool {
	if g.baseURL == "" {
		return false
	}
	for _, private := range []string{"localhost", "127.0.0.1", "192.168."} {
		if strings.Contains(g.baseURL, private) {
			return false
		}
	}
	return true
}
