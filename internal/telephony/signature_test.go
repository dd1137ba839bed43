package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestValidateSignature(t *testing.T) {
	authToken := "test_token"
	webhookURL := "https://calls.example.com/twilio/voice"

	formData := url.Values{}
	formData.Set("CallSid", "CA123")
	formData.Set("From", "+14125550100")
	formData.Set("CallStatus", "in-progress")

	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	payload := buildSignaturePayload(webhookURL, formData)
	req.Header.Set("X-Twilio-Signature", computeSignature(payload, authToken))

	if !ValidateSignature(req, authToken, webhookURL) {
		t.Error("expected signature validation to pass")
	}
}

func TestValidateSignature_InvalidSignature(t *testing.T) {
	webhookURL := "https://calls.example.com/twilio/voice"

	formData := url.Values{}
	formData.Set("CallSid", "CA123")

	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "invalid_signature")

	if ValidateSignature(req, "test_token", webhookURL) {
		t.Error("expected signature validation to fail")
	}
}

func TestValidateSignature_MissingSignature(t *testing.T) {
	webhookURL := "https://calls.example.com/twilio/voice"

	req := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader("CallSid=CA123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if ValidateSignature(req, "test_token", webhookURL) {
		t.Error("expected signature validation to fail without signature header")
	}
}
