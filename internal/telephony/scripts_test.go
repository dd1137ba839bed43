package telephony

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confirmline/confirmline/internal/appointment"
)

func testBuilder() *ScriptBuilder {
	return NewScriptBuilder("Prisk Orthopaedics", "+14125257692", "https://calls.example.com", "alice", 0)
}

func testAppointment() *appointment.Appointment {
	apt := appointment.New("Jane Doe", "(412) 555-0100", "9:30 AM", "Victor Prisk", "Follow-Up Visit", "Not confirmed")
	apt.AppointmentDate = "Monday, August, 11, 2025"
	return apt
}

func TestInitialMenuFirstAttempt(t *testing.T) {
	doc, err := testBuilder().InitialMenu(testAppointment(), 1)
	require.NoError(t, err)

	assert.Contains(t, doc, "This is Prisk Orthopaedics calling Jane")
	assert.Contains(t, doc, "Monday, August, 11, 2025")
	assert.Contains(t, doc, "9:30 AM")
	assert.Contains(t, doc, "Press 1 to confirm")
	assert.Contains(t, doc, "Press 9 to stop reminders")
	assert.Contains(t, doc, `numDigits="1"`)
	assert.Contains(t, doc, "https://calls.example.com/twilio/gather?attempt=1")
	// First attempt retries once on gather timeout.
	assert.Contains(t, doc, "/twilio/voice?attempt=2")
	assert.NotContains(t, doc, "<Hangup")
}

func TestInitialMenuRepeatAttemptEndsCall(t *testing.T) {
	doc, err := testBuilder().InitialMenu(testAppointment(), 2)
	require.NoError(t, err)

	assert.Contains(t, doc, "Let me repeat that for you Jane")
	assert.Contains(t, doc, "/twilio/gather?attempt=2")
	assert.NotContains(t, doc, "attempt=3")
	assert.Contains(t, doc, "please call us back at 4 1 2, 5 2 5, 7 6 9 2")
	assert.Contains(t, doc, "<Hangup")
}

func TestInitialMenuWithoutAppointment(t *testing.T) {
	doc, err := testBuilder().InitialMenu(nil, 1)
	require.NoError(t, err)
	assert.Contains(t, doc, "calling to confirm your appointment")
}

func TestVoicemailScriptHasNoGather(t *testing.T) {
	doc, err := testBuilder().Voicemail(testAppointment())
	require.NoError(t, err)

	assert.Contains(t, doc, "remind you that you have an appointment on Monday, August, 11, 2025 at 9:30 AM")
	assert.Contains(t, doc, "4 1 2, 5 2 5, 7 6 9 2")
	assert.NotContains(t, doc, "<Gather")
	assert.Contains(t, doc, "<Hangup")
}

func TestHoldAndTransfer(t *testing.T) {
	doc, err := testBuilder().HoldAndTransfer("+14125550199")
	require.NoError(t, err)

	assert.Contains(t, doc, "Please hold while I connect you to our office")
	assert.Contains(t, doc, `answerOnBridge="true"`)
	assert.Contains(t, doc, `callerId="+14125550199"`)
	assert.Contains(t, doc, "+14125257692")
	assert.Contains(t, doc, "https://calls.example.com/twilio/dial-status")
}

func TestRepeatRedirectsAtAttemptTwo(t *testing.T) {
	doc, err := testBuilder().Repeat()
	require.NoError(t, err)
	assert.Contains(t, doc, "Let me repeat that.")
	assert.Contains(t, doc, "/twilio/voice?attempt=2")
}

func TestInvalidSelectionKeepsAttempt(t *testing.T) {
	doc, err := testBuilder().InvalidSelection(2)
	require.NoError(t, err)
	assert.Contains(t, doc, "Invalid selection.")
	// A wrong key re-enters the menu where it left off.
	assert.Contains(t, doc, "/twilio/voice?attempt=2")
}

func TestInvalidSelectionClampsAttempt(t *testing.T) {
	doc, err := testBuilder().InvalidSelection(0)
	require.NoError(t, err)
	assert.Contains(t, doc, "/twilio/voice?attempt=1")
}

func TestEmptyInputRedirect(t *testing.T) {
	doc, err := testBuilder().EmptyInputRedirect()
	require.NoError(t, err)
	assert.Contains(t, doc, "/twilio/voice?attempt=2")
	assert.NotContains(t, doc, "Invalid selection")
}

func TestTransferFallback(t *testing.T) {
	failed, err := testBuilder().TransferFallback(false)
	require.NoError(t, err)
	assert.Contains(t, failed, "unable to connect you")
	assert.Contains(t, failed, "<Hangup")

	ok, err := testBuilder().TransferFallback(true)
	require.NoError(t, err)
	assert.NotContains(t, ok, "unable to connect you")
	assert.Contains(t, ok, "<Hangup")
}

func TestRetryLater(t *testing.T) {
	doc, err := testBuilder().RetryLater()
	require.NoError(t, err)
	assert.Contains(t, doc, "We'll try again later. Goodbye.")
	assert.Contains(t, doc, "<Hangup")
	assert.NotContains(t, doc, "<Redirect")
}

func TestTechnicalDifficultyAlwaysWellFormed(t *testing.T) {
	doc := testBuilder().TechnicalDifficulty()
	assert.True(t, strings.Contains(doc, "<Response>"))
	assert.Contains(t, doc, "technical difficulties")
}

func TestInlineMenuSelfContained(t *testing.T) {
	doc, err := testBuilder().InlineMenu(testAppointment())
	require.NoError(t, err)
	assert.Contains(t, doc, "Press 1 to confirm")
	assert.NotContains(t, doc, "action=")
	assert.Contains(t, doc, "We didn't receive your selection. Goodbye.")
}

func TestSpellDigits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+14125257692", "4 1 2, 5 2 5, 7 6 9 2"},
		{"(412) 525-7692", "4 1 2, 5 2 5, 7 6 9 2"},
		{"", "our office"},
		{"+442079460000", "4 4 2 0 7 9 4 6 0 0 0 0"},
	}
	for _, tt := range tests {
		if got := SpellDigits(tt.in); got != tt.want {
			t.Errorf("SpellDigits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
