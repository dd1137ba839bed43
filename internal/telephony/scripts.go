package telephony

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/twiml"

	"github.com/confirmline/confirmline/internal/appointment"
)

// menuPrompt is the gather prompt read on every menu attempt. Valid keys:
// 1 confirm, 2 transfer to the office, 3 cancel, 5 repeat, 9 opt out.
const menuPrompt = "Press 1 to confirm. " +
	"Press 2 to speak to our office to reschedule. " +
	"Press 3 to cancel. " +
	"Press 5 to repeat this message. " +
	"Press 9 to stop reminders."

// ScriptBuilder renders the voice scripts consumed by the telephony
// provider. Every method is a pure function of appointment + attempt
// state; nothing here touches the registry.
type ScriptBuilder struct {
	PracticeName string
	OfficeNumber string
	BaseURL      string
	Voice        string
	InitialPause int
}

func NewScriptBuilder(practiceName, officeNumber, baseURL, voice string, initialPause int) *ScriptBuilder {
	if voice == "" {
		voice = "alice"
	}
	return &ScriptBuilder{
		PracticeName: practiceName,
		OfficeNumber: officeNumber,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Voice:        voice,
		InitialPause: initialPause,
	}
}

func (b *ScriptBuilder) say(message string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: message, Voice: b.Voice, Language: "en-US"}
}

// InitialMenu builds the greeting plus digit-gather menu for the given
// attempt. The first attempt carries the full greeting with patient name,
// date and time; later attempts use an abbreviated repeat lead-in. The
// post-gather fallback auto-retries at most once to avoid redirect loops.
func (b *ScriptBuilder) InitialMenu(apt *appointment.Appointment, attempt int) (string, error) {
	if attempt < 1 {
		attempt = 1
	}
	var verbs []twiml.Element

	if attempt <= 1 && b.InitialPause > 0 {
		verbs = append(verbs, &twiml.VoicePause{Length: strconv.Itoa(b.InitialPause)})
	}

	verbs = append(verbs, b.say(b.greeting(apt, attempt)))

	gather := &twiml.VoiceGather{
		NumDigits:   "1",
		Action:      fmt.Sprintf("%s/twilio/gather?attempt=%d", b.BaseURL, attempt),
		Method:      "POST",
		Timeout:     "10",
		FinishOnKey: "#",
		InnerElements: []twiml.Element{
			b.say(menuPrompt),
		},
	}
	verbs = append(verbs, gather)

	// Reached only when the gather times out or errors.
	if attempt < 2 {
		verbs = append(verbs,
			b.say("I didn't get your response. Let me try again."),
			&twiml.VoiceRedirect{
				Url:    fmt.Sprintf("%s/twilio/voice?attempt=%d", b.BaseURL, attempt+1),
				Method: "POST",
			},
		)
	} else {
		verbs = append(verbs,
			b.say(fmt.Sprintf("If you need to confirm or cancel, please call us back at %s. Thank you.", SpellDigits(b.OfficeNumber))),
			&twiml.VoiceHangup{},
		)
	}

	return twiml.Voice(verbs)
}

func (b *ScriptBuilder) greeting(apt *appointment.Appointment, attempt int) string {
	if apt == nil {
		return fmt.Sprintf("This is %s calling to confirm your appointment. ", b.PracticeName)
	}
	if attempt > 1 {
		return fmt.Sprintf("Let me repeat that for you %s. ", apt.FirstName())
	}
	date := apt.AppointmentDate
	if date == "" {
		date = "your upcoming appointment"
	}
	return fmt.Sprintf("This is %s calling %s to confirm an appointment that you have on %s at %s. ",
		b.PracticeName, apt.FirstName(), date, apt.AppointmentTime)
}

// InlineMenu is the self-contained variant used when no public webhook
// URL is available: greeting, one gather with no action URL, then a
// goodbye. Digit handling degrades, but the call still goes out.
func (b *ScriptBuilder) InlineMenu(apt *appointment.Appointment) (string, error) {
	var verbs []twiml.Element
	if b.InitialPause > 0 {
		verbs = append(verbs, &twiml.VoicePause{Length: strconv.Itoa(b.InitialPause)})
	}
	verbs = append(verbs,
		b.say(b.greeting(apt, 1)),
		&twiml.VoiceGather{
			NumDigits: "1",
			Timeout:   "10",
			InnerElements: []twiml.Element{
				b.say(menuPrompt),
			},
		},
		b.say("We didn't receive your selection. Goodbye."),
	)
	return twiml.Voice(verbs)
}

// Voicemail builds the one-shot answering machine message: no menu, short
// pause so the beep finishes, then hang up.
func (b *ScriptBuilder) Voicemail(apt *appointment.Appointment) (string, error) {
	var message string
	if apt != nil {
		date := apt.AppointmentDate
		if date == "" {
			date = "your upcoming appointment"
		}
		message = fmt.Sprintf(
			"This is %s calling to remind you that you have an appointment on %s at %s. "+
				"Please call us at %s if you can make the appointment or need to cancel or reschedule. Goodbye.",
			b.PracticeName, date, apt.AppointmentTime, SpellDigits(b.OfficeNumber))
	} else {
		message = fmt.Sprintf(
			"This is %s calling about your upcoming appointment. "+
				"Please call us at %s if you can make the appointment or need to cancel or reschedule. Goodbye.",
			b.PracticeName, SpellDigits(b.OfficeNumber))
	}

	return twiml.Voice([]twiml.Element{
		&twiml.VoicePause{Length: "1"},
		b.say(message),
		&twiml.VoiceHangup{},
	})
}

// RetryLater ends the call once the menu attempts are exhausted.
func (b *ScriptBuilder) RetryLater() (string, error) {
	return twiml.Voice([]twiml.Element{
		b.say("We'll try again later. Goodbye."),
		&twiml.VoiceHangup{},
	})
}

// Confirmation acknowledges digit 1.
func (b *ScriptBuilder) Confirmation() (string, error) {
	return twiml.Voice([]twiml.Element{
		b.say("Your appointment is confirmed. Thank you!"),
		&twiml.VoiceHangup{},
	})
}

// Cancellation acknowledges digit 3.
func (b *ScriptBuilder) Cancellation() (string, error) {
	return twiml.Voice([]twiml.Element{
		b.say("Your appointment has been cancelled. Goodbye."),
		&twiml.VoiceHangup{},
	})
}

// OptOut acknowledges digit 9.
func (b *ScriptBuilder) OptOut() (string, error) {
	return twiml.Voice([]twiml.Element{
		b.say("We will not call you again about this appointment. Thank you."),
		&twiml.VoiceHangup{},
	})
}

// HoldAndTransfer bridges the caller to the office for digit 2. The dial
// outcome comes back on the dial-status callback.
func (b *ScriptBuilder) HoldAndTransfer(fromNumber string) (string, error) {
	return twiml.Voice([]twiml.Element{
		b.say("Please hold while I connect you to our office."),
		&twiml.VoiceDial{
			CallerId:       fromNumber,
			AnswerOnBridge: "true",
			Action:         b.BaseURL + "/twilio/dial-status",
			Method:         "POST",
			InnerElements: []twiml.Element{
				&twiml.VoiceNumber{PhoneNumber: b.OfficeNumber},
			},
		},
	})
}

// Repeat handles digit 5 by redirecting back through the voice menu as a
// repeat attempt. Always attempt 2; repeats never climb further.
func (b *ScriptBuilder) Repeat() (string, error) {
	return twiml.Voice([]twiml.Element{
		b.say("Let me repeat that."),
		&twiml.VoiceRedirect{Url: b.BaseURL + "/twilio/voice?attempt=2", Method: "POST"},
	})
}

// InvalidSelection re-prompts after an unrecognized digit. The redirect
// re-enters the menu at the same attempt; a wrong key never consumes one.
func (b *ScriptBuilder) InvalidSelection(attempt int) (string, error) {
	if attempt < 1 {
		attempt = 1
	}
	return twiml.Voice([]twiml.Element{
		b.say("Invalid selection."),
		&twiml.VoiceRedirect{
			Url:    fmt.Sprintf("%s/twilio/voice?attempt=%d", b.BaseURL, attempt),
			Method: "POST",
		},
	})
}

// EmptyInputRedirect re-enters the voice menu when the gather posted no
// digits at all.
func (b *ScriptBuilder) EmptyInputRedirect() (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceRedirect{Url: b.BaseURL + "/twilio/voice?attempt=2", Method: "POST"},
	})
}

// Goodbye ends calls that no longer map to an appointment.
func (b *ScriptBuilder) Goodbye() (string, error) {
	return twiml.Voice([]twiml.Element{
		b.say("Thank you for calling. Goodbye."),
		&twiml.VoiceHangup{},
	})
}

// TransferFallback runs after the bridged dial ends. A failed transfer
// gets an apology pointing at the office line; either way the call ends.
func (b *ScriptBuilder) TransferFallback(completed bool) (string, error) {
	var verbs []twiml.Element
	if !completed {
		verbs = append(verbs, b.say("We were unable to connect you at this time. Please call our office directly. Goodbye."))
	}
	verbs = append(verbs, &twiml.VoiceHangup{})
	return twiml.Voice(verbs)
}

// TechnicalDifficulty is the last-resort script returned when a handler
// fails internally; the provider must always receive well-formed TwiML.
func (b *ScriptBuilder) TechnicalDifficulty() string {
	doc, err := twiml.Voice([]twiml.Element{
		b.say(fmt.Sprintf("We're experiencing technical difficulties. Please call us directly at %s.", SpellDigits(b.OfficeNumber))),
		&twiml.VoiceHangup{},
	})
	if err != nil {
		// Static well-formed document as the absolute floor.
		return `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
	}
	return doc
}

// SpellDigits renders a phone number the way a voice should read it:
// "+14125257692" becomes "4 1 2, 5 2 5, 7 6 9 2". The leading US country
// code is dropped.
func SpellDigits(number string) string {
	digits := appointment.NormalizePhone(number)
	digits = strings.TrimPrefix(digits, "+")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if digits == "" {
		return "our office"
	}

	spell := func(s string) string {
		parts := make([]string, 0, len(s))
		for _, r := range s {
			parts = append(parts, string(r))
		}
		return strings.Join(parts, " ")
	}

	if len(digits) == 10 {
		return fmt.Sprintf("%s, %s, %s", spell(digits[:3]), spell(digits[3:6]), spell(digits[6:]))
	}
	return spell(digits)
}
