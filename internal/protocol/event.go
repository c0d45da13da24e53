package protocol

import (
	"net/http"
	"strconv"
)

// Values the telephony gateway reports for call and transcription status.
const (
	DialStatusCompleted  = "completed"
	CallStatusInProgress = "in-progress"
	TranscriptionFailed  = "failed"
)

// Event is one inbound webhook invocation from the telephony gateway. Every
// field is optional; which ones are populated depends on which call leg the
// gateway is reporting (menu input, dial result, transcription callback).
type Event struct {
	Digits        string
	From          string
	To            string
	CallSid       string
	ParentCallSid string

	DialCallStatus string
	DialBridged    string
	CallStatus     string

	TranscriptionStatus string
	TranscriptionText   string
	RecordingURL        string
}

// ParseEvent extracts the gateway fields from a webhook request. The gateway
// posts form-encoded bodies; parameters may also arrive on the query string.
func ParseEvent(r *http.Request) Event {
	_ = r.ParseForm()
	return Event{
		Digits:              r.FormValue("Digits"),
		From:                r.FormValue("From"),
		To:                  r.FormValue("To"),
		CallSid:             r.FormValue("CallSid"),
		ParentCallSid:       r.FormValue("ParentCallSid"),
		DialCallStatus:      r.FormValue("DialCallStatus"),
		DialBridged:         r.FormValue("DialBridged"),
		CallStatus:          r.FormValue("CallStatus"),
		TranscriptionStatus: r.FormValue("TranscriptionStatus"),
		TranscriptionText:   r.FormValue("TranscriptionText"),
		RecordingURL:        r.FormValue("RecordingUrl"),
	}
}

// DigitsInt parses the collected menu digits. ok is false when no digits
// were collected or the input was not numeric.
func (e Event) DigitsInt() (int, bool) {
	if e.Digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(e.Digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// DialCompleted reports whether the gateway bridged the dialed call and the
// bridged call ran to completion.
func (e Event) DialCompleted() bool {
	return e.DialCallStatus == DialStatusCompleted && e.DialBridged == "true"
}
