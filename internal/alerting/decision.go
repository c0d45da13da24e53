package alerting

import (
	"github.com/ehharris/twilio-live-call-routing/internal/protocol"
	"github.com/ehharris/twilio-live-call-routing/internal/session"
)

// Options are the configuration flags the decision rules depend on.
type Options struct {
	NoVoicemail bool
	NoCall      bool
}

// EmailKind marks the voicemail notification side effect a decision carries.
type EmailKind int

const (
	EmailNone EmailKind = iota
	EmailTranscribed
	EmailTranscriptionFailed
)

// Decision is the single outcome computed for a concluded call leg.
type Decision struct {
	Alert Alert
	// Post is false for intermediate legs that are not yet terminal; nothing
	// is sent to the incident platform then.
	Post  bool
	Email EmailKind
	// SpeakClosing directs the call flow to speak the disconnect notice
	// after a successfully completed dial leg instead of ending silently.
	SpeakClosing bool
}

// Decide maps the terminal outcome of a call leg to the one alert transition
// to emit. The rules are ordered by priority and the first match wins;
// several conditions can hold at once, so the ordering is load-bearing.
func Decide(ev protocol.Event, st session.State, opts Options) Decision {
	team, _ := st.Team0()
	var user string
	if st.Current != nil {
		user = st.Current.Username
	}

	alert := Alert{
		MonitoringTool:    "Twilio",
		EntityID:          ev.CallSid,
		EntityDisplayName: "Twilio Live Call Routing Details",
		CallerID:          st.RealCallerID,
	}
	d := Decision{
		SpeakClosing: ev.DialCallStatus == protocol.DialStatusCompleted &&
			ev.TranscriptionStatus != protocol.TranscriptionFailed,
	}

	displayName := msgMessageLeftAfter(team.Name, opts.NoCall)
	if st.GoToVM {
		displayName = msgMessageLeftDirect(team.Name)
	}

	switch {
	// Straight to voicemail with voicemail disabled: open an incident with
	// the caller's number right away.
	case st.GoToVM && opts.NoVoicemail:
		alert.MessageType = MessageCritical
		alert.StateMessage = msgCallNotAnswered(st.RealCallerID)

	case ev.TranscriptionText != "":
		alert.MessageType = MessageCritical
		alert.EntityDisplayName = displayName
		alert.StateMessage = msgTranscription(ev.TranscriptionText, st.DetailedLog)
		d.Email = EmailTranscribed

	case ev.TranscriptionStatus == protocol.TranscriptionFailed:
		alert.MessageType = MessageCritical
		alert.EntityDisplayName = displayName
		alert.StateMessage = msgTranscriptionFail(st.DetailedLog)
		d.Email = EmailTranscriptionFailed

	// A live responder confirmed with a keypress: acknowledge the incident
	// opened by the parent leg.
	case st.CallAnsweredByHuman:
		alert.MessageType = MessageAcknowledgement
		alert.StateMessage = msgCallAnswered(user, st.RealCallerID, st.DetailedLog)
		alert.AckAuthor = user
		alert.EntityID = ev.ParentCallSid

	// The bridged call ran to completion: resolve against the entity id
	// carried since the first dial attempt.
	case ev.DialCallStatus == protocol.DialStatusCompleted &&
		ev.TranscriptionStatus != protocol.TranscriptionFailed:
		alert.MessageType = MessageRecovery
		alert.StateMessage = msgCallCompleted(user, st.RealCallerID, st.DetailedLog)
		alert.AckAuthor = user
		if st.EntityID != "" {
			alert.EntityID = st.EntityID
		}

	case ev.CallStatus == protocol.CallStatusInProgress && opts.NoVoicemail:
		alert.MessageType = MessageCritical
		alert.StateMessage = msgCallNotAnswered(st.RealCallerID)

	default:
		// Intermediate leg, nothing terminal happened yet.
		return Decision{}
	}

	d.Alert = alert
	d.Post = true
	return d
}
