package callflow

import (
	"context"
	"strings"

	"github.com/ehharris/twilio-live-call-routing/internal/protocol"
	"github.com/ehharris/twilio-live-call-routing/internal/session"
	"github.com/ehharris/twilio-live-call-routing/internal/twiml"
)

// leaveMessage plays the context-appropriate voicemail prompt and records
// the caller, or goes straight to incident creation when voicemail is
// disabled.
func (m *Machine) leaveMessage(ctx context.Context, ev protocol.Event, st session.State) (*twiml.Response, error) {
	// A dial leg can land here through its no-answer action after the
	// bridged call actually completed; that is a concluded call, not a
	// voicemail opportunity.
	if ev.DialCompleted() {
		return m.alertPost(ctx, ev, st)
	}

	// Post-recording leg: the caller stayed on the line after the beep.
	if st.SayGoodbye {
		return twiml.New().Say(m.cfg.Voice, msgTranscribeNotice+" "+msgGoodbye), nil
	}

	team, ok := st.Team0()
	if !ok {
		return twiml.New().Say(m.cfg.Voice, msgNoTeamsError+" "+msgGoodbye), nil
	}

	prefix := ""
	if !st.GoToVM {
		// The caller asked for a person and nobody answered.
		prefix = msgNoAnswer(m.cfg.NoCall)
	}

	if m.cfg.NoVoicemail {
		action, err := m.uri(session.State{
			Next:         StateAlertPost,
			CallerID:     st.CallerID,
			RealCallerID: st.RealCallerID,
			GoToVM:       st.GoToVM,
			DetailedLog:  st.DetailedLog,
			EntityID:     st.EntityID,
			Teams:        st.Teams,
		})
		if err != nil {
			return nil, err
		}
		return twiml.New().
			Say(m.cfg.Voice, joinSpeech(prefix, msgNoVoicemail(team.Name))).
			Redirect(action), nil
	}

	transcribeCallback, err := m.uri(session.State{
		Next:         StateAlertPost,
		CallerID:     st.CallerID,
		RealCallerID: st.RealCallerID,
		GoToVM:       st.GoToVM,
		DetailedLog:  st.DetailedLog,
		EntityID:     st.EntityID,
		Teams:        st.Teams,
	})
	if err != nil {
		return nil, err
	}
	recordAction, err := m.uri(session.State{
		Next:         StateLeaveMessage,
		SayGoodbye:   true,
		CallerID:     st.CallerID,
		RealCallerID: st.RealCallerID,
		DetailedLog:  st.DetailedLog,
		Teams:        st.Teams,
	})
	if err != nil {
		return nil, err
	}

	res := twiml.New().Say(m.cfg.Voice, joinSpeech(prefix, msgVoicemail(team.Name)))
	res.Record(twiml.RecordOpts{
		Transcribe:         true,
		TranscribeCallback: transcribeCallback,
		Timeout:            10,
		Action:             recordAction,
	})
	return res, nil
}

func joinSpeech(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
