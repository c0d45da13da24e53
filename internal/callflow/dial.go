package callflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ehharris/twilio-live-call-routing/internal/protocol"
	"github.com/ehharris/twilio-live-call-routing/internal/session"
	"github.com/ehharris/twilio-live-call-routing/internal/twiml"
)

// rosterBuild resolves the on-call responder queue for the chosen team and
// hands off to the dialer, or to voicemail when nobody is reachable.
func (m *Machine) rosterBuild(ctx context.Context, _ protocol.Event, st session.State) (*twiml.Response, error) {
	team, ok := st.Team0()
	if !ok {
		return twiml.New().Say(m.cfg.Voice, msgNoTeamsError+" "+msgGoodbye), nil
	}

	queue, err := m.resolver.Responders(ctx, team)
	if err != nil {
		// Fatal to the call, not retried: speak the apology and end.
		m.logger.WithError(err).WithField("team", team.Slug).Error("on-call resolution failed")
		return twiml.New().Say(m.cfg.Voice, msgPhoneNumbersErr), nil
	}

	if len(queue) == 0 {
		action, err := m.uri(session.State{
			Next:         StateLeaveMessage,
			CallerID:     st.CallerID,
			RealCallerID: st.RealCallerID,
			GoToVM:       st.GoToVM,
			Teams:        st.Teams,
		})
		if err != nil {
			return nil, err
		}
		return twiml.New().Redirect(action), nil
	}

	message := msgConnecting(team.Name, m.cfg.NoCall)
	if m.cfg.MenuDepth == 0 {
		// The caller has not heard any menu yet.
		message = strings.TrimSpace(msgGreeting + " " + message)
	}

	action, err := m.uri(session.State{
		Next:         StateDial,
		CallerID:     st.CallerID,
		RealCallerID: st.RealCallerID,
		FirstCall:    true,
		Queue:        queue,
		Teams:        st.Teams,
	})
	if err != nil {
		return nil, err
	}
	return twiml.New().
		Say(m.cfg.Voice, message).
		Redirect(action), nil
}

// dial places one call to the head of the responder queue. The dial verb
// arms three continuations: no answer falls through to the next candidate or
// voicemail, a pickup runs the human check, and call completion posts the
// final alert.
func (m *Machine) dial(ctx context.Context, ev protocol.Event, st session.State) (*twiml.Response, error) {
	// The previous dial leg was bridged and ran to completion.
	if ev.DialCompleted() {
		return m.alertPost(ctx, ev, st)
	}

	if len(st.Queue) == 0 {
		action, err := m.uri(session.State{
			Next:         StateLeaveMessage,
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
		return twiml.New().Redirect(action), nil
	}

	res := twiml.New()
	realCaller := st.RealCallerID
	if st.FirstCall {
		realCaller = ev.From
	} else {
		res.Say(m.cfg.Voice, msgNextOnCall)
	}

	candidate := st.Queue[0]
	rest := st.Queue[1:]
	detailedLog := fmt.Sprintf("\n\n%s calling %s...%s", ev.From, candidate.Username, st.DetailedLog)

	// The entity id set on the first dial attempt keys the eventual
	// recovery alert to the incident this leg triggered.
	entityID := st.EntityID
	if entityID == "" {
		entityID = ev.CallSid
		if entityID == "" {
			entityID = uuid.NewString()
		}
	}

	base := session.State{
		CallerID:     st.CallerID,
		RealCallerID: realCaller,
		GoToVM:       st.GoToVM,
		DetailedLog:  detailedLog,
		EntityID:     entityID,
		Current:      &candidate,
		Queue:        rest,
		Teams:        st.Teams,
	}

	// No answer: advance the queue, or fall back to voicemail after the
	// last candidate.
	noAnswer := base
	noAnswer.Next = StateDial
	if len(rest) == 0 {
		noAnswer.Next = StateLeaveMessage
	}
	noAnswerURI, err := m.uri(noAnswer)
	if err != nil {
		return nil, err
	}

	pickup := base
	pickup.Next = StateHumanCheck
	pickupURI, err := m.uri(pickup)
	if err != nil {
		return nil, err
	}

	completed := base
	completed.Next = StateAlertPost
	completedURI, err := m.uri(completed)
	if err != nil {
		return nil, err
	}

	m.metrics.DialAttempts.Inc()
	m.logger.WithFields(logrus.Fields{
		"team":      teamSlug(st),
		"user":      candidate.Username,
		"remaining": len(rest),
	}).Info("dialing on-call candidate")

	res.Dial(twiml.DialOpts{
		Action:              noAnswerURI,
		CallerID:            st.CallerID,
		Number:              candidate.Phone,
		NumberURL:           pickupURI,
		StatusCallback:      completedURI,
		StatusCallbackEvent: "completed",
	})
	return res, nil
}

// humanCheck asks the callee to press a key so a voicemail system picking up
// is not mistaken for a live responder. No input within the timeout ends the
// leg, which the armed dial action treats as no answer.
func (m *Machine) humanCheck(_ context.Context, ev protocol.Event, st session.State) (*twiml.Response, error) {
	carried := session.State{
		CallerID:     st.CallerID,
		RealCallerID: st.RealCallerID,
		DetailedLog:  st.DetailedLog,
		EntityID:     st.EntityID,
		Current:      st.Current,
		Queue:        st.Queue,
		Teams:        st.Teams,
	}

	if ev.Digits == "" {
		repeat := carried
		repeat.Next = StateHumanCheck
		action, err := m.uri(repeat)
		if err != nil {
			return nil, err
		}
		res := twiml.New().Gather(twiml.GatherOpts{
			Timeout:   8,
			NumDigits: 1,
			Action:    action,
			Voice:     m.cfg.Voice,
			Prompt:    msgPressKey,
		})
		res.Say(m.cfg.Voice, msgNoResponse+" "+msgGoodbye)
		res.Hangup()
		return res, nil
	}

	confirmed := carried
	confirmed.Next = StateAlertPost
	confirmed.CallAnsweredByHuman = true
	action, err := m.uri(confirmed)
	if err != nil {
		return nil, err
	}
	return twiml.New().
		Say(m.cfg.Voice, msgConnected).
		Redirect(action), nil
}

func teamSlug(st session.State) string {
	team, _ := st.Team0()
	return team.Slug
}
