package callflow

import (
	"context"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/ehharris/twilio-live-call-routing/internal/alerting"
	"github.com/ehharris/twilio-live-call-routing/internal/config"
	"github.com/ehharris/twilio-live-call-routing/internal/mailer"
	"github.com/ehharris/twilio-live-call-routing/internal/observability"
	"github.com/ehharris/twilio-live-call-routing/internal/protocol"
	"github.com/ehharris/twilio-live-call-routing/internal/roster"
	"github.com/ehharris/twilio-live-call-routing/internal/session"
	"github.com/ehharris/twilio-live-call-routing/internal/twiml"
)

// State names carried in the continuation token. The token names the handler
// for the next leg; an empty name means "fresh call".
const (
	StateMenuSelect   = "menuSelect"
	StateTeamSelect   = "teamSelect"
	StateAssignTeam   = "assignTeam"
	StateRosterBuild  = "rosterBuild"
	StateDial         = "dial"
	StateHumanCheck   = "humanCheck"
	StateLeaveMessage = "leaveMessage"
	StateAlertPost    = "alertPost"
)

// WebhookPath is the route the telephony gateway invokes for every leg.
const WebhookPath = "/voice"

// TeamLister lists the organization's teams from the roster platform.
type TeamLister interface {
	ListTeams(ctx context.Context) ([]roster.Team, error)
}

// ResponderResolver resolves the on-call candidate queue for a team.
type ResponderResolver interface {
	Responders(ctx context.Context, team session.Team) ([]session.Candidate, error)
}

// AlertPoster posts one alert transition to the incident platform.
type AlertPoster interface {
	Post(ctx context.Context, alert alerting.Alert, teamSlug string) error
}

// Mailer sends the optional voicemail notification email.
type Mailer interface {
	SendVoicemailNotice(ctx context.Context, notice mailer.VoicemailNotice) error
}

type handlerFunc func(ctx context.Context, ev protocol.Event, st session.State) (*twiml.Response, error)

// Machine is the call-flow state machine. Each webhook invocation decodes
// the continuation token, dispatches to the handler it names and produces a
// voice-response document plus, usually, continuations for the next leg.
type Machine struct {
	cfg      config.Config
	teams    TeamLister
	resolver ResponderResolver
	alerts   AlertPoster
	mail     Mailer
	metrics  *observability.Metrics
	logger   *logrus.Logger
	handlers map[string]handlerFunc
}

// New wires the state machine. mail may be nil when the voicemail email
// notification is disabled.
func New(cfg config.Config, teams TeamLister, resolver ResponderResolver, alerts AlertPoster, mail Mailer, metrics *observability.Metrics, logger *logrus.Logger) *Machine {
	m := &Machine{
		cfg:      cfg,
		teams:    teams,
		resolver: resolver,
		alerts:   alerts,
		mail:     mail,
		metrics:  metrics,
		logger:   logger,
	}
	m.handlers = map[string]handlerFunc{
		StateMenuSelect:   m.menuSelect,
		StateTeamSelect:   m.teamSelect,
		StateAssignTeam:   m.assignTeam,
		StateRosterBuild:  m.rosterBuild,
		StateDial:         m.dial,
		StateHumanCheck:   m.humanCheck,
		StateLeaveMessage: m.leaveMessage,
		StateAlertPost:    m.alertPost,
	}
	return m
}

// Serve handles one webhook invocation end to end and always produces a
// renderable response; failures degrade to a short spoken apology.
func (m *Machine) Serve(ctx context.Context, ev protocol.Event, token string) *twiml.Response {
	if !m.cfg.HasRequiredSecrets() {
		return twiml.New().Say(m.cfg.Voice, msgMissingConfig)
	}

	st := session.Decode(token)
	if st.CallerID == "" {
		st.CallerID = ev.To
	}

	name := st.Next
	if name == "" {
		name = m.initialState()
	}
	// No-call mode never dials: incidents are created straight away.
	if name == StateDial && m.cfg.NoCall {
		name = StateLeaveMessage
	}

	h, ok := m.handlers[name]
	if !ok {
		// Unknown continuation: same degrade-to-start-over policy as a
		// malformed token.
		m.logger.WithField("state", name).Warn("unknown continuation state, restarting call")
		name = m.initialState()
		h = m.handlers[name]
		st = session.State{CallerID: st.CallerID}
	}
	m.metrics.CallLegs.WithLabelValues(name).Inc()

	m.logger.WithFields(logrus.Fields{
		"state":    name,
		"call_sid": ev.CallSid,
		"from":     ev.From,
	}).Info("handling call leg")

	res, err := h(ctx, ev, st)
	if err != nil {
		m.logger.WithError(err).WithField("state", name).Error("call leg failed")
		return twiml.New().Say(m.cfg.Voice, msgProcessingErr+" "+msgGoodbye)
	}
	return res
}

// initialState picks the entry state for a fresh call based on menu depth:
// depth 1 starts at the call-or-message menu, everything else goes straight
// to team selection (which auto-advances at depth 0).
func (m *Machine) initialState() string {
	if m.cfg.MenuDepth == 1 {
		return StateMenuSelect
	}
	return StateTeamSelect
}

// uri builds the webhook continuation URI carrying the encoded state.
func (m *Machine) uri(st session.State) (string, error) {
	token, err := session.Encode(st)
	if err != nil {
		return "", err
	}
	v := url.Values{"state": {token}}
	return m.cfg.PublicURL + WebhookPath + "?" + v.Encode(), nil
}
