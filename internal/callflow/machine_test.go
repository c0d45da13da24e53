package callflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

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

type fakeTeams struct {
	teams []roster.Team
	err   error
	calls int
}

func (f *fakeTeams) ListTeams(context.Context) ([]roster.Team, error) {
	f.calls++
	return f.teams, f.err
}

type fakeResolver struct {
	queue []session.Candidate
	err   error
	calls int
}

func (f *fakeResolver) Responders(context.Context, session.Team) ([]session.Candidate, error) {
	f.calls++
	return f.queue, f.err
}

type postedAlert struct {
	alert alerting.Alert
	slug  string
}

type fakeAlerts struct {
	mu     sync.Mutex
	posted []postedAlert
	err    error
}

func (f *fakeAlerts) Post(_ context.Context, alert alerting.Alert, teamSlug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, postedAlert{alert: alert, slug: teamSlug})
	return f.err
}

type fakeMail struct {
	notices []mailer.VoicemailNotice
}

func (f *fakeMail) SendVoicemailNotice(_ context.Context, notice mailer.VoicemailNotice) error {
	f.notices = append(f.notices, notice)
	return nil
}

type fixture struct {
	machine  *Machine
	teams    *fakeTeams
	resolver *fakeResolver
	alerts   *fakeAlerts
	mail     *fakeMail
}

var metricsSeq atomic.Int64

func newFixture(cfg config.Config) *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		teams: &fakeTeams{teams: []roster.Team{
			{Name: "Platform", Slug: "team-platform"},
		}},
		resolver: &fakeResolver{queue: []session.Candidate{
			{Username: "alice", Phone: "+15550003333"},
		}},
		alerts: &fakeAlerts{},
		mail:   &fakeMail{},
	}
	metrics := observability.NewMetrics(fmt.Sprintf("test_callflow_%d", metricsSeq.Add(1)))
	f.machine = New(cfg, f.teams, f.resolver, f.alerts, f.mail, metrics, logger)
	return f
}

func testConfig() config.Config {
	return config.Config{
		PublicURL:     "https://example.com",
		Voice:         "Polly.Salli",
		APIID:         "api-id",
		APIKey:        "api-key",
		ServiceAPIKey: "service-key",
	}
}

func render(t *testing.T, res *twiml.Response) string {
	t.Helper()
	doc, err := res.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return doc
}

func encode(t *testing.T, st session.State) string {
	t.Helper()
	token, err := session.Encode(st)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return token
}

var redirectRe = regexp.MustCompile(`<Redirect>([^<]+)</Redirect>`)

func redirectURI(t *testing.T, doc string) string {
	t.Helper()
	m := redirectRe.FindStringSubmatch(doc)
	if m == nil {
		t.Fatalf("no redirect verb in %q", doc)
	}
	return m[1]
}

func attrValue(t *testing.T, doc, name string) string {
	t.Helper()
	re := regexp.MustCompile(name + `="([^"]+)"`)
	m := re.FindStringSubmatch(doc)
	if m == nil {
		t.Fatalf("no %s attribute in %q", name, doc)
	}
	return m[1]
}

func tokenFrom(t *testing.T, rawURI string) string {
	t.Helper()
	u, err := url.Parse(rawURI)
	if err != nil {
		t.Fatalf("parse continuation %q: %v", rawURI, err)
	}
	if got := u.Path; got != WebhookPath {
		t.Fatalf("continuation path = %q, want %q", got, WebhookPath)
	}
	return u.Query().Get("state")
}

func stateFrom(t *testing.T, rawURI string) session.State {
	t.Helper()
	return session.Decode(tokenFrom(t, rawURI))
}

func TestServeMissingSecretsSpeaksApology(t *testing.T) {
	cfg := testConfig()
	cfg.APIID = ""
	f := newFixture(cfg)

	doc := render(t, f.machine.Serve(context.Background(), protocol.Event{}, ""))
	if !strings.Contains(doc, msgMissingConfig) {
		t.Fatalf("doc = %q, want missing configuration message", doc)
	}
	if f.teams.calls != 0 {
		t.Fatalf("teams listed %d times, want 0 without secrets", f.teams.calls)
	}
}

func TestServeMalformedTokenStartsFresh(t *testing.T) {
	f := newFixture(testConfig())
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", CallSid: "CA1"}

	doc := render(t, f.machine.Serve(context.Background(), ev, "!!!not-a-token!!!"))
	// A fresh auto-route call advances to team assignment.
	st := stateFrom(t, redirectURI(t, doc))
	if st.Next != StateAssignTeam {
		t.Fatalf("Next = %q, want fresh-call advance to %q", st.Next, StateAssignTeam)
	}
}

func TestServeUnknownContinuationRestarts(t *testing.T) {
	f := newFixture(testConfig())
	ev := protocol.Event{To: "+15550001000", From: "+15550002222"}
	token := encode(t, session.State{Next: "launchMissiles"})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	st := stateFrom(t, redirectURI(t, doc))
	if st.Next != StateAssignTeam {
		t.Fatalf("Next = %q, want restart from the beginning", st.Next)
	}
}

// Auto-route: no menus configured, a single team, one on-call responder. The
// caller hears only the greeting and the connecting notice before the dial.
func TestAutoRouteDialsSingleCandidate(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", CallSid: "CA1"}

	// Leg 1: fresh call resolves the team list and auto-selects.
	doc := render(t, f.machine.Serve(ctx, ev, ""))
	if strings.Contains(doc, "<Gather") {
		t.Fatalf("doc = %q, want no menu at depth 0", doc)
	}
	st := stateFrom(t, redirectURI(t, doc))
	if st.Next != StateAssignTeam || !st.AutoTeam {
		t.Fatalf("state = %+v, want auto team assignment", st)
	}
	if len(st.Teams) != 1 || st.Teams[0].Slug != "team-platform" {
		t.Fatalf("Teams = %+v, want the single live team", st.Teams)
	}

	// Leg 2: team assignment branches to roster resolution.
	doc = render(t, f.machine.Serve(ctx, ev, encode(t, st)))
	st = stateFrom(t, redirectURI(t, doc))
	if st.Next != StateRosterBuild {
		t.Fatalf("Next = %q, want %q", st.Next, StateRosterBuild)
	}
	if st.RealCallerID != "+15550002222" {
		t.Fatalf("RealCallerID = %q, want the caller's number", st.RealCallerID)
	}

	// Leg 3: roster resolution greets, announces the connection and hands off
	// to the dialer with the queue.
	doc = render(t, f.machine.Serve(ctx, ev, encode(t, st)))
	if !strings.Contains(doc, msgGreeting) {
		t.Fatalf("doc = %q, want greeting spoken before the dial", doc)
	}
	if !strings.Contains(doc, "connecting you to the representative on-call for the Platform team") {
		t.Fatalf("doc = %q, want connecting notice", doc)
	}
	st = stateFrom(t, redirectURI(t, doc))
	if st.Next != StateDial || !st.FirstCall || len(st.Queue) != 1 {
		t.Fatalf("state = %+v, want first dial with one queued candidate", st)
	}

	// Leg 4: the dial verb places the call and arms the continuations.
	doc = render(t, f.machine.Serve(ctx, ev, encode(t, st)))
	if !strings.Contains(doc, ">+15550003333</Number>") {
		t.Fatalf("doc = %q, want dial to the candidate's phone", doc)
	}
	if got := attrValue(t, doc, "callerId"); got != "+15550001000" {
		t.Fatalf("callerId = %q, want the service number", got)
	}
	noAnswer := stateFrom(t, attrValue(t, doc, "action"))
	if noAnswer.Next != StateLeaveMessage {
		t.Fatalf("no-answer Next = %q, want voicemail after the last candidate", noAnswer.Next)
	}
	if noAnswer.EntityID != "CA1" {
		t.Fatalf("EntityID = %q, want the caller leg id", noAnswer.EntityID)
	}
	if !strings.Contains(noAnswer.DetailedLog, "calling alice") {
		t.Fatalf("DetailedLog = %q, want the dial attempt recorded", noAnswer.DetailedLog)
	}
	pickup := stateFrom(t, attrValue(t, doc, "url"))
	if pickup.Next != StateHumanCheck {
		t.Fatalf("pickup Next = %q, want %q", pickup.Next, StateHumanCheck)
	}
	completed := stateFrom(t, attrValue(t, doc, "statusCallback"))
	if completed.Next != StateAlertPost {
		t.Fatalf("completed Next = %q, want %q", completed.Next, StateAlertPost)
	}
}

// Depth-1 flow: the caller presses 2 on the call-or-message menu and goes
// straight to voicemail without the dialer ever running.
func TestMenuMessageChoiceSkipsDialer(t *testing.T) {
	cfg := testConfig()
	cfg.MenuDepth = 1
	f := newFixture(cfg)
	ctx := context.Background()
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", CallSid: "CA1"}

	// Leg 1: greeting plus the call-or-message menu.
	doc := render(t, f.machine.Serve(ctx, ev, ""))
	if !strings.Contains(doc, msgGreeting+" "+msgMenu) {
		t.Fatalf("doc = %q, want greeting then call-or-message menu", doc)
	}
	action := attrValue(t, doc, "action")
	if st := stateFrom(t, action); !st.FromMenuSelect {
		t.Fatalf("state = %+v, want FromMenuSelect carried to team selection", st)
	}

	// Leg 2: pressing 2 selects voicemail; the single team auto-advances.
	ev.Digits = "2"
	doc = render(t, f.machine.Serve(ctx, ev, tokenFrom(t, action)))
	st := stateFrom(t, redirectURI(t, doc))
	if !st.GoToVM {
		t.Fatalf("state = %+v, want GoToVM after pressing 2", st)
	}

	// Leg 3: team assignment routes to voicemail, not the roster.
	ev.Digits = ""
	doc = render(t, f.machine.Serve(ctx, ev, encode(t, st)))
	st = stateFrom(t, redirectURI(t, doc))
	if st.Next != StateLeaveMessage {
		t.Fatalf("Next = %q, want %q", st.Next, StateLeaveMessage)
	}

	// Leg 4: the recording prompt has no "unable to reach" preamble because
	// nobody was dialed.
	doc = render(t, f.machine.Serve(ctx, ev, encode(t, st)))
	if !strings.Contains(doc, "Please leave a message for the Platform team") {
		t.Fatalf("doc = %q, want voicemail prompt", doc)
	}
	if strings.Contains(doc, "unable to reach") {
		t.Fatalf("doc = %q, want no failed-dial preamble on a direct message", doc)
	}
	if !strings.Contains(doc, `transcribe="true"`) {
		t.Fatalf("doc = %q, want transcribed recording", doc)
	}
	if f.resolver.calls != 0 {
		t.Fatalf("resolver called %d times, want 0 on the message path", f.resolver.calls)
	}
}

func TestMenuInvalidChoiceReplaysMenu(t *testing.T) {
	cfg := testConfig()
	cfg.MenuDepth = 1
	f := newFixture(cfg)
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", Digits: "7"}
	token := encode(t, session.State{Next: StateTeamSelect, CallerID: "+15550001000", FromMenuSelect: true})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	if !strings.Contains(doc, msgInvalidResponse) {
		t.Fatalf("doc = %q, want invalid-response notice", doc)
	}
	if st := stateFrom(t, redirectURI(t, doc)); st.Next != "" {
		t.Fatalf("Next = %q, want replay from the start", st.Next)
	}
}

func TestTeamMenuZeroRepeats(t *testing.T) {
	f := newFixture(testConfig())
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", Digits: "0"}
	token := encode(t, session.State{Next: StateTeamSelect, CallerID: "+15550001000"})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	if st := stateFrom(t, redirectURI(t, doc)); st.Next != "" {
		t.Fatalf("Next = %q, want fresh start on zero", st.Next)
	}
}

func TestTeamMenuAtDepthTwoLeadsWithGreeting(t *testing.T) {
	cfg := testConfig()
	cfg.MenuDepth = 2
	f := newFixture(cfg)
	f.teams.teams = []roster.Team{
		{Name: "Database", Slug: "team-database"},
		{Name: "Platform", Slug: "team-platform"},
	}
	ev := protocol.Event{To: "+15550001000", From: "+15550002222"}

	doc := render(t, f.machine.Serve(context.Background(), ev, ""))
	if !strings.Contains(doc, msgGreeting+" Please press 1 for Database. 2 for Platform.") {
		t.Fatalf("doc = %q, want greeting prepended to the team menu", doc)
	}
	st := stateFrom(t, attrValue(t, doc, "action"))
	if st.Next != StateAssignTeam || len(st.Teams) != 2 {
		t.Fatalf("state = %+v, want both teams carried to assignment", st)
	}
}

func TestAssignTeamOutOfRangeChoiceEndsCall(t *testing.T) {
	f := newFixture(testConfig())
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", Digits: "9"}
	token := encode(t, session.State{
		Next:     StateAssignTeam,
		CallerID: "+15550001000",
		Teams: []session.Team{
			{Name: "Database", Slug: "team-database"},
			{Name: "Platform", Slug: "team-platform"},
		},
	})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	if !strings.Contains(doc, msgInvalidResponse+" "+msgGoodbye) {
		t.Fatalf("doc = %q, want hard stop on out-of-range choice", doc)
	}
	if strings.Contains(doc, "<Redirect>") {
		t.Fatalf("doc = %q, want no continuation after a hard stop", doc)
	}
}

func TestTeamListUnresolvableConfiguredNameEndsCall(t *testing.T) {
	cfg := testConfig()
	cfg.Teams = []config.TeamConfig{{Name: "Ghosts"}}
	f := newFixture(cfg)
	ev := protocol.Event{To: "+15550001000", From: "+15550002222"}

	doc := render(t, f.machine.Serve(context.Background(), ev, ""))
	if !strings.Contains(doc, "Team Ghosts does not exist.") {
		t.Fatalf("doc = %q, want the broken team named", doc)
	}
}

func TestTeamListFetchErrorEndsCall(t *testing.T) {
	f := newFixture(testConfig())
	f.teams.err = errors.New("roster down")
	ev := protocol.Event{To: "+15550001000", From: "+15550002222"}

	doc := render(t, f.machine.Serve(context.Background(), ev, ""))
	if !strings.Contains(doc, msgNoTeamsError) {
		t.Fatalf("doc = %q, want teams error spoken", doc)
	}
}

func TestRosterBuildFailureSpeaksApology(t *testing.T) {
	f := newFixture(testConfig())
	f.resolver.err = errors.New("schedule api down")
	ev := protocol.Event{To: "+15550001000", From: "+15550002222"}
	token := encode(t, session.State{
		Next:     StateRosterBuild,
		CallerID: "+15550001000",
		Teams:    []session.Team{{Name: "Platform", Slug: "team-platform"}},
	})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	if !strings.Contains(doc, msgPhoneNumbersErr) {
		t.Fatalf("doc = %q, want phone numbers apology", doc)
	}
	if strings.Contains(doc, "<Redirect>") {
		t.Fatalf("doc = %q, want the call to end after a roster failure", doc)
	}
}

func TestRosterBuildEmptyQueueFallsToVoicemail(t *testing.T) {
	f := newFixture(testConfig())
	f.resolver.queue = nil
	ev := protocol.Event{To: "+15550001000", From: "+15550002222"}
	token := encode(t, session.State{
		Next:     StateRosterBuild,
		CallerID: "+15550001000",
		Teams:    []session.Team{{Name: "Platform", Slug: "team-platform"}},
	})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	if st := stateFrom(t, redirectURI(t, doc)); st.Next != StateLeaveMessage {
		t.Fatalf("Next = %q, want voicemail when nobody is reachable", st.Next)
	}
}

// Escalation: the first candidate does not answer, the dialer announces the
// next representative and the attempt log accumulates both names.
func TestDialAdvancesQueueOnNoAnswer(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", CallSid: "CA1"}
	token := encode(t, session.State{
		Next:      StateDial,
		CallerID:  "+15550001000",
		FirstCall: true,
		Teams:     []session.Team{{Name: "Platform", Slug: "team-platform"}},
		Queue: []session.Candidate{
			{Username: "alice", Phone: "+15550003333"},
			{Username: "bob", Phone: "+15550004444"},
		},
	})

	doc := render(t, f.machine.Serve(ctx, ev, token))
	if !strings.Contains(doc, ">+15550003333</Number>") {
		t.Fatalf("doc = %q, want first candidate dialed", doc)
	}
	noAnswer := stateFrom(t, attrValue(t, doc, "action"))
	if noAnswer.Next != StateDial || len(noAnswer.Queue) != 1 {
		t.Fatalf("state = %+v, want the next candidate queued", noAnswer)
	}

	// Twilio invokes the no-answer action with the dial outcome.
	ev.DialCallStatus = "no-answer"
	doc = render(t, f.machine.Serve(ctx, ev, encode(t, noAnswer)))
	if !strings.Contains(doc, msgNextOnCall) {
		t.Fatalf("doc = %q, want next-representative announcement", doc)
	}
	if !strings.Contains(doc, ">+15550004444</Number>") {
		t.Fatalf("doc = %q, want second candidate dialed", doc)
	}
	last := stateFrom(t, attrValue(t, doc, "action"))
	if last.Next != StateLeaveMessage {
		t.Fatalf("Next = %q, want voicemail after the last candidate", last.Next)
	}
	for _, name := range []string{"calling alice", "calling bob"} {
		if !strings.Contains(last.DetailedLog, name) {
			t.Fatalf("DetailedLog = %q, missing %q", last.DetailedLog, name)
		}
	}
	if last.EntityID != "CA1" {
		t.Fatalf("EntityID = %q, want the id captured on the first attempt", last.EntityID)
	}
}

// A pickup runs the human check: a keypress acknowledges the incident opened
// by the parent leg, and the eventual completed dial resolves it.
func TestHumanAnswerAcknowledgesThenRecovers(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	carried := session.State{
		CallerID:     "+15550001000",
		RealCallerID: "+15550002222",
		EntityID:     "CA1",
		Current:      &session.Candidate{Username: "alice", Phone: "+15550003333"},
		Teams:        []session.Team{{Name: "Platform", Slug: "team-platform"}},
	}

	// The callee leg has its own sid; the caller leg is its parent.
	calleeEv := protocol.Event{From: "+15550001000", CallSid: "CAchild", ParentCallSid: "CA1", Digits: "5"}
	check := carried
	check.Next = StateHumanCheck
	doc := render(t, f.machine.Serve(ctx, calleeEv, encode(t, check)))
	if !strings.Contains(doc, msgConnected) {
		t.Fatalf("doc = %q, want connected notice", doc)
	}
	st := stateFrom(t, redirectURI(t, doc))
	if st.Next != StateAlertPost || !st.CallAnsweredByHuman {
		t.Fatalf("state = %+v, want alert post with human confirmation", st)
	}

	render(t, f.machine.Serve(ctx, calleeEv, encode(t, st)))
	if len(f.alerts.posted) != 1 {
		t.Fatalf("posted %d alerts, want acknowledgement", len(f.alerts.posted))
	}
	ack := f.alerts.posted[0]
	if ack.alert.MessageType != alerting.MessageAcknowledgement {
		t.Fatalf("MessageType = %q, want acknowledgement", ack.alert.MessageType)
	}
	if ack.alert.EntityID != "CA1" {
		t.Fatalf("EntityID = %q, want the parent leg id", ack.alert.EntityID)
	}
	if ack.slug != "team-platform" {
		t.Fatalf("team slug = %q, want team-platform", ack.slug)
	}

	// The caller leg's status callback fires when the bridged call ends.
	callerEv := protocol.Event{From: "+15550002222", CallSid: "CA1", DialCallStatus: protocol.DialStatusCompleted}
	final := carried
	final.Next = StateAlertPost
	doc = render(t, f.machine.Serve(ctx, callerEv, encode(t, final)))
	if len(f.alerts.posted) != 2 {
		t.Fatalf("posted %d alerts, want acknowledgement then recovery", len(f.alerts.posted))
	}
	recovery := f.alerts.posted[1]
	if recovery.alert.MessageType != alerting.MessageRecovery {
		t.Fatalf("MessageType = %q, want recovery", recovery.alert.MessageType)
	}
	if recovery.alert.EntityID != "CA1" {
		t.Fatalf("EntityID = %q, want the entity carried since the first dial", recovery.alert.EntityID)
	}
	if !strings.Contains(doc, msgDisconnect) {
		t.Fatalf("doc = %q, want disconnect notice spoken to the responder", doc)
	}
}

func TestHumanCheckSilencePromptsThenHangsUp(t *testing.T) {
	f := newFixture(testConfig())
	token := encode(t, session.State{
		Next:    StateHumanCheck,
		Current: &session.Candidate{Username: "alice", Phone: "+15550003333"},
		Teams:   []session.Team{{Name: "Platform", Slug: "team-platform"}},
	})

	doc := render(t, f.machine.Serve(context.Background(), protocol.Event{CallSid: "CAchild"}, token))
	if !strings.Contains(doc, msgPressKey) {
		t.Fatalf("doc = %q, want keypress prompt", doc)
	}
	if !strings.Contains(doc, "<Hangup>") {
		t.Fatalf("doc = %q, want hangup after the gather times out", doc)
	}
	if len(f.alerts.posted) != 0 {
		t.Fatalf("posted %d alerts, want none for an unconfirmed pickup", len(f.alerts.posted))
	}
}

func TestNoCallModeSkipsDialing(t *testing.T) {
	cfg := testConfig()
	cfg.NoCall = true
	f := newFixture(cfg)
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", CallSid: "CA1"}
	token := encode(t, session.State{
		Next:      StateDial,
		CallerID:  "+15550001000",
		FirstCall: true,
		Teams:     []session.Team{{Name: "Platform", Slug: "team-platform"}},
		Queue:     []session.Candidate{{Username: "alice", Phone: "+15550003333"}},
	})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	if strings.Contains(doc, "<Dial") {
		t.Fatalf("doc = %q, want no dial verb in no-call mode", doc)
	}
	if !strings.Contains(doc, "Please leave a message for the Platform team") {
		t.Fatalf("doc = %q, want the recording prompt instead", doc)
	}
	// Nothing was dialed, so no failed-dial preamble either.
	if strings.Contains(doc, "unable to reach") {
		t.Fatalf("doc = %q, want no dial preamble in no-call mode", doc)
	}
}

func TestVoicemailDisabledCreatesIncidentDirectly(t *testing.T) {
	cfg := testConfig()
	cfg.NoVoicemail = true
	f := newFixture(cfg)
	ctx := context.Background()
	ev := protocol.Event{To: "+15550001000", From: "+15550002222", CallSid: "CA1", CallStatus: protocol.CallStatusInProgress}
	token := encode(t, session.State{
		Next:         StateLeaveMessage,
		CallerID:     "+15550001000",
		RealCallerID: "+15550002222",
		Teams:        []session.Team{{Name: "Platform", Slug: "team-platform"}},
	})

	doc := render(t, f.machine.Serve(ctx, ev, token))
	if !strings.Contains(doc, "We are creating an incident for the Platform team.") {
		t.Fatalf("doc = %q, want callback notice", doc)
	}
	if strings.Contains(doc, "<Record") {
		t.Fatalf("doc = %q, want no recording when voicemail is disabled", doc)
	}

	render(t, f.machine.Serve(ctx, ev, tokenFrom(t, redirectURI(t, doc))))
	if len(f.alerts.posted) != 1 {
		t.Fatalf("posted %d alerts, want one trigger", len(f.alerts.posted))
	}
	alert := f.alerts.posted[0].alert
	if alert.MessageType != alerting.MessageCritical {
		t.Fatalf("MessageType = %q, want critical", alert.MessageType)
	}
	if !strings.Contains(alert.StateMessage, "Missed call from +15550002222") {
		t.Fatalf("StateMessage = %q, want the caller's number", alert.StateMessage)
	}
}

func TestTranscriptionCallbackPostsAlertAndEmails(t *testing.T) {
	f := newFixture(testConfig())
	ev := protocol.Event{
		From:                "+15550002222",
		CallSid:             "CA1",
		TranscriptionStatus: "completed",
		TranscriptionText:   "the site is down",
		RecordingURL:        "https://api.twilio.com/recording/RE123",
	}
	token := encode(t, session.State{
		Next:         StateAlertPost,
		RealCallerID: "+15550002222",
		GoToVM:       true,
		Teams:        []session.Team{{Name: "Platform", Slug: "team-platform"}},
	})

	render(t, f.machine.Serve(context.Background(), ev, token))
	if len(f.alerts.posted) != 1 {
		t.Fatalf("posted %d alerts, want one trigger", len(f.alerts.posted))
	}
	alert := f.alerts.posted[0].alert
	if !strings.Contains(alert.StateMessage, "the site is down") {
		t.Fatalf("StateMessage = %q, want the transcript", alert.StateMessage)
	}
	if len(f.mail.notices) != 1 {
		t.Fatalf("sent %d notices, want one voicemail email", len(f.mail.notices))
	}
	notice := f.mail.notices[0]
	if notice.Transcription != "the site is down" || notice.RecordingURL != "https://api.twilio.com/recording/RE123" {
		t.Fatalf("notice = %+v, want transcript and recording link", notice)
	}
}

func TestPostRecordingLegSpeaksTranscribeNotice(t *testing.T) {
	f := newFixture(testConfig())
	token := encode(t, session.State{
		Next:       StateLeaveMessage,
		SayGoodbye: true,
		Teams:      []session.Team{{Name: "Platform", Slug: "team-platform"}},
	})

	doc := render(t, f.machine.Serve(context.Background(), protocol.Event{CallSid: "CA1"}, token))
	if !strings.Contains(doc, msgTranscribeNotice) {
		t.Fatalf("doc = %q, want transcription notice after the recording", doc)
	}
	if strings.Contains(doc, "<Record") {
		t.Fatalf("doc = %q, want no second recording", doc)
	}
}

func TestAlertPostFailureIsSwallowed(t *testing.T) {
	cfg := testConfig()
	cfg.NoVoicemail = true
	f := newFixture(cfg)
	f.alerts.err = errors.New("alert endpoint down")
	ev := protocol.Event{From: "+15550002222", CallSid: "CA1", CallStatus: protocol.CallStatusInProgress}
	token := encode(t, session.State{
		Next:         StateAlertPost,
		RealCallerID: "+15550002222",
		Teams:        []session.Team{{Name: "Platform", Slug: "team-platform"}},
	})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	if len(f.alerts.posted) != 1 {
		t.Fatalf("posted %d alerts, want exactly one attempt and no retry", len(f.alerts.posted))
	}
	if strings.Contains(doc, msgProcessingErr) {
		t.Fatalf("doc = %q, want no error spoken for a failed post", doc)
	}
}

func TestIntermediateLegPostsNothing(t *testing.T) {
	f := newFixture(testConfig())
	ev := protocol.Event{From: "+15550002222", CallSid: "CA1", CallStatus: protocol.CallStatusInProgress}
	token := encode(t, session.State{
		Next:  StateAlertPost,
		Teams: []session.Team{{Name: "Platform", Slug: "team-platform"}},
	})

	doc := render(t, f.machine.Serve(context.Background(), ev, token))
	if len(f.alerts.posted) != 0 {
		t.Fatalf("posted %d alerts, want none for an intermediate leg", len(f.alerts.posted))
	}
	if !strings.HasSuffix(doc, "<Response></Response>") {
		t.Fatalf("doc = %q, want an empty response document", doc)
	}
}
