package callflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ehharris/twilio-live-call-routing/internal/protocol"
	"github.com/ehharris/twilio-live-call-routing/internal/session"
	"github.com/ehharris/twilio-live-call-routing/internal/twiml"
)

// menuSelect plays the greeting and the call-or-message choice. No input
// ends the call after the gather times out.
func (m *Machine) menuSelect(_ context.Context, _ protocol.Event, st session.State) (*twiml.Response, error) {
	menu := msgMenu
	if m.cfg.NoVoicemail {
		menu = msgNoVMMenu
	}

	action, err := m.uri(session.State{
		Next:           StateTeamSelect,
		CallerID:       st.CallerID,
		FromMenuSelect: true,
	})
	if err != nil {
		return nil, err
	}

	res := twiml.New().Gather(twiml.GatherOpts{
		Timeout:   10,
		NumDigits: 1,
		Action:    action,
		Voice:     m.cfg.Voice,
		Prompt:    msgGreeting + " " + menu + " " + msgZeroToRepeat,
	})
	res.Say(m.cfg.Voice, msgNoResponse+" "+msgGoodbye)
	return res, nil
}

// teamSelect builds the team menu, or auto-advances when only one team
// exists or menus are disabled.
func (m *Machine) teamSelect(ctx context.Context, ev protocol.Event, st session.State) (*twiml.Response, error) {
	digits, hasDigits := ev.DigitsInt()

	// Zero repeats the previous menu depth.
	if hasDigits && digits == 0 {
		action, err := m.uri(session.State{CallerID: st.CallerID})
		if err != nil {
			return nil, err
		}
		return twiml.New().Redirect(action), nil
	}

	// An answer to the call-or-message menu must be 1 or 2; anything else
	// replays that menu.
	if st.FromMenuSelect && (!hasDigits || (digits != 1 && digits != 2)) {
		action, err := m.uri(session.State{CallerID: st.CallerID})
		if err != nil {
			return nil, err
		}
		return twiml.New().
			Say(m.cfg.Voice, msgInvalidResponse).
			Redirect(action), nil
	}

	goToVM := st.GoToVM
	realCaller := st.RealCallerID
	if st.FromMenuSelect && digits == 2 {
		goToVM = true
		realCaller = ev.From
	}

	teams, missingTeam, err := m.buildTeamList(ctx)
	if err != nil {
		m.logger.WithError(err).Error("team list fetch failed")
		return twiml.New().Say(m.cfg.Voice, msgNoTeamsError+" "+msgGoodbye), nil
	}
	if missingTeam != "" {
		return twiml.New().Say(m.cfg.Voice, msgNoTeam(missingTeam)+" "+msgGoodbye), nil
	}
	if len(teams) == 0 {
		return twiml.New().Say(m.cfg.Voice, msgNoTeamsError+" "+msgGoodbye), nil
	}

	// A single team, or menus disabled: skip the menu entirely.
	if len(teams) == 1 || m.cfg.MenuDepth == 0 {
		action, err := m.uri(session.State{
			Next:         StateAssignTeam,
			AutoTeam:     true,
			CallerID:     st.CallerID,
			RealCallerID: realCaller,
			GoToVM:       goToVM,
			Teams:        teams[:1],
		})
		if err != nil {
			return nil, err
		}
		return twiml.New().Redirect(action), nil
	}

	prompt := "Please press"
	for i, team := range teams {
		prompt += fmt.Sprintf(" %d for %s.", i+1, team.Name)
	}
	if m.cfg.MenuDepth == 2 {
		// The team menu is the first thing this caller hears.
		prompt = msgGreeting + " " + prompt
	}

	action, err := m.uri(session.State{
		Next:         StateAssignTeam,
		CallerID:     st.CallerID,
		RealCallerID: realCaller,
		GoToVM:       goToVM,
		Teams:        teams,
	})
	if err != nil {
		return nil, err
	}

	res := twiml.New().Gather(twiml.GatherOpts{
		Timeout:   5,
		NumDigits: len(strconv.Itoa(len(teams))),
		Action:    action,
		Voice:     m.cfg.Voice,
		Prompt:    prompt + " " + msgZeroToRepeat,
	})
	res.Say(m.cfg.Voice, msgNoResponse+" "+msgGoodbye)
	return res, nil
}

// buildTeamList returns the routable teams. With a configured team list,
// every name must resolve to a live roster slug; the first unresolvable name
// short-circuits and is returned so the caller hears which team is broken.
func (m *Machine) buildTeamList(ctx context.Context) ([]session.Team, string, error) {
	live, err := m.teams.ListTeams(ctx)
	if err != nil {
		return nil, "", err
	}

	if len(m.cfg.Teams) == 0 {
		teams := make([]session.Team, 0, len(live))
		for _, t := range live {
			teams = append(teams, session.Team{Name: t.Name, Slug: t.Slug})
		}
		return teams, "", nil
	}

	slugs := make(map[string]string, len(live))
	for _, t := range live {
		slugs[t.Name] = t.Slug
	}
	teams := make([]session.Team, 0, len(m.cfg.Teams))
	for _, tc := range m.cfg.Teams {
		slug, ok := slugs[tc.Name]
		if !ok {
			return nil, tc.Name, nil
		}
		teams = append(teams, session.Team{
			Name:             tc.Name,
			Slug:             slug,
			EscalationPolicy: tc.EscalationPolicy,
		})
	}
	return teams, "", nil
}

// assignTeam applies the caller's team choice and branches to the roster or
// voicemail path.
func (m *Machine) assignTeam(_ context.Context, ev protocol.Event, st session.State) (*twiml.Response, error) {
	digits, hasDigits := ev.DigitsInt()

	if hasDigits && digits == 0 {
		action, err := m.uri(session.State{
			Next:     StateTeamSelect,
			CallerID: st.CallerID,
			GoToVM:   st.GoToVM,
		})
		if err != nil {
			return nil, err
		}
		return twiml.New().Redirect(action), nil
	}

	// A numeric choice was mandatory here; bad input is a hard stop, not a
	// re-prompt, to bound retry loops.
	if !hasDigits && !st.AutoTeam {
		return twiml.New().Say(m.cfg.Voice, msgInvalidResponse+" "+msgGoodbye), nil
	}

	teams := st.Teams
	if len(teams) == 0 {
		return twiml.New().Say(m.cfg.Voice, msgNoTeamsError+" "+msgGoodbye), nil
	}
	if len(teams) > 1 {
		if !hasDigits || digits < 1 || digits > len(teams) {
			return twiml.New().Say(m.cfg.Voice, msgInvalidResponse+" "+msgGoodbye), nil
		}
		teams = teams[digits-1 : digits]
	} else {
		teams = teams[:1]
	}

	realCaller := ev.From
	if realCaller == "" {
		realCaller = st.RealCallerID
	}

	next := StateRosterBuild
	if st.GoToVM {
		next = StateLeaveMessage
	}
	action, err := m.uri(session.State{
		Next:         next,
		CallerID:     st.CallerID,
		RealCallerID: realCaller,
		GoToVM:       st.GoToVM,
		Teams:        teams,
	})
	if err != nil {
		return nil, err
	}
	return twiml.New().Redirect(action), nil
}
