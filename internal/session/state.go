package session

// Team is a routable destination resolved against the roster platform.
type Team struct {
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	EscalationPolicy string `json:"escalation_policy,omitempty"`
}

// Candidate is one dialable on-call responder.
type Candidate struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
}

// State is the full working state of one call, round-tripped through the
// telephony gateway as an opaque token. The gateway keeps nothing between
// call legs, so every field a later leg needs must live here. A new State is
// emitted for each leg; handlers never mutate a decoded one in place.
type State struct {
	// Next names the handler the next webhook invocation dispatches to.
	// Empty means "fresh call".
	Next string `json:"next,omitempty"`

	CallerID     string `json:"caller_id,omitempty"`
	RealCallerID string `json:"real_caller_id,omitempty"`

	Teams   []Team      `json:"teams,omitempty"`
	Queue   []Candidate `json:"queue,omitempty"`
	Current *Candidate  `json:"current,omitempty"`

	// DetailedLog accumulates one line per dial attempt and is embedded in
	// the eventual timeline alert.
	DetailedLog string `json:"detailed_log,omitempty"`

	// EntityID is the leg identifier captured on the first dial attempt so a
	// later recovery alert correlates with the original trigger.
	EntityID string `json:"entity_id,omitempty"`

	GoToVM              bool `json:"go_to_vm,omitempty"`
	FirstCall           bool `json:"first_call,omitempty"`
	AutoTeam            bool `json:"auto_team,omitempty"`
	FromMenuSelect      bool `json:"from_menu_select,omitempty"`
	SayGoodbye          bool `json:"say_goodbye,omitempty"`
	CallAnsweredByHuman bool `json:"call_answered_by_human,omitempty"`
}

// Team0 returns the selected team. Handlers past team assignment always
// operate on the first entry.
func (s State) Team0() (Team, bool) {
	if len(s.Teams) == 0 {
		return Team{}, false
	}
	return s.Teams[0], true
}
