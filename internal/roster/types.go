package roster

// Team is one entry from the roster platform's team listing.
type Team struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// User identifies an on-call user in schedule payloads.
type User struct {
	Username string `json:"username"`
}

// Rotation is one named sub-schedule within an escalation tier. OnCallUser is
// the regular assignee; OverrideOnCallUser is set while a manual override is
// active for the rotation.
type Rotation struct {
	RotationName       string `json:"rotationName"`
	OnCallUser         *User  `json:"onCallUser,omitempty"`
	OverrideOnCallUser *User  `json:"overrideOnCallUser,omitempty"`
}

// Policy names the escalation policy a tier schedule belongs to.
type Policy struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TierSchedule is one policy's schedule within a single escalation step.
type TierSchedule struct {
	Policy   Policy     `json:"policy"`
	Schedule []Rotation `json:"schedule"`
}

// ScheduleResponse is the body of the per-step on-call schedule endpoint.
type ScheduleResponse struct {
	TeamSlug  string         `json:"team"`
	Schedules []TierSchedule `json:"schedules"`
}

type contactMethodsResponse struct {
	ContactMethods []struct {
		Value string `json:"value"`
	} `json:"contactMethods"`
}
