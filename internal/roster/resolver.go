package roster

import (
	"context"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ehharris/twilio-live-call-routing/internal/session"
)

// maxTiers is the fixed number of escalation steps consulted per policy.
const maxTiers = 3

type scheduleAPI interface {
	TierSchedules(ctx context.Context, teamSlug string, step int) (ScheduleResponse, error)
	UserPhones(ctx context.Context, username string) ([]string, error)
}

// Resolver turns a team's escalation policy into an ordered queue of
// dialable candidates, one per tier.
type Resolver struct {
	api    scheduleAPI
	logger *logrus.Logger

	// pick selects among multiple simultaneously on-call users in one tier.
	// Uniform random by default; injectable for deterministic tests.
	pick func(n int) int
}

func NewResolver(api scheduleAPI, logger *logrus.Logger) *Resolver {
	return &Resolver{
		api:    api,
		logger: logger,
		pick:   rand.Intn,
	}
}

// Responders resolves the on-call candidates for a team, in tier order
// 0, 1, 2. Tiers without an eligible user or without a registered phone
// contribute no candidate. Any fetch or parse failure is returned as-is; the
// caller converts it into the fatal-to-call spoken error.
func (r *Resolver) Responders(ctx context.Context, team session.Team) ([]session.Candidate, error) {
	overrides, err := r.activeOverrides(ctx, team.Slug)
	if err != nil {
		return nil, err
	}

	// Tier fetches run concurrently once the overrides are known; results
	// are slotted by index so queue order stays 0, 1, 2 regardless of
	// completion order.
	var (
		wg        sync.WaitGroup
		responses [maxTiers]ScheduleResponse
		errs      [maxTiers]error
	)
	for step := 0; step < maxTiers; step++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			responses[step], errs[step] = r.api.TierSchedules(ctx, team.Slug, step)
		}(step)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var queue []session.Candidate
	for step := 0; step < maxTiers; step++ {
		candidate, ok, err := r.tierCandidate(ctx, team, responses[step], overrides)
		if err != nil {
			return nil, err
		}
		if ok {
			queue = append(queue, candidate)
		}
	}
	return queue, nil
}

// activeOverrides scans the first escalation step for rotations with an
// active override and maps rotation name to the overriding user. Rotation
// names are unique within a policy, so the same map applies to every tier;
// this lets an override on a rotation the caller cannot see (a hidden
// secondary, for example) still take effect.
func (r *Resolver) activeOverrides(ctx context.Context, teamSlug string) (map[string]string, error) {
	res, err := r.api.TierSchedules(ctx, teamSlug, 0)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]string)
	for _, ts := range res.Schedules {
		for _, rotation := range ts.Schedule {
			if rotation.OverrideOnCallUser != nil {
				overrides[rotation.RotationName] = rotation.OverrideOnCallUser.Username
			}
		}
	}
	return overrides, nil
}

// tierCandidate resolves the single candidate for one tier. An override for
// a rotation name always wins over the regular assignee on that rotation.
func (r *Resolver) tierCandidate(ctx context.Context, team session.Team, res ScheduleResponse, overrides map[string]string) (session.Candidate, bool, error) {
	schedule, ok := selectSchedule(res.Schedules, team.EscalationPolicy)
	if !ok {
		return session.Candidate{}, false, nil
	}

	var eligible []string
	for _, rotation := range schedule {
		if user, ok := overrides[rotation.RotationName]; ok {
			eligible = append(eligible, user)
		} else if rotation.OnCallUser != nil {
			eligible = append(eligible, rotation.OnCallUser.Username)
		}
	}
	if len(eligible) == 0 {
		return session.Candidate{}, false, nil
	}

	username := eligible[r.pick(len(eligible))]
	phones, err := r.api.UserPhones(ctx, username)
	if err != nil {
		return session.Candidate{}, false, err
	}
	if len(phones) == 0 {
		r.logger.WithFields(logrus.Fields{
			"team": team.Slug,
			"user": username,
		}).Warn("on-call user has no phone contact method")
		return session.Candidate{}, false, nil
	}
	return session.Candidate{Username: username, Phone: phones[0]}, true, nil
}

// selectSchedule returns the schedule for the configured escalation policy
// name, or the first schedule when no policy name was configured.
func selectSchedule(schedules []TierSchedule, policyName string) ([]Rotation, bool) {
	if policyName == "" {
		if len(schedules) == 0 {
			return nil, false
		}
		return schedules[0].Schedule, true
	}
	for _, ts := range schedules {
		if ts.Policy.Name == policyName {
			return ts.Schedule, true
		}
	}
	return nil, false
}
