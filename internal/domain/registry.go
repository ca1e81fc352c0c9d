package domain

import (
	"encoding/json"
	"fmt"
)

// Effect identifies a downstream recomputation triggered when a user's
// effective settings change.
type Effect string

const (
	// EffectRecalculatePlans re-derives the forward task plan for each
	// affected user under the now-effective payload.
	EffectRecalculatePlans Effect = "recalculate_plans"
	// EffectAdjustStartTime shifts pending task start times to the new
	// working window.
	EffectAdjustStartTime Effect = "adjust_start_time"
	// EffectInvalidateCache drops the cached effective settings for each
	// affected user.
	EffectInvalidateCache Effect = "invalidate_cache"
	// EffectResetLeadScores re-runs lead scoring against the new threshold.
	EffectResetLeadScores Effect = "reset_lead_scores"
)

// Descriptor describes one settings domain to the generic engine: which side
// effects fire on change, and (optionally) how to tell that two payloads are
// equivalent for side-effect purposes.
type Descriptor struct {
	ID             SettingsDomain
	Name           string
	CacheNamespace string
	Effects        []Effect

	// Unchanged, when non-nil, reports whether the new payload is equivalent
	// to the old one as far as expensive side effects are concerned. When it
	// returns true, every effect except cache invalidation is suppressed.
	Unchanged func(old, new json.RawMessage) bool
}

var registry = map[SettingsDomain]*Descriptor{
	DomainAutomatedTask: {
		ID:             DomainAutomatedTask,
		Name:           "Automated Task Settings",
		CacheNamespace: "automated_task_settings",
		Effects:        []Effect{EffectRecalculatePlans, EffectAdjustStartTime, EffectInvalidateCache},
	},
	DomainBouncedMail: {
		ID:             DomainBouncedMail,
		Name:           "Bounced Mail Settings",
		CacheNamespace: "bounced_mail_settings",
		Effects:        []Effect{EffectInvalidateCache},
	},
	DomainUnsubscribeMail: {
		ID:             DomainUnsubscribeMail,
		Name:           "Unsubscribe Mail Settings",
		CacheNamespace: "unsubscribe_mail_settings",
		Effects:        []Effect{EffectInvalidateCache},
	},
	DomainTaskSettings: {
		ID:             DomainTaskSettings,
		Name:           "Task Settings",
		CacheNamespace: "task_settings",
		Effects:        []Effect{EffectRecalculatePlans, EffectInvalidateCache},
	},
	DomainSkip: {
		ID:             DomainSkip,
		Name:           "Skip Settings",
		CacheNamespace: "skip_settings",
		Effects:        []Effect{EffectInvalidateCache},
	},
	DomainLeadScore: {
		ID:             DomainLeadScore,
		Name:           "Lead Score Settings",
		CacheNamespace: "lead_score_settings",
		Effects:        []Effect{EffectResetLeadScores, EffectInvalidateCache},
		Unchanged:      leadScoreUnchanged,
	},
}

// Lookup returns the descriptor for d, or an error for an unknown domain.
func Lookup(d SettingsDomain) (*Descriptor, error) {
	desc, ok := registry[d]
	if !ok {
		return nil, fmt.Errorf("unknown settings domain %q", d)
	}
	return desc, nil
}

// AllDomains returns the six registered domains in a stable order.
func AllDomains() []SettingsDomain {
	return []SettingsDomain{
		DomainAutomatedTask,
		DomainBouncedMail,
		DomainUnsubscribeMail,
		DomainTaskSettings,
		DomainSkip,
		DomainLeadScore,
	}
}

// leadScoreUnchanged reports whether score_threshold and reset_period are
// both unchanged between the old and new payload. Score resets are expensive
// (they touch every lead of every affected user), so they only fire when one
// of those two fields actually changed value.
func leadScoreUnchanged(oldRaw, newRaw json.RawMessage) bool {
	var oldS, newS LeadScoreSettings
	if err := json.Unmarshal(oldRaw, &oldS); err != nil {
		return false
	}
	if err := json.Unmarshal(newRaw, &newS); err != nil {
		return false
	}
	return oldS.ScoreThreshold == newS.ScoreThreshold && oldS.ResetPeriod == newS.ResetPeriod
}
