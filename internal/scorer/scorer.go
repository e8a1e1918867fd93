// Package scorer computes a weighted severity and action for an event against
// a rule snapshot. Evaluation is pure: the same event, snapshot, and
// thresholds always produce the same result.
package scorer

import (
	"log/slog"
	"path"

	"filesentry/internal/events"
	"filesentry/internal/rules"
)

// Thresholds are the cut points mapping an aggregate score to a severity.
// A score at or above Critical maps to Critical, then High, then Medium;
// anything below Medium is Low.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultThresholds positions the cut points so a single weight-1.0 match
// yields the rule's own severity.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Medium:   2,
		High:     3,
		Critical: 4,
	}
}

// Result is the outcome of evaluating one event against one rule snapshot.
// It is ephemeral; only the decision derived from it is persisted.
type Result struct {
	EventID        int64
	MatchedRuleIDs []int64
	Severity       rules.Severity
	Action         rules.Action
	Score          float64
}

// Evaluate scores ev against the snapshot. Each matching rule contributes
// base severity value times rule weight to the score; the final severity
// comes from thresholding the total, and the final action is the most severe
// action among matched rules (escalate > notify > log). With no matches the
// result is Low/log with a zero score.
func Evaluate(ev events.Event, snapshot []rules.Rule, th Thresholds) Result {
	result := Result{
		EventID:  ev.ID,
		Severity: rules.SeverityLow,
		Action:   rules.ActionLog,
	}

	for _, rule := range snapshot {
		matched, err := matchPattern(rule.Pattern, ev.Path)
		if err != nil {
			slog.Warn("Skipping rule with malformed pattern",
				"rule_id", rule.ID,
				"pattern", rule.Pattern,
				"error", err,
			)
			continue
		}
		if !matched {
			continue
		}

		result.MatchedRuleIDs = append(result.MatchedRuleIDs, rule.ID)
		result.Score += rule.Severity.BaseValue() * rule.Weight
		if rule.Action.Rank() > result.Action.Rank() {
			result.Action = rule.Action
		}
	}

	if len(result.MatchedRuleIDs) > 0 {
		result.Severity = severityFor(result.Score, th)
	}
	return result
}

// severityFor maps an aggregate score to a severity via the cut points.
func severityFor(score float64, th Thresholds) rules.Severity {
	switch {
	case score >= th.Critical:
		return rules.SeverityCritical
	case score >= th.High:
		return rules.SeverityHigh
	case score >= th.Medium:
		return rules.SeverityMedium
	default:
		return rules.SeverityLow
	}
}

// matchPattern reports whether a glob pattern matches the event path.
// Patterns use path.Match semantics: `*` matches any run of characters within
// a segment, `?` one character, `[...]` a character class; there is no
// recursive `**`. The pattern is tried against the path's base name first
// (so "*.docx" hits "docs/report.docx") and then against the full path
// (so "docs/*" hits entries inside docs/).
func matchPattern(pattern, eventPath string) (bool, error) {
	if pattern == "" {
		return false, nil
	}
	if ok, err := path.Match(pattern, path.Base(eventPath)); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return path.Match(pattern, eventPath)
}
