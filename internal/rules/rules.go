// Package rules defines the rule model and the severity/action enums the
// scoring engine operates on.
package rules

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the ordered threat level assigned to rules and computed for
// events: Low < Medium < High < Critical.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// severityBase maps each severity to its base score contribution.
var severityBase = map[Severity]float64{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity converts a string to a Severity, case-insensitively.
// Unknown values are rejected so malformed rows never enter the scorer.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// BaseValue returns the severity's score contribution (Low=1 .. Critical=4).
// Unknown severities contribute nothing.
func (s Severity) BaseValue() float64 {
	return severityBase[s]
}

// Rank returns the severity's position in the Low<Medium<High<Critical order,
// 0 for unknown values.
func (s Severity) Rank() int {
	return int(severityBase[s])
}

func (s Severity) String() string { return string(s) }

// Action is the response chosen for an event. The set is closed: every
// consumer switches over exactly these three values and rejects anything else
// at parse time.
type Action string

const (
	ActionLog      Action = "log"
	ActionNotify   Action = "notify"
	ActionEscalate Action = "escalate"
)

// actionRank orders actions for the tie-break: escalate > notify > log.
var actionRank = map[Action]int{
	ActionLog:      1,
	ActionNotify:   2,
	ActionEscalate: 3,
}

// ParseAction converts a string to an Action, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "log":
		return ActionLog, nil
	case "notify":
		return ActionNotify, nil
	case "escalate":
		return ActionEscalate, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Rank returns the action's precedence (log=1, notify=2, escalate=3),
// 0 for unknown values.
func (a Action) Rank() int {
	return actionRank[a]
}

func (a Action) String() string { return string(a) }

// Rule is a pattern + severity + action + weight tuple used to score events.
// Weight starts at 1.0 and is mutated only by the feedback learner, and only
// when Adaptive is true. Version is the optimistic-lock counter owned by the
// backing store.
type Rule struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Pattern     string    `json:"pattern"`
	Severity    Severity  `json:"severity"`
	Action      Action    `json:"action"`
	Adaptive    bool      `json:"adaptive"`
	Weight      float64   `json:"weight"`
	Version     int       `json:"version"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
