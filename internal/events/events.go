// Package events defines the file-activity event and admin feedback records
// consumed from the events.new and feedback.new topics.
package events

import (
	"errors"
	"fmt"
	"time"

	"filesentry/internal/rules"
)

// ErrInvalidTarget marks an event whose target reference is malformed: the
// record must point at exactly one of a file or a folder. Such events are
// rejected before they reach the scorer.
var ErrInvalidTarget = errors.New("event target must reference exactly one of file or folder")

// Type is the kind of file-system activity an event describes.
type Type string

const (
	TypeCreate Type = "create"
	TypeModify Type = "modify"
	TypeDelete Type = "delete"
)

// Event is one file-system activity record, produced by the watcher/API
// layer. Path carries the target's path at event time so rule patterns can be
// matched without a store round trip. Exactly one of TargetFileID and
// TargetFolderID is set.
type Event struct {
	ID              int64     `json:"id"`
	Type            Type      `json:"event_type"`
	TargetFileID    *int64    `json:"target_file_id,omitempty"`
	TargetFolderID  *int64    `json:"target_folder_id,omitempty"`
	TriggeredByUser *int64    `json:"triggered_by_user_id,omitempty"`
	Path            string    `json:"path"`
	Timestamp       time.Time `json:"timestamp"`
	Processed       bool      `json:"processed_flag"`
}

// Validate rejects events that must never reach the scorer: unknown types,
// empty paths, and target references violating the file-XOR-folder invariant.
func (e Event) Validate() error {
	switch e.Type {
	case TypeCreate, TypeModify, TypeDelete:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if (e.TargetFileID == nil) == (e.TargetFolderID == nil) {
		return ErrInvalidTarget
	}
	if e.Path == "" {
		return fmt.Errorf("event %d has no target path", e.ID)
	}
	return nil
}

// Outcome is the admin's judgment on a past decision.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
	OutcomeModify  Outcome = "modify"
)

// Feedback is one admin judgment on a decided event. CorrectedSeverity and
// CorrectedAction are only meaningful for modify outcomes, where they carry
// what the admin believes the decision should have been.
type Feedback struct {
	ID                int64           `json:"id"`
	EventID           int64           `json:"event_id"`
	AdminID           *int64          `json:"admin_id,omitempty"`
	Outcome           Outcome         `json:"feedback_type"`
	CorrectedSeverity *rules.Severity `json:"corrected_severity,omitempty"`
	CorrectedAction   *rules.Action   `json:"corrected_action,omitempty"`
	Comment           string          `json:"comment,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Validate rejects feedback with an unknown outcome or malformed corrections.
func (f Feedback) Validate() error {
	switch f.Outcome {
	case OutcomeApprove, OutcomeReject, OutcomeModify:
	default:
		return fmt.Errorf("unknown feedback outcome %q", f.Outcome)
	}
	if f.EventID == 0 {
		return fmt.Errorf("feedback %d references no event", f.ID)
	}
	if f.CorrectedSeverity != nil {
		if _, err := rules.ParseSeverity(string(*f.CorrectedSeverity)); err != nil {
			return fmt.Errorf("feedback %d: %w", f.ID, err)
		}
	}
	if f.CorrectedAction != nil {
		if _, err := rules.ParseAction(string(*f.CorrectedAction)); err != nil {
			return fmt.Errorf("feedback %d: %w", f.ID, err)
		}
	}
	return nil
}
