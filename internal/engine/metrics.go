package engine

import "time"

// Recorder abstracts metrics collection for the engine. Implementations must
// be safe for concurrent use.
type Recorder interface {
	RecordEventReceived()
	RecordEventInvalid()
	RecordEventDuplicate()
	RecordDecisionCommitted(elapsed time.Duration)
	RecordFeedbackReceived()
	RecordFeedbackInvalid()
	RecordFeedbackApplied()
}

// NoOpRecorder discards all metrics.
type NoOpRecorder struct{}

var _ Recorder = (*NoOpRecorder)(nil)

func (n *NoOpRecorder) RecordEventReceived()                  {}
func (n *NoOpRecorder) RecordEventInvalid()                   {}
func (n *NoOpRecorder) RecordEventDuplicate()                 {}
func (n *NoOpRecorder) RecordDecisionCommitted(time.Duration) {}
func (n *NoOpRecorder) RecordFeedbackReceived()               {}
func (n *NoOpRecorder) RecordFeedbackInvalid()                {}
func (n *NoOpRecorder) RecordFeedbackApplied()                {}
