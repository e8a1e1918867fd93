package learner

// Recorder abstracts metrics collection for the learner. Implementations
// must be safe for concurrent use.
type Recorder interface {
	RecordWeightUpdate(n int)
	RecordWeightConflict()
}

// NoOpRecorder discards all metrics.
type NoOpRecorder struct{}

var _ Recorder = (*NoOpRecorder)(nil)

func (n *NoOpRecorder) RecordWeightUpdate(int) {}
func (n *NoOpRecorder) RecordWeightConflict()  {}
