package notifier

// Recorder abstracts metrics collection for the batcher. Implementations
// must be safe for concurrent use.
type Recorder interface {
	RecordNotificationEnqueued()
	RecordNotificationDropped(n int)
	RecordBatchDelivered(n int)
	RecordDeliveryFailure()
}

// NoOpRecorder discards all metrics.
type NoOpRecorder struct{}

func (n *NoOpRecorder) RecordNotificationEnqueued()   {}
func (n *NoOpRecorder) RecordNotificationDropped(int) {}
func (n *NoOpRecorder) RecordBatchDelivered(int)      {}
func (n *NoOpRecorder) RecordDeliveryFailure()        {}

var _ Recorder = (*NoOpRecorder)(nil)
