package rulecache

// Recorder defines the metrics operations the cache reports.
type Recorder interface {
	RecordCacheRefresh()
	RecordCacheRefreshFailure()
	RecordCacheInvalidation()
}

// NoOpRecorder is a null-object Recorder for tests and metrics-free setups.
type NoOpRecorder struct{}

var _ Recorder = (*NoOpRecorder)(nil)

func (n *NoOpRecorder) RecordCacheRefresh()        {}
func (n *NoOpRecorder) RecordCacheRefreshFailure() {}
func (n *NoOpRecorder) RecordCacheInvalidation()   {}
