// Package kafka provides shared Kafka helpers for the intake consumers.
package kafka

import "time"

const (
	// ReadTimeout is the maximum time to wait for a Kafka fetch operation.
	ReadTimeout = 10 * time.Second
	// CommitInterval is how often queued offset commits are flushed to the broker.
	CommitInterval = 1 * time.Second
)
