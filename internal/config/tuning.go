package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds the scoring, learning and delivery knobs. All values have
// working defaults, so the tuning file is optional; when one is given it is
// overlaid on the defaults, and only the keys present in the file change.
type Tuning struct {
	// Severity cut points. A score at or above CriticalScore maps to
	// critical, then HighScore, then MediumScore; anything below is low.
	MediumScore   float64 `yaml:"medium_score"`
	HighScore     float64 `yaml:"high_score"`
	CriticalScore float64 `yaml:"critical_score"`

	// Feedback learning.
	LearningRate float64 `yaml:"learning_rate"`
	WeightMax    float64 `yaml:"weight_max"`
	ModifyFactor float64 `yaml:"modify_factor"`

	// Rule snapshot freshness.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Notification batching and delivery.
	FlushInterval  time.Duration `yaml:"flush_interval"`
	QueueCapacity  int           `yaml:"queue_capacity"`
	HighWater      int           `yaml:"high_water"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
}

// DefaultTuning returns the tuning the service runs with when no file is
// given. The cut points position a single weight-1.0 match at the rule's own
// severity.
func DefaultTuning() Tuning {
	return Tuning{
		MediumScore:    2,
		HighScore:      3,
		CriticalScore:  4,
		LearningRate:   0.1,
		WeightMax:      5.0,
		ModifyFactor:   0.3,
		CacheTTL:       60 * time.Second,
		FlushInterval:  5 * time.Minute,
		QueueCapacity:  256,
		HighWater:      32,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     16 * time.Second,
		DrainTimeout:   30 * time.Second,
	}
}

// LoadTuning reads a YAML tuning file and overlays it on the defaults. An
// empty path returns the defaults unchanged.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("failed to read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("invalid tuning file %s: %w", path, err)
	}
	return t, nil
}

// Validate checks that the tuning values are self-consistent.
func (t Tuning) Validate() error {
	if t.MediumScore <= 0 {
		return fmt.Errorf("medium_score must be positive")
	}
	if t.HighScore <= t.MediumScore {
		return fmt.Errorf("high_score must be greater than medium_score")
	}
	if t.CriticalScore <= t.HighScore {
		return fmt.Errorf("critical_score must be greater than high_score")
	}
	if t.LearningRate <= 0 || t.LearningRate >= 1 {
		return fmt.Errorf("learning_rate must be between 0 and 1")
	}
	if t.WeightMax <= 0 {
		return fmt.Errorf("weight_max must be positive")
	}
	if t.ModifyFactor <= 0 || t.ModifyFactor > 1 {
		return fmt.Errorf("modify_factor must be between 0 and 1")
	}
	if t.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if t.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive")
	}
	if t.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive")
	}
	if t.HighWater <= 0 || t.HighWater > t.QueueCapacity {
		return fmt.Errorf("high_water must be between 1 and queue_capacity")
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if t.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if t.MaxBackoff < t.InitialBackoff {
		return fmt.Errorf("max_backoff cannot be less than initial_backoff")
	}
	if t.DrainTimeout <= 0 {
		return fmt.Errorf("drain_timeout must be positive")
	}
	return nil
}
