// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package train drives validation-controlled tuning runs: an epoch loop with
// named, prioritized hooks, and a BestTracker that watches one validation
// metric to decide when the model is worth snapshotting and when a run has
// plateaued and should stop.
package train

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// CompareMode says which direction of a metric is better.
type CompareMode string

const (
	// CompareMax treats larger metric values as better (scores).
	CompareMax CompareMode = "max"
	// CompareMin treats smaller metric values as better (losses).
	CompareMin CompareMode = "min"
)

// ThresholdMode says how the improvement margin is derived from the
// threshold value.
type ThresholdMode string

const (
	// ThresholdRelative margins scale with the current best:
	// |best| * threshold.
	ThresholdRelative ThresholdMode = "rel"
	// ThresholdAbsolute margins are the threshold value itself.
	ThresholdAbsolute ThresholdMode = "abs"
)

// TrackerConfig selects the metric watched by a BestTracker and the policy
// deciding improvements and exhaustion. Create it with NewTrackerConfig and
// adjust with the With* methods.
type TrackerConfig struct {
	// Metric is the name of the watched validation metric, used in logs and
	// reports only.
	Metric string `json:"metric"`

	// CompareMode is the improvement direction. Default: CompareMax.
	CompareMode CompareMode `json:"compare_mode"`

	// ThresholdMode and Threshold define the margin a candidate must beat
	// the best by. With a zero threshold any strict improvement counts.
	// Defaults: ThresholdRelative, 1e-4.
	ThresholdMode ThresholdMode `json:"threshold_mode"`
	Threshold     float64       `json:"threshold_value"`

	// TerminateAfter is how many consecutive non-improving validations are
	// tolerated before the tracker signals the run should stop. Default: 5.
	TerminateAfter int `json:"terminate_after"`
}

// NewTrackerConfig returns the default policy for the named metric: maximize,
// relative threshold 1e-4, stop tolerance 5.
func NewTrackerConfig(metric string) *TrackerConfig {
	return &TrackerConfig{
		Metric:         metric,
		CompareMode:    CompareMax,
		ThresholdMode:  ThresholdRelative,
		Threshold:      1e-4,
		TerminateAfter: 5,
	}
}

// WithCompareMode sets the improvement direction.
// It returns the updated TrackerConfig, so calls can be cascaded.
func (c *TrackerConfig) WithCompareMode(mode CompareMode) *TrackerConfig {
	c.CompareMode = mode
	return c
}

// WithThreshold sets the threshold mode and value.
// It returns the updated TrackerConfig, so calls can be cascaded.
func (c *TrackerConfig) WithThreshold(mode ThresholdMode, value float64) *TrackerConfig {
	c.ThresholdMode = mode
	c.Threshold = value
	return c
}

// WithTerminateAfter sets how many consecutive non-improvements are
// tolerated. It returns the updated TrackerConfig, so calls can be cascaded.
func (c *TrackerConfig) WithTerminateAfter(epochs int) *TrackerConfig {
	c.TerminateAfter = epochs
	return c
}

// Validate returns an error on the first invalid field.
func (c *TrackerConfig) Validate() error {
	if c.Metric == "" {
		return errors.Errorf("train: tracker Metric must not be empty")
	}
	if c.CompareMode != CompareMax && c.CompareMode != CompareMin {
		return errors.Errorf("train: tracker CompareMode must be %q or %q, got %q",
			CompareMax, CompareMin, c.CompareMode)
	}
	if c.ThresholdMode != ThresholdRelative && c.ThresholdMode != ThresholdAbsolute {
		return errors.Errorf("train: tracker ThresholdMode must be %q or %q, got %q",
			ThresholdRelative, ThresholdAbsolute, c.ThresholdMode)
	}
	if c.Threshold < 0 {
		return errors.Errorf("train: tracker Threshold must not be negative, got %g", c.Threshold)
	}
	if c.TerminateAfter <= 0 {
		return errors.Errorf("train: tracker TerminateAfter must be positive, got %d", c.TerminateAfter)
	}
	return nil
}

// trackerPhase is the tracker's state: before any validation, tracking a
// best value, or exhausted after too many non-improvements. Exhaustion is
// terminal: later improvements still update the best but the stop signal
// stays raised.
type trackerPhase int

const (
	phaseNoBestYet trackerPhase = iota
	phaseTracking
	phaseExhausted
)

// ValidationRecord is one observed validation event.
type ValidationRecord struct {
	Epoch     int     `json:"epoch"`
	Value     float64 `json:"value"`
	IsNewBest bool    `json:"is_new_best"`
}

// Outcome is the tracker's verdict on one validation event.
type Outcome struct {
	// IsNewBest signals the model should be snapshotted as the best so far.
	IsNewBest bool

	// ShouldStop signals the run has plateaued. It is a control value, not
	// an error: the loop decides whether to honor it.
	ShouldStop bool

	// EpochsSinceBest counts consecutive non-improving validations.
	EpochsSinceBest int
}

// BestTracker follows a validation metric across epochs. It is not safe for
// concurrent use: validation events are strictly ordered.
type BestTracker struct {
	cfg       TrackerConfig
	phase     trackerPhase
	best      float64
	bestEpoch int
	sinceBest int
	history   []ValidationRecord
}

// NewBestTracker validates cfg and returns a tracker in its initial state.
func NewBestTracker(cfg *TrackerConfig) (*BestTracker, error) {
	if cfg == nil {
		return nil, errors.Errorf("train: nil tracker config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BestTracker{cfg: *cfg}, nil
}

// Config returns a copy of the tracker's policy.
func (t *BestTracker) Config() TrackerConfig { return t.cfg }

// Observe folds in the validation value of the given epoch and returns the
// verdict. The first observation always becomes the best.
func (t *BestTracker) Observe(epoch int, value float64) Outcome {
	isNewBest := false
	switch t.phase {
	case phaseNoBestYet:
		isNewBest = true
		t.phase = phaseTracking
	default:
		isNewBest = t.improves(value)
	}
	if isNewBest {
		t.best = value
		t.bestEpoch = epoch
		t.sinceBest = 0
	} else {
		t.sinceBest++
		if t.sinceBest > t.cfg.TerminateAfter {
			t.phase = phaseExhausted
		}
	}
	t.history = append(t.history, ValidationRecord{Epoch: epoch, Value: value, IsNewBest: isNewBest})
	return Outcome{
		IsNewBest:       isNewBest,
		ShouldStop:      t.phase == phaseExhausted,
		EpochsSinceBest: t.sinceBest,
	}
}

// improves reports whether value beats the current best by more than the
// configured margin.
func (t *BestTracker) improves(value float64) bool {
	margin := t.cfg.Threshold
	if t.cfg.ThresholdMode == ThresholdRelative {
		margin = math.Abs(t.best) * t.cfg.Threshold
	}
	if t.cfg.CompareMode == CompareMax {
		return value > t.best+margin
	}
	return value < t.best-margin
}

// Best returns the best value seen and its epoch; ok is false before the
// first observation.
func (t *BestTracker) Best() (value float64, epoch int, ok bool) {
	if t.phase == phaseNoBestYet {
		return 0, 0, false
	}
	return t.best, t.bestEpoch, true
}

// EpochsSinceBest returns the current run of non-improving validations.
func (t *BestTracker) EpochsSinceBest() int { return t.sinceBest }

// Stopped reports whether the stop signal has been raised. It never resets.
func (t *BestTracker) Stopped() bool { return t.phase == phaseExhausted }

// History returns a copy of every observed validation event, in order.
func (t *BestTracker) History() []ValidationRecord {
	out := make([]ValidationRecord, len(t.history))
	copy(out, t.history)
	return out
}

// TrackerState is the JSON-serializable snapshot of a BestTracker, so runs
// can resume across process restarts.
type TrackerState struct {
	Config          TrackerConfig      `json:"config"`
	HasBest         bool               `json:"has_best"`
	Best            float64            `json:"best"`
	BestEpoch       int                `json:"best_epoch"`
	EpochsSinceBest int                `json:"epochs_since_best"`
	Stopped         bool               `json:"stopped"`
	History         []ValidationRecord `json:"history"`
}

// State snapshots the tracker.
func (t *BestTracker) State() TrackerState {
	return TrackerState{
		Config:          t.cfg,
		HasBest:         t.phase != phaseNoBestYet,
		Best:            t.best,
		BestEpoch:       t.bestEpoch,
		EpochsSinceBest: t.sinceBest,
		Stopped:         t.phase == phaseExhausted,
		History:         t.History(),
	}
}

// RestoreTracker rebuilds a tracker from a snapshot.
func RestoreTracker(state TrackerState) (*BestTracker, error) {
	if err := state.Config.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "restoring tracker state")
	}
	t := &BestTracker{
		cfg:       state.Config,
		best:      state.Best,
		bestEpoch: state.BestEpoch,
		sinceBest: state.EpochsSinceBest,
		history:   append([]ValidationRecord(nil), state.History...),
	}
	switch {
	case state.Stopped:
		t.phase = phaseExhausted
	case state.HasBest:
		t.phase = phaseTracking
	default:
		t.phase = phaseNoBestYet
	}
	return t, nil
}

// Save writes the tracker state as JSON to the given path.
func (t *BestTracker) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "train: failed to create tracker state file %s", path)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "\t")
	state := t.State()
	if err = enc.Encode(&state); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "train: failed to encode tracker state file %s", path)
	}
	if err = file.Close(); err != nil {
		return errors.Wrapf(err, "train: failed to close tracker state file %s", path)
	}
	return nil
}

// LoadTracker reads a tracker state file written by Save.
func LoadTracker(path string) (*BestTracker, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "train: failed to open tracker state file %s", path)
	}
	defer func() { _ = file.Close() }()
	var state TrackerState
	if err = json.NewDecoder(file).Decode(&state); err != nil {
		return nil, errors.Wrapf(err, "train: failed to decode tracker state file %s", path)
	}
	return RestoreTracker(state)
}
