// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, cfg *TrackerConfig) *BestTracker {
	t.Helper()
	tracker, err := NewBestTracker(cfg)
	require.NoError(t, err)
	return tracker
}

func TestTrackerConfigValidate(t *testing.T) {
	assert.NoError(t, NewTrackerConfig("CIDEr").Validate())

	cases := []struct {
		name    string
		cfg     *TrackerConfig
		wantErr string
	}{
		{"EmptyMetric", NewTrackerConfig(""), "Metric"},
		{"BadCompareMode", NewTrackerConfig("m").WithCompareMode("upward"), "CompareMode"},
		{"BadThresholdMode", NewTrackerConfig("m").WithThreshold("pct", 0.1), "ThresholdMode"},
		{"NegativeThreshold", NewTrackerConfig("m").WithThreshold(ThresholdAbsolute, -1), "Threshold"},
		{"ZeroTerminateAfter", NewTrackerConfig("m").WithTerminateAfter(0), "TerminateAfter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)

			_, err = NewBestTracker(tc.cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewBestTracker(nil)
	assert.Error(t, err)
}

func TestTrackerPlateau(t *testing.T) {
	tracker := newTestTracker(t, NewTrackerConfig("CIDEr").
		WithCompareMode(CompareMax).
		WithThreshold(ThresholdRelative, 1e-4).
		WithTerminateAfter(2))

	type step struct {
		value     float64
		isNewBest bool
		stop      bool
		sinceBest int
	}
	steps := []step{
		{0.50, true, false, 0},
		{0.52, true, false, 0},
		{0.51, false, false, 1},
		{0.51, false, false, 2},
		{0.51, false, true, 3},
	}
	for ii, s := range steps {
		outcome := tracker.Observe(ii+1, s.value)
		assert.Equal(t, s.isNewBest, outcome.IsNewBest, "step %d", ii+1)
		assert.Equal(t, s.stop, outcome.ShouldStop, "step %d", ii+1)
		assert.Equal(t, s.sinceBest, outcome.EpochsSinceBest, "step %d", ii+1)
	}

	assert.True(t, tracker.Stopped())
	best, epoch, ok := tracker.Best()
	require.True(t, ok)
	assert.Equal(t, 0.52, best)
	assert.Equal(t, 2, epoch)
}

func TestTrackerFirstObservationIsBest(t *testing.T) {
	tracker := newTestTracker(t, NewTrackerConfig("loss").WithCompareMode(CompareMin))

	_, _, ok := tracker.Best()
	assert.False(t, ok)

	outcome := tracker.Observe(0, 1e9)
	assert.True(t, outcome.IsNewBest)
	assert.False(t, outcome.ShouldStop)

	best, epoch, ok := tracker.Best()
	require.True(t, ok)
	assert.Equal(t, 1e9, best)
	assert.Equal(t, 0, epoch)
}

func TestTrackerCompareMin(t *testing.T) {
	tracker := newTestTracker(t, NewTrackerConfig("loss").
		WithCompareMode(CompareMin).WithThreshold(ThresholdRelative, 0))

	assert.True(t, tracker.Observe(0, 1.0).IsNewBest)
	assert.True(t, tracker.Observe(1, 0.9).IsNewBest)
	assert.False(t, tracker.Observe(2, 0.95).IsNewBest)
	assert.False(t, tracker.Observe(3, 0.9).IsNewBest, "a tie is not an improvement")
}

func TestTrackerAbsoluteThreshold(t *testing.T) {
	tracker := newTestTracker(t, NewTrackerConfig("BLEU").
		WithThreshold(ThresholdAbsolute, 0.05))

	assert.True(t, tracker.Observe(0, 0.50).IsNewBest)
	assert.False(t, tracker.Observe(1, 0.54).IsNewBest, "within the margin")
	assert.True(t, tracker.Observe(2, 0.56).IsNewBest)
}

func TestTrackerRelativeThresholdAtZeroBest(t *testing.T) {
	// |best| * threshold degenerates to 0 at best == 0: any strict
	// improvement must count.
	tracker := newTestTracker(t, NewTrackerConfig("reward").
		WithThreshold(ThresholdRelative, 0.1))

	assert.True(t, tracker.Observe(0, 0.0).IsNewBest)
	assert.False(t, tracker.Observe(1, -0.001).IsNewBest)
	assert.True(t, tracker.Observe(2, 0.0001).IsNewBest)
}

func TestTrackerStopLatches(t *testing.T) {
	tracker := newTestTracker(t, NewTrackerConfig("score").WithTerminateAfter(1))

	tracker.Observe(0, 0.5)
	tracker.Observe(1, 0.4)
	outcome := tracker.Observe(2, 0.4)
	require.True(t, outcome.ShouldStop)

	// A late improvement is still recorded as best, but the stop signal
	// stays raised.
	outcome = tracker.Observe(3, 0.9)
	assert.True(t, outcome.IsNewBest)
	assert.True(t, outcome.ShouldStop)
	assert.True(t, tracker.Stopped())
}

func TestTrackerHistory(t *testing.T) {
	tracker := newTestTracker(t, NewTrackerConfig("score"))
	tracker.Observe(3, 0.1)
	tracker.Observe(4, 0.2)

	history := tracker.History()
	require.Len(t, history, 2)
	assert.Equal(t, ValidationRecord{Epoch: 3, Value: 0.1, IsNewBest: true}, history[0])
	assert.Equal(t, ValidationRecord{Epoch: 4, Value: 0.2, IsNewBest: true}, history[1])

	// The returned slice is a copy.
	history[0].Value = -1
	assert.Equal(t, 0.1, tracker.History()[0].Value)
}

func TestTrackerStateRoundTrip(t *testing.T) {
	cfg := NewTrackerConfig("CIDEr").WithTerminateAfter(3)
	tracker := newTestTracker(t, cfg)
	tracker.Observe(0, 0.5)
	tracker.Observe(1, 0.45)

	restored, err := RestoreTracker(tracker.State())
	require.NoError(t, err)
	assert.Equal(t, tracker.Config(), restored.Config())
	assert.Equal(t, tracker.History(), restored.History())

	// Both continue identically.
	want := tracker.Observe(2, 0.44)
	got := restored.Observe(2, 0.44)
	assert.Equal(t, want, got)

	_, err = RestoreTracker(TrackerState{})
	assert.Error(t, err)
}

func TestTrackerSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.json")
	tracker := newTestTracker(t, NewTrackerConfig("METEOR").WithTerminateAfter(2))
	tracker.Observe(0, 0.31)
	tracker.Observe(1, 0.29)
	require.NoError(t, tracker.Save(path))

	loaded, err := LoadTracker(path)
	require.NoError(t, err)
	assert.Equal(t, tracker.State(), loaded.State())
	assert.Equal(t, 1, loaded.EpochsSinceBest())

	_, err = LoadTracker(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
