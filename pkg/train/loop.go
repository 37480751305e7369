// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Priority orders hooks; the lowest values run first. Defaults to 0, but
// negative values are ok.
type Priority int

// OnStartFn is the type of OnStart hooks, called once before the first epoch.
type OnStartFn func(loop *Loop, plannedEpochs int) error

// OnEpochFn is the type of OnEpoch hooks, called after every epoch with its
// validation metric value. Returning ErrStopRequested (possibly wrapped) ends
// the run early without failing it.
type OnEpochFn func(loop *Loop, validation float64) error

// OnEndFn is the type of OnEnd hooks, called once after the last epoch.
type OnEndFn func(loop *Loop) error

// EpochFn does one epoch of work (a tuning pass, a decode-and-evaluate pass)
// and returns the validation metric value for that epoch.
type EpochFn func(loop *Loop, epoch int) (validation float64, err error)

// ErrStopRequested is returned by OnEpoch hooks (the BestTracker's among
// them) to end a run early. The loop treats it as a clean stop, not a
// failure.
var ErrStopRequested = errors.New("stop requested")

// Loop runs epochs of work and invokes the registered hooks. In itself it
// doesn't do much, but one can attach functionality to it: best-metric
// tracking, progress reporting, state snapshots.
//
// The public attributes are meant for reading only.
type Loop struct {
	// RunID tags every log line of this run.
	RunID string

	// Epoch currently being executed, starting from 0.
	Epoch int

	// Validation is the metric value of the last finished epoch.
	Validation float64

	// StoppedEarly is set when a hook ended the run before the planned
	// number of epochs.
	StoppedEarly bool

	// EpochDurations collects the wall time of every finished epoch.
	EpochDurations []time.Duration

	// SharedData allows cross-hook publishing and consumption of values.
	// Keys and the semantics of their values are not specified by Loop.
	SharedData map[string]any

	onStart *priorityHooks[*hookWithName[OnStartFn]]
	onEpoch *priorityHooks[*hookWithName[OnEpochFn]]
	onEnd   *priorityHooks[*hookWithName[OnEndFn]]
}

// NewLoop creates an empty loop with a fresh RunID.
func NewLoop() *Loop {
	return &Loop{
		RunID:      uuid.NewString(),
		SharedData: make(map[string]any),
		onStart:    newPriorityHooks[*hookWithName[OnStartFn]](),
		onEpoch:    newPriorityHooks[*hookWithName[OnEpochFn]](),
		onEnd:      newPriorityHooks[*hookWithName[OnEndFn]](),
	}
}

// OnStart adds a hook with the given priority and name (for error reporting)
// to the start of a run.
func (loop *Loop) OnStart(name string, priority Priority, fn OnStartFn) {
	loop.onStart.Add(priority, &hookWithName[OnStartFn]{name: name, fn: fn})
}

// OnEpoch adds a hook with the given priority and name (for error reporting)
// after every epoch.
func (loop *Loop) OnEpoch(name string, priority Priority, fn OnEpochFn) {
	loop.onEpoch.Add(priority, &hookWithName[OnEpochFn]{name: name, fn: fn})
}

// OnEnd adds a hook with the given priority and name (for error reporting)
// to the end of a run, after the last epoch.
func (loop *Loop) OnEnd(name string, priority Priority, fn OnEndFn) {
	loop.onEnd.Add(priority, &hookWithName[OnEndFn]{name: name, fn: fn})
}

// AttachBestTracker registers the tracker as an OnEpoch hook: every epoch's
// validation value is observed, and the run stops when the tracker signals
// exhaustion. It runs at a high priority value so reporting hooks see the
// epoch first.
func (loop *Loop) AttachBestTracker(tracker *BestTracker) {
	loop.OnEpoch("best-tracker", 100, func(loop *Loop, validation float64) error {
		outcome := tracker.Observe(loop.Epoch, validation)
		if outcome.IsNewBest {
			klog.V(1).Infof("run %s: epoch %d is the new best %s (%.5f)",
				loop.RunID, loop.Epoch, tracker.Config().Metric, validation)
		}
		if outcome.ShouldStop {
			return errors.WithMessagef(ErrStopRequested,
				"%s did not improve for %d epochs", tracker.Config().Metric, outcome.EpochsSinceBest)
		}
		return nil
	})
}

// RunEpochs runs fn for the given number of epochs, invoking the hooks
// around it. An OnEpoch hook returning ErrStopRequested ends the run early
// and cleanly; every other error aborts it.
func (loop *Loop) RunEpochs(epochs int, fn EpochFn) error {
	if epochs <= 0 {
		return errors.Errorf("train: RunEpochs needs a positive epoch count, got %d", epochs)
	}
	if fn == nil {
		return errors.Errorf("train: RunEpochs needs a non-nil EpochFn")
	}
	if err := loop.start(epochs); err != nil {
		return err
	}
	loop.StoppedEarly = false
	loop.EpochDurations = make([]time.Duration, 0, epochs)
	for loop.Epoch = 0; loop.Epoch < epochs; loop.Epoch++ {
		startTime := time.Now()
		validation, err := fn(loop, loop.Epoch)
		if err != nil {
			return errors.WithMessagef(err, "Loop.RunEpochs(%d): epoch %d failed", epochs, loop.Epoch)
		}
		loop.Validation = validation
		loop.EpochDurations = append(loop.EpochDurations, time.Since(startTime))

		if err = loop.epochHooks(validation); err != nil {
			if errors.Is(err, ErrStopRequested) {
				klog.Infof("run %s: stopping after epoch %d: %v", loop.RunID, loop.Epoch, err)
				loop.StoppedEarly = true
				break
			}
			return err
		}
	}
	return loop.end()
}

func (loop *Loop) start(plannedEpochs int) (err error) {
	loop.onStart.Enumerate(func(hook *hookWithName[OnStartFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, plannedEpochs)
		if err != nil {
			err = errors.WithMessagef(err, "OnStart(hook %q)", hook.name)
		}
	})
	return
}

func (loop *Loop) epochHooks(validation float64) (err error) {
	loop.onEpoch.Enumerate(func(hook *hookWithName[OnEpochFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop, validation)
		if err != nil {
			err = errors.WithMessagef(err, "OnEpoch(hook %q)", hook.name)
		}
	})
	return
}

func (loop *Loop) end() (err error) {
	loop.onEnd.Enumerate(func(hook *hookWithName[OnEndFn]) {
		if err != nil {
			// After the first error stop.
			return
		}
		err = hook.fn(loop)
		if err != nil {
			err = errors.WithMessagef(err, "OnEnd(hook %q)", hook.name)
		}
	})
	return
}

// hookWithName stores a hook name and function.
type hookWithName[F any] struct {
	name string
	fn   F
}

// priorityHooks organizes hooks for type F per priority.
type priorityHooks[H any] struct {
	hooks map[Priority][]H
}

func newPriorityHooks[H any]() *priorityHooks[H] {
	return &priorityHooks[H]{hooks: make(map[Priority][]H)}
}

// Add hook at the given priority.
func (h *priorityHooks[H]) Add(priority Priority, hook H) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// Enumerate calls fn for all registered hooks in priority order.
func (h *priorityHooks[H]) Enumerate(fn func(hook H)) {
	keys := make([]Priority, 0, len(h.hooks))
	for key := range h.hooks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		for _, hook := range h.hooks[key] {
			fn(hook)
		}
	}
}
