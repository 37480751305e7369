// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package marttest provides deterministic StepScorer implementations used to
// test decoding behavior without a real model: distributions are scripted
// per token prefix, and memory updates encode which sentence produced them.
package marttest

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/gomart/gomart/pkg/mart"
)

// Key renders a token prefix as a ScriptedScorer script key, e.g. Key(4, 7, 9) == "4 7 9".
func Key(prefix ...int32) string {
	parts := make([]string, len(prefix))
	for ii, id := range prefix {
		parts[ii] = strconv.Itoa(int(id))
	}
	return strings.Join(parts, " ")
}

// Uniform returns the uniform log-probability distribution over size tokens.
func Uniform(size int) []float64 {
	logP := -math.Log(float64(size))
	dist := make([]float64, size)
	for ii := range dist {
		dist[ii] = logP
	}
	return dist
}

// Ranked returns a log-probability vector of the given size where preferred
// tokens score highest in the given order (-0.1, -0.2, ...) and every other
// token gets a large negative score. Handy to script exact beam choices.
func Ranked(size int, preferred ...int32) []float64 {
	dist := make([]float64, size)
	for ii := range dist {
		dist[ii] = -100.0
	}
	for rank, id := range preferred {
		dist[id] = -0.1 * float64(rank+1)
	}
	return dist
}

// ScriptedScorer returns prescribed distributions per prefix and records
// every UpdateMemory call. The zero value is not usable: set Size.
type ScriptedScorer struct {
	// Size of the vocabulary (length of every returned distribution).
	Size int

	// Steps maps Key(prefix...) to the distribution returned for that prefix.
	Steps map[string][]float64

	// Default is returned for prefixes not in Steps; nil means Uniform(Size).
	Default []float64

	// NumCells and MemDim shape the memory snapshots UpdateMemory returns
	// (defaults 1 and 4).
	NumCells, MemDim int

	mu      sync.Mutex
	updates [][]int32
}

var (
	_ mart.StepScorer  = (*ScriptedScorer)(nil)
	_ mart.StepScorer  = (*FuncScorer)(nil)
	_ mart.BatchScorer = (*Batch)(nil)
)

// ScoreStep implements mart.StepScorer.
func (s *ScriptedScorer) ScoreStep(prefix []int32, mem *mart.Memory, vctx *mart.VideoContext) ([]float64, error) {
	if dist, found := s.Steps[Key(prefix...)]; found {
		if len(dist) != s.Size {
			return nil, errors.Errorf("scripted step for %q has %d entries, vocabulary size is %d",
				Key(prefix...), len(dist), s.Size)
		}
		return dist, nil
	}
	if s.Default != nil {
		return s.Default, nil
	}
	return Uniform(s.Size), nil
}

// UpdateMemory implements mart.StepScorer: the returned snapshot's first cell
// holds the sentence's token ids (truncated or zero-padded to the cell
// dimension), so tests can check which hypothesis drove the recurrence.
func (s *ScriptedScorer) UpdateMemory(sentence []int32, mem *mart.Memory, vctx *mart.VideoContext) (*mart.Memory, error) {
	s.mu.Lock()
	s.updates = append(s.updates, append([]int32(nil), sentence...))
	s.mu.Unlock()

	numCells, dim := s.NumCells, s.MemDim
	if numCells <= 0 {
		numCells = 1
	}
	if dim <= 0 {
		dim = 4
	}
	next := mart.NewMemory(numCells, dim)
	cell := make([]float64, dim)
	for ii := 0; ii < dim && ii < len(sentence); ii++ {
		cell[ii] = float64(sentence[ii])
	}
	next.SetCell(0, cell)
	return next, nil
}

// VocabSize implements mart.StepScorer.
func (s *ScriptedScorer) VocabSize() int { return s.Size }

// Updates returns a copy of the sentences passed to UpdateMemory, in order.
func (s *ScriptedScorer) Updates() [][]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]int32, len(s.updates))
	copy(out, s.updates)
	return out
}

// FuncScorer adapts plain functions to mart.StepScorer. Nil ScoreFn means
// uniform distributions; nil UpdateFn clones the incoming memory.
type FuncScorer struct {
	Size     int
	ScoreFn  func(prefix []int32, mem *mart.Memory, vctx *mart.VideoContext) ([]float64, error)
	UpdateFn func(sentence []int32, mem *mart.Memory, vctx *mart.VideoContext) (*mart.Memory, error)
}

// ScoreStep implements mart.StepScorer.
func (f *FuncScorer) ScoreStep(prefix []int32, mem *mart.Memory, vctx *mart.VideoContext) ([]float64, error) {
	if f.ScoreFn == nil {
		return Uniform(f.Size), nil
	}
	return f.ScoreFn(prefix, mem, vctx)
}

// UpdateMemory implements mart.StepScorer.
func (f *FuncScorer) UpdateMemory(sentence []int32, mem *mart.Memory, vctx *mart.VideoContext) (*mart.Memory, error) {
	if f.UpdateFn == nil {
		return mem.Clone(), nil
	}
	return f.UpdateFn(sentence, mem, vctx)
}

// VocabSize implements mart.StepScorer.
func (f *FuncScorer) VocabSize() int { return f.Size }

// Batch upgrades any StepScorer to a BatchScorer by looping, counting the
// batched calls so tests can assert the engine used the batch path.
type Batch struct {
	mart.StepScorer

	mu         sync.Mutex
	batchCalls int
}

// ScoreSteps implements mart.BatchScorer.
func (b *Batch) ScoreSteps(prefixes [][]int32, mem *mart.Memory, vctx *mart.VideoContext) ([][]float64, error) {
	b.mu.Lock()
	b.batchCalls++
	b.mu.Unlock()
	out := make([][]float64, len(prefixes))
	for ii, prefix := range prefixes {
		dist, err := b.ScoreStep(prefix, mem, vctx)
		if err != nil {
			return nil, err
		}
		out[ii] = dist
	}
	return out, nil
}

// BatchCalls returns how many times ScoreSteps ran.
func (b *Batch) BatchCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batchCalls
}
