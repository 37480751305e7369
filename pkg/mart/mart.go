// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package mart defines the contracts between the paragraph decoder and a
// memory-augmented recurrent transformer ("MART") scorer: the recurrent
// cross-sentence Memory, the per-video conditioning context, and the
// StepScorer interface the beam search drives.
//
// Implementations of StepScorer live elsewhere; simplemart provides a small
// pure-Go reference implementation, and marttest provides scripted scorers
// for tests.
package mart

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomart/gomart/pkg/support/xslices"
)

// Memory is the recurrent state a MART decoder carries across the sentences
// of one video's paragraph: a fixed set of cells, each a dense float64
// vector. The paragraph driver owns it; scorers receive it read-only and
// return fresh snapshots from their finalize step.
//
// A nil *Memory always means "initial state": scorers must accept nil and
// treat it as all-zero cells of their configured shape.
type Memory struct {
	cells [][]float64
}

// NewMemory returns an all-zeros snapshot with numCells cells of the given
// dimension. Non-positive sizes are a programming error.
func NewMemory(numCells, dim int) *Memory {
	if numCells <= 0 || dim <= 0 {
		exceptions.Panicf("mart.NewMemory: invalid shape %d cells × %d dims", numCells, dim)
	}
	return &Memory{cells: xslices.Slice2DWithValue(0.0, numCells, dim)}
}

// NumCells returns the number of memory cells.
func (m *Memory) NumCells() int { return len(m.cells) }

// Dim returns the dimension of each cell vector.
func (m *Memory) Dim() int {
	if len(m.cells) == 0 {
		return 0
	}
	return len(m.cells[0])
}

// Cell returns the idx-th cell vector. Callers must treat it as read-only.
func (m *Memory) Cell(idx int) []float64 { return m.cells[idx] }

// SetCell copies values into the idx-th cell. The value dimension must match.
func (m *Memory) SetCell(idx int, values []float64) {
	if len(values) != m.Dim() {
		exceptions.Panicf("mart.Memory.SetCell: cell %d expects %d dims, got %d", idx, m.Dim(), len(values))
	}
	copy(m.cells[idx], values)
}

// Clone returns a deep copy, so the original can keep evolving independently.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	clone := &Memory{cells: make([][]float64, len(m.cells))}
	for ii, cell := range m.cells {
		clone.cells[ii] = xslices.Copy(cell)
	}
	return clone
}

// String implements fmt.Stringer.
func (m *Memory) String() string {
	if m == nil {
		return "Memory(initial)"
	}
	return fmt.Sprintf("Memory(%d cells × %d dims)", m.NumCells(), m.Dim())
}

// VideoContext is the fixed per-video conditioning the scorer reads at every
// step: an identifier plus the pre-computed clip feature vectors. It is
// caller-owned and read-only for the duration of a video's decoding.
type VideoContext struct {
	id    string
	feats [][]float64
}

// NewVideoContext wraps clip features (one vector per clip) for one video.
// All clips must share the same dimension.
func NewVideoContext(id string, feats [][]float64) (*VideoContext, error) {
	for ii := 1; ii < len(feats); ii++ {
		if len(feats[ii]) != len(feats[0]) {
			return nil, errors.Errorf("video %q: clip %d has dim %d, clip 0 has dim %d",
				id, ii, len(feats[ii]), len(feats[0]))
		}
	}
	return &VideoContext{id: id, feats: feats}, nil
}

// NewVideoContextFromFloat16 decodes a flat half-precision feature dump
// (row-major, the format the feature extraction pipeline emits) into a
// VideoContext with vectors of the given dimension.
func NewVideoContextFromFloat16(id string, raw []uint16, dim int) (*VideoContext, error) {
	if dim <= 0 {
		return nil, errors.Errorf("video %q: non-positive feature dim %d", id, dim)
	}
	if len(raw)%dim != 0 {
		return nil, errors.Errorf("video %q: %d half-floats do not divide into %d-dim vectors",
			id, len(raw), dim)
	}
	numClips := len(raw) / dim
	feats := make([][]float64, numClips)
	for clip := 0; clip < numClips; clip++ {
		row := make([]float64, dim)
		for jj := 0; jj < dim; jj++ {
			row[jj] = float64(float16.Frombits(raw[clip*dim+jj]).Float32())
		}
		feats[clip] = row
	}
	return &VideoContext{id: id, feats: feats}, nil
}

// ID returns the video identifier.
func (c *VideoContext) ID() string { return c.id }

// NumClips returns the number of clip feature vectors.
func (c *VideoContext) NumClips() int { return len(c.feats) }

// Dim returns the feature dimension, 0 if there are no clips.
func (c *VideoContext) Dim() int {
	if len(c.feats) == 0 {
		return 0
	}
	return len(c.feats[0])
}

// Feature returns the idx-th clip vector. Callers must treat it as read-only.
func (c *VideoContext) Feature(idx int) []float64 { return c.feats[idx] }

// StepScorer produces next-token distributions for partial sentences and
// folds finished sentences into the recurrent memory.
//
// Both methods must be pure with respect to their arguments: the prefix,
// memory and context are read-only, and no references to them may be
// retained. ScoreStep is called concurrently for different hypotheses
// against the same Memory, so implementations must be safe for concurrent
// reads.
type StepScorer interface {
	// ScoreStep returns the log-probability distribution over the vocabulary
	// for the token following prefix. The prefix is never empty and starts
	// with the BOS id. The returned slice has length VocabSize().
	ScoreStep(prefix []int32, mem *Memory, vctx *VideoContext) ([]float64, error)

	// UpdateMemory folds a finished sentence (BOS…EOS framing included) into
	// a new memory snapshot for the next sentence. The given Memory is not
	// modified.
	UpdateMemory(sentence []int32, mem *Memory, vctx *VideoContext) (*Memory, error)

	// VocabSize returns the size of the distribution ScoreStep produces.
	VocabSize() int
}

// BatchScorer is an optional capability: scoring all live hypotheses of one
// beam step in a single call. The beam search engine type-asserts for it and
// prefers it over per-hypothesis ScoreStep calls when available.
type BatchScorer interface {
	StepScorer

	// ScoreSteps is the batched equivalent of ScoreStep: one distribution
	// per prefix, all against the same memory and context.
	ScoreSteps(prefixes [][]int32, mem *Memory, vctx *VideoContext) ([][]float64, error)
}
