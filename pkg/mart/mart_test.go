// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package mart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMemory(t *testing.T) {
	m := NewMemory(2, 3)
	assert.Equal(t, 2, m.NumCells())
	assert.Equal(t, 3, m.Dim())
	assert.Equal(t, []float64{0, 0, 0}, m.Cell(0))

	m.SetCell(1, []float64{1, 2, 3})
	assert.Equal(t, []float64{1, 2, 3}, m.Cell(1))

	clone := m.Clone()
	clone.SetCell(1, []float64{9, 9, 9})
	assert.Equal(t, []float64{1, 2, 3}, m.Cell(1))
	assert.Equal(t, []float64{9, 9, 9}, clone.Cell(1))

	var nilMem *Memory
	assert.Nil(t, nilMem.Clone())
	assert.Equal(t, "Memory(initial)", nilMem.String())
	assert.Contains(t, m.String(), "2 cells")

	assert.Panics(t, func() { NewMemory(0, 3) })
	assert.Panics(t, func() { m.SetCell(0, []float64{1}) })
}

func TestVideoContext(t *testing.T) {
	vctx, err := NewVideoContext("v1", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, "v1", vctx.ID())
	assert.Equal(t, 2, vctx.NumClips())
	assert.Equal(t, 2, vctx.Dim())
	assert.Equal(t, []float64{3, 4}, vctx.Feature(1))

	_, err = NewVideoContext("bad", [][]float64{{1, 2}, {3}})
	assert.Error(t, err)

	empty, err := NewVideoContext("empty", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Dim())
}

func TestVideoContextFromFloat16(t *testing.T) {
	raw := []uint16{
		float16.Fromfloat32(0.5).Bits(),
		float16.Fromfloat32(-1).Bits(),
		float16.Fromfloat32(2).Bits(),
		float16.Fromfloat32(0).Bits(),
	}
	vctx, err := NewVideoContextFromFloat16("v2", raw, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, vctx.NumClips())
	assert.InDelta(t, 0.5, vctx.Feature(0)[0], 1e-6)
	assert.InDelta(t, -1.0, vctx.Feature(0)[1], 1e-6)
	assert.InDelta(t, 2.0, vctx.Feature(1)[0], 1e-6)

	_, err = NewVideoContextFromFloat16("v2", raw, 3)
	assert.Error(t, err)
	_, err = NewVideoContextFromFloat16("v2", raw, 0)
	assert.Error(t, err)
}
