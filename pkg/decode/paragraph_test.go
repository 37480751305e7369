// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomart/gomart/pkg/mart"
	"github.com/gomart/gomart/pkg/mart/marttest"
	"github.com/gomart/gomart/pkg/vocab"
)

func namedVideo(t *testing.T, id string) *mart.VideoContext {
	t.Helper()
	vctx, err := mart.NewVideoContext(id, [][]float64{{0.5}})
	require.NoError(t, err)
	return vctx
}

// countingUpdateFn returns memory snapshots whose single cell counts how many
// sentences have been folded in so far.
func countingUpdateFn(_ []int32, mem *mart.Memory, _ *mart.VideoContext) (*mart.Memory, error) {
	prev := 0.0
	if mem != nil {
		prev = mem.Cell(0)[0]
	}
	next := mart.NewMemory(1, 1)
	next.SetCell(0, []float64{prev + 1})
	return next, nil
}

func TestParagraphRecurrenceUsesRankZero(t *testing.T) {
	scorer := &marttest.ScriptedScorer{
		Size: 12,
		Steps: map[string][]float64{
			marttest.Key(vocab.BosID):    marttest.Ranked(12, 7, 8),
			marttest.Key(vocab.BosID, 7): marttest.Ranked(12, vocab.EosID),
			marttest.Key(vocab.BosID, 8): marttest.Ranked(12, 9),
		},
		Default: marttest.Ranked(12, vocab.EosID),
	}
	cfg := NewConfig().WithBeamSize(2).WithNBest(2).
		WithSentenceLength(2, 4).WithMaxSentences(2)
	d := newTestDecoder(t, cfg, scorer)

	result, err := d.DecodeParagraph(testVideo(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "video-1", result.VideoID)
	require.Len(t, result.Sentences, 2)
	for _, sentence := range result.Sentences {
		require.Len(t, sentence.Alternatives, 2)
		assert.Equal(t, []int32{vocab.BosID, 7, vocab.EosID}, sentence.Best().Tokens)
		assert.Equal(t, []int32{vocab.BosID, 8, 9, vocab.EosID}, sentence.Alternatives[1].Tokens)
	}

	// Only the rank-0 hypothesis may drive the recurrence, never the runner-up.
	updates := scorer.Updates()
	require.Len(t, updates, 2)
	for _, sentence := range updates {
		assert.Equal(t, []int32{vocab.BosID, 7, vocab.EosID}, sentence)
	}

	require.NotNil(t, result.FinalMemory)
	assert.Equal(t, []float64{4, 7, 5, 0}, result.FinalMemory.Cell(0))
	assert.Equal(t, []string{"red", "red"}, result.Paragraph(d.Vocabulary()))
}

func TestParagraphMemoryThreading(t *testing.T) {
	// The preferred token shifts with the memory state, so the produced
	// sentences reveal exactly which snapshot each decode saw.
	scorer := &marttest.FuncScorer{
		Size: 12,
		ScoreFn: func(_ []int32, mem *mart.Memory, _ *mart.VideoContext) ([]float64, error) {
			preferred := int32(7)
			if mem != nil {
				preferred += int32(mem.Cell(0)[0])
			}
			return marttest.Ranked(12, preferred), nil
		},
		UpdateFn: countingUpdateFn,
	}
	cfg := NewConfig().WithBeam(false).WithSentenceLength(2, 3).WithMaxSentences(3)
	d := newTestDecoder(t, cfg, scorer)

	result, err := d.DecodeParagraph(testVideo(t), nil)
	require.NoError(t, err)

	require.Len(t, result.Sentences, 3)
	assert.Equal(t, []int32{vocab.BosID, 7, vocab.EosID}, result.Sentences[0].Best().Tokens)
	assert.Equal(t, []int32{vocab.BosID, 8, vocab.EosID}, result.Sentences[1].Best().Tokens)
	assert.Equal(t, []int32{vocab.BosID, 9, vocab.EosID}, result.Sentences[2].Best().Tokens)

	require.NotNil(t, result.FinalMemory)
	assert.Equal(t, 3.0, result.FinalMemory.Cell(0)[0])
}

func TestParagraphEndOfParagraphToken(t *testing.T) {
	newScorer := func() *marttest.FuncScorer {
		return &marttest.FuncScorer{
			Size: 12,
			ScoreFn: func(_ []int32, mem *mart.Memory, _ *mart.VideoContext) ([]float64, error) {
				if mem == nil {
					return marttest.Ranked(12, 7), nil
				}
				return marttest.Ranked(12, vocab.SepID), nil
			},
			UpdateFn: countingUpdateFn,
		}
	}

	t.Run("Enabled", func(t *testing.T) {
		cfg := NewConfig().WithBeam(false).WithSentenceLength(2, 3).
			WithMaxSentences(5).WithEndOfParagraphToken(vocab.SepID)
		d := newTestDecoder(t, cfg, newScorer())

		result, err := d.DecodeParagraph(testVideo(t), nil)
		require.NoError(t, err)

		// The second sentence opens with the end-of-paragraph token: it is
		// dropped and generation stops, leaving the first snapshot final.
		require.Len(t, result.Sentences, 1)
		assert.Equal(t, []int32{vocab.BosID, 7, vocab.EosID}, result.Sentences[0].Best().Tokens)
		assert.Equal(t, 1.0, result.FinalMemory.Cell(0)[0])
	})

	t.Run("Disabled", func(t *testing.T) {
		cfg := NewConfig().WithBeam(false).WithSentenceLength(2, 3).WithMaxSentences(2)
		d := newTestDecoder(t, cfg, newScorer())

		result, err := d.DecodeParagraph(testVideo(t), nil)
		require.NoError(t, err)

		require.Len(t, result.Sentences, 2)
		assert.Equal(t, []int32{vocab.BosID, vocab.SepID, vocab.EosID},
			result.Sentences[1].Best().Tokens)
	})
}

func TestDecodeParagraphNilVideo(t *testing.T) {
	d := newTestDecoder(t, NewConfig(), &marttest.ScriptedScorer{Size: 12})
	_, err := d.DecodeParagraph(nil, nil)
	assert.ErrorContains(t, err, "nil video context")
}

func TestDecodeBatch(t *testing.T) {
	preferredByVideo := map[string]int32{"a": 7, "b": 8, "c": 9}
	newScorer := func(failFor string) *marttest.FuncScorer {
		return &marttest.FuncScorer{
			Size: 12,
			ScoreFn: func(_ []int32, _ *mart.Memory, vctx *mart.VideoContext) ([]float64, error) {
				if vctx.ID() == failFor {
					return nil, errors.New("scorer offline")
				}
				return marttest.Ranked(12, preferredByVideo[vctx.ID()]), nil
			},
		}
	}
	cfg := NewConfig().WithBeam(false).WithSentenceLength(2, 3).WithMaxSentences(1)
	vctxs := []*mart.VideoContext{
		namedVideo(t, "a"), namedVideo(t, "b"), namedVideo(t, "c"),
	}

	t.Run("PreservesInputOrder", func(t *testing.T) {
		d := newTestDecoder(t, cfg, newScorer(""))
		results, err := d.DecodeBatch(vctxs, nil, 2)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for idx, id := range []string{"a", "b", "c"} {
			require.NotNil(t, results[idx])
			assert.Equal(t, id, results[idx].VideoID)
			assert.Equal(t, []int32{vocab.BosID, preferredByVideo[id], vocab.EosID},
				results[idx].Sentences[0].Best().Tokens)
		}
	})

	t.Run("MemoryCountMismatch", func(t *testing.T) {
		d := newTestDecoder(t, cfg, newScorer(""))
		_, err := d.DecodeBatch(vctxs, make([]*mart.Memory, 1), 0)
		assert.ErrorContains(t, err, "initial memories")
	})

	t.Run("ErrorPropagates", func(t *testing.T) {
		d := newTestDecoder(t, cfg, newScorer("b"))
		_, err := d.DecodeBatch(vctxs, nil, 0)
		require.Error(t, err)
		assert.ErrorContains(t, err, `video "b"`)
		assert.ErrorContains(t, err, "scorer offline")
	})
}
