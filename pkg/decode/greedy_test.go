// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomart/gomart/pkg/mart"
	"github.com/gomart/gomart/pkg/mart/marttest"
	"github.com/gomart/gomart/pkg/vocab"
)

func TestGreedyDecoding(t *testing.T) {
	scorer := &marttest.ScriptedScorer{
		Size: 12,
		Steps: map[string][]float64{
			marttest.Key(vocab.BosID):       marttest.Ranked(12, vocab.EosID, 7),
			marttest.Key(vocab.BosID, 7):    marttest.Ranked(12, vocab.EosID, 8),
			marttest.Key(vocab.BosID, 7, 8): marttest.Ranked(12, vocab.EosID, 9),
		},
	}
	cfg := NewConfig().WithBeam(false).WithSentenceLength(4, 6)
	d := newTestDecoder(t, cfg, scorer)

	result, err := d.DecodeSentence(testVideo(t), nil)
	require.NoError(t, err)
	require.Len(t, result.Alternatives, 1)

	best := result.Best()
	assert.Equal(t, []int32{vocab.BosID, 7, 8, vocab.EosID}, best.Tokens)
	assert.InDelta(t, -0.5, best.Score, 1e-9)
	assert.Equal(t, best.Score, best.Penalized)
	assert.False(t, best.Forced)

	again, err := d.DecodeSentence(testVideo(t), nil)
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestGreedyForcedTermination(t *testing.T) {
	scorer := &marttest.ScriptedScorer{
		Size:    12,
		Default: marttest.Ranked(12, 7, 8, 9, 10, 11, 1, 2, 3),
	}
	cfg := NewConfig().WithBeam(false).
		WithSentenceLength(11, 12).WithBlockNGramRepeat(1)
	d := newTestDecoder(t, cfg, scorer)

	result, err := d.DecodeSentence(testVideo(t), nil)
	require.NoError(t, err)

	best := result.Best()
	assert.True(t, best.Forced)
	assert.Equal(t, []int32{vocab.BosID, 7, 8, 9, 10, 11, 1, 2, 3, vocab.EosID}, best.Tokens)
	assert.InDelta(t, -3.6, best.Score, 1e-9)
}

// runSentence decodes one sentence with the given config and scoring function.
func runSentence(t *testing.T, cfg *Config, scoreFn func(prefix []int32, mem *mart.Memory, vctx *mart.VideoContext) ([]float64, error)) Alternative {
	t.Helper()
	d := newTestDecoder(t, cfg, &marttest.FuncScorer{Size: 12, ScoreFn: scoreFn})
	result, err := d.DecodeSentence(testVideo(t), nil)
	require.NoError(t, err)
	return result.Best()
}

func TestGreedyMatchesBeamSizeOne(t *testing.T) {
	// Pseudo-random but fully deterministic distribution over the prefix,
	// so greedy and single-beam runs face identical decisions.
	hashDist := func(prefix []int32, boostEOSAt int) []float64 {
		dist := make([]float64, 12)
		for token := range dist {
			dist[token] = -float64((len(prefix)*31+token*17)%97)/10.0 - 0.001*float64(token)
		}
		dist[vocab.EosID] = -1000
		if boostEOSAt > 0 && len(prefix) >= boostEOSAt {
			dist[vocab.EosID] = 10
		}
		return dist
	}

	cases := []struct {
		name       string
		boostEOSAt int
		minLen     int
		maxLen     int
		blockNGram int
	}{
		{name: "NaturalStop", boostEOSAt: 4, minLen: 3, maxLen: 9, blockNGram: 2},
		{name: "LengthCapStop", boostEOSAt: 0, minLen: 3, maxLen: 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scoreFn := func(prefix []int32, _ *mart.Memory, _ *mart.VideoContext) ([]float64, error) {
				return hashDist(prefix, tc.boostEOSAt), nil
			}
			greedyCfg := NewConfig().WithBeam(false).
				WithSentenceLength(tc.minLen, tc.maxLen).WithBlockNGramRepeat(tc.blockNGram)
			beamCfg := NewConfig().WithBeamSize(1).WithNBest(1).
				WithSentenceLength(tc.minLen, tc.maxLen).WithBlockNGramRepeat(tc.blockNGram)

			fromGreedy := runSentence(t, greedyCfg, scoreFn)
			fromBeam := runSentence(t, beamCfg, scoreFn)

			assert.Equal(t, fromBeam.Tokens, fromGreedy.Tokens)
			assert.InDelta(t, fromBeam.Score, fromGreedy.Score, 1e-12)
			assert.InDelta(t, fromBeam.Penalized, fromGreedy.Penalized, 1e-12)
			assert.Equal(t, fromBeam.Forced, fromGreedy.Forced)
			assert.LessOrEqual(t, len(fromGreedy.Tokens), tc.maxLen)
			assert.Equal(t, vocab.EosID, fromGreedy.Tokens[len(fromGreedy.Tokens)-1])
		})
	}
}

func TestGreedyNGramBlocking(t *testing.T) {
	scorer := &marttest.ScriptedScorer{
		Size: 12,
		Steps: map[string][]float64{
			marttest.Key(vocab.BosID):             marttest.Ranked(12, 7),
			marttest.Key(vocab.BosID, 7):          marttest.Ranked(12, 8),
			marttest.Key(vocab.BosID, 7, 8):       marttest.Ranked(12, 7),
			marttest.Key(vocab.BosID, 7, 8, 7):    marttest.Ranked(12, 8, 9),
			marttest.Key(vocab.BosID, 7, 8, 7, 9): marttest.Ranked(12, vocab.EosID),
		},
	}
	cfg := NewConfig().WithBeam(false).
		WithSentenceLength(2, 10).WithBlockNGramRepeat(2)
	d := newTestDecoder(t, cfg, scorer)

	result, err := d.DecodeSentence(testVideo(t), nil)
	require.NoError(t, err)
	best := result.Best()
	assert.Equal(t, []int32{vocab.BosID, 7, 8, 7, 9, vocab.EosID}, best.Tokens)
	assert.False(t, hasRepeatedNGram(best.Tokens, 2))
}
