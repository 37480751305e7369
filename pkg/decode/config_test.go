// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.UseBeam)
	assert.Equal(t, 2, cfg.BeamSize)
	assert.Equal(t, 1, cfg.NBest)
	assert.Equal(t, PenaltyNone, cfg.LengthPenaltyName)
	assert.Equal(t, int32(-1), cfg.EndOfParagraphToken)
	assert.True(t, cfg.SuppressUnknown)
}

func TestConfigBuilders(t *testing.T) {
	cfg := NewConfig().
		WithBeam(true).
		WithBeamSize(5).
		WithNBest(3).
		WithSentenceLength(4, 30).
		WithBlockNGramRepeat(3).
		WithLengthPenalty(PenaltyWu, 0.7).
		WithMaxSentences(12).
		WithSuppressUnknown(false).
		WithEndOfParagraphToken(2)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.BeamSize)
	assert.Equal(t, 3, cfg.NBest)
	assert.Equal(t, 4, cfg.MinSenLen)
	assert.Equal(t, 30, cfg.MaxSenLen)
	assert.Equal(t, 3, cfg.BlockNGramRepeat)
	assert.Equal(t, PenaltyWu, cfg.LengthPenaltyName)
	assert.Equal(t, 0.7, cfg.LengthPenaltyAlpha)
	assert.Equal(t, 12, cfg.MaxNSen)
	assert.False(t, cfg.SuppressUnknown)
	assert.Equal(t, int32(2), cfg.EndOfParagraphToken)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"NonPositiveBeam", func(c *Config) { c.BeamSize = 0 }, "beam size"},
		{"NonPositiveNBest", func(c *Config) { c.NBest = 0 }, "n-best"},
		{"NBestOverBeam", func(c *Config) { c.BeamSize = 2; c.NBest = 3 }, "n-best (3) cannot exceed"},
		{"NBestOverGreedy", func(c *Config) { c.UseBeam = false; c.NBest = 2 }, "effective beam size (1)"},
		{"MinTooSmall", func(c *Config) { c.MinSenLen = 1 }, "at least 2"},
		{"MinOverMax", func(c *Config) { c.MinSenLen = 30; c.MaxSenLen = 10 }, "exceeds max"},
		{"NegativeNGram", func(c *Config) { c.BlockNGramRepeat = -1 }, "cannot be negative"},
		{"NonPositiveMaxNSen", func(c *Config) { c.MaxNSen = 0 }, "max sentences"},
		{"UnknownPenalty", func(c *Config) { c.LengthPenaltyName = "quadratic" }, "unknown length penalty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestEffectiveBeamSize(t *testing.T) {
	cfg := NewConfig().WithBeamSize(7)
	assert.Equal(t, 7, cfg.EffectiveBeamSize())
	cfg.WithBeam(false)
	assert.Equal(t, 1, cfg.EffectiveBeamSize())
}

func TestConfigString(t *testing.T) {
	assert.Contains(t, NewConfig().String(), "beam=2")
	assert.Contains(t, NewConfig().WithBeam(false).String(), "greedy")
}
