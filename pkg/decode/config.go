// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"fmt"

	"github.com/pkg/errors"
)

// Config holds the generation options for sentence decoding and paragraph
// assembly. Fields may be set directly or through the chainable With*
// setters; Validate reports bad combinations before any decoding starts.
//
// Sentence lengths always count every token, the BOS/EOS framing included,
// so the smallest meaningful MinSenLen is 2.
type Config struct {
	// UseBeam selects beam search; false degenerates to greedy decoding,
	// which still honors the length bounds and the n-gram block rule.
	UseBeam bool

	// BeamSize is the live-hypothesis capacity per sentence.
	BeamSize int

	// NBest is the number of ranked alternatives retained per sentence.
	// Must not exceed the (effective) beam size.
	NBest int

	// MinSenLen and MaxSenLen bound the generated sentence length.
	MinSenLen, MaxSenLen int

	// BlockNGramRepeat forbids expansions that would repeat a token n-gram
	// of this order within one sentence. 0 disables the rule.
	BlockNGramRepeat int

	// LengthPenaltyName selects the score normalization applied before the
	// final ranking; LengthPenaltyAlpha parameterizes it. See PenaltyNames.
	LengthPenaltyName  string
	LengthPenaltyAlpha float64

	// MaxNSen caps the number of sentences per paragraph.
	MaxNSen int

	// SuppressUnknown forbids expansions by the unknown-word token.
	SuppressUnknown bool

	// EndOfParagraphToken stops the paragraph early when the rank-0 sentence
	// of a round opens with this token. Negative disables the check.
	EndOfParagraphToken int32
}

// NewConfig returns a Config with the defaults of the captioning setup:
// beam search of size 2, single best output, sentences of 5 to 25 tokens.
func NewConfig() *Config {
	return &Config{
		UseBeam:             true,
		BeamSize:            2,
		NBest:               1,
		MinSenLen:           5,
		MaxSenLen:           25,
		BlockNGramRepeat:    0,
		LengthPenaltyName:   PenaltyNone,
		LengthPenaltyAlpha:  0,
		MaxNSen:             6,
		SuppressUnknown:     true,
		EndOfParagraphToken: -1,
	}
}

// WithBeam enables or disables beam search.
func (cfg *Config) WithBeam(use bool) *Config {
	cfg.UseBeam = use
	return cfg
}

// WithBeamSize sets the live-hypothesis capacity.
func (cfg *Config) WithBeamSize(size int) *Config {
	cfg.BeamSize = size
	return cfg
}

// WithNBest sets how many ranked alternatives each sentence keeps.
func (cfg *Config) WithNBest(n int) *Config {
	cfg.NBest = n
	return cfg
}

// WithSentenceLength sets the inclusive [min, max] bounds on sentence length.
func (cfg *Config) WithSentenceLength(min, max int) *Config {
	cfg.MinSenLen = min
	cfg.MaxSenLen = max
	return cfg
}

// WithBlockNGramRepeat sets the forbidden repeated n-gram order (0 disables).
func (cfg *Config) WithBlockNGramRepeat(order int) *Config {
	cfg.BlockNGramRepeat = order
	return cfg
}

// WithLengthPenalty selects the ranking normalization policy by name.
func (cfg *Config) WithLengthPenalty(name string, alpha float64) *Config {
	cfg.LengthPenaltyName = name
	cfg.LengthPenaltyAlpha = alpha
	return cfg
}

// WithMaxSentences caps the number of sentences per paragraph.
func (cfg *Config) WithMaxSentences(n int) *Config {
	cfg.MaxNSen = n
	return cfg
}

// WithSuppressUnknown toggles the unknown-word expansion ban.
func (cfg *Config) WithSuppressUnknown(suppress bool) *Config {
	cfg.SuppressUnknown = suppress
	return cfg
}

// WithEndOfParagraphToken enables early paragraph stop on the given token.
func (cfg *Config) WithEndOfParagraphToken(token int32) *Config {
	cfg.EndOfParagraphToken = token
	return cfg
}

// EffectiveBeamSize returns the live-hypothesis capacity actually used:
// greedy decoding runs with a beam of one.
func (cfg *Config) EffectiveBeamSize() int {
	if !cfg.UseBeam {
		return 1
	}
	return cfg.BeamSize
}

// Validate checks the configuration, reporting the first violation found.
// It never fails mid-decode: everything here is checked up front.
func (cfg *Config) Validate() error {
	if cfg.BeamSize <= 0 {
		return errors.Errorf("beam size must be positive, got %d", cfg.BeamSize)
	}
	if cfg.NBest <= 0 {
		return errors.Errorf("n-best must be positive, got %d", cfg.NBest)
	}
	if cfg.NBest > cfg.EffectiveBeamSize() {
		return errors.Errorf("n-best (%d) cannot exceed the effective beam size (%d)",
			cfg.NBest, cfg.EffectiveBeamSize())
	}
	if cfg.MinSenLen < 2 {
		return errors.Errorf("min sentence length must be at least 2 (BOS and EOS), got %d", cfg.MinSenLen)
	}
	if cfg.MinSenLen > cfg.MaxSenLen {
		return errors.Errorf("min sentence length (%d) exceeds max sentence length (%d)",
			cfg.MinSenLen, cfg.MaxSenLen)
	}
	if cfg.BlockNGramRepeat < 0 {
		return errors.Errorf("block n-gram order cannot be negative, got %d", cfg.BlockNGramRepeat)
	}
	if cfg.MaxNSen <= 0 {
		return errors.Errorf("max sentences per paragraph must be positive, got %d", cfg.MaxNSen)
	}
	if _, err := NewLengthPenalty(cfg.LengthPenaltyName, cfg.LengthPenaltyAlpha); err != nil {
		return err
	}
	return nil
}

// String implements fmt.Stringer, for decode-time logging.
func (cfg *Config) String() string {
	mode := fmt.Sprintf("beam=%d", cfg.BeamSize)
	if !cfg.UseBeam {
		mode = "greedy"
	}
	return fmt.Sprintf("Config(%s, n_best=%d, len=[%d,%d], block_ngram=%d, penalty=%s/%.2f, max_sen=%d)",
		mode, cfg.NBest, cfg.MinSenLen, cfg.MaxSenLen, cfg.BlockNGramRepeat,
		cfg.LengthPenaltyName, cfg.LengthPenaltyAlpha, cfg.MaxNSen)
}
