// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package decode generates multi-sentence video captions by constrained beam
// search over a mart.StepScorer, threading the scorer's recurrent memory
// from each sentence's best finished hypothesis into the next sentence.
//
// Typical use:
//
//	cfg := decode.NewConfig().WithBeamSize(5).WithNBest(2).WithBlockNGramRepeat(3)
//	dec, err := decode.New(cfg, scorer, vocabulary)
//	if err != nil { ... }
//	result, err := dec.DecodeParagraph(videoCtx, nil) // nil memory = initial state
package decode

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gomart/gomart/pkg/mart"
	"github.com/gomart/gomart/pkg/support/xslices"
	"github.com/gomart/gomart/pkg/vocab"
)

// Decoder runs constrained sentence decoding and paragraph assembly against
// a fixed scorer and vocabulary. It is immutable after New and safe for
// concurrent use across videos.
type Decoder struct {
	cfg     Config
	scorer  mart.StepScorer
	batch   mart.BatchScorer // non-nil when the scorer supports batched steps
	penalty LengthPenalty
	vocab   *vocab.Vocabulary
}

// New validates the configuration and builds a Decoder. A nil cfg uses
// NewConfig defaults. The scorer's vocabulary size must match the vocabulary.
func New(cfg *Config, scorer mart.StepScorer, voc *vocab.Vocabulary) (*Decoder, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid decoding config")
	}
	if scorer == nil {
		return nil, errors.Errorf("decode.New: scorer is nil")
	}
	if voc == nil {
		return nil, errors.Errorf("decode.New: vocabulary is nil")
	}
	if scorer.VocabSize() != voc.Size() {
		return nil, errors.Errorf("decode.New: scorer vocabulary size (%d) does not match vocabulary (%d)",
			scorer.VocabSize(), voc.Size())
	}
	penalty, err := NewLengthPenalty(cfg.LengthPenaltyName, cfg.LengthPenaltyAlpha)
	if err != nil {
		return nil, err
	}
	d := &Decoder{
		cfg:     *cfg,
		scorer:  scorer,
		penalty: penalty,
		vocab:   voc,
	}
	d.batch, _ = scorer.(mart.BatchScorer)
	return d, nil
}

// Config returns a copy of the validated configuration in use.
func (d *Decoder) Config() Config { return d.cfg }

// Vocabulary returns the vocabulary the decoder renders with.
func (d *Decoder) Vocabulary() *vocab.Vocabulary { return d.vocab }

// DecodeSentence produces the ranked alternatives for a single sentence
// under the given memory snapshot. The memory is read-only; committing a
// sentence to memory is the paragraph driver's job.
func (d *Decoder) DecodeSentence(vctx *mart.VideoContext, mem *mart.Memory) (SentenceResult, error) {
	if d.cfg.UseBeam {
		return d.beamSentence(vctx, mem)
	}
	return d.greedySentence(vctx, mem)
}

// legalToken reports whether token may extend h under the constraint policy:
// padding never expands, the unknown token is suppressed when configured,
// EOS requires the minimum length, any other token must leave room for a
// terminating EOS within the maximum length and must not repeat a blocked
// n-gram.
func (d *Decoder) legalToken(h *Hypothesis, token int32) bool {
	switch token {
	case vocab.PadID:
		return false
	case vocab.UnkID:
		if d.cfg.SuppressUnknown {
			return false
		}
	case vocab.EosID:
		return h.Len()+1 >= d.cfg.MinSenLen
	}
	if h.Len()+1 > d.cfg.MaxSenLen-1 {
		return false
	}
	if d.cfg.BlockNGramRepeat > 0 && h.wouldRepeatNGram(d.cfg.BlockNGramRepeat, token) {
		return false
	}
	return true
}

// scoreLive returns one next-token distribution per live hypothesis, using
// the scorer's batched entry point when it has one and concurrent
// per-hypothesis calls otherwise.
func (d *Decoder) scoreLive(live []*Hypothesis, mem *mart.Memory, vctx *mart.VideoContext) ([][]float64, error) {
	if d.batch != nil {
		prefixes := xslices.Map(live, func(h *Hypothesis) []int32 { return h.Tokens() })
		dists, err := d.batch.ScoreSteps(prefixes, mem, vctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "batched scoring of %d hypotheses failed", len(live))
		}
		if len(dists) != len(live) {
			exceptions.Panicf("decode: batch scorer returned %d distributions for %d hypotheses",
				len(dists), len(live))
		}
		for _, dist := range dists {
			d.checkDistribution(dist)
		}
		return dists, nil
	}

	type scored struct {
		dist []float64
		err  error
	}
	results := xslices.MapParallel(live, 0, func(h *Hypothesis) scored {
		dist, err := d.scorer.ScoreStep(h.Tokens(), mem, vctx)
		return scored{dist: dist, err: err}
	})
	dists := make([][]float64, len(live))
	for ii, res := range results {
		if res.err != nil {
			return nil, errors.WithMessagef(res.err, "scoring hypothesis %d failed", ii)
		}
		d.checkDistribution(res.dist)
		dists[ii] = res.dist
	}
	return dists, nil
}

// checkDistribution panics when a scorer violates its contract: the engine
// cannot proceed with a distribution of the wrong size.
func (d *Decoder) checkDistribution(dist []float64) {
	if len(dist) != d.scorer.VocabSize() {
		exceptions.Panicf("decode: scorer returned a distribution of size %d, vocabulary size is %d",
			len(dist), d.scorer.VocabSize())
	}
}
