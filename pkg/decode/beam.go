// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"sort"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/gomart/gomart/pkg/mart"
	"github.com/gomart/gomart/pkg/support/xslices"
	"github.com/gomart/gomart/pkg/vocab"
)

// beamSentence decodes one sentence by beam search: expand every live
// hypothesis by every legal token, rank, keep the best beamSize expansions,
// set EOS picks aside into the finished pool and refill the live beam from
// the next-best unfinished expansions.
func (d *Decoder) beamSentence(vctx *mart.VideoContext, mem *mart.Memory) (SentenceResult, error) {
	beamSize := d.cfg.BeamSize
	live := []*Hypothesis{newSeedHypothesis()}
	var finished, forced []*Hypothesis

	// Each round appends one token to every live hypothesis; the seed is the
	// lone BOS, so max_sen_len-1 rounds exhaust the length budget.
	for round := 0; round < d.cfg.MaxSenLen-1 && len(live) > 0; round++ {
		dists, err := d.scoreLive(live, mem, vctx)
		if err != nil {
			return SentenceResult{}, err
		}

		topAll := newTopList(beamSize)
		topLive := newTopList(beamSize)
		for pi, h := range live {
			for tokenInt, logProb := range dists[pi] {
				token := int32(tokenInt)
				if !d.legalToken(h, token) {
					continue
				}
				c := candidate{parent: h, parentIdx: pi, token: token, score: h.Score() + logProb}
				topAll.insert(c)
				if token != vocab.EosID {
					topLive.insert(c)
				}
			}
		}

		if topAll.empty() {
			// The constraint policy forbade every expansion (e.g. n-gram
			// blocking with EOS still below the minimum length). Terminate
			// what is live so the caller still gets usable hypotheses.
			for _, h := range live {
				forced = append(forced, d.forceFinish(h))
			}
			live = nil
			break
		}

		for _, c := range topAll.items {
			if c.token == vocab.EosID {
				finished = append(finished,
					c.parent.extend(c.token, c.score).finish(d.penalty, false))
			}
		}
		live = xslices.Map(topLive.items, func(c candidate) *Hypothesis {
			return c.parent.extend(c.token, c.score)
		})

		if d.beamExhausted(finished, live, beamSize) {
			break
		}
	}

	// Leftover live hypotheses (early stop, forbidden expansions) only
	// matter as padding material when too few finished naturally.
	for _, h := range live {
		forced = append(forced, d.forceFinish(h))
	}
	return d.rank(finished, forced), nil
}

// beamExhausted implements the early-stop rule: the finished pool already
// holds beamSize hypotheses and no live hypothesis can still outrank the
// worst of the beamSize best finished ones.
func (d *Decoder) beamExhausted(finished, live []*Hypothesis, beamSize int) bool {
	if len(finished) < beamSize {
		return false
	}
	kept := xslices.Map(finished, func(h *Hypothesis) float64 { return h.Penalized() })
	sort.Sort(sort.Reverse(sort.Float64Slice(kept)))
	worstKept := kept[beamSize-1]
	for _, h := range live {
		if d.penalty.Apply(h.Score(), h.Len()) > worstKept {
			return false
		}
	}
	return true
}

// forceFinish terminates a live hypothesis by appending EOS without score
// mass, exempt from the minimum-length and n-gram rules.
func (d *Decoder) forceFinish(h *Hypothesis) *Hypothesis {
	return h.extend(vocab.EosID, h.Score()).finish(d.penalty, true)
}

// rank orders finished hypotheses by penalized score and keeps the n-best,
// padding from force-terminated ones when the pool came up short.
func (d *Decoder) rank(finished, forced []*Hypothesis) SentenceResult {
	sortHypotheses(finished)
	if len(finished) < d.cfg.NBest && len(forced) > 0 {
		klog.Warningf("decode: only %d finished hypotheses for n_best=%d, padding with force-terminated ones",
			len(finished), d.cfg.NBest)
		sortHypotheses(forced)
		finished = append(finished, forced...)
	}
	if len(finished) == 0 {
		exceptions.Panicf("decode: sentence produced no hypotheses at all")
	}
	if len(finished) > d.cfg.NBest {
		finished = finished[:d.cfg.NBest]
	}
	return SentenceResult{Alternatives: xslices.Map(finished, newAlternative)}
}

// sortHypotheses orders best-first, deterministically: penalized score, then
// raw score, then shorter first, then token-sequence order.
func sortHypotheses(hyps []*Hypothesis) {
	sort.SliceStable(hyps, func(i, j int) bool {
		a, b := hyps[i], hyps[j]
		if a.Penalized() != b.Penalized() {
			return a.Penalized() > b.Penalized()
		}
		if a.Score() != b.Score() {
			return a.Score() > b.Score()
		}
		if a.Len() != b.Len() {
			return a.Len() < b.Len()
		}
		for ii := 0; ii < a.Len() && ii < b.Len(); ii++ {
			if a.tokens[ii] != b.tokens[ii] {
				return a.tokens[ii] < b.tokens[ii]
			}
		}
		return false
	})
}
