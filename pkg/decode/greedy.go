// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"github.com/gomart/gomart/pkg/mart"
	"github.com/gomart/gomart/pkg/vocab"
)

// greedySentence decodes one sentence by deterministic argmax, under the
// same constraint policy as the beam path. For identical inputs it matches
// beam search with a beam of one.
func (d *Decoder) greedySentence(vctx *mart.VideoContext, mem *mart.Memory) (SentenceResult, error) {
	h := newSeedHypothesis()
	for h.Len() < d.cfg.MaxSenLen && !h.Finished() {
		dists, err := d.scoreLive([]*Hypothesis{h}, mem, vctx)
		if err != nil {
			return SentenceResult{}, err
		}
		token, logProb, found := argmaxLegal(d, h, dists[0])
		if !found {
			break
		}
		h = h.extend(token, h.Score()+logProb)
		if token == vocab.EosID {
			h.finish(d.penalty, false)
		}
	}
	if !h.Finished() {
		h = d.forceFinish(h)
	}
	return SentenceResult{Alternatives: []Alternative{newAlternative(h)}}, nil
}

// argmaxLegal picks the highest-scoring legal token, ties broken by the
// smaller token id.
func argmaxLegal(d *Decoder, h *Hypothesis, dist []float64) (token int32, logProb float64, found bool) {
	for tokenInt, lp := range dist {
		cand := int32(tokenInt)
		if !d.legalToken(h, cand) {
			continue
		}
		if !found || lp > logProb {
			token, logProb, found = cand, lp, true
		}
	}
	return
}
