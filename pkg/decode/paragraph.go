// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomart/gomart/pkg/mart"
	"github.com/gomart/gomart/pkg/support/xslices"
	"github.com/gomart/gomart/pkg/vocab"
)

// Alternative is one ranked finished hypothesis of a sentence.
type Alternative struct {
	// Tokens is the full sequence, BOS/EOS framing included.
	Tokens []int32

	// Score is the raw cumulative log-probability.
	Score float64

	// Penalized is the length-normalized score used for ranking.
	Penalized float64

	// Forced marks hypotheses terminated by the engine rather than by the
	// scorer choosing EOS.
	Forced bool
}

func newAlternative(h *Hypothesis) Alternative {
	return Alternative{
		Tokens:    xslices.Copy(h.tokens),
		Score:     h.Score(),
		Penalized: h.Penalized(),
		Forced:    h.Forced(),
	}
}

// SentenceResult is the ranked list of alternatives for one sentence,
// best first. Rank 0 drives the paragraph recurrence.
type SentenceResult struct {
	Alternatives []Alternative
}

// Best returns the rank-0 alternative.
func (s SentenceResult) Best() Alternative { return s.Alternatives[0] }

// ParagraphResult is the finished paragraph of one video: the committed
// sentences in order and the final recurrent memory snapshot.
type ParagraphResult struct {
	VideoID   string
	Sentences []SentenceResult

	// FinalMemory is the snapshot after the last committed sentence, ready
	// to be threaded into a continuation.
	FinalMemory *mart.Memory
}

// Paragraph renders the rank-0 sentences as text.
func (p *ParagraphResult) Paragraph(voc *vocab.Vocabulary) []string {
	return xslices.Map(p.Sentences, func(s SentenceResult) string {
		return voc.Sentence(s.Best().Tokens)
	})
}

// DecodeParagraph generates up to MaxNSen sentences for one video. The
// memory recurrence is strictly sequential: each sentence decodes against
// the snapshot produced by folding the previous sentence's rank-0 hypothesis
// through the scorer, never any other beam member. A nil initial memory
// means the scorer's initial state.
func (d *Decoder) DecodeParagraph(vctx *mart.VideoContext, mem *mart.Memory) (*ParagraphResult, error) {
	if vctx == nil {
		return nil, errors.Errorf("decode: nil video context")
	}
	klog.V(1).Infof("decoding video %q with %s", vctx.ID(), d.cfg.String())
	result := &ParagraphResult{VideoID: vctx.ID()}
	for senIdx := 0; senIdx < d.cfg.MaxNSen; senIdx++ {
		sentence, err := d.DecodeSentence(vctx, mem)
		if err != nil {
			return nil, errors.WithMessagef(err, "video %q sentence %d", vctx.ID(), senIdx)
		}
		best := sentence.Best()
		if d.cfg.EndOfParagraphToken >= 0 && len(best.Tokens) > 1 &&
			best.Tokens[1] == d.cfg.EndOfParagraphToken {
			klog.V(1).Infof("video %q: end-of-paragraph token after %d sentences", vctx.ID(), senIdx)
			break
		}
		result.Sentences = append(result.Sentences, sentence)
		klog.V(2).Infof("video %q sentence %d: score=%.4f penalized=%.4f len=%d",
			vctx.ID(), senIdx, best.Score, best.Penalized, len(best.Tokens))

		mem, err = d.scorer.UpdateMemory(best.Tokens, mem, vctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "video %q: updating memory after sentence %d", vctx.ID(), senIdx)
		}
	}
	result.FinalMemory = mem
	return result, nil
}

// DecodeBatch decodes independent videos concurrently with at most
// parallelism goroutines (0 means one per CPU). Sentences within each video
// stay strictly sequential. mems supplies one initial snapshot per video;
// nil means all videos start from the initial state. Results keep the input
// order; the first error (in input order) aborts the batch.
func (d *Decoder) DecodeBatch(vctxs []*mart.VideoContext, mems []*mart.Memory, parallelism int) ([]*ParagraphResult, error) {
	if mems != nil && len(mems) != len(vctxs) {
		return nil, errors.Errorf("decode: %d initial memories for %d videos", len(mems), len(vctxs))
	}
	type outcome struct {
		result *ParagraphResult
		err    error
	}
	outcomes := xslices.MapParallel(xslices.Iota(0, len(vctxs)), parallelism, func(idx int) outcome {
		var mem *mart.Memory
		if mems != nil {
			mem = mems[idx]
		}
		result, err := d.DecodeParagraph(vctxs[idx], mem)
		return outcome{result: result, err: err}
	})
	results := make([]*ParagraphResult, len(outcomes))
	for idx, out := range outcomes {
		if out.err != nil {
			return nil, out.err
		}
		results[idx] = out.result
	}
	return results, nil
}
