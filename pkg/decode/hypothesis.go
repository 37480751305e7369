// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"fmt"

	"github.com/gomart/gomart/pkg/support/xslices"
	"github.com/gomart/gomart/pkg/vocab"
)

// Hypothesis is one candidate sentence under construction during decoding:
// the tokens produced so far (starting with BOS), the cumulative
// log-probability, and the finished state. Finished hypotheses are immutable.
type Hypothesis struct {
	tokens    []int32
	score     float64
	penalized float64
	finished  bool
	forced    bool
}

func newSeedHypothesis() *Hypothesis {
	return &Hypothesis{tokens: []int32{vocab.BosID}}
}

// Tokens returns the token sequence, BOS/EOS framing included. Callers must
// treat it as read-only.
func (h *Hypothesis) Tokens() []int32 { return h.tokens }

// Len returns the number of tokens, BOS/EOS framing included.
func (h *Hypothesis) Len() int { return len(h.tokens) }

// LastToken returns the most recent token.
func (h *Hypothesis) LastToken() int32 { return xslices.Last(h.tokens) }

// Score returns the cumulative log-probability.
func (h *Hypothesis) Score() float64 { return h.score }

// Penalized returns the length-normalized score. Valid once finished.
func (h *Hypothesis) Penalized() float64 { return h.penalized }

// Finished reports whether the hypothesis ended with EOS.
func (h *Hypothesis) Finished() bool { return h.finished }

// Forced reports whether the hypothesis was terminated by force rather than
// by the scorer choosing EOS.
func (h *Hypothesis) Forced() bool { return h.forced }

// String implements fmt.Stringer.
func (h *Hypothesis) String() string {
	state := "live"
	if h.finished {
		state = "finished"
		if h.forced {
			state = "forced"
		}
	}
	return fmt.Sprintf("Hypothesis(%v, score=%.4f, %s)", h.tokens, h.score, state)
}

// extend returns a new hypothesis with the token appended and the given new
// cumulative score. The receiver is not modified.
func (h *Hypothesis) extend(token int32, score float64) *Hypothesis {
	tokens := make([]int32, len(h.tokens)+1)
	copy(tokens, h.tokens)
	tokens[len(h.tokens)] = token
	return &Hypothesis{tokens: tokens, score: score}
}

// finish marks the hypothesis finished and fixes its penalized score.
func (h *Hypothesis) finish(penalty LengthPenalty, forced bool) *Hypothesis {
	h.finished = true
	h.forced = forced
	h.penalized = penalty.Apply(h.score, len(h.tokens))
	return h
}

// wouldRepeatNGram reports whether appending token would create an order-k
// n-gram already present in the hypothesis. The window spans the whole
// sequence, BOS included.
func (h *Hypothesis) wouldRepeatNGram(k int, token int32) bool {
	length := len(h.tokens)
	if k <= 0 || length < k {
		// The candidate n-gram needs k-1 existing tokens plus the new one.
		return false
	}
	gramStart := length - k + 1
	for start := 0; start+k <= length; start++ {
		match := h.tokens[start+k-1] == token
		for ii := 0; match && ii < k-1; ii++ {
			match = h.tokens[start+ii] == h.tokens[gramStart+ii]
		}
		if match {
			return true
		}
	}
	return false
}

// candidate is one possible expansion of a live hypothesis by one token,
// considered during a beam step.
type candidate struct {
	parent    *Hypothesis
	parentIdx int
	token     int32
	score     float64
}

// better establishes the deterministic candidate ordering: higher score
// first, ties broken by parent beam position, then by token id.
func (c candidate) better(other candidate) bool {
	if c.score != other.score {
		return c.score > other.score
	}
	if c.parentIdx != other.parentIdx {
		return c.parentIdx < other.parentIdx
	}
	return c.token < other.token
}

// topList is a bounded ordered candidate list: insertion keeps it sorted
// best-first and truncates to capacity, so the worst-case cost of a beam
// step stays bounded regardless of how many expansions survive the rules.
type topList struct {
	capacity int
	items    []candidate
}

func newTopList(capacity int) *topList {
	return &topList{capacity: capacity, items: make([]candidate, 0, capacity+1)}
}

func (l *topList) insert(c candidate) {
	if len(l.items) == l.capacity && !c.better(l.items[len(l.items)-1]) {
		return
	}
	pos := len(l.items)
	for pos > 0 && c.better(l.items[pos-1]) {
		pos--
	}
	l.items = append(l.items, candidate{})
	copy(l.items[pos+1:], l.items[pos:])
	l.items[pos] = c
	if len(l.items) > l.capacity {
		l.items = l.items[:l.capacity]
	}
}

func (l *topList) empty() bool { return len(l.items) == 0 }
