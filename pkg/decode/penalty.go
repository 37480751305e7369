// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gomart/gomart/pkg/support/xslices"
)

// Supported length-penalty names.
const (
	// PenaltyNone leaves the raw cumulative log-probability untouched, so
	// ranking is identical to raw-score ranking.
	PenaltyNone = "none"

	// PenaltyAverage divides the score by length^alpha. With alpha=1 this is
	// the per-token average log-probability.
	PenaltyAverage = "avg"

	// PenaltyWu divides the score by ((5+length)/6)^alpha, the Google NMT
	// normalization (Wu et al. 2016).
	PenaltyWu = "wu"
)

// LengthPenalty normalizes a finished hypothesis's cumulative log-probability
// before final ranking, countering the bias toward shorter sentences.
// Implementations are stateless and safe for concurrent use.
type LengthPenalty interface {
	// Apply transforms the raw score of a hypothesis with the given length
	// (in tokens, sentence framing included).
	Apply(score float64, length int) float64

	// Name returns the registered name of the policy.
	Name() string
}

type nonePenalty struct{}

func (nonePenalty) Apply(score float64, _ int) float64 { return score }
func (nonePenalty) Name() string                       { return PenaltyNone }

type averagePenalty struct{ alpha float64 }

func (p averagePenalty) Apply(score float64, length int) float64 {
	if length < 1 {
		length = 1
	}
	return score / math.Pow(float64(length), p.alpha)
}
func (p averagePenalty) Name() string { return PenaltyAverage }

type wuPenalty struct{ alpha float64 }

func (p wuPenalty) Apply(score float64, length int) float64 {
	if length < 1 {
		length = 1
	}
	return score / math.Pow((5.0+float64(length))/6.0, p.alpha)
}
func (p wuPenalty) Name() string { return PenaltyWu }

var penaltyBuilders = map[string]func(alpha float64) LengthPenalty{
	PenaltyNone:    func(_ float64) LengthPenalty { return nonePenalty{} },
	PenaltyAverage: func(alpha float64) LengthPenalty { return averagePenalty{alpha: alpha} },
	PenaltyWu:      func(alpha float64) LengthPenalty { return wuPenalty{alpha: alpha} },
}

// PenaltyNames returns the registered length-penalty names, sorted.
func PenaltyNames() []string {
	return xslices.SortedKeys(penaltyBuilders)
}

// NewLengthPenalty resolves a policy by name. Unknown names are an error, so
// a bad configuration fails at construction time rather than mid-search.
func NewLengthPenalty(name string, alpha float64) (LengthPenalty, error) {
	builder, found := penaltyBuilders[name]
	if !found {
		return nil, errors.Errorf("unknown length penalty %q, valid names are %v", name, PenaltyNames())
	}
	return builder(alpha), nil
}
