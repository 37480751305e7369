// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package simplemart implements a small, self-contained MART-style scorer in
// pure Go. It is not meant to produce good captions: it exists so the full
// decoding stack can run, be tested and be benchmarked without an external
// model runtime, and as the reference for how a real scorer plugs into
// mart.StepScorer and mart.BatchScorer.
//
// The model is deliberately tiny: token embeddings double as the tied output
// projection, one hidden state mixes the prefix, the recurrent memory and the
// mean video feature, and the memory update is a per-cell gated blend of the
// old cell with a candidate derived from the committed sentence.
package simplemart

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gomart/gomart/pkg/mart"
)

// Config selects the model dimensions and the weight-initialization seed.
// Create it with NewConfig and adjust with the With* methods.
type Config struct {
	// VocabSize is the number of tokens, including the reserved ones.
	VocabSize int

	// EmbedDim is the embedding and hidden dimension, and the dimension of
	// each memory cell.
	EmbedDim int

	// NumCells is the number of recurrent memory cells.
	NumCells int

	// VideoDim is the per-clip feature dimension the model expects.
	VideoDim int

	// Seed makes weight initialization reproducible.
	Seed uint64
}

// NewConfig returns a Config with small defaults: embedding dimension 32,
// 2 memory cells, video features of dimension 16, seed 42.
func NewConfig(vocabSize int) *Config {
	return &Config{
		VocabSize: vocabSize,
		EmbedDim:  32,
		NumCells:  2,
		VideoDim:  16,
		Seed:      42,
	}
}

// WithEmbedDim sets the embedding/hidden/memory-cell dimension.
// It returns the updated Config, so calls can be cascaded.
func (c *Config) WithEmbedDim(dim int) *Config {
	c.EmbedDim = dim
	return c
}

// WithNumCells sets the number of recurrent memory cells.
// It returns the updated Config, so calls can be cascaded.
func (c *Config) WithNumCells(n int) *Config {
	c.NumCells = n
	return c
}

// WithVideoDim sets the expected per-clip feature dimension.
// It returns the updated Config, so calls can be cascaded.
func (c *Config) WithVideoDim(dim int) *Config {
	c.VideoDim = dim
	return c
}

// WithSeed sets the weight-initialization seed.
// It returns the updated Config, so calls can be cascaded.
func (c *Config) WithSeed(seed uint64) *Config {
	c.Seed = seed
	return c
}

// Validate returns an error on the first invalid field.
func (c *Config) Validate() error {
	if c.VocabSize <= 0 {
		return errors.Errorf("simplemart: VocabSize must be positive, got %d", c.VocabSize)
	}
	if c.EmbedDim <= 0 {
		return errors.Errorf("simplemart: EmbedDim must be positive, got %d", c.EmbedDim)
	}
	if c.NumCells <= 0 {
		return errors.Errorf("simplemart: NumCells must be positive, got %d", c.NumCells)
	}
	if c.VideoDim <= 0 {
		return errors.Errorf("simplemart: VideoDim must be positive, got %d", c.VideoDim)
	}
	return nil
}

// Model holds the weights. It is immutable after construction and safe for
// concurrent scoring.
type Model struct {
	cfg Config

	// embed is VocabSize x EmbedDim; its transpose is the output projection.
	embed *mat.Dense

	// Hidden-state mixing: EmbedDim x EmbedDim, except videoW which maps
	// VideoDim features into the hidden space.
	prefixW *mat.Dense
	memoryW *mat.Dense
	videoW  *mat.Dense
	bias    *mat.VecDense

	// Gated memory update, shared across cells except for cellBias
	// (NumCells x EmbedDim) which breaks the symmetry between cells.
	gateW    *mat.Dense
	gateU    *mat.Dense
	candW    *mat.Dense
	candU    *mat.Dense
	cellBias *mat.Dense
}

var _ mart.BatchScorer = (*Model)(nil)

// New builds a Model with weights drawn uniformly from
// [-1/sqrt(fanIn), 1/sqrt(fanIn)] using the seed in cfg.
func New(cfg *Config) (*Model, error) {
	if cfg == nil {
		return nil, errors.Errorf("simplemart: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15))
	d := cfg.EmbedDim
	m := &Model{
		cfg:      *cfg,
		embed:    randomDense(rng, cfg.VocabSize, d, d),
		prefixW:  randomDense(rng, d, d, d),
		memoryW:  randomDense(rng, d, d, d),
		videoW:   randomDense(rng, d, cfg.VideoDim, cfg.VideoDim),
		bias:     mat.NewVecDense(d, nil),
		gateW:    randomDense(rng, d, d, d),
		gateU:    randomDense(rng, d, d, d),
		candW:    randomDense(rng, d, d, d),
		candU:    randomDense(rng, d, d, d),
		cellBias: randomDense(rng, cfg.NumCells, d, d),
	}
	return m, nil
}

func randomDense(rng *rand.Rand, rows, cols, fanIn int) *mat.Dense {
	scale := 1.0 / math.Sqrt(float64(fanIn))
	data := make([]float64, rows*cols)
	for ii := range data {
		data[ii] = (rng.Float64()*2 - 1) * scale
	}
	return mat.NewDense(rows, cols, data)
}

// Config returns a copy of the model's configuration.
func (m *Model) Config() Config { return m.cfg }

// VocabSize implements mart.StepScorer.
func (m *Model) VocabSize() int { return m.cfg.VocabSize }

// ScoreStep implements mart.StepScorer: a log-probability for every token
// that could follow prefix, conditioned on the memory snapshot and the video.
func (m *Model) ScoreStep(prefix []int32, mem *mart.Memory, vctx *mart.VideoContext) ([]float64, error) {
	reads, err := m.contextReads(mem, vctx)
	if err != nil {
		return nil, err
	}
	return m.scoreWithReads(prefix, reads)
}

// ScoreSteps implements mart.BatchScorer. The memory and video projections
// are shared by every prefix in the batch, so they are computed once.
func (m *Model) ScoreSteps(prefixes [][]int32, mem *mart.Memory, vctx *mart.VideoContext) ([][]float64, error) {
	reads, err := m.contextReads(mem, vctx)
	if err != nil {
		return nil, err
	}
	dists := make([][]float64, len(prefixes))
	for ii, prefix := range prefixes {
		dists[ii], err = m.scoreWithReads(prefix, reads)
		if err != nil {
			return nil, errors.WithMessagef(err, "prefix %d of %d", ii, len(prefixes))
		}
	}
	return dists, nil
}

// contextReads projects the memory snapshot and the video features into the
// hidden space. Both reads are independent of the prefix.
func (m *Model) contextReads(mem *mart.Memory, vctx *mart.VideoContext) (*mat.VecDense, error) {
	d := m.cfg.EmbedDim
	reads := mat.NewVecDense(d, nil)

	memVec, err := m.memoryMean(mem)
	if err != nil {
		return nil, err
	}
	var tmp mat.VecDense
	tmp.MulVec(m.memoryW, memVec)
	reads.AddVec(reads, &tmp)

	videoVec, err := m.videoMean(vctx)
	if err != nil {
		return nil, err
	}
	tmp.MulVec(m.videoW, videoVec)
	reads.AddVec(reads, &tmp)

	reads.AddVec(reads, m.bias)
	return reads, nil
}

func (m *Model) scoreWithReads(prefix []int32, reads *mat.VecDense) ([]float64, error) {
	pooled, err := m.meanEmbedding(prefix)
	if err != nil {
		return nil, err
	}
	var hidden mat.VecDense
	hidden.MulVec(m.prefixW, pooled)
	hidden.AddVec(&hidden, reads)
	applyVec(&hidden, math.Tanh)

	logits := mat.NewVecDense(m.cfg.VocabSize, nil)
	logits.MulVec(m.embed, &hidden)

	dist := make([]float64, m.cfg.VocabSize)
	copy(dist, logits.RawVector().Data)
	norm := floats.LogSumExp(dist)
	for ii := range dist {
		dist[ii] -= norm
	}
	return dist, nil
}

// UpdateMemory implements mart.StepScorer: each cell blends its previous
// value with a candidate derived from the committed sentence, through an
// update gate, so memory drifts smoothly from sentence to sentence.
func (m *Model) UpdateMemory(sentence []int32, mem *mart.Memory, vctx *mart.VideoContext) (*mart.Memory, error) {
	pooled, err := m.meanEmbedding(sentence)
	if err != nil {
		return nil, err
	}
	if err := m.checkMemory(mem); err != nil {
		return nil, err
	}
	d := m.cfg.EmbedDim
	next := mart.NewMemory(m.cfg.NumCells, d)
	var gateIn, candIn, tmp mat.VecDense
	for cell := 0; cell < m.cfg.NumCells; cell++ {
		prev := mat.NewVecDense(d, nil)
		if mem != nil {
			copy(prev.RawVector().Data, mem.Cell(cell))
		}

		gateIn.MulVec(m.gateW, pooled)
		tmp.MulVec(m.gateU, prev)
		gateIn.AddVec(&gateIn, &tmp)
		applyVec(&gateIn, sigmoid)

		candIn.MulVec(m.candW, pooled)
		tmp.MulVec(m.candU, prev)
		candIn.AddVec(&candIn, &tmp)
		candIn.AddVec(&candIn, m.cellBias.RowView(cell))
		applyVec(&candIn, math.Tanh)

		updated := make([]float64, d)
		for ii := range updated {
			z := gateIn.AtVec(ii)
			updated[ii] = z*prev.AtVec(ii) + (1-z)*candIn.AtVec(ii)
		}
		next.SetCell(cell, updated)
	}
	return next, nil
}

// meanEmbedding pools the embeddings of the given tokens.
func (m *Model) meanEmbedding(tokens []int32) (*mat.VecDense, error) {
	if len(tokens) == 0 {
		return nil, errors.Errorf("simplemart: empty token sequence")
	}
	d := m.cfg.EmbedDim
	pooled := mat.NewVecDense(d, nil)
	for _, token := range tokens {
		if token < 0 || int(token) >= m.cfg.VocabSize {
			return nil, errors.Errorf("simplemart: token %d out of range [0, %d)", token, m.cfg.VocabSize)
		}
		pooled.AddVec(pooled, m.embed.RowView(int(token)))
	}
	pooled.ScaleVec(1/float64(len(tokens)), pooled)
	return pooled, nil
}

// memoryMean pools the memory cells; a nil snapshot is the initial (zero)
// state.
func (m *Model) memoryMean(mem *mart.Memory) (*mat.VecDense, error) {
	pooled := mat.NewVecDense(m.cfg.EmbedDim, nil)
	if mem == nil {
		return pooled, nil
	}
	if err := m.checkMemory(mem); err != nil {
		return nil, err
	}
	for cell := 0; cell < mem.NumCells(); cell++ {
		pooled.AddVec(pooled, mat.NewVecDense(m.cfg.EmbedDim, mem.Cell(cell)))
	}
	pooled.ScaleVec(1/float64(mem.NumCells()), pooled)
	return pooled, nil
}

func (m *Model) checkMemory(mem *mart.Memory) error {
	if mem == nil {
		return nil
	}
	if mem.NumCells() != m.cfg.NumCells || mem.Dim() != m.cfg.EmbedDim {
		return errors.Errorf("simplemart: memory snapshot is %dx%d, model expects %dx%d",
			mem.NumCells(), mem.Dim(), m.cfg.NumCells, m.cfg.EmbedDim)
	}
	return nil
}

// videoMean pools the clip features; a nil context or a video without clips
// reads as zeros.
func (m *Model) videoMean(vctx *mart.VideoContext) (*mat.VecDense, error) {
	pooled := mat.NewVecDense(m.cfg.VideoDim, nil)
	if vctx == nil || vctx.NumClips() == 0 {
		return pooled, nil
	}
	if vctx.Dim() != m.cfg.VideoDim {
		return nil, errors.Errorf("simplemart: video %q features have dimension %d, model expects %d",
			vctx.ID(), vctx.Dim(), m.cfg.VideoDim)
	}
	for clip := 0; clip < vctx.NumClips(); clip++ {
		pooled.AddVec(pooled, mat.NewVecDense(m.cfg.VideoDim, vctx.Feature(clip)))
	}
	pooled.ScaleVec(1/float64(vctx.NumClips()), pooled)
	return pooled, nil
}

func applyVec(v *mat.VecDense, fn func(float64) float64) {
	data := v.RawVector().Data
	for ii := range data {
		data[ii] = fn(data[ii])
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
