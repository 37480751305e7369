// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package simplemart

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// serializedModel is the on-disk JSON layout of a Model. Matrices are stored
// row-major as nested arrays so the files stay diffable and editable.
type serializedModel struct {
	Config   Config      `json:"config"`
	Embed    [][]float64 `json:"embed"`
	PrefixW  [][]float64 `json:"prefix_w"`
	MemoryW  [][]float64 `json:"memory_w"`
	VideoW   [][]float64 `json:"video_w"`
	Bias     []float64   `json:"bias"`
	GateW    [][]float64 `json:"gate_w"`
	GateU    [][]float64 `json:"gate_u"`
	CandW    [][]float64 `json:"cand_w"`
	CandU    [][]float64 `json:"cand_u"`
	CellBias [][]float64 `json:"cell_bias"`
}

// Save writes the model weights as JSON to the given path.
func (m *Model) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "simplemart: failed to create weights file %s", path)
	}
	serialized := &serializedModel{
		Config:   m.cfg,
		Embed:    denseRows(m.embed),
		PrefixW:  denseRows(m.prefixW),
		MemoryW:  denseRows(m.memoryW),
		VideoW:   denseRows(m.videoW),
		Bias:     append([]float64(nil), m.bias.RawVector().Data...),
		GateW:    denseRows(m.gateW),
		GateU:    denseRows(m.gateU),
		CandW:    denseRows(m.candW),
		CandU:    denseRows(m.candU),
		CellBias: denseRows(m.cellBias),
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "\t")
	if err = enc.Encode(serialized); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "simplemart: failed to encode weights file %s", path)
	}
	if err = file.Close(); err != nil {
		return errors.Wrapf(err, "simplemart: failed to close weights file %s", path)
	}
	return nil
}

// Load reads model weights saved with Save, validating every shape against
// the embedded configuration.
func Load(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "simplemart: failed to open weights file %s", path)
	}
	defer func() { _ = file.Close() }()

	dec := json.NewDecoder(file)
	var serialized serializedModel
	if err = dec.Decode(&serialized); err != nil {
		return nil, errors.Wrapf(err, "simplemart: failed to decode weights file %s", path)
	}

	cfg := serialized.Config
	if err = cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "weights file %s", path)
	}
	d := cfg.EmbedDim
	m := &Model{cfg: cfg}
	for _, w := range []struct {
		name       string
		rows, cols int
		data       [][]float64
		dst        **mat.Dense
	}{
		{"embed", cfg.VocabSize, d, serialized.Embed, &m.embed},
		{"prefix_w", d, d, serialized.PrefixW, &m.prefixW},
		{"memory_w", d, d, serialized.MemoryW, &m.memoryW},
		{"video_w", d, cfg.VideoDim, serialized.VideoW, &m.videoW},
		{"gate_w", d, d, serialized.GateW, &m.gateW},
		{"gate_u", d, d, serialized.GateU, &m.gateU},
		{"cand_w", d, d, serialized.CandW, &m.candW},
		{"cand_u", d, d, serialized.CandU, &m.candU},
		{"cell_bias", cfg.NumCells, d, serialized.CellBias, &m.cellBias},
	} {
		*w.dst, err = denseFromRows(w.rows, w.cols, w.data)
		if err != nil {
			return nil, errors.WithMessagef(err, "weights file %s: matrix %q", path, w.name)
		}
	}
	if len(serialized.Bias) != d {
		return nil, errors.Errorf("simplemart: weights file %s: bias has %d entries, want %d",
			path, len(serialized.Bias), d)
	}
	m.bias = mat.NewVecDense(d, append([]float64(nil), serialized.Bias...))
	return m, nil
}

func denseRows(d *mat.Dense) [][]float64 {
	rows, cols := d.Dims()
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		mat.Row(row, r, d)
		out[r] = row
	}
	return out
}

func denseFromRows(rows, cols int, data [][]float64) (*mat.Dense, error) {
	if len(data) != rows {
		return nil, errors.Errorf("simplemart: got %d rows, want %d", len(data), rows)
	}
	flat := make([]float64, 0, rows*cols)
	for r, row := range data {
		if len(row) != cols {
			return nil, errors.Errorf("simplemart: row %d has %d columns, want %d", r, len(row), cols)
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(rows, cols, flat), nil
}
