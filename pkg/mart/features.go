// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package mart

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/gomart/gomart/pkg/support/sets"
)

// videoFeaturesEntry mirrors one video of a features JSON file.
type videoFeaturesEntry struct {
	ID       string      `json:"id"`
	Features [][]float64 `json:"features"`
}

type videoFeaturesFile struct {
	Videos []videoFeaturesEntry `json:"videos"`
}

// LoadVideoContexts reads pre-extracted clip feature grids from a JSON file
// (`{"videos": [{"id": …, "features": [[…], …]}, …]}`) in file order.
func LoadVideoContexts(path string) ([]*VideoContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "mart.LoadVideoContexts: failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	vctxs, err := ReadVideoContexts(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "mart.LoadVideoContexts: reading %q", path)
	}
	return vctxs, nil
}

// ReadVideoContexts parses a features JSON stream. Every video must carry an
// id, at least one clip and a consistent feature dimension; duplicate ids are
// rejected.
func ReadVideoContexts(r io.Reader) ([]*VideoContext, error) {
	var file videoFeaturesFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, errors.Wrap(err, "mart: invalid features JSON")
	}
	if len(file.Videos) == 0 {
		return nil, errors.Errorf("mart: features file lists no videos")
	}
	vctxs := make([]*VideoContext, 0, len(file.Videos))
	seen := sets.Make[string](len(file.Videos))
	for ii, entry := range file.Videos {
		if entry.ID == "" {
			return nil, errors.Errorf("mart: video %d has no id", ii)
		}
		if seen.Has(entry.ID) {
			return nil, errors.Errorf("mart: duplicate video id %q", entry.ID)
		}
		seen.Insert(entry.ID)
		if len(entry.Features) == 0 {
			return nil, errors.Errorf("mart: video %q has no clips", entry.ID)
		}
		vctx, err := NewVideoContext(entry.ID, entry.Features)
		if err != nil {
			return nil, err
		}
		vctxs = append(vctxs, vctx)
	}
	return vctxs, nil
}
