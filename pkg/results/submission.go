// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package results

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/gomart/gomart/pkg/decode"
	"github.com/gomart/gomart/pkg/vocab"
)

// SubmissionVersion identifies the submission format understood by the
// dense-captioning evaluation tooling.
const SubmissionVersion = "VERSION 1.0"

// SubmissionEntry is one sentence of one video in a submission.
type SubmissionEntry struct {
	ClipID   string `json:"clip_id"`
	Sentence string `json:"sentence"`
}

// Submission is the evaluation-server JSON envelope: the rank-0 sentences of
// every video, clip ids numbered in paragraph order.
type Submission struct {
	Results map[string][]SubmissionEntry `json:"results"`
	Version string                       `json:"version"`
}

// NewSubmission returns an empty submission envelope.
func NewSubmission() *Submission {
	return &Submission{
		Results: make(map[string][]SubmissionEntry),
		Version: SubmissionVersion,
	}
}

// Build renders the rank-0 sentences of in-memory paragraph results as a
// submission, bypassing the store.
func Build(results []*decode.ParagraphResult, voc *vocab.Vocabulary) *Submission {
	submission := NewSubmission()
	for _, result := range results {
		submission.Add(result.VideoID, result.Paragraph(voc))
	}
	return submission
}

// Add appends the sentences of one video, continuing its clip numbering.
func (s *Submission) Add(videoID string, sentences []string) {
	for _, sentence := range sentences {
		s.Results[videoID] = append(s.Results[videoID], SubmissionEntry{
			ClipID:   strconv.Itoa(len(s.Results[videoID])),
			Sentence: sentence,
		})
	}
}

// Write renders the submission as indented JSON.
func (s *Submission) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return errors.Wrapf(enc.Encode(s), "failed to encode submission")
}

// Save writes the submission to a file.
func (s *Submission) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create submission file %s", path)
	}
	if err := s.Write(f); err != nil {
		_ = f.Close()
		return errors.WithMessagef(err, "submission file %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close submission file %s", path)
}

// ExportSubmission renders the rank-0 sentences of every paragraph in a run
// and writes them to path in the submission format.
func (s *Store) ExportSubmission(ctx context.Context, runID, path string) error {
	paragraphs, err := s.Paragraphs(ctx, runID)
	if err != nil {
		return errors.WithMessagef(err, "exporting run %s", runID)
	}
	if len(paragraphs) == 0 {
		return errors.WithMessagef(ErrNotFound, "run %s has no paragraphs", runID)
	}
	submission := NewSubmission()
	for _, p := range paragraphs {
		submission.Add(p.VideoID, p.Best())
	}
	return submission.Save(path)
}
