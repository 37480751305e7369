// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package results persists decoded paragraphs in a local SQLite database and
// exports them in the dense-captioning submission format.
//
// A Store groups paragraphs into runs: one run per decoding configuration and
// checkpoint, one paragraph per video, every ranked alternative of every
// sentence kept. Saving the same video twice in a run replaces the earlier
// paragraph, so re-decoding after a fix is cheap.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	_ "modernc.org/sqlite"

	"github.com/gomart/gomart/pkg/decode"
	"github.com/gomart/gomart/pkg/vocab"
)

// ErrNotFound is returned when a run or paragraph does not exist.
var ErrNotFound = errors.New("results: not found")

// Run is one recorded decoding run.
type Run struct {
	ID        string
	Name      string
	Config    string
	CreatedAt time.Time
}

// StoredSentence is one ranked alternative of one sentence position.
type StoredSentence struct {
	Position  int
	Rank      int
	Tokens    []int32
	Sentence  string
	Score     float64
	Penalized float64
	Forced    bool
}

// StoredParagraph is a persisted paragraph: every ranked alternative of
// every sentence position, ordered by position then rank.
type StoredParagraph struct {
	RunID     string
	VideoID   string
	CreatedAt time.Time
	Sentences []StoredSentence
}

// Best returns the rank-0 sentence texts in paragraph order.
func (p *StoredParagraph) Best() []string {
	var best []string
	for _, s := range p.Sentences {
		if s.Rank == 0 {
			best = append(best, s.Sentence)
		}
	}
	return best
}

// Store is a SQLite-backed archive of decoding runs.
type Store struct {
	db      *sql.DB
	entropy *rand.Rand
}

// Open opens or creates the results database at the given path, creating
// parent directories as needed.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for results db %s", dbPath)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open results db %s", dbPath)
	}
	s := &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.WithMessagef(err, "migrating results db %s", dbPath)
	}
	klog.V(1).Infof("results store open at %s", dbPath)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return errors.Wrapf(s.db.Close(), "failed to close results db")
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		config     TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS paragraphs (
		id         TEXT PRIMARY KEY,
		run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		video_id   TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (run_id, video_id)
	);

	CREATE TABLE IF NOT EXISTS sentences (
		paragraph_id TEXT NOT NULL REFERENCES paragraphs(id) ON DELETE CASCADE,
		position     INTEGER NOT NULL,
		alt_rank     INTEGER NOT NULL,
		tokens       TEXT NOT NULL,
		sentence     TEXT NOT NULL,
		score        REAL NOT NULL,
		penalized    REAL NOT NULL,
		forced       INTEGER NOT NULL,
		PRIMARY KEY (paragraph_id, position, alt_rank)
	);

	CREATE INDEX IF NOT EXISTS idx_paragraphs_run ON paragraphs(run_id, video_id);
	`
	_, err := s.db.Exec(schema)
	return errors.Wrapf(err, "failed to apply results schema")
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// CreateRun registers a new run and returns it. The config string is kept
// verbatim so a run can be reproduced later.
func (s *Store) CreateRun(ctx context.Context, name, config string) (Run, error) {
	run := Run{
		ID:        s.newID(),
		Name:      name,
		Config:    config,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, config, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Name, run.Config, run.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return Run{}, errors.Wrapf(err, "failed to create run %q", name)
	}
	return run, nil
}

// Runs lists all recorded runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, config, created_at FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list runs")
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt string
		if err := rows.Scan(&run.ID, &run.Name, &run.Config, &createdAt); err != nil {
			return nil, errors.Wrapf(err, "failed to scan run row")
		}
		run.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "run %s has malformed created_at %q", run.ID, createdAt)
		}
		runs = append(runs, run)
	}
	return runs, errors.Wrapf(rows.Err(), "failed reading run rows")
}

// SaveParagraph persists one decoded paragraph under the given run, with
// every ranked alternative of every sentence. An earlier paragraph for the
// same video in the same run is replaced.
func (s *Store) SaveParagraph(ctx context.Context, runID string, result *decode.ParagraphResult, voc *vocab.Vocabulary) error {
	if result == nil {
		return errors.Errorf("results: nil paragraph result")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to begin transaction for video %q", result.VideoID)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM paragraphs WHERE run_id = ? AND video_id = ?`, runID, result.VideoID)
	if err != nil {
		return errors.Wrapf(err, "failed to clear earlier paragraph for video %q", result.VideoID)
	}

	paragraphID := s.newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO paragraphs (id, run_id, video_id, created_at) VALUES (?, ?, ?, ?)`,
		paragraphID, runID, result.VideoID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to insert paragraph for video %q", result.VideoID)
	}

	for position, sentence := range result.Sentences {
		for rank, alt := range sentence.Alternatives {
			tokens, err := json.Marshal(alt.Tokens)
			if err != nil {
				return errors.Wrapf(err, "failed to encode tokens of video %q sentence %d rank %d",
					result.VideoID, position, rank)
			}
			forced := 0
			if alt.Forced {
				forced = 1
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO sentences (paragraph_id, position, alt_rank, tokens, sentence, score, penalized, forced)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				paragraphID, position, rank, string(tokens), voc.Sentence(alt.Tokens),
				alt.Score, alt.Penalized, forced)
			if err != nil {
				return errors.Wrapf(err, "failed to insert video %q sentence %d rank %d",
					result.VideoID, position, rank)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "failed to commit paragraph for video %q", result.VideoID)
	}
	klog.V(2).Infof("stored paragraph for video %q: %d sentences", result.VideoID, len(result.Sentences))
	return nil
}

// Paragraph loads the stored paragraph of one video in a run. It returns
// ErrNotFound when the video has no paragraph in that run.
func (s *Store) Paragraph(ctx context.Context, runID, videoID string) (*StoredParagraph, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM paragraphs WHERE run_id = ? AND video_id = ?`, runID, videoID)
	var paragraphID, createdAt string
	if err := row.Scan(&paragraphID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.WithMessagef(ErrNotFound, "video %q in run %s", videoID, runID)
		}
		return nil, errors.Wrapf(err, "failed to load paragraph for video %q", videoID)
	}
	p := &StoredParagraph{RunID: runID, VideoID: videoID}
	var err error
	p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "paragraph %s has malformed created_at %q", paragraphID, createdAt)
	}
	p.Sentences, err = s.paragraphSentences(ctx, paragraphID)
	if err != nil {
		return nil, errors.WithMessagef(err, "video %q in run %s", videoID, runID)
	}
	return p, nil
}

// Paragraphs loads every stored paragraph of a run, ordered by video id.
func (s *Store) Paragraphs(ctx context.Context, runID string) ([]*StoredParagraph, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, created_at FROM paragraphs WHERE run_id = ? ORDER BY video_id`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list paragraphs of run %s", runID)
	}
	defer rows.Close()

	type header struct {
		id string
		p  *StoredParagraph
	}
	var headers []header
	for rows.Next() {
		var h header
		var createdAt string
		h.p = &StoredParagraph{RunID: runID}
		if err := rows.Scan(&h.id, &h.p.VideoID, &createdAt); err != nil {
			return nil, errors.Wrapf(err, "failed to scan paragraph row")
		}
		h.p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "paragraph %s has malformed created_at %q", h.id, createdAt)
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading paragraph rows")
	}

	paragraphs := make([]*StoredParagraph, 0, len(headers))
	for _, h := range headers {
		h.p.Sentences, err = s.paragraphSentences(ctx, h.id)
		if err != nil {
			return nil, errors.WithMessagef(err, "video %q in run %s", h.p.VideoID, runID)
		}
		paragraphs = append(paragraphs, h.p)
	}
	return paragraphs, nil
}

func (s *Store) paragraphSentences(ctx context.Context, paragraphID string) ([]StoredSentence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, alt_rank, tokens, sentence, score, penalized, forced
		 FROM sentences WHERE paragraph_id = ? ORDER BY position, alt_rank`, paragraphID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load sentences")
	}
	defer rows.Close()
	var sentences []StoredSentence
	for rows.Next() {
		var sen StoredSentence
		var tokens string
		var forced int
		if err := rows.Scan(&sen.Position, &sen.Rank, &tokens, &sen.Sentence,
			&sen.Score, &sen.Penalized, &forced); err != nil {
			return nil, errors.Wrapf(err, "failed to scan sentence row")
		}
		if err := json.Unmarshal([]byte(tokens), &sen.Tokens); err != nil {
			return nil, errors.Wrapf(err, "sentence at position %d has malformed tokens", sen.Position)
		}
		sen.Forced = forced != 0
		sentences = append(sentences, sen)
	}
	return sentences, errors.Wrapf(rows.Err(), "failed reading sentence rows")
}
