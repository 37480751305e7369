// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package vocab holds the immutable word↔id mapping used by the caption
// decoder, including the reserved special tokens the generation constraints
// refer to (sentence boundaries, padding, unknown words).
//
// The on-disk format is the dense "word2idx" JSON object produced by the
// caption preprocessing pipeline: `{"[PAD]": 0, "[CLS]": 1, ..., "the": 7}`.
package vocab

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Reserved token ids. Every vocabulary starts with these seven entries, in
// this exact order; caption preprocessing and decoding both rely on it.
const (
	PadID int32 = 0 // padding of the whole sequence
	ClsID int32 = 1 // leading token of the clip+text joint sequence
	SepID int32 = 2 // separator between video and text positions
	VidID int32 = 3 // placeholder for video feature positions
	BosID int32 = 4 // beginning of a sentence
	EosID int32 = 5 // end of a sentence
	UnkID int32 = 6 // out-of-vocabulary word
)

// Reserved token strings matching the ids above.
const (
	PadToken = "[PAD]"
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
	VidToken = "[VID]"
	BosToken = "[BOS]"
	EosToken = "[EOS]"
	UnkToken = "[UNK]"
)

// NumReserved is the number of reserved special tokens at the bottom of the
// id space.
const NumReserved = 7

var reservedTokens = [NumReserved]string{
	PadToken, ClsToken, SepToken, VidToken, BosToken, EosToken, UnkToken}

// Vocabulary is an immutable mapping between words and dense int32 ids, with
// the reserved specials occupying ids [0, NumReserved).
type Vocabulary struct {
	wordToID map[string]int32
	idToWord []string
}

// New builds a Vocabulary from the given non-special words. The reserved
// specials are prepended automatically, so words[0] receives id NumReserved.
// Duplicate words (or words shadowing a reserved token) are an error.
func New(words []string) (*Vocabulary, error) {
	v := &Vocabulary{
		wordToID: make(map[string]int32, NumReserved+len(words)),
		idToWord: make([]string, 0, NumReserved+len(words)),
	}
	for id, token := range reservedTokens {
		v.wordToID[token] = int32(id)
		v.idToWord = append(v.idToWord, token)
	}
	for _, word := range words {
		if _, found := v.wordToID[word]; found {
			return nil, errors.Errorf("vocab.New: duplicate word %q", word)
		}
		v.wordToID[word] = int32(len(v.idToWord))
		v.idToWord = append(v.idToWord, word)
	}
	return v, nil
}

// Load reads a word2idx JSON file from the given path.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "vocab.Load: failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	v, err := Read(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "vocab.Load: reading %q", path)
	}
	return v, nil
}

// Read parses a word2idx JSON object (`{"word": id, ...}`). It validates that
// the reserved specials are present with their reserved ids and that the ids
// form a dense range [0, size).
func Read(r io.Reader) (*Vocabulary, error) {
	var word2idx map[string]int32
	if err := json.NewDecoder(r).Decode(&word2idx); err != nil {
		return nil, errors.Wrap(err, "vocab: invalid word2idx JSON")
	}
	if len(word2idx) < NumReserved {
		return nil, errors.Errorf("vocab: word2idx has only %d entries, needs at least the %d reserved tokens",
			len(word2idx), NumReserved)
	}
	idToWord := make([]string, len(word2idx))
	seen := make([]bool, len(word2idx))
	for word, id := range word2idx {
		if id < 0 || int(id) >= len(word2idx) {
			return nil, errors.Errorf("vocab: word %q has id %d outside the dense range [0, %d)",
				word, id, len(word2idx))
		}
		if seen[id] {
			return nil, errors.Errorf("vocab: id %d assigned to both %q and %q", id, idToWord[id], word)
		}
		seen[id] = true
		idToWord[id] = word
	}
	for id, token := range reservedTokens {
		if idToWord[id] != token {
			return nil, errors.Errorf("vocab: reserved id %d must map to %s, found %q", id, token, idToWord[id])
		}
	}
	return &Vocabulary{wordToID: word2idx, idToWord: idToWord}, nil
}

// Size returns the number of entries, reserved specials included.
func (v *Vocabulary) Size() int { return len(v.idToWord) }

// ID returns the id of the given word, and whether the word is known.
func (v *Vocabulary) ID(word string) (int32, bool) {
	id, found := v.wordToID[word]
	return id, found
}

// Word returns the word for the given id. Out-of-range ids map to UnkToken.
func (v *Vocabulary) Word(id int32) string {
	if id < 0 || int(id) >= len(v.idToWord) {
		return UnkToken
	}
	return v.idToWord[id]
}

// Encode maps words to ids, substituting UnkID for unknown words.
func (v *Vocabulary) Encode(words []string) []int32 {
	ids := make([]int32, len(words))
	for ii, word := range words {
		id, found := v.wordToID[word]
		if !found {
			id = UnkID
		}
		ids[ii] = id
	}
	return ids
}

// Words converts a generated id sequence back to words: it stops at the
// first EOS and drops the structural specials (PAD, BOS, CLS, SEP, VID).
// UNK survives as its token string.
func (v *Vocabulary) Words(ids []int32) []string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == EosID {
			break
		}
		switch id {
		case PadID, BosID, ClsID, SepID, VidID:
			continue
		}
		words = append(words, v.Word(id))
	}
	return words
}

// Sentence renders a generated id sequence as a space-joined string.
func (v *Vocabulary) Sentence(ids []int32) string {
	return strings.Join(v.Words(ids), " ")
}

// String implements fmt.Stringer.
func (v *Vocabulary) String() string {
	return fmt.Sprintf("Vocabulary(%d words, %d reserved)", len(v.idToWord), NumReserved)
}
