// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package vocab

import (
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	v, err := New([]string{"a", "man", "is", "cooking"})
	require.NoError(t, err)
	assert.Equal(t, NumReserved+4, v.Size())

	id, found := v.ID("man")
	require.True(t, found)
	assert.Equal(t, int32(NumReserved+1), id)
	assert.Equal(t, "man", v.Word(id))

	id, found = v.ID(BosToken)
	require.True(t, found)
	assert.Equal(t, BosID, id)

	_, found = v.ID("zebra")
	assert.False(t, found)
	assert.Equal(t, UnkToken, v.Word(9999))

	_, err = New([]string{"a", "a"})
	assert.Error(t, err)
	_, err = New([]string{UnkToken})
	assert.Error(t, err)
}

func TestRead(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		src := `{"[PAD]": 0, "[CLS]": 1, "[SEP]": 2, "[VID]": 3, "[BOS]": 4, "[EOS]": 5, "[UNK]": 6, "dog": 7, "runs": 8}`
		v, err := Read(strings.NewReader(src))
		require.NoError(t, err)
		assert.Equal(t, 9, v.Size())
		assert.Equal(t, "runs", v.Word(8))
	})

	t.Run("MissingReserved", func(t *testing.T) {
		src := `{"[PAD]": 0, "[CLS]": 1, "[SEP]": 2, "[VID]": 3, "[BOS]": 4, "[EOS]": 5, "dog": 6, "runs": 7}`
		_, err := Read(strings.NewReader(src))
		require.ErrorContains(t, err, "[UNK]")
	})

	t.Run("SparseIds", func(t *testing.T) {
		src := `{"[PAD]": 0, "[CLS]": 1, "[SEP]": 2, "[VID]": 3, "[BOS]": 4, "[EOS]": 5, "[UNK]": 6, "dog": 9}`
		_, err := Read(strings.NewReader(src))
		require.ErrorContains(t, err, "dense range")
	})

	t.Run("DuplicateIds", func(t *testing.T) {
		src := `{"[PAD]": 0, "[CLS]": 1, "[SEP]": 2, "[VID]": 3, "[BOS]": 4, "[EOS]": 5, "[UNK]": 6, "dog": 7, "cat": 7}`
		_, err := Read(strings.NewReader(src))
		require.ErrorContains(t, err, "id 7")
	})

	t.Run("BadJSON", func(t *testing.T) {
		_, err := Read(strings.NewReader(`{`))
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := path.Join(dir, "word2idx.json")
	src := `{"[PAD]": 0, "[CLS]": 1, "[SEP]": 2, "[VID]": 3, "[BOS]": 4, "[EOS]": 5, "[UNK]": 6, "hello": 7}`
	require.NoError(t, os.WriteFile(file, []byte(src), 0644))

	v, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, 8, v.Size())

	_, err = Load(path.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestEncodeAndWords(t *testing.T) {
	v, err := New([]string{"a", "man", "is", "cooking"})
	require.NoError(t, err)

	ids := v.Encode([]string{"a", "man", "is", "flying"})
	assert.Equal(t, []int32{7, 8, 9, UnkID}, ids)

	// Generated sequences keep BOS/EOS framing; Words must strip it and stop
	// at the first EOS.
	gen := []int32{BosID, 7, 8, 9, 10, EosID, 8, PadID}
	assert.Equal(t, []string{"a", "man", "is", "cooking"}, v.Words(gen))
	assert.Equal(t, "a man is cooking", v.Sentence(gen))

	withUnk := []int32{BosID, 7, UnkID, EosID}
	assert.Equal(t, "a [UNK]", v.Sentence(withUnk))
}

func TestString(t *testing.T) {
	v, err := New([]string{"one"})
	require.NoError(t, err)
	assert.Contains(t, v.String(), "8 words")
}
