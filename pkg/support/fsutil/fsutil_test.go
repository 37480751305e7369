// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os/user"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	for _, test := range []struct{ in, want string }{
		{"", ""},
		{"/tmp/gomart.db", "/tmp/gomart.db"},
		{"relative/path", "relative/path"},
		{"~", usr.HomeDir},
		{"~/runs/gomart.db", path.Join(usr.HomeDir, "runs/gomart.db")},
	} {
		got, err := ReplaceTildeInDir(test.in)
		require.NoError(t, err)
		assert.Equal(t, test.want, got, "input %q", test.in)
	}

	assert.Equal(t, usr.HomeDir, MustReplaceTildeInDir("~"))
}
