// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"os/user"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// MustReplaceTildeInDir is ReplaceTildeInDir, panicking on lookup errors.
func MustReplaceTildeInDir(dir string) string {
	dir, err := ReplaceTildeInDir(dir)
	if err != nil {
		panic(err)
	}
	return dir
}

// ReplaceTildeInDir replaces a leading "~" or "~user" with the corresponding
// home directory. Paths without a tilde prefix are returned unchanged.
func ReplaceTildeInDir(dir string) (string, error) {
	if dir == "" || dir[0] != '~' {
		return dir, nil
	}
	userName, rest := dir[1:], ""
	if idx := strings.IndexRune(userName, '/'); idx >= 0 {
		userName, rest = userName[:idx], userName[idx:]
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve the home directory in path %q", dir)
	}
	return path.Join(usr.HomeDir, rest), nil
}
