// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// gomart is the command-line front end of the captioning toolkit: it decodes
// paragraph captions for video features, replays validation series through
// the early-stopping tracker, and inspects vocabularies.
package main

import (
	"os"

	"github.com/gomart/gomart/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
