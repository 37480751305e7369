// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package cli implements the gomart command-line interface: decoding video
// features into paragraph captions, exercising the validation tracker, and
// inspecting vocabularies.
package cli

import (
	goflag "flag"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/gomart/gomart/pkg/support/fsutil"
)

// RootCmd is the top-level gomart command.
var RootCmd = &cobra.Command{
	Use:   "gomart",
	Short: "Memory-augmented recurrent transformer captioning toolkit",
	Long: "gomart decodes paragraph captions for videos with a memory-augmented " +
		"recurrent transformer scorer: constrained beam search per sentence, a " +
		"recurrent memory threaded across sentences, and SQLite/JSON persistence " +
		"of the results.",
}

func init() {
	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	RootCmd.PersistentFlags().AddGoFlagSet(klogFlags)
}

// fatalf reports a user-facing error and exits.
func fatalf(format string, args ...any) {
	klog.Errorf(format, args...)
	os.Exit(1)
}

// pathFlag reads a string flag, expanding a leading tilde.
func pathFlag(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return fsutil.MustReplaceTildeInDir(value)
}
