// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/spf13/cobra"

	"github.com/gomart/gomart/pkg/vocab"
)

func init() {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Inspect a vocabulary file",
		Long: "Load a word2idx JSON vocabulary, show its size and reserved specials, " +
			"and optionally encode words and render them back.",
		Run: runVocab,
	}

	cmd.Flags().String("path", "", "word2idx JSON file (required)")
	cmd.Flags().String("words", "", "Comma-separated words to encode and render back")
	_ = cmd.MarkFlagRequired("path")

	RootCmd.AddCommand(cmd)
}

func runVocab(cmd *cobra.Command, _ []string) {
	path := pathFlag(cmd, "path")
	wordsCSV, _ := cmd.Flags().GetString("words")

	voc := must.M1(vocab.Load(path))
	fmt.Printf("%s: %s entries, %d reserved specials\n",
		path, humanize.Comma(int64(voc.Size())), vocab.NumReserved)

	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "Token")
	for id := int32(0); id < vocab.NumReserved; id++ {
		table.Row(strconv.Itoa(int(id)), voc.Word(id))
	}
	fmt.Println(table.Render())

	if wordsCSV == "" {
		return
	}
	words := splitWords(wordsCSV)
	ids := voc.Encode(words)
	fmt.Printf("encoded:  %v\n", ids)
	fmt.Printf("rendered: %s\n", voc.Sentence(ids))
}

func splitWords(csv string) []string {
	var words []string
	for _, word := range strings.Split(csv, ",") {
		word = strings.TrimSpace(word)
		if word != "" {
			words = append(words, word)
		}
	}
	return words
}
