// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/gomart/gomart/pkg/decode"
	"github.com/gomart/gomart/pkg/mart"
	"github.com/gomart/gomart/pkg/mart/simplemart"
	"github.com/gomart/gomart/pkg/results"
	"github.com/gomart/gomart/pkg/vocab"
)

func init() {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode paragraph captions for video features",
		Long: "Decode paragraph captions for video features with constrained beam " +
			"search. Without --features/--vocab/--model a built-in demo setup is " +
			"used: a small vocabulary, a randomly initialized scorer and synthetic " +
			"clip features.",
		Run: runDecode,
	}

	cmd.Flags().String("features", "", "Video features JSON file (default: built-in demo videos)")
	cmd.Flags().String("vocab", "", "word2idx JSON file (default: built-in demo vocabulary)")
	cmd.Flags().String("model", "", "Scorer weights JSON file (default: fresh random scorer from --seed)")
	cmd.Flags().Uint64("seed", 42, "Seed for the fresh random scorer")
	cmd.Flags().Bool("greedy", false, "Greedy decoding instead of beam search")
	cmd.Flags().Int("beam-size", 2, "Live hypotheses kept per expansion round")
	cmd.Flags().Int("n-best", 1, "Ranked alternatives kept per sentence")
	cmd.Flags().Int("min-sen-len", 5, "Minimum sentence length, specials included")
	cmd.Flags().Int("max-sen-len", 25, "Maximum sentence length, specials included")
	cmd.Flags().Int("block-ngram", 0, "Forbid repeating token n-grams of this order (0 disables)")
	cmd.Flags().String("penalty", decode.PenaltyNone, "Length penalty: none, avg or wu")
	cmd.Flags().Float64("penalty-alpha", 0, "Length penalty strength")
	cmd.Flags().Int("max-sentences", 6, "Maximum sentences per paragraph")
	cmd.Flags().Bool("allow-unknown", false, "Allow the unknown-word token in outputs")
	cmd.Flags().Int("parallelism", 1, "Videos decoded concurrently (>1 disables the progress bar)")
	cmd.Flags().String("out-db", "", "SQLite database to store the run in")
	cmd.Flags().String("run", "decode", "Run name used with --out-db")
	cmd.Flags().String("out-json", "", "Submission JSON file to write")

	RootCmd.AddCommand(cmd)
}

func runDecode(cmd *cobra.Command, _ []string) {
	featuresPath := pathFlag(cmd, "features")
	vocabPath := pathFlag(cmd, "vocab")
	modelPath := pathFlag(cmd, "model")
	seed, _ := cmd.Flags().GetUint64("seed")
	greedy, _ := cmd.Flags().GetBool("greedy")
	beamSize, _ := cmd.Flags().GetInt("beam-size")
	nBest, _ := cmd.Flags().GetInt("n-best")
	minSenLen, _ := cmd.Flags().GetInt("min-sen-len")
	maxSenLen, _ := cmd.Flags().GetInt("max-sen-len")
	blockNGram, _ := cmd.Flags().GetInt("block-ngram")
	penalty, _ := cmd.Flags().GetString("penalty")
	penaltyAlpha, _ := cmd.Flags().GetFloat64("penalty-alpha")
	maxSentences, _ := cmd.Flags().GetInt("max-sentences")
	allowUnknown, _ := cmd.Flags().GetBool("allow-unknown")
	parallelism, _ := cmd.Flags().GetInt("parallelism")
	outDB := pathFlag(cmd, "out-db")
	runName, _ := cmd.Flags().GetString("run")
	outJSON := pathFlag(cmd, "out-json")

	voc := must.M1(vocab.New(demoWords))
	if vocabPath != "" {
		voc = must.M1(vocab.Load(vocabPath))
	}

	var vctxs []*mart.VideoContext
	if featuresPath != "" {
		vctxs = must.M1(mart.LoadVideoContexts(featuresPath))
	}

	var model *simplemart.Model
	if modelPath != "" {
		model = must.M1(simplemart.Load(modelPath))
		if model.VocabSize() != voc.Size() {
			fatalf("model %s scores a vocabulary of %d words, this vocabulary has %d",
				modelPath, model.VocabSize(), voc.Size())
		}
	} else {
		mcfg := simplemart.NewConfig(voc.Size()).WithSeed(seed)
		if len(vctxs) > 0 {
			mcfg = mcfg.WithVideoDim(vctxs[0].Dim())
		}
		model = must.M1(simplemart.New(mcfg))
	}
	if len(vctxs) == 0 {
		vctxs = demoVideos(model.Config().VideoDim)
	}
	for _, vctx := range vctxs {
		if vctx.Dim() != model.Config().VideoDim {
			fatalf("video %q has %d-dim features, the scorer expects %d",
				vctx.ID(), vctx.Dim(), model.Config().VideoDim)
		}
	}

	cfg := decode.NewConfig().
		WithBeam(!greedy).
		WithBeamSize(beamSize).
		WithNBest(nBest).
		WithSentenceLength(minSenLen, maxSenLen).
		WithBlockNGramRepeat(blockNGram).
		WithLengthPenalty(penalty, penaltyAlpha).
		WithMaxSentences(maxSentences).
		WithSuppressUnknown(!allowUnknown)
	dec := must.M1(decode.New(cfg, model, voc))

	start := time.Now()
	var paragraphs []*decode.ParagraphResult
	if parallelism > 1 {
		paragraphs = must.M1(dec.DecodeBatch(vctxs, nil, parallelism))
	} else {
		bar := newDecodeBar(len(vctxs))
		for _, vctx := range vctxs {
			paragraphs = append(paragraphs, must.M1(dec.DecodeParagraph(vctx, nil)))
			_ = bar.Add(1)
		}
		fmt.Println()
	}
	elapsed := time.Since(start).Round(time.Millisecond)

	var numSentences, numTokens int
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Video", "#", "Caption", "Score")
	for _, p := range paragraphs {
		for ii, sentence := range p.Sentences {
			best := sentence.Best()
			numSentences++
			numTokens += len(best.Tokens)
			table.Row(p.VideoID, strconv.Itoa(ii), voc.Sentence(best.Tokens),
				fmt.Sprintf("%.4f", best.Penalized))
		}
	}
	fmt.Println(table.Render())
	fmt.Printf("decoded %s sentences (%s tokens) for %s videos in %s\n",
		humanize.Comma(int64(numSentences)), humanize.Comma(int64(numTokens)),
		humanize.Comma(int64(len(paragraphs))), elapsed)

	if outDB != "" {
		store := must.M1(results.Open(outDB))
		defer func() { must.M(store.Close()) }()
		run := must.M1(store.CreateRun(cmd.Context(), runName, cfg.String()))
		for _, p := range paragraphs {
			must.M(store.SaveParagraph(cmd.Context(), run.ID, p, voc))
		}
		fmt.Printf("stored run %s (%q) in %s\n", run.ID, runName, outDB)
	}
	if outJSON != "" {
		must.M(results.Build(paragraphs, voc).Save(outJSON))
		fmt.Printf("wrote submission %s\n", outJSON)
	}
}

func newDecodeBar(numVideos int) *progressbar.ProgressBar {
	return progressbar.NewOptions(numVideos,
		progressbar.OptionSetDescription("Decoding: "),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("videos"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
}

// demoWords are the non-special entries of the built-in demo vocabulary.
var demoWords = []string{
	"a", "the", "man", "woman", "dog", "ball", "park", "kitchen",
	"throws", "catches", "runs", "walks", "slices", "stirs", "red", "small",
}

// demoVideos synthesizes deterministic clip feature grids so the decode
// command works out of the box.
func demoVideos(dim int) []*mart.VideoContext {
	return []*mart.VideoContext{
		must.M1(mart.NewVideoContext("demo-1", demoGrid(3, dim, 0.4))),
		must.M1(mart.NewVideoContext("demo-2", demoGrid(5, dim, -0.25))),
	}
}

func demoGrid(clips, dim int, scale float64) [][]float64 {
	feats := make([][]float64, clips)
	for ii := range feats {
		row := make([]float64, dim)
		for jj := range row {
			row[jj] = scale * math.Sin(float64(ii*dim+jj+1))
		}
		feats[ii] = row
	}
	return feats
}
