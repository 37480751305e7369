// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/spf13/cobra"

	"github.com/gomart/gomart/pkg/train"
	"github.com/gomart/gomart/pkg/train/commandline"
)

func init() {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Run the early-stopping tracker over a validation series",
		Long: "Replay a validation metric series through the best-value tracker and " +
			"the epoch loop: shows when each value counts as an improvement and " +
			"when the non-improvement patience would have stopped a run.",
		Run: runTrack,
	}

	cmd.Flags().String("metrics", "", "Comma-separated validation values, in epoch order (required)")
	cmd.Flags().String("metric-name", "CIDEr", "Metric name used in reports")
	cmd.Flags().String("compare", string(train.CompareMax), "Improvement direction: max or min")
	cmd.Flags().String("threshold-mode", string(train.ThresholdRelative), "Improvement margin mode: rel or abs")
	cmd.Flags().Float64("threshold", 1e-4, "Margin a value must clear to count as improvement")
	cmd.Flags().Int("patience", 2, "Stop after this many epochs without improvement")
	cmd.Flags().String("out-state", "", "Tracker state JSON file to write")
	_ = cmd.MarkFlagRequired("metrics")

	RootCmd.AddCommand(cmd)
}

func runTrack(cmd *cobra.Command, _ []string) {
	metricsCSV, _ := cmd.Flags().GetString("metrics")
	name, _ := cmd.Flags().GetString("metric-name")
	compare, _ := cmd.Flags().GetString("compare")
	thresholdMode, _ := cmd.Flags().GetString("threshold-mode")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	patience, _ := cmd.Flags().GetInt("patience")
	outState := pathFlag(cmd, "out-state")

	values := parseMetricSeries(metricsCSV)
	if len(values) == 0 {
		fatalf("--metrics must list at least one value")
	}

	cfg := train.NewTrackerConfig(name).
		WithCompareMode(train.CompareMode(compare)).
		WithThreshold(train.ThresholdMode(thresholdMode), threshold).
		WithTerminateAfter(patience)
	tracker := must.M1(train.NewBestTracker(cfg))

	loop := train.NewLoop()
	loop.AttachBestTracker(tracker)
	commandline.AttachProgressBar(loop, name)
	must.M(loop.RunEpochs(len(values), func(_ *train.Loop, epoch int) (float64, error) {
		return values[epoch], nil
	}))

	fmt.Println(commandline.FormatHistory(name, tracker.History()))
	fmt.Println(commandline.FormatBest(tracker))
	if loop.StoppedEarly {
		fmt.Printf("stopped early after %s of %s epochs\n",
			humanize.Comma(int64(loop.Epoch+1)), humanize.Comma(int64(len(values))))
	}
	if outState != "" {
		must.M(tracker.Save(outState))
		fmt.Printf("wrote tracker state %s\n", outState)
	}
}

func parseMetricSeries(csv string) []float64 {
	var values []float64
	for _, field := range strings.Split(csv, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			fatalf("--metrics: %q is not a number", field)
		}
		values = append(values, value)
	}
	return values
}
