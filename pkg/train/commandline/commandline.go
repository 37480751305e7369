// Copyright 2026 The GoMART Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline attaches terminal reporting to a train.Loop: a
// progress bar advancing per epoch and a rendered table of the validation
// history.
package commandline

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"

	"github.com/gomart/gomart/pkg/train"
)

// ProgressBarName is the hook name used for error reporting.
const ProgressBarName = "gomart.train.commandline.progressBar"

// progressBar holds a progressbar being displayed.
type progressBar struct {
	metric string
	bar    *progressbar.ProgressBar
	suffix string
	color  bool
}

// Write implements io.Writer, appending the current suffix with the latest
// validation value to each line, so the bar and its stats are written in one
// operation.
func (pBar *progressBar) Write(data []byte) (n int, err error) {
	newData := append(data, []byte(pBar.suffix)...)
	n, err = os.Stdout.Write(newData)
	if err == nil {
		n = len(data)
	}
	return
}

func (pBar *progressBar) onStart(_ *train.Loop, plannedEpochs int) error {
	pBar.bar = progressbar.NewOptions(plannedEpochs,
		progressbar.OptionSetDescription(fmt.Sprintf("Tuning (%d epochs): ", plannedEpochs)),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(pBar.color),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("epochs"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		progressbar.OptionSetWriter(pBar),
	)
	return nil
}

func (pBar *progressBar) onEpoch(loop *train.Loop, validation float64) error {
	pBar.suffix = fmt.Sprintf(" [epoch=%d] [%s=%.5f]        ", loop.Epoch, pBar.metric, validation)
	return pBar.bar.Add(1)
}

func (pBar *progressBar) onEnd(_ *train.Loop) error {
	fmt.Println()
	return nil
}

// AttachProgressBar attaches a progress bar to the loop, advancing per epoch
// and showing the named validation metric. Colors are dropped on terminals
// without color support.
func AttachProgressBar(loop *train.Loop, metric string) {
	pBar := &progressBar{
		metric: metric,
		color:  termenv.NewOutput(os.Stdout).Profile != termenv.Ascii,
	}
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	loop.OnEpoch(ProgressBarName, 0, pBar.onEpoch)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
}

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
)

// FormatHistory renders the validation history as a bordered table, best
// epochs marked.
func FormatHistory(metric string, history []train.ValidationRecord) string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Epoch", metric, "New best").
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	for _, record := range history {
		mark := ""
		if record.IsNewBest {
			mark = "*"
		}
		table.Row(strconv.Itoa(record.Epoch), fmt.Sprintf("%.5f", record.Value), mark)
	}
	return table.String()
}

// FormatBest renders a one-line summary of the tracker's current best.
func FormatBest(tracker *train.BestTracker) string {
	best, epoch, ok := tracker.Best()
	if !ok {
		return fmt.Sprintf("%s: no validation events yet", tracker.Config().Metric)
	}
	status := fmt.Sprintf("best %s %.5f at epoch %d (%d epochs since)",
		tracker.Config().Metric, best, epoch, tracker.EpochsSinceBest())
	if tracker.Stopped() {
		status += ", stop signaled"
	}
	return status
}
