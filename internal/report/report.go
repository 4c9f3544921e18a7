// Package report renders derived run statistics as labeled console
// blocks.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/averis/bulklog/internal/stats"
)

var (
	millisColor = color.New(color.FgHiCyan)
	secondColor = color.New(color.FgCyan)
	minuteColor = color.New(color.FgHiBlue)
	hourColor   = color.New(color.FgHiMagenta)
	errorColor  = color.New(color.FgHiRed)
)

// prettyFloat formats num to the given precision with trailing zeros
// and a trailing decimal point chopped off.
func prettyFloat(num float64, precision int) string {
	s := strconv.FormatFloat(num, 'f', precision, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// HumanTimeOffset renders a millisecond count with a fuzzy unit:
// milliseconds below 1s, seconds below 60s, minutes below 60m,
// otherwise hours, each to at most one decimal place.
//
//	49000    => "49s"
//	90000    => "1.5m"
//	18000000 => "5h"
func HumanTimeOffset(milliseconds float64) string {
	if milliseconds < 1000 {
		return millisColor.Sprintf("%sms", prettyFloat(milliseconds, 1))
	}
	seconds := milliseconds / 1000
	if seconds < 60 {
		return secondColor.Sprintf("%ss", prettyFloat(seconds, 1))
	}
	minutes := seconds / 60
	if minutes < 60 {
		return minuteColor.Sprintf("%sm", prettyFloat(minutes, 1))
	}
	hours := minutes / 60
	return hourColor.Sprintf("%sh", prettyFloat(hours, 1))
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return "None"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+": "+params[k])
	}
	return strings.Join(pairs, "\n")
}

// Render writes one labeled block for s. Counts and total time are
// divided by RunCount so merged stats read as per-run averages.
func Render(w io.Writer, s *stats.RunStats, showGroup bool) {
	megabytes := float64(s.ByteCount) / 1024 / 1024
	runs := int64(s.RunCount)

	type row struct{ label, value string }
	rows := make([]row, 0, 9)

	if showGroup {
		rows = append(rows, row{"Group:", s.Group})
	}
	rows = append(rows, row{"Params:", formatParams(s.Params)})

	runLabel := fmt.Sprintf("%d runs, averaged", s.RunCount)
	if s.Start != nil {
		runLabel = s.Start.Format("01/02/2006 15:04:05")
	}
	rows = append(rows, row{"Run:", runLabel})

	rows = append(rows, row{"Count:", fmt.Sprintf("%s (%sMB)",
		humanize.Comma(s.ResourceCount/runs),
		humanize.Comma(int64(megabytes/float64(runs))))})

	if s.PatientCount > 0 {
		rows = append(rows, row{"Time/Patient:", fmt.Sprintf("%s (%s patients)",
			HumanTimeOffset(s.DurationMS/float64(s.PatientCount)),
			humanize.Comma(s.PatientCount/runs))})
	}
	rows = append(rows, row{"Time/Resource:", HumanTimeOffset(s.DurationMS / float64(s.ResourceCount))})
	rows = append(rows, row{"Time/Megabyte:", HumanTimeOffset(s.DurationMS / megabytes)})
	rows = append(rows, row{"Total Time:", HumanTimeOffset(s.DurationMS / float64(runs))})

	if s.ErrorCount > 0 {
		rows = append(rows, row{"Errors:", errorColor.Sprint(s.ErrorCount)})
	}

	width := 0
	for _, r := range rows {
		if len(r.label) > width {
			width = len(r.label)
		}
	}
	for _, r := range rows {
		lines := strings.Split(r.value, "\n")
		fmt.Fprintf(w, "%-*s %s\n", width, r.label, lines[0])
		for _, extra := range lines[1:] {
			fmt.Fprintf(w, "%-*s %s\n", width, "", extra)
		}
	}
	fmt.Fprintln(w)
}

// RenderAll writes one block per stats entry.
func RenderAll(w io.Writer, all []*stats.RunStats, showGroup bool) {
	for _, s := range all {
		Render(w, s, showGroup)
	}
}
