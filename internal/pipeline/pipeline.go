// Package pipeline orchestrates the log-to-summary flow: read records,
// rebuild runs, derive stats, filter or merge, and order the result.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/averis/bulklog/internal/event"
	"github.com/averis/bulklog/internal/runlog"
	"github.com/averis/bulklog/internal/stats"
)

// Config holds pipeline configuration.
type Config struct {
	// Patterns are the log filename globs tried inside a directory.
	Patterns []string
	// Merge combines repeated runs with identical group and
	// parameters into averaged aggregates.
	Merge bool
	// OnlyErrors keeps only error-bearing stats and skips merging.
	OnlyErrors bool
}

// Result holds pipeline execution results.
type Result struct {
	// Stats in final display order.
	Stats []*stats.RunStats
	// ShowGroup is true when the input spans more than one export
	// group, in which case the group is worth printing.
	ShowGroup   bool
	RunsParsed  int
	RunsSkipped int
	Duration    time.Duration
}

type Pipeline struct {
	cfg Config
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Run reads the log file or directory at path and produces ordered
// stats. Structural input problems (unreadable files, records missing
// required fields, an empty directory match) abort the whole run;
// per-run logical problems are logged and the run is skipped.
func (p *Pipeline) Run(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	files, err := runlog.Discover(path, p.cfg.Patterns)
	if err != nil {
		return nil, err
	}
	slog.Debug("reading logs", "files", len(files))

	builder := runlog.NewBuilder()
	err = runlog.ReadRecords(files, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := event.Classify(line)
		if err != nil {
			return err
		}
		builder.Apply(ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &Result{}
	groups := make(map[string]struct{})
	var collated []*stats.RunStats

	for _, run := range builder.Runs() {
		result.RunsParsed++
		if run.ParseError != "" {
			slog.Warn("could not understand export",
				"export_id", run.ExportID, "error", run.ParseError)
			result.RunsSkipped++
			continue
		}
		s, ok := stats.Collate(run)
		if !ok {
			slog.Debug("skipping incomplete export", "export_id", run.ExportID)
			result.RunsSkipped++
			continue
		}
		groups[s.Group] = struct{}{}
		collated = append(collated, s)
	}
	// Decide group visibility over everything collated, before any
	// error filtering narrows the set down.
	result.ShowGroup = len(groups) > 1

	if p.cfg.OnlyErrors {
		kept := collated[:0]
		for _, s := range collated {
			if s.ErrorCount > 0 {
				kept = append(kept, s)
			}
		}
		collated = kept
	} else if p.cfg.Merge {
		collated = stats.Merge(collated)
	}
	stats.SortByType(collated)

	result.Stats = collated
	result.Duration = time.Since(start)
	return result, nil
}
