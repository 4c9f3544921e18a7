// Package runlog reconstructs bulk export runs from an event log: it
// discovers and reads NDJSON log files and folds their records into
// per-export Run aggregates.
package runlog

import (
	"fmt"
	"time"

	"github.com/averis/bulklog/internal/event"
)

// Download tracks one file transfer within a run, from request to
// completion or error. Complete and Error are each set at most once.
type Download struct {
	URL      string
	Request  event.DownloadRequestDetail
	Complete *event.DownloadResultDetail
	Error    *event.DownloadResultDetail
}

// KickoffEvent anchors a run: its timestamp is the run's start time and
// its detail carries the request configuration.
type KickoffEvent struct {
	At     time.Time
	Detail event.KickoffDetail
}

// ExportCompleteEvent ends a run and carries its totals.
type ExportCompleteEvent struct {
	At     time.Time
	Detail event.ExportCompleteDetail
}

// Run is the aggregate for one export identifier. Kickoff,
// StatusCompleteAt, and ExportComplete are singleton fields: a second
// write poisons the run instead of overwriting.
type Run struct {
	ExportID         string
	Kickoff          *KickoffEvent
	StatusCompleteAt *time.Time
	ExportComplete   *ExportCompleteEvent
	Downloads        map[string]*Download

	// ParseError, once set, is never cleared. A poisoned run ignores
	// all further events but continues to exist so it can be reported.
	ParseError string
}

func (r *Run) poison(reason string) {
	if r.ParseError == "" {
		r.ParseError = reason
	}
}

// Builder folds classified events into Run aggregates keyed by export
// identifier. Runs are created lazily on first sight of an identifier
// and never destroyed.
type Builder struct {
	runs  map[string]*Run
	order []string
}

func NewBuilder() *Builder {
	return &Builder{runs: make(map[string]*Run)}
}

// Apply folds one event into its run, creating the run if needed.
func (b *Builder) Apply(ev event.Event) {
	run := b.runs[ev.ExportID]
	if run == nil {
		run = &Run{
			ExportID:  ev.ExportID,
			Downloads: make(map[string]*Download),
		}
		b.runs[ev.ExportID] = run
		b.order = append(b.order, ev.ExportID)
	}
	if run.ParseError != "" {
		return
	}

	switch ev.ID {
	case event.Kickoff:
		if run.Kickoff != nil {
			run.poison("Two kickoff events")
			return
		}
		detail, err := ev.KickoffDetail()
		if err != nil {
			run.poison(err.Error())
			return
		}
		run.Kickoff = &KickoffEvent{At: ev.Timestamp, Detail: detail}

	case event.StatusComplete:
		if run.StatusCompleteAt != nil {
			run.poison("Two status_complete events")
			return
		}
		at := ev.Timestamp
		run.StatusCompleteAt = &at

	case event.DownloadRequest:
		detail, err := ev.DownloadRequestDetail()
		if err != nil {
			run.poison(err.Error())
			return
		}
		// Last request for a URL wins; an earlier entry is replaced
		// silently rather than treated as a duplicate.
		run.Downloads[detail.FileURL] = &Download{URL: detail.FileURL, Request: detail}

	case event.DownloadComplete:
		run.applyDownloadResult(ev, true)

	case event.DownloadError:
		run.applyDownloadResult(ev, false)

	case event.ExportComplete:
		if run.ExportComplete != nil {
			run.poison("Two export_complete events")
			return
		}
		detail, err := ev.ExportCompleteDetail()
		if err != nil {
			run.poison(err.Error())
			return
		}
		run.ExportComplete = &ExportCompleteEvent{At: ev.Timestamp, Detail: detail}

	case event.ManifestComplete, event.StatusError, event.StatusPageComplete, event.StatusProgress:
		// Deliberately ignored.

	default:
		run.poison(fmt.Sprintf("Unknown event ID %s", ev.ID))
	}
}

func (r *Run) applyDownloadResult(ev event.Event, complete bool) {
	detail, err := ev.DownloadResultDetail()
	if err != nil {
		r.poison(err.Error())
		return
	}
	download, ok := r.Downloads[detail.FileURL]
	if !ok {
		r.poison("Missing download request")
		return
	}
	if complete {
		if download.Complete != nil {
			r.poison("Two complete events")
			return
		}
		download.Complete = &detail
	} else {
		if download.Error != nil {
			r.poison("Two error events")
			return
		}
		download.Error = &detail
	}
}

// Runs returns every run in first-seen order.
func (b *Builder) Runs() []*Run {
	out := make([]*Run, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.runs[id])
	}
	return out
}
