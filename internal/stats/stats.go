// Package stats derives comparable performance summaries from
// reconstructed export runs and merges repeated runs with identical
// parameters.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/averis/bulklog/internal/runlog"
)

// RunStats is a disposable snapshot derived from one eligible run.
// Start becomes nil once the stats are merged with another run.
type RunStats struct {
	Group         string
	Start         *time.Time
	Params        map[string]string
	ResourceCount int64
	ByteCount     int64
	DurationMS    float64
	PatientCount  int64
	ErrorCount    int64
	RunCount      int
}

// Collate derives stats from a run. ok is false when the run is
// ineligible: poisoned, or missing any of its three defining events.
// Ineligibility is a normal filtering outcome, not an error.
func Collate(run *runlog.Run) (s *RunStats, ok bool) {
	if run.ParseError != "" {
		return nil, false
	}
	if run.Kickoff == nil {
		// A resumed run; the logs carry no recoverable history for it.
		return nil, false
	}
	if run.StatusCompleteAt == nil {
		// Stopped before it finished on the server side.
		return nil, false
	}
	if run.ExportComplete == nil {
		// Never finished downloading, possibly a fatal client error.
		return nil, false
	}

	kickoff := run.Kickoff.Detail
	totals := run.ExportComplete.Detail

	start := run.Kickoff.At
	s = &RunStats{
		Group:         groupFromURL(kickoff.ExportURL),
		Start:         &start,
		Params:        make(map[string]string, len(kickoff.RequestParameters)),
		ResourceCount: totals.Resources,
		ByteCount:     totals.Bytes,
		RunCount:      1,
	}
	for k, v := range kickoff.RequestParameters {
		s.Params[k] = v
	}

	// The duration reported by the protocol covers only the latest
	// resumed session and undercounts interrupted runs; wall-clock
	// delta from first kickoff to final completion never undercounts.
	s.DurationMS = float64(run.ExportComplete.At.Sub(start)) / float64(time.Millisecond)

	types := s.Params["_type"]
	if types != "" {
		s.Params["_type"] = CanonicalTypes(types)
	}
	if types == "" || (types != "Patient" && strings.Contains(types, "Patient")) {
		// Patient is either implicit or one of several requested
		// types; when it is the sole type the per-patient stat would
		// just repeat the per-resource stat.
		s.PatientCount = countPatients(run)
	}

	for _, d := range run.Downloads {
		if d.Request.ItemType == "error" && d.Complete != nil {
			s.ErrorCount += d.Complete.ResourceCount
		}
	}

	return s, true
}

func countPatients(run *runlog.Run) int64 {
	var count int64
	for _, d := range run.Downloads {
		if d.Request.ResourceType == "Patient" && d.Complete != nil {
			count += d.Complete.ResourceCount
		}
	}
	return count
}

// groupFromURL extracts the path segment following /Group/ from an
// export URL, with the $export suffix and surrounding slashes stripped.
// Returns "" for system-wide exports with no group segment.
func groupFromURL(exportURL string) string {
	base := exportURL
	if i := strings.Index(base, "$export"); i >= 0 {
		base = base[:i]
	}
	const marker = "/Group/"
	i := strings.LastIndex(base, marker)
	if i < 0 {
		return ""
	}
	return strings.Trim(base[i+len(marker):], "/")
}

// CanonicalTypes rewrites a comma-separated _type value with its
// members sorted, so equivalent requests compare equal regardless of
// the original ordering. Idempotent.
func CanonicalTypes(types string) string {
	members := strings.Split(types, ",")
	sort.Strings(members)
	return strings.Join(members, ",")
}

// mergeKey is the composite identity runs are merged under. A struct
// key keeps differently-shaped parameter maps distinct even if a
// serialized form were to coincide with the group.
type mergeKey struct {
	group  string
	params string
}

func paramKey(params map[string]string) string {
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

// Merge combines runs sharing (group, canonical params) into one
// accumulated RunStats with summed totals and an incremented RunCount.
// Error-bearing runs are singular failures worth inspecting on their
// own; they pass through unmerged. Emission order is first-seen order.
func Merge(all []*RunStats) []*RunStats {
	index := make(map[mergeKey]*RunStats)
	out := make([]*RunStats, 0, len(all))

	for _, s := range all {
		if s.ErrorCount != 0 {
			out = append(out, s)
			continue
		}
		key := mergeKey{group: s.Group, params: paramKey(s.Params)}
		acc, seen := index[key]
		if !seen {
			index[key] = s
			out = append(out, s)
			continue
		}
		// An averaged group has no single start time.
		acc.Start = nil
		acc.ResourceCount += s.ResourceCount
		acc.ByteCount += s.ByteCount
		acc.DurationMS += s.DurationMS
		acc.PatientCount += s.PatientCount
		acc.RunCount++
	}

	return out
}

// SortByType orders stats by their canonical _type string, empty first,
// so similarly-configured exports sit together. The sort is stable:
// ties keep their merge emission order.
func SortByType(all []*RunStats) {
	sort.SliceStable(all, func(i, j int) bool {
		return CanonicalTypes(all[i].Params["_type"]) < CanonicalTypes(all[j].Params["_type"])
	})
}
