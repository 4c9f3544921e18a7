package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testPatterns = []string{"log*.ndjson", "log*.ndjson.gz"}

// completeRunLines produces the event log of one full export run that
// starts at 00:00:00 and completes at 00:00:10 with 100 resources.
func completeRunLines(exportID, group, types string) []string {
	params := "{}"
	if types != "" {
		params = fmt.Sprintf(`{"_type":%q}`, types)
	}
	exportURL := "https://host/fhir/$export"
	if group != "" {
		exportURL = fmt.Sprintf("https://host/fhir/Group/%s/$export", group)
	}
	line := func(eventID, ts, detail string) string {
		return fmt.Sprintf(`{"exportId":%q,"eventId":%q,"timestamp":%q,"eventDetail":%s}`,
			exportID, eventID, ts, detail)
	}
	return []string{
		line("kickoff", "2024-01-01T00:00:00Z",
			fmt.Sprintf(`{"exportUrl":%q,"requestParameters":%s}`, exportURL, params)),
		line("status_progress", "2024-01-01T00:00:01Z", `{}`),
		line("status_complete", "2024-01-01T00:00:02Z", `{}`),
		line("download_request", "2024-01-01T00:00:03Z",
			`{"fileUrl":"https://host/f1","resourceType":"Patient","itemType":"output"}`),
		line("download_complete", "2024-01-01T00:00:05Z",
			`{"fileUrl":"https://host/f1","resourceCount":40}`),
		line("manifest_complete", "2024-01-01T00:00:06Z", `{}`),
		line("export_complete", "2024-01-01T00:00:10Z", `{"resources":100,"bytes":1048576}`),
	}
}

func writeLog(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestPipeline_MergesIdenticalRuns(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	lines = append(lines, completeRunLines("run-1", "G", "Observation,Patient")...)
	lines = append(lines, completeRunLines("run-2", "G", "Patient,Observation")...)
	writeLog(t, dir, "log.ndjson", lines)

	p := New(Config{Patterns: testPatterns, Merge: true})
	result, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.RunsParsed != 2 {
		t.Errorf("RunsParsed = %d, want 2", result.RunsParsed)
	}
	if len(result.Stats) != 1 {
		t.Fatalf("Stats has %d entries, want 1 merged entry", len(result.Stats))
	}
	merged := result.Stats[0]
	if merged.RunCount != 2 {
		t.Errorf("RunCount = %d, want 2", merged.RunCount)
	}
	if merged.ResourceCount != 200 {
		t.Errorf("ResourceCount = %d, want 200", merged.ResourceCount)
	}
	if merged.DurationMS != 20000 {
		t.Errorf("DurationMS = %v, want 20000", merged.DurationMS)
	}
	if merged.Start != nil {
		t.Error("merged stats must not keep a start time")
	}
	if result.ShowGroup {
		t.Error("ShowGroup = true for a single group")
	}
}

func TestPipeline_NoMergeKeepsRunsSorted(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	lines = append(lines, completeRunLines("run-1", "G", "Patient")...)
	lines = append(lines, completeRunLines("run-2", "G", "")...)
	writeLog(t, dir, "log.ndjson", lines)

	p := New(Config{Patterns: testPatterns, Merge: false})
	result, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Stats) != 2 {
		t.Fatalf("Stats has %d entries, want 2", len(result.Stats))
	}
	// Empty _type sorts first.
	if result.Stats[0].Params["_type"] != "" || result.Stats[1].Params["_type"] != "Patient" {
		t.Errorf("order = [%q %q], want empty _type first",
			result.Stats[0].Params["_type"], result.Stats[1].Params["_type"])
	}
}

func TestPipeline_PoisonedAndIncompleteRunsAreSkipped(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	lines = append(lines, completeRunLines("good", "G", "Patient")...)
	// Poisoned: duplicate kickoff.
	poisoned := completeRunLines("dup", "G", "Patient")
	poisoned = append(poisoned, poisoned[0])
	lines = append(lines, poisoned...)
	// Incomplete: kickoff only (a run that never finished).
	lines = append(lines, completeRunLines("partial", "G", "Patient")[0])
	writeLog(t, dir, "log.ndjson", lines)

	p := New(Config{Patterns: testPatterns, Merge: true})
	result, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.RunsParsed != 3 {
		t.Errorf("RunsParsed = %d, want 3", result.RunsParsed)
	}
	if result.RunsSkipped != 2 {
		t.Errorf("RunsSkipped = %d, want 2", result.RunsSkipped)
	}
	if len(result.Stats) != 1 {
		t.Errorf("Stats has %d entries, want 1", len(result.Stats))
	}
}

func TestPipeline_OnlyErrors(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	lines = append(lines, completeRunLines("clean", "G", "Patient")...)

	withError := completeRunLines("dirty", "G", "Patient")
	extra := []string{
		`{"exportId":"dirty","eventId":"download_request","timestamp":"2024-01-01T00:00:04Z","eventDetail":{"fileUrl":"https://host/e1","resourceType":"OperationOutcome","itemType":"error"}}`,
		`{"exportId":"dirty","eventId":"download_complete","timestamp":"2024-01-01T00:00:06Z","eventDetail":{"fileUrl":"https://host/e1","resourceCount":5}}`,
	}
	// Splice the error download in before export_complete.
	withError = append(withError[:len(withError)-1], append(extra, withError[len(withError)-1])...)
	lines = append(lines, withError...)
	writeLog(t, dir, "log.ndjson", lines)

	p := New(Config{Patterns: testPatterns, Merge: true, OnlyErrors: true})
	result, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Stats) != 1 {
		t.Fatalf("Stats has %d entries, want only the error run", len(result.Stats))
	}
	if result.Stats[0].ErrorCount != 5 {
		t.Errorf("ErrorCount = %d, want 5", result.Stats[0].ErrorCount)
	}
}

func TestPipeline_MultipleGroupsEnableGroupDisplay(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	lines = append(lines, completeRunLines("run-1", "alpha", "")...)
	lines = append(lines, completeRunLines("run-2", "beta", "")...)
	writeLog(t, dir, "log.ndjson", lines)

	p := New(Config{Patterns: testPatterns, Merge: true})
	result, err := p.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.ShowGroup {
		t.Error("ShowGroup = false, want true for two groups")
	}
}

func TestPipeline_StructuralErrorAborts(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "log.ndjson", []string{
		`{"eventId":"kickoff","timestamp":"2024-01-01T00:00:00Z","eventDetail":{}}`,
	})

	p := New(Config{Patterns: testPatterns, Merge: true})
	if _, err := p.Run(context.Background(), dir); err == nil {
		t.Fatal("Run() expected error for record missing exportId")
	}
}

func TestPipeline_EmptyDirectoryIsFatal(t *testing.T) {
	p := New(Config{Patterns: testPatterns, Merge: true})
	if _, err := p.Run(context.Background(), t.TempDir()); err == nil {
		t.Fatal("Run() expected error for directory without logs")
	}
}
