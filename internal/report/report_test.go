package report

import (
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/averis/bulklog/internal/stats"
)

func init() {
	// Plain output regardless of the test environment's terminal.
	color.NoColor = true
}

func TestPrettyFloat(t *testing.T) {
	tests := []struct {
		num  float64
		want string
	}{
		{49, "49"},
		{1.5, "1.5"},
		{5.0, "5"},
		{0.04, "0"},
		{59.96, "60"},
	}

	for _, tt := range tests {
		if got := prettyFloat(tt.num, 1); got != tt.want {
			t.Errorf("prettyFloat(%v, 1) = %q, want %q", tt.num, got, tt.want)
		}
	}
}

func TestHumanTimeOffset(t *testing.T) {
	tests := []struct {
		milliseconds float64
		want         string
	}{
		{0, "0ms"},
		{499.5, "499.5ms"},
		{999, "999ms"},
		{1000, "1s"},
		{49000, "49s"},
		{90000, "1.5m"},
		{3599000, "60m"},
		{18000000, "5h"},
	}

	for _, tt := range tests {
		if got := HumanTimeOffset(tt.milliseconds); got != tt.want {
			t.Errorf("HumanTimeOffset(%v) = %q, want %q", tt.milliseconds, got, tt.want)
		}
	}
}

func renderToString(s *stats.RunStats, showGroup bool) string {
	var sb strings.Builder
	Render(&sb, s, showGroup)
	return sb.String()
}

func TestRender_SingleRun(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &stats.RunStats{
		Group:         "MyGroup",
		Start:         &start,
		Params:        map[string]string{"_type": "Observation,Patient"},
		ResourceCount: 100,
		ByteCount:     1048576,
		DurationMS:    10000,
		PatientCount:  40,
		RunCount:      1,
	}

	out := renderToString(s, true)

	for _, want := range []string{
		"Group:",
		"MyGroup",
		"_type: Observation,Patient",
		"01/01/2024 00:00:00",
		"Count:",
		"100 (1MB)",
		"Time/Patient:",
		"(40 patients)",
		"Time/Resource:",
		"Time/Megabyte:",
		"Total Time:",
		"10s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Errors:") {
		t.Errorf("error-free run must not show an error row:\n%s", out)
	}
}

func TestRender_MergedRunsShowAverages(t *testing.T) {
	s := &stats.RunStats{
		Params:        map[string]string{},
		ResourceCount: 200,
		ByteCount:     4194304,
		DurationMS:    20000,
		RunCount:      2,
	}

	out := renderToString(s, false)

	for _, want := range []string{
		"2 runs, averaged",
		"100 (2MB)",
		"Params:",
		"None",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Group:") {
		t.Errorf("group row rendered despite showGroup=false:\n%s", out)
	}
}

func TestRender_ErrorsRow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &stats.RunStats{
		Start:         &start,
		Params:        map[string]string{},
		ResourceCount: 10,
		ByteCount:     1048576,
		DurationMS:    1000,
		ErrorCount:    7,
		RunCount:      1,
	}

	out := renderToString(s, false)
	if !strings.Contains(out, "Errors:") || !strings.Contains(out, "7") {
		t.Errorf("output missing error row:\n%s", out)
	}
}
