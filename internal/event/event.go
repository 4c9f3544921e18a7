// Package event classifies raw bulk-export log records into typed events.
//
// One NDJSON record becomes one Event. Classification only enforces the
// record envelope (exportId, eventId, timestamp); the per-kind detail is
// decoded lazily by whoever consumes the event.
package event

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// ID identifies the kind of one export log event.
type ID string

const (
	Kickoff            ID = "kickoff"
	StatusComplete     ID = "status_complete"
	StatusProgress     ID = "status_progress"
	StatusError        ID = "status_error"
	StatusPageComplete ID = "status_page_complete"
	DownloadRequest    ID = "download_request"
	DownloadComplete   ID = "download_complete"
	DownloadError      ID = "download_error"
	ManifestComplete   ID = "manifest_complete"
	ExportComplete     ID = "export_complete"
)

// Event is the classified view of one log record. Immutable once built.
type Event struct {
	ExportID  string
	ID        ID
	Timestamp time.Time
	detail    json.RawMessage
}

// record mirrors the wire shape of one log line.
type record struct {
	ExportID    string          `json:"exportId"`
	EventID     string          `json:"eventId"`
	Timestamp   string          `json:"timestamp"`
	EventDetail json.RawMessage `json:"eventDetail"`
}

// Classify decodes one log line into an Event. A missing exportId,
// eventId, or timestamp is a structural failure of the input, not a
// recoverable parse error.
func Classify(line []byte) (Event, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Event{}, fmt.Errorf("invalid log record: %w", err)
	}
	if rec.ExportID == "" {
		return Event{}, fmt.Errorf("log record missing exportId")
	}
	if rec.EventID == "" {
		return Event{}, fmt.Errorf("log record missing eventId")
	}
	ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("log record has invalid timestamp %q: %w", rec.Timestamp, err)
	}
	return Event{
		ExportID:  rec.ExportID,
		ID:        ID(rec.EventID),
		Timestamp: ts,
		detail:    rec.EventDetail,
	}, nil
}

// KickoffDetail carries the export URL and request parameters from a
// kickoff event.
type KickoffDetail struct {
	ExportURL         string            `json:"exportUrl"`
	RequestParameters map[string]string `json:"requestParameters"`
}

// DownloadRequestDetail describes one requested file transfer.
type DownloadRequestDetail struct {
	FileURL      string `json:"fileUrl"`
	ResourceType string `json:"resourceType"`
	ItemType     string `json:"itemType"`
}

// DownloadResultDetail is shared by download_complete and download_error.
type DownloadResultDetail struct {
	FileURL       string `json:"fileUrl"`
	ResourceCount int64  `json:"resourceCount"`
}

// ExportCompleteDetail carries the run totals.
type ExportCompleteDetail struct {
	Resources int64 `json:"resources"`
	Bytes     int64 `json:"bytes"`
}

func decodeDetail[T any](e Event) (T, error) {
	var d T
	if len(e.detail) == 0 {
		return d, fmt.Errorf("%s event has no eventDetail", e.ID)
	}
	if err := json.Unmarshal(e.detail, &d); err != nil {
		return d, fmt.Errorf("decoding %s eventDetail: %w", e.ID, err)
	}
	return d, nil
}

// KickoffDetail decodes the event's detail as a kickoff payload.
func (e Event) KickoffDetail() (KickoffDetail, error) {
	return decodeDetail[KickoffDetail](e)
}

// DownloadRequestDetail decodes the event's detail as a download request.
func (e Event) DownloadRequestDetail() (DownloadRequestDetail, error) {
	return decodeDetail[DownloadRequestDetail](e)
}

// DownloadResultDetail decodes the event's detail as a download result.
func (e Event) DownloadResultDetail() (DownloadResultDetail, error) {
	return decodeDetail[DownloadResultDetail](e)
}

// ExportCompleteDetail decodes the event's detail as the run totals.
func (e Event) ExportCompleteDetail() (ExportCompleteDetail, error) {
	return decodeDetail[ExportCompleteDetail](e)
}
