package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// exportRecord is the fixed export shape shared by both formats.
type exportRecord struct {
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id"`
	EventType     string `json:"event_type"`
	Actor         string `json:"actor"`
	AssetID       string `json:"asset_id"`
	Severity      string `json:"severity"`
	Details       string `json:"details"`
}

func toRecord(e *core.AuditLogEntry) exportRecord {
	return exportRecord{
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		CorrelationID: e.CorrelationID,
		EventType:     string(e.Event),
		Actor:         e.Actor,
		AssetID:       e.AssetID,
		Severity:      string(e.Severity),
		Details:       e.Details,
	}
}

// ExportJSONL writes entries as line-delimited JSON.
func ExportJSONL(w io.Writer, entries []*core.AuditLogEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(toRecord(e)); err != nil {
			return fmt.Errorf("failed to encode audit entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// csvHeader is the column order of CSV exports.
var csvHeader = []string{"timestamp", "correlation_id", "event_type", "actor", "asset_id", "severity", "details"}

// ExportCSV writes entries as CSV with a header row.
func ExportCSV(w io.Writer, entries []*core.AuditLogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, e := range entries {
		rec := toRecord(e)
		row := []string{rec.Timestamp, rec.CorrelationID, rec.EventType, rec.Actor, rec.AssetID, rec.Severity, rec.Details}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write audit entry %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
