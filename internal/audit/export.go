package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatCSV exports records as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatJSON exports records as a JSON array.
	ExportFormatJSON ExportFormat = "json"
)

// ExportOptions configures audit log export parameters.
type ExportOptions struct {
	Format  ExportFormat // Export format (csv or json)
	From    time.Time    // Start of time range (inclusive)
	To      time.Time    // End of time range (inclusive)
	ActorID string       // Filter by actor (optional)
	Limit   int          // Maximum number of entries to export (0 = no limit)
}

// ExportRecords exports audit records matching the given options.
// Returns the exported data as bytes in the specified format.
func ExportRecords(repo Repository, opts ExportOptions) ([]byte, error) {
	if opts.Format != ExportFormatCSV && opts.Format != ExportFormatJSON {
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}

	var records []*Record
	var err error
	if opts.ActorID != "" {
		records, err = repo.QueryByActor(opts.ActorID, 0)
	} else {
		records, err = repo.ListAll()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	if !opts.From.IsZero() || !opts.To.IsZero() {
		records = filterByTimeRange(records, opts.From, opts.To)
	}

	// Limit applies after time filtering so the count comes out right.
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}

	switch opts.Format {
	case ExportFormatCSV:
		return exportToCSV(records)
	default:
		return exportToJSON(records)
	}
}

func filterByTimeRange(records []*Record, from, to time.Time) []*Record {
	var filtered []*Record
	for _, rec := range records {
		if !from.IsZero() && rec.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && rec.CreatedAt.After(to) {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered
}

func exportToCSV(records []*Record) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	header := []string{
		"ID",
		"Timestamp (UTC)",
		"Actor ID",
		"Entity Type",
		"Entity ID",
		"Action",
		"Outcome",
		"Request ID",
		"IP Address",
		"User Agent",
		"Previous Hash",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.CreatedAt.Format(time.RFC3339),
			rec.ActorID,
			rec.EntityType,
			rec.EntityID,
			rec.Action,
			rec.Outcome,
			rec.RequestID,
			rec.IPAddress,
			rec.UserAgent,
			rec.PreviousHash,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func exportToJSON(records []*Record) ([]byte, error) {
	type exportRecord struct {
		ID           string `json:"id"`
		Timestamp    string `json:"timestamp"` // ISO 8601 format
		ActorID      string `json:"actor_id"`
		EntityType   string `json:"entity_type"`
		EntityID     string `json:"entity_id"`
		Action       string `json:"action"`
		Outcome      string `json:"outcome"`
		RequestID    string `json:"request_id,omitempty"`
		IPAddress    string `json:"ip_address,omitempty"`
		UserAgent    string `json:"user_agent,omitempty"`
		PreviousHash string `json:"previous_hash,omitempty"`
	}

	out := make([]exportRecord, len(records))
	for i, rec := range records {
		out[i] = exportRecord{
			ID:           rec.ID,
			Timestamp:    rec.CreatedAt.Format(time.RFC3339),
			ActorID:      rec.ActorID,
			EntityType:   rec.EntityType,
			EntityID:     rec.EntityID,
			Action:       rec.Action,
			Outcome:      rec.Outcome,
			RequestID:    rec.RequestID,
			IPAddress:    rec.IPAddress,
			UserAgent:    rec.UserAgent,
			PreviousHash: rec.PreviousHash,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return data, nil
}
