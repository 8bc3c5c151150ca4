package vmpaysync

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one entity instance as returned by the API, flattened so that
// nested field paths like client.name become client_name. Records are
// transient; nothing retains them past the batch that fetched them.
type Record = map[string]interface{}

// FlattenRecord collapses nested objects into a single level, joining path
// segments with underscores. Lists are kept as-is; the upsert path decides
// how to land them. Dots inside raw keys are replaced as well so that every
// column name is already warehouse-safe.
func FlattenRecord(raw map[string]interface{}) Record {
	out := make(Record, len(raw))
	flattenInto(out, "", raw)
	return out
}

func flattenInto(out Record, prefix string, raw map[string]interface{}) {
	for key, value := range raw {
		name := SanitizeFieldName(key)
		if prefix != "" {
			name = prefix + "_" + name
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flattenInto(out, name, nested)
			continue
		}
		out[name] = value
	}
}

// SanitizeFieldName replaces path separators so the name is valid as a
// single-level column.
func SanitizeFieldName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// RenameField moves a field to a new name on every record that carries it.
// The daily sync uses this to turn the API's generic id into transaction_id
// before the cashless batch reaches the warehouse.
func RenameField(records []Record, from, to string) {
	for _, rec := range records {
		if v, ok := rec[from]; ok {
			delete(rec, from)
			rec[to] = v
		}
	}
}

// Window is a half-open UTC interval [Start, End), the unit of both the
// daily sync and backfill chunking.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) StartParam() string {
	return w.Start.UTC().Format(time.RFC3339)
}

func (w Window) EndParam() string {
	return w.End.UTC().Format(time.RFC3339)
}

func (w Window) String() string {
	return fmt.Sprintf("%s_to_%s", w.Start.UTC().Format("2006-01-02"), w.End.UTC().Format("2006-01-02"))
}

// DayWindow returns [day 00:00, day+1 00:00) in UTC.
func DayWindow(day time.Time) Window {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

func decodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, FlattenRecord(r))
	}
	return records, nil
}
