package backfill

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
)

// EncodeCSV serializes flattened records as one tabular artifact. The
// header is the union of field names in first-seen order, so the column
// layout is stable for a stable input order.
func EncodeCSV(records []vmpaysync.Record) ([]byte, error) {
	columns := columnOrder(records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	row := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			row[i] = csvValue(rec[col])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCSV reads an artifact back into records. All values come back as
// strings; the explicit column overrides downstream re-coerce them.
func DecodeCSV(data []byte) ([]vmpaysync.Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read artifact csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]vmpaysync.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(vmpaysync.Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func columnOrder(records []vmpaysync.Record) []string {
	var order []string
	seen := map[string]bool{}
	for _, rec := range records {
		var fresh []string
		for name := range rec {
			if !seen[name] {
				fresh = append(fresh, name)
			}
		}
		sort.Strings(fresh)
		for _, name := range fresh {
			seen[name] = true
			order = append(order, name)
		}
	}
	return order
}

func csvValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
