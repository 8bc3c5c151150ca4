package warehouse

import (
	"encoding/json"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FieldType is the closed logical type set the warehouse understands.
type FieldType string

const (
	FieldString    FieldType = "STRING"
	FieldInteger   FieldType = "INTEGER"
	FieldFloat     FieldType = "FLOAT"
	FieldBoolean   FieldType = "BOOLEAN"
	FieldTimestamp FieldType = "TIMESTAMP"
)

type SchemaField struct {
	Name string
	Type FieldType
}

// TableSchema is an ordered field list; order fixes the column order of the
// staging load and the MERGE column lists.
type TableSchema []SchemaField

func (s TableSchema) Columns() []string {
	cols := make([]string, 0, len(s))
	for _, f := range s {
		cols = append(cols, f.Name)
	}
	return cols
}

// Downgrade reports an explicit date/numeric override that fell back to
// STRING because the batch's values would not coerce. Non-fatal; logged by
// the caller.
type Downgrade struct {
	Field  string
	From   FieldType
	Reason string
}

var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp coerces a raw value to a UTC timestamp.
func ParseTimestamp(value interface{}) (time.Time, bool) {
	if ts, ok := value.(time.Time); ok {
		return ts.UTC(), true
	}
	s, ok := asString(value)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// InferSchema derives the field→type mapping for one batch. Resolution order
// per field, highest priority first:
//
//  1. explicit string override → STRING
//  2. explicit date override → TIMESTAMP, or STRING with a downgrade when
//     the batch's values do not parse
//  3. explicit numeric override → INTEGER when every present value is an
//     exact integer, FLOAT when numeric, STRING with a downgrade otherwise
//  4. sniff the native value types of the remaining fields
//
// The ordering is load-bearing: raw values frequently look numeric
// (zero-padded codes) and must not be coerced when an override exists.
func InferSchema(batch []map[string]interface{}, table EntityTable) (TableSchema, []Downgrade) {
	fields := fieldOrder(batch)

	var schema TableSchema
	var downgrades []Downgrade
	for _, name := range fields {
		values := presentValues(batch, name)

		var ft FieldType
		switch {
		case table.StringColumns[name]:
			ft = FieldString
		case table.IsDateColumn(name):
			if allParseAsTimestamp(values) {
				ft = FieldTimestamp
			} else {
				ft = FieldString
				downgrades = append(downgrades, Downgrade{Field: name, From: FieldTimestamp, Reason: "values do not parse as timestamps"})
			}
		case table.IsNumericColumn(name):
			switch numericShape(values) {
			case FieldInteger:
				ft = FieldInteger
			case FieldFloat:
				ft = FieldFloat
			default:
				ft = FieldString
				downgrades = append(downgrades, Downgrade{Field: name, From: FieldFloat, Reason: "values do not coerce to numbers"})
			}
		default:
			ft = sniffType(values)
		}
		schema = append(schema, SchemaField{Name: name, Type: ft})
	}
	return schema, downgrades
}

// fieldOrder returns the union of field names across the batch in
// first-seen order, so schema and column order stay deterministic for a
// given input order.
func fieldOrder(batch []map[string]interface{}) []string {
	var order []string
	seen := map[string]bool{}
	for _, rec := range batch {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			order = append(order, k)
		}
	}
	return order
}

func presentValues(batch []map[string]interface{}, name string) []interface{} {
	var values []interface{}
	for _, rec := range batch {
		if v, ok := rec[name]; ok && v != nil {
			values = append(values, v)
		}
	}
	return values
}

func allParseAsTimestamp(values []interface{}) bool {
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if s, ok := asString(v); ok && s == "" {
			continue
		}
		if _, ok := ParseTimestamp(v); !ok {
			return false
		}
	}
	return true
}

// numericShape reports INTEGER when every present value is an exact
// integer, FLOAT when every value is numeric, and "" otherwise.
func numericShape(values []interface{}) FieldType {
	if len(values) == 0 {
		return FieldFloat
	}
	integral := true
	for _, v := range values {
		d, ok := asDecimal(v)
		if !ok {
			return ""
		}
		if !d.IsInteger() {
			integral = false
		}
	}
	if integral {
		return FieldInteger
	}
	return FieldFloat
}

func sniffType(values []interface{}) FieldType {
	if len(values) == 0 {
		return FieldString
	}

	allBool := true
	allInt := true
	allNumeric := true
	allTimestamp := true
	for _, v := range values {
		switch val := v.(type) {
		case bool:
			allTimestamp = false
			allInt = false
			allNumeric = false
		case json.Number:
			allBool = false
			allTimestamp = false
			if d, err := decimal.NewFromString(val.String()); err != nil || !d.IsInteger() {
				allInt = false
			}
		case float64:
			allBool = false
			allTimestamp = false
			if val != float64(int64(val)) {
				allInt = false
			}
		case string:
			allBool = false
			allInt = false
			allNumeric = false
			if !timestampPattern.MatchString(val) {
				allTimestamp = false
			}
		default:
			return FieldString
		}
	}

	switch {
	case allBool:
		return FieldBoolean
	case allNumeric && allInt:
		return FieldInteger
	case allNumeric:
		return FieldFloat
	case allTimestamp:
		return FieldTimestamp
	}
	return FieldString
}

func asString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	}
	return "", false
}

func asDecimal(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d, true
		}
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case string:
		if d, err := decimal.NewFromString(val); err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}
