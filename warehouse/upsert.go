package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// MissingIdColumnError aborts an upsert before any table is created or
// loaded: a batch whose sanitized columns lack the MERGE key cannot be
// landed at all.
type MissingIdColumnError struct {
	Table    string
	IdColumn string
}

func (e *MissingIdColumnError) Error() string {
	return fmt.Sprintf("id column %q not found in batch for table %q after sanitizing", e.IdColumn, e.Table)
}

// MergeError wraps a failed MERGE; staging cleanup has still been attempted
// by the time the caller sees it.
type MergeError struct {
	Table string
	Err   error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge into %q: %v", e.Table, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

type UpsertResult struct {
	Table        string
	Rows         int
	AffectedRows int64
	Downgrades   []Downgrade
}

// Engine lands a batch in the warehouse with at-most-one-row-per-id
// semantics: coerce, stage into temp_{entity} under an inferred schema,
// MERGE into {entity} on the id column, drop the staging table.
//
// One Engine per process; calls are sequential. Staging tables are fully
// truncated per call, so there is no cross-call contention.
type Engine struct {
	Client  Client
	Dataset string
	Log     *logrus.Logger
}

func NewEngine(client Client, dataset string, log *logrus.Logger) *Engine {
	return &Engine{Client: client, Dataset: dataset, Log: log}
}

// Upsert runs the staging-then-merge protocol for one entity batch.
// Each step is a precondition for the next; the staging table is deleted
// whether or not the MERGE succeeds.
func (e *Engine) Upsert(ctx context.Context, kind EntityKind, batch []map[string]interface{}) (UpsertResult, error) {
	table := kind.Table()
	result := UpsertResult{Table: table.Name, Rows: len(batch)}
	if len(batch) == 0 {
		return result, nil
	}

	rows := e.coerceBatch(batch, table)

	if !columnPresent(rows, table.IDColumn) {
		return result, &MissingIdColumnError{Table: table.Name, IdColumn: table.IDColumn}
	}

	schema, downgrades := InferSchema(rows, table)
	result.Downgrades = downgrades
	for _, d := range downgrades {
		e.Log.WithFields(logrus.Fields{
			"table":  table.Name,
			"column": d.Field,
			"from":   string(d.From),
			"reason": d.Reason,
		}).Warn("schema downgrade to STRING")
	}

	exists, err := e.Client.TableExists(ctx, table.Name)
	if err != nil {
		return result, fmt.Errorf("check table %s: %w", table.Name, err)
	}
	if !exists {
		// Created once with the batch's schema; never altered afterwards.
		// Schema drift across runs is a known limitation.
		if err := e.Client.CreateTable(ctx, table.Name, schema); err != nil {
			return result, fmt.Errorf("create table %s: %w", table.Name, err)
		}
		e.Log.WithFields(logrus.Fields{"table": table.Name, "columns": len(schema)}).Info("created final table")
	}

	staging := "temp_" + table.Name
	if err := e.Client.LoadTruncate(ctx, staging, schema, rows); err != nil {
		return result, fmt.Errorf("load staging table %s: %w", staging, err)
	}

	affected, mergeErr := e.Client.Merge(ctx, BuildMergeSQL(e.Dataset, table.Name, staging, table.IDColumn, schema.Columns()))

	// Cleanup runs regardless of merge outcome; stale staging tables must
	// not accumulate across runs.
	if err := e.Client.DeleteTable(ctx, staging); err != nil {
		e.Log.WithFields(logrus.Fields{"table": staging}).WithError(err).Warn("failed to delete staging table")
	}

	if mergeErr != nil {
		return result, &MergeError{Table: table.Name, Err: mergeErr}
	}
	result.AffectedRows = affected

	e.Log.WithFields(logrus.Fields{
		"table":         table.Name,
		"rows":          result.Rows,
		"affected_rows": affected,
	}).Info("merged batch")
	return result, nil
}

// coerceBatch applies the per-column landing rules to every record:
// sanitized names, explicit strings never null (missing becomes ""),
// explicit dates become timestamps or null, explicit numerics become
// numbers or null, tag lists become one delimited string.
func (e *Engine) coerceBatch(batch []map[string]interface{}, table EntityTable) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(batch))
	for _, rec := range batch {
		row := make(map[string]interface{}, len(rec))
		for name, value := range rec {
			row[sanitizeColumn(name)] = value
		}
		rows = append(rows, row)
	}

	// String coercion applies to configured columns the batch actually
	// carries; a column absent from the whole batch is not invented.
	present := map[string]bool{}
	for _, row := range rows {
		for name := range row {
			present[name] = true
		}
	}

	for _, row := range rows {
		for name := range table.StringColumns {
			if !present[name] {
				continue
			}
			if table.IsTagColumn(name) {
				row[name] = joinTags(row[name])
				continue
			}
			row[name] = stringify(row[name])
		}
		for _, name := range table.DateColumns {
			value, ok := row[name]
			if !ok {
				continue
			}
			if ts, parsed := ParseTimestamp(value); parsed {
				row[name] = ts
			} else {
				// Invalid dates land as NULL rather than failing the batch.
				row[name] = nil
			}
		}
		for _, name := range table.NumericColumns {
			value, ok := row[name]
			if !ok || value == nil {
				continue
			}
			if d, parsed := asDecimal(value); parsed {
				if d.IsInteger() {
					row[name] = d.IntPart()
				} else {
					f, _ := d.Float64()
					row[name] = f
				}
			} else {
				row[name] = nil
			}
		}
	}
	return rows
}

func sanitizeColumn(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// stringify forces an explicit string column to a non-null string. Absent
// and null values become ""; identifier and code fields never reach the
// warehouse as NULL.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// joinTags normalizes a multi-valued tag-like field into one
// comma-delimited string.
func joinTags(value interface{}) string {
	list, ok := value.([]interface{})
	if !ok {
		return stringify(value)
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		parts = append(parts, stringify(item))
	}
	return strings.Join(parts, ",")
}

func columnPresent(rows []map[string]interface{}, column string) bool {
	for _, row := range rows {
		if _, ok := row[column]; ok {
			return true
		}
	}
	return false
}

// BuildMergeSQL renders the upsert statement: matched rows have every
// non-id column overwritten, unmatched rows are inserted whole. The clause
// shape is part of the warehouse contract.
func BuildMergeSQL(dataset, finalTable, stagingTable, idColumn string, columns []string) string {
	var setParts []string
	for _, col := range columns {
		if col == idColumn {
			continue
		}
		setParts = append(setParts, fmt.Sprintf("T.`%s` = S.`%s`", col, col))
	}

	insertCols := make([]string, 0, len(columns))
	insertVals := make([]string, 0, len(columns))
	for _, col := range columns {
		insertCols = append(insertCols, fmt.Sprintf("`%s`", col))
		insertVals = append(insertVals, fmt.Sprintf("S.`%s`", col))
	}

	return fmt.Sprintf(`
MERGE `+"`%s.%s`"+` T
USING `+"`%s.%s`"+` S
ON T.`+"`%s`"+` = S.`+"`%s`"+`
WHEN MATCHED THEN
  UPDATE SET
    %s
WHEN NOT MATCHED THEN
  INSERT (%s)
  VALUES (%s)
`,
		dataset, finalTable,
		dataset, stagingTable,
		idColumn, idColumn,
		strings.Join(setParts, ",\n    "),
		strings.Join(insertCols, ", "),
		strings.Join(insertVals, ", "),
	)
}
