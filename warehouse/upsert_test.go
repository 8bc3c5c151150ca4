package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeWarehouse struct {
	exists     bool
	created    []string
	loaded     map[string][]map[string]interface{}
	mergeSQL   string
	mergeErr   error
	deleted    []string
	existsErr  error
	callOrder  []string
	affected   int64
	loadSchema TableSchema
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{loaded: map[string][]map[string]interface{}{}}
}

func (f *fakeWarehouse) TableExists(ctx context.Context, table string) (bool, error) {
	f.callOrder = append(f.callOrder, "exists:"+table)
	return f.exists, f.existsErr
}

func (f *fakeWarehouse) CreateTable(ctx context.Context, table string, schema TableSchema) error {
	f.callOrder = append(f.callOrder, "create:"+table)
	f.created = append(f.created, table)
	return nil
}

func (f *fakeWarehouse) LoadTruncate(ctx context.Context, table string, schema TableSchema, rows []map[string]interface{}) error {
	f.callOrder = append(f.callOrder, "load:"+table)
	f.loaded[table] = rows
	f.loadSchema = schema
	return nil
}

func (f *fakeWarehouse) Merge(ctx context.Context, sql string) (int64, error) {
	f.callOrder = append(f.callOrder, "merge")
	f.mergeSQL = sql
	return f.affected, f.mergeErr
}

func (f *fakeWarehouse) DeleteTable(ctx context.Context, table string) error {
	f.callOrder = append(f.callOrder, "delete:"+table)
	f.deleted = append(f.deleted, table)
	return nil
}

func (f *fakeWarehouse) Close() error { return nil }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestUpsertStagesMergesAndCleansUp(t *testing.T) {
	fake := newFakeWarehouse()
	fake.affected = 2
	engine := NewEngine(fake, "warehouse", testLogger())

	batch := []map[string]interface{}{
		{"transaction_id": json.Number("1"), "occurred_at": "2024-03-10T12:00:00Z", "value": "2.50"},
		{"transaction_id": json.Number("2"), "occurred_at": "2024-03-10T13:00:00Z", "value": "3.00"},
	}

	result, err := engine.Upsert(context.Background(), EntityCashless, batch)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if result.Rows != 2 || result.AffectedRows != 2 {
		t.Fatalf("result = %+v", result)
	}

	want := []string{"exists:cashless", "create:cashless", "load:temp_cashless", "merge", "delete:temp_cashless"}
	if len(fake.callOrder) != len(want) {
		t.Fatalf("call order %v, want %v", fake.callOrder, want)
	}
	for i := range want {
		if fake.callOrder[i] != want[i] {
			t.Fatalf("call %d = %s, want %s", i, fake.callOrder[i], want[i])
		}
	}

	rows := fake.loaded["temp_cashless"]
	if _, ok := rows[0]["occurred_at"].(time.Time); !ok {
		t.Fatalf("occurred_at not coerced to timestamp: %T", rows[0]["occurred_at"])
	}
	if rows[0]["value"] != 2.5 {
		t.Fatalf("value = %v (%T), want 2.5", rows[0]["value"], rows[0]["value"])
	}
}

func TestUpsertSkipsCreateWhenTableExists(t *testing.T) {
	fake := newFakeWarehouse()
	fake.exists = true
	engine := NewEngine(fake, "warehouse", testLogger())

	batch := []map[string]interface{}{{"transaction_id": json.Number("1"), "occurred_at": "2024-03-10T12:00:00Z"}}
	if _, err := engine.Upsert(context.Background(), EntityCashless, batch); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(fake.created) != 0 {
		t.Fatalf("created %v on an existing table", fake.created)
	}
}

func TestUpsertMissingIdColumnAbortsBeforeTableOps(t *testing.T) {
	fake := newFakeWarehouse()
	engine := NewEngine(fake, "warehouse", testLogger())

	batch := []map[string]interface{}{{"id": json.Number("1"), "occurred_at": "2024-03-10T12:00:00Z"}}
	_, err := engine.Upsert(context.Background(), EntityCashless, batch)

	var missing *MissingIdColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("want MissingIdColumnError, got %v", err)
	}
	if missing.IdColumn != "transaction_id" {
		t.Fatalf("IdColumn = %q", missing.IdColumn)
	}
	if len(fake.callOrder) != 0 {
		t.Fatalf("table ops attempted: %v", fake.callOrder)
	}
}

func TestUpsertCleansStagingOnMergeFailure(t *testing.T) {
	fake := newFakeWarehouse()
	fake.exists = true
	fake.mergeErr = errors.New("quota exceeded")
	engine := NewEngine(fake, "warehouse", testLogger())

	batch := []map[string]interface{}{{"transaction_id": json.Number("1"), "occurred_at": "2024-03-10T12:00:00Z"}}
	_, err := engine.Upsert(context.Background(), EntityCashless, batch)

	var mergeErr *MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("want MergeError, got %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "temp_cashless" {
		t.Fatalf("staging not cleaned up: %v", fake.deleted)
	}
}

func TestUpsertEmptyBatchIsNoOp(t *testing.T) {
	fake := newFakeWarehouse()
	engine := NewEngine(fake, "warehouse", testLogger())

	result, err := engine.Upsert(context.Background(), EntityCashless, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if result.Rows != 0 || len(fake.callOrder) != 0 {
		t.Fatalf("empty batch touched the warehouse: %+v %v", result, fake.callOrder)
	}
}

func TestCoerceBatchStringAndTagColumns(t *testing.T) {
	fake := newFakeWarehouse()
	fake.exists = true
	engine := NewEngine(fake, "warehouse", testLogger())

	batch := []map[string]interface{}{
		{"id": json.Number("1"), "upc_code": json.Number("123"), "tags": []interface{}{"a", "b"}},
		{"id": json.Number("2"), "tags": nil},
	}
	if _, err := engine.Upsert(context.Background(), EntityProducts, batch); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rows := fake.loaded["temp_products"]
	if rows[0]["upc_code"] != "123" {
		t.Fatalf("upc_code = %v (%T), want \"123\"", rows[0]["upc_code"], rows[0]["upc_code"])
	}
	if rows[0]["tags"] != "a,b" {
		t.Fatalf("tags = %v, want a,b", rows[0]["tags"])
	}
	// Present-but-null string columns land as empty string, not NULL.
	if rows[1]["upc_code"] != "" {
		t.Fatalf("missing upc_code = %v (%T), want \"\"", rows[1]["upc_code"], rows[1]["upc_code"])
	}
}

func TestBuildMergeSQL(t *testing.T) {
	sql := BuildMergeSQL("warehouse", "cashless", "temp_cashless", "transaction_id", []string{"transaction_id", "value"})

	for _, fragment := range []string{
		"MERGE `warehouse.cashless` T",
		"USING `warehouse.temp_cashless` S",
		"ON T.`transaction_id` = S.`transaction_id`",
		"T.`value` = S.`value`",
		"INSERT (`transaction_id`, `value`)",
		"VALUES (S.`transaction_id`, S.`value`)",
	} {
		if !strings.Contains(sql, fragment) {
			t.Fatalf("merge SQL missing %q:\n%s", fragment, sql)
		}
	}
	if strings.Contains(sql, "T.`transaction_id` = S.`transaction_id`,") {
		t.Fatal("id column must not appear in the UPDATE SET list")
	}
}
