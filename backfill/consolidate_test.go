package backfill

import (
	"testing"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
)

func TestConsolidateKeepsLatestPerId(t *testing.T) {
	batches := [][]vmpaysync.Record{
		{
			{"id": "T1", "occurred_at": "2024-01-02T10:00:00Z", "value": "1.00"},
			{"id": "T2", "occurred_at": "2024-01-02T11:00:00Z", "value": "5.00"},
		},
		{
			{"id": "T1", "occurred_at": "2024-01-02T12:00:00Z", "value": "2.00"},
		},
	}

	result, err := Consolidate(batches, quietLogger())
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("kept %d records, want 2", len(result.Records))
	}
	if result.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", result.Dropped)
	}

	byId := map[string]vmpaysync.Record{}
	for _, rec := range result.Records {
		if _, ok := rec["id"]; ok {
			t.Fatal("id field survived the rename")
		}
		byId[rec["transaction_id"].(string)] = rec
	}
	if byId["T1"]["value"] != "2.00" {
		t.Fatalf("T1 kept value %v, want the 12:00 row", byId["T1"]["value"])
	}
	if byId["T2"]["value"] != "5.00" {
		t.Fatalf("T2 value = %v", byId["T2"]["value"])
	}
}

func TestConsolidateTieBreakLastInputWins(t *testing.T) {
	// Same id, same occurred_at: last input order wins.
	batches := [][]vmpaysync.Record{
		{{"id": "T1", "occurred_at": "2024-01-02T10:00:00Z", "source": "first"}},
		{{"id": "T1", "occurred_at": "2024-01-02T10:00:00Z", "source": "second"}},
	}

	result, err := Consolidate(batches, quietLogger())
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("kept %d records, want 1", len(result.Records))
	}
	if result.Records[0]["source"] != "second" {
		t.Fatalf("kept %v, want the later input", result.Records[0]["source"])
	}
}

func TestConsolidateSortsByRecency(t *testing.T) {
	batches := [][]vmpaysync.Record{{
		{"id": "T3", "occurred_at": "2024-01-03T00:00:00Z"},
		{"id": "T1", "occurred_at": "2024-01-01T00:00:00Z"},
		{"id": "T2", "occurred_at": "2024-01-02T00:00:00Z"},
	}}

	result, err := Consolidate(batches, quietLogger())
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	var order []string
	for _, rec := range result.Records {
		order = append(order, rec["transaction_id"].(string))
	}
	want := []string{"T1", "T2", "T3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestConsolidateMissingRecencyFieldFails(t *testing.T) {
	batches := [][]vmpaysync.Record{{
		{"id": "T1", "value": "1.00"},
	}}
	if _, err := Consolidate(batches, quietLogger()); err == nil {
		t.Fatal("expected error for record without occurred_at")
	}
}

func TestEncodeDecodeCSVHeaderOrder(t *testing.T) {
	records := []vmpaysync.Record{
		{"transaction_id": "1", "occurred_at": "2024-01-01T00:00:00Z"},
		{"transaction_id": "2", "occurred_at": "2024-01-02T00:00:00Z", "extra": "late column"},
	}

	data, err := EncodeCSV(records)
	if err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}

	decoded, err := DecodeCSV(data)
	if err != nil {
		t.Fatalf("DecodeCSV: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("got %d records", len(decoded))
	}
	if decoded[1]["extra"] != "late column" {
		t.Fatalf("extra = %v", decoded[1]["extra"])
	}
	// A column absent from a record round-trips as empty string.
	if decoded[0]["extra"] != "" {
		t.Fatalf("missing column decoded as %q", decoded[0]["extra"])
	}
}
