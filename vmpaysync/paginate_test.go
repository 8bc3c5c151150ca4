package vmpaysync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func pageOf(start, n int) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]interface{}{"id": start + i})
	}
	return out
}

func TestFetchWindowDrainsPages(t *testing.T) {
	// 250 records at page size 100: two full pages then a short one.
	var pagesRequested []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pagesRequested = append(pagesRequested, page)
		switch page {
		case 1:
			json.NewEncoder(w).Encode(pageOf(0, 100))
		case 2:
			json.NewEncoder(w).Encode(pageOf(100, 100))
		case 3:
			json.NewEncoder(w).Encode(pageOf(200, 50))
		default:
			t.Errorf("unexpected request for page %d", page)
			json.NewEncoder(w).Encode([]map[string]interface{}{})
		}
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(srv.URL, &sleeps)

	w := DayWindow(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	records, err := c.FetchWindow(context.Background(), w, 100)
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if len(records) != 250 {
		t.Fatalf("got %d records, want 250", len(records))
	}
	if len(pagesRequested) != 3 {
		t.Fatalf("requested pages %v, want exactly 3", pagesRequested)
	}
	// Short page terminates without a trailing delay.
	if len(sleeps) != 2 {
		t.Fatalf("got %d inter-page sleeps, want 2", len(sleeps))
	}
}

func TestFetchWindowEmptyFirstPage(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	w := DayWindow(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	records, err := c.FetchWindow(context.Background(), w, 100)
	if err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
	if calls != 1 {
		t.Fatalf("got %d calls, want 1", calls)
	}
}

func TestFetchWindowSendsDateParams(t *testing.T) {
	var gotStart, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start_date")
		gotEnd = r.URL.Query().Get("end_date")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	w := DayWindow(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	if _, err := c.FetchWindow(context.Background(), w, 100); err != nil {
		t.Fatalf("FetchWindow: %v", err)
	}
	if gotStart != "2024-03-10T00:00:00Z" {
		t.Fatalf("start_date = %q", gotStart)
	}
	if gotEnd != "2024-03-11T00:00:00Z" {
		t.Fatalf("end_date = %q", gotEnd)
	}
}
