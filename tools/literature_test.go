package tools

import (
	"context"
	"net/http"
	"net/url"
	"testing"
)

func TestNCBILiteratureToolQueryAssembly(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	registry := testRegistry(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"header": {}, "esearchresult": {"count": "2", "idlist": ["1", "2"]}}`))
	}))

	result := registry.Dispatch(context.Background(), "search_ncbi_literature", map[string]any{
		"term":    "CRISPR repair outcome",
		"mindate": "2020",
		"maxdate": "2024",
		"retmax":  5.0,
	})
	if reason, failed := result["error"]; failed {
		t.Fatalf("unexpected error: %v", reason)
	}

	if gotPath != "/eutils/esearch.fcgi" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery.Get("db") != "pubmed" {
		t.Errorf("default db = %q, want pubmed", gotQuery.Get("db"))
	}
	if gotQuery.Get("datetype") != "pdat" {
		t.Errorf("datetype must be set when a date bound is present: %v", gotQuery)
	}
	if gotQuery.Get("mindate") != "2020" || gotQuery.Get("maxdate") != "2024" {
		t.Errorf("date bounds missing: %v", gotQuery)
	}
	if gotQuery.Get("retmax") != "5" {
		t.Errorf("retmax = %q, want 5", gotQuery.Get("retmax"))
	}

	search, ok := result["search"].(map[string]any)
	if !ok {
		t.Fatalf("esearchresult not unwrapped: %v", result)
	}
	if search["count"] != "2" {
		t.Errorf("unexpected unwrapped payload: %v", search)
	}
}

func TestNCBILiteratureToolRequiresTerm(t *testing.T) {
	registry := testRegistry(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("missing term must not reach the network")
	}))

	result := registry.Dispatch(context.Background(), "search_ncbi_literature", map[string]any{})
	if _, failed := result["error"]; !failed {
		t.Fatalf("expected error, got %v", result)
	}
}

func TestNCBISummariesToolJoinsIDs(t *testing.T) {
	var gotQuery url.Values
	registry := testRegistry(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"result": {"uids": ["111", "222"]}}`))
	}))

	result := registry.Dispatch(context.Background(), "fetch_ncbi_summaries", map[string]any{
		"ids": []any{"111", "222"},
	})
	if reason, failed := result["error"]; failed {
		t.Fatalf("unexpected error: %v", reason)
	}
	if gotQuery.Get("id") != "111,222" {
		t.Errorf("id list = %q, want 111,222", gotQuery.Get("id"))
	}
	if _, ok := result["summaries"]; !ok {
		t.Errorf("result envelope not unwrapped: %v", result)
	}
}

func TestNCBIEnvelopeMissingField(t *testing.T) {
	registry := testRegistry(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected": true}`))
	}))

	result := registry.Dispatch(context.Background(), "search_ncbi_databases", map[string]any{})
	if _, failed := result["error"]; !failed {
		t.Fatalf("expected malformed-envelope error, got %v", result)
	}
}
