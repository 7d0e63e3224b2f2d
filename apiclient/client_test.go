package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	apperrors "crispr-agent/errors"

	"go.uber.org/zap"
)

func TestDoRetriesTransientFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New(2, 0, 5*time.Second, zap.NewNop())
	body, err := client.Do(context.Background(), Request{Context: "forecast", URL: server.URL})
	if err != nil {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", body)
	}
	if attempts != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestDoExhaustionReturnsAdapterError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(3, 0, 5*time.Second, zap.NewNop())
	_, err := client.Do(context.Background(), Request{Context: "offtarget_by_seq", URL: server.URL})
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}

	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected *AdapterError, got %T", err)
	}
	if adapterErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", adapterErr.Attempts)
	}
	if adapterErr.Context != "offtarget_by_seq" {
		t.Errorf("Context = %q, want offtarget_by_seq", adapterErr.Context)
	}
	if !apperrors.IsUpstream(err) {
		t.Errorf("expected the wrapped error to be classified upstream: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts against server, got %d", attempts)
	}
}

func TestDoSuccessBodyIsNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		// Structurally valid 2xx whose body will fail downstream parsing.
		w.Write([]byte("this is not json"))
	}))
	defer server.Close()

	client := New(3, 0, 5*time.Second, zap.NewNop())
	body, err := client.Do(context.Background(), Request{Context: "forecast", URL: server.URL})
	if err != nil {
		t.Fatalf("2xx response must not error at the adapter: %v", err)
	}
	if string(body) != "this is not json" {
		t.Errorf("body altered: %s", body)
	}
	if attempts != 1 {
		t.Errorf("adapter retried a 2xx response: %d attempts", attempts)
	}
}

func TestDoSendsQueryAndForm(t *testing.T) {
	var gotQuery url.Values
	var gotContentType string
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotContentType = r.Header.Get("Content-Type")
		r.ParseForm()
		gotForm = r.PostForm
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(1, 0, 5*time.Second, zap.NewNop())

	query := url.Values{}
	query.Add("exon_id[]", "ENSE001")
	query.Add("exon_id[]", "ENSE002")
	if _, err := client.Do(context.Background(), Request{Context: "guide_search", URL: server.URL, Query: query}); err != nil {
		t.Fatal(err)
	}
	if got := gotQuery["exon_id[]"]; len(got) != 2 || got[0] != "ENSE001" || got[1] != "ENSE002" {
		t.Errorf("repeated query key not preserved: %v", gotQuery)
	}

	form := url.Values{}
	form.Set("id", "12345")
	if _, err := client.Do(context.Background(), Request{
		Context:  "offtarget_by_id",
		Method:   http.MethodPost,
		URL:      server.URL,
		FormBody: form,
	}); err != nil {
		t.Fatal(err)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("form content type = %q", gotContentType)
	}
	if gotForm.Get("id") != "12345" {
		t.Errorf("form body not sent: %v", gotForm)
	}
}
