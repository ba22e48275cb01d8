package itsm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolveField(t *testing.T) {
	f := newFakeProvider()
	client, _ := newTestClient(t, f)

	tests := []struct {
		logical string
		want    int
	}{
		{FieldID, 2},
		{FieldTitle, 1},
		{FieldStatus, 12},
		{FieldPriority, 3},
		{FieldGroup, 8},
		{FieldCategory, 7},
		{FieldTechnician, 5},
		{FieldDateCreation, 15},
		{FieldDateMod, 19},
	}

	for _, tt := range tests {
		got, err := client.ResolveField(context.Background(), tt.logical)
		if err != nil {
			t.Fatalf("ResolveField(%s) error = %v", tt.logical, err)
		}
		if got != tt.want {
			t.Errorf("ResolveField(%s) = %d, want %d", tt.logical, got, tt.want)
		}
	}

	f.mu.Lock()
	calls := f.schemaCalls
	f.mu.Unlock()
	if calls != 1 {
		t.Errorf("schema fetched %d times, want 1 (cached for process lifetime)", calls)
	}
}

func TestResolveFieldUnknownLogicalName(t *testing.T) {
	f := newFakeProvider()
	client, _ := newTestClient(t, f)

	_, err := client.ResolveField(context.Background(), "NO_SUCH_FIELD")
	var ufe *UnknownFieldError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnknownFieldError, got %v", err)
	}
}

func TestResolveFieldSchemaMismatch(t *testing.T) {
	// A provider whose schema lacks expected fields signals a version
	// mismatch: fatal, not retried.
	f := newFakeProvider()
	mux := http.NewServeMux()
	mux.HandleFunc("/initSession", f.handleInit)
	mux.HandleFunc("/listSearchOptions/Ticket", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"2": map[string]string{"uid": "Ticket.id"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL:      srv.URL,
		AppToken:     "app",
		UserToken:    "user",
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})

	_, err := client.ResolveField(context.Background(), FieldStatus)
	var ufe *UnknownFieldError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnknownFieldError on schema mismatch, got %v", err)
	}
}
