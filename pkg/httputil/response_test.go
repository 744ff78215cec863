package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteSuccess(rec, map[string]int{"count": 3}); err != nil {
		t.Fatalf("WriteSuccess failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["count"] != 3 {
		t.Errorf("count = %d, want 3", body["count"])
	}
}

func TestWriteErrorMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteBadRequest(rec, "window must be positive")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["error"] != "window must be positive" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)
	got, err := ParseQueryInt(req, "limit", 10)
	if err != nil || got != 25 {
		t.Errorf("ParseQueryInt = %d, %v; want 25, nil", got, err)
	}

	got, err = ParseQueryInt(req, "window", 30)
	if err != nil || got != 30 {
		t.Errorf("missing param: got %d, %v; want default 30", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	if _, err := ParseQueryInt(req, "limit", 10); err == nil {
		t.Error("malformed integer accepted")
	}
}

func TestParseJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"react"}`))
	var body struct {
		Name string `json:"name"`
	}
	if err := ParseJSON(req, &body); err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if body.Name != "react" {
		t.Errorf("name = %q, want react", body.Name)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	if err := ParseJSON(req, &body); err == nil {
		t.Error("malformed JSON accepted")
	}
}
