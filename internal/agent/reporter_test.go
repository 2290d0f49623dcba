package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vulx-io/vulx/internal/models"
)

func TestVerifyAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/verify" {
			t.Errorf("path = %q, want /auth/verify", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer vk-test" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"valid":        true,
			"organization": "Acme Corp",
			"plan":         "enterprise",
		})
	}))
	defer srv.Close()

	rep := NewReporter(srv.URL, "vk-test")
	info, err := rep.VerifyAuth(context.Background())
	if err != nil {
		t.Fatalf("VerifyAuth() error: %v", err)
	}
	if !info.Valid {
		t.Error("expected valid key")
	}
	if info.Organization != "Acme Corp" || info.Plan != "enterprise" {
		t.Errorf("unexpected auth info: %+v", info)
	}
}

func TestVerifyAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	info, err := NewReporter(srv.URL, "bad-key").VerifyAuth(context.Background())
	if err != nil {
		t.Fatalf("VerifyAuth() error: %v", err)
	}
	if info.Valid {
		t.Error("rejected key reported as valid")
	}
}

func TestUploadResults(t *testing.T) {
	var uploaded models.ScanResult
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/proj-1/scans" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&uploaded); err != nil {
			t.Errorf("decoding upload body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "scan-42"})
	}))
	defer srv.Close()

	result := models.ScanResult{
		ScanID:    "local-1",
		TargetURL: "https://api.example.com",
		Status:    models.StateCompleted,
		RiskScore: 40,
	}
	id, err := NewReporter(srv.URL, "vk-test").UploadResults(context.Background(), "proj-1", result)
	if err != nil {
		t.Fatalf("UploadResults() error: %v", err)
	}
	if id != "scan-42" {
		t.Errorf("scan id = %q, want scan-42", id)
	}
	if uploaded.TargetURL != "https://api.example.com" {
		t.Errorf("uploaded target = %q", uploaded.TargetURL)
	}
}

func TestUploadResultsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewReporter(srv.URL, "vk-test").UploadResults(context.Background(), "proj-1", models.ScanResult{})
	if err == nil {
		t.Fatal("expected error for rejected upload")
	}
}

func TestGetProjectNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewReporter(srv.URL, "vk-test").GetProject(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetProject() error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil project, got %+v", p)
	}
}
