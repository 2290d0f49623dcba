package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/models"
)

type fakeEngine struct {
	name     string
	findings []models.Finding
	err      error
	calls    int
}

func (f *fakeEngine) Name() string                       { return f.name }
func (f *fakeEngine) Available(ctx context.Context) bool { return true }
func (f *fakeEngine) Scan(ctx context.Context, target models.ScanTarget, authCtx *auth.Context) ([]models.Finding, error) {
	f.calls++
	return f.findings, f.err
}

func finding(typ, endpoint, method string, severity models.Severity) models.Finding {
	return models.Finding{
		ID:       models.NewFindingID("test"),
		Engine:   models.EngineTemplate,
		Type:     typ,
		Severity: severity,
		Endpoint: endpoint,
		Method:   method,
		CWEID:    "CWE-89",
	}
}

func TestScanPhaseGating(t *testing.T) {
	tests := []struct {
		name       string
		scanType   models.ScanType
		spec       string
		wantFuzzer int
		wantDAST   int
	}{
		{"quick runs template only", models.ScanTypeQuick, "openapi: 3.0.0", 0, 0},
		{"standard adds fuzzer with spec", models.ScanTypeStandard, "openapi: 3.0.0", 1, 0},
		{"standard skips fuzzer without spec", models.ScanTypeStandard, "", 0, 0},
		{"full runs everything", models.ScanTypeFull, "openapi: 3.0.0", 1, 1},
		{"continuous runs everything", models.ScanTypeContinuous, "openapi: 3.0.0", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			template := &fakeEngine{name: "nuclei"}
			fuzzer := &fakeEngine{name: "schemathesis"}
			dast := &fakeEngine{name: "zap"}
			o := New(template, fuzzer, dast)

			target := models.NewScanTarget("https://api.example.com")
			target.OpenAPISpec = tt.spec
			result := o.Scan(context.Background(), target, tt.scanType, nil, "")

			if template.calls != 1 {
				t.Errorf("template calls = %d, want 1", template.calls)
			}
			if fuzzer.calls != tt.wantFuzzer {
				t.Errorf("fuzzer calls = %d, want %d", fuzzer.calls, tt.wantFuzzer)
			}
			if dast.calls != tt.wantDAST {
				t.Errorf("dast calls = %d, want %d", dast.calls, tt.wantDAST)
			}
			if result.Status != models.StateCompleted {
				t.Errorf("Status = %q", result.Status)
			}
		})
	}
}

func TestScanEngineErrorSkipped(t *testing.T) {
	template := &fakeEngine{name: "nuclei", findings: []models.Finding{
		finding("sql_injection", "/users", "GET", models.SeverityHigh),
	}}
	fuzzer := &fakeEngine{name: "schemathesis", err: errors.New("binary not found")}
	o := New(template, fuzzer, &fakeEngine{name: "zap"})

	target := models.NewScanTarget("https://api.example.com")
	target.OpenAPISpec = "openapi: 3.0.0"
	result := o.Scan(context.Background(), target, models.ScanTypeStandard, nil, "")

	if result.Status != models.StateCompleted {
		t.Fatalf("Status = %q, want COMPLETED", result.Status)
	}
	if len(result.EnginesUsed) != 1 || result.EnginesUsed[0] != "nuclei" {
		t.Errorf("EnginesUsed = %v, want [nuclei]", result.EnginesUsed)
	}
	if len(result.Findings) != 1 {
		t.Errorf("got %d findings, want 1", len(result.Findings))
	}
}

func TestScanEnrichment(t *testing.T) {
	template := &fakeEngine{name: "nuclei", findings: []models.Finding{
		finding("sql_injection", "/users", "GET", models.SeverityCritical),
	}}
	o := New(template, nil, nil)

	result := o.Scan(context.Background(), models.NewScanTarget("https://api.example.com"), models.ScanTypeQuick, nil, "scan-1")

	if result.ScanID != "scan-1" {
		t.Errorf("ScanID = %q", result.ScanID)
	}
	f := result.Findings[0]
	if len(f.ComplianceMappings) == 0 {
		t.Error("compliance mappings not applied")
	}
	if f.Remediation == "" || f.CodeFix == "" {
		t.Errorf("remediation not applied: desc=%q fix non-empty=%v", f.Remediation, f.CodeFix != "")
	}
	if result.RiskScore != 25 {
		t.Errorf("RiskScore = %d, want 25", result.RiskScore)
	}
	if result.ComplianceSummary == nil {
		t.Error("compliance summary missing")
	}
	if !result.CompletedAt.After(result.StartedAt) && !result.CompletedAt.Equal(result.StartedAt) {
		t.Error("CompletedAt before StartedAt")
	}
}

func TestScanEmptyResultStillCompletes(t *testing.T) {
	o := New(&fakeEngine{name: "nuclei"}, nil, nil)
	result := o.Scan(context.Background(), models.NewScanTarget("https://api.example.com"), models.ScanTypeQuick, nil, "")

	if result.Status != models.StateCompleted {
		t.Errorf("Status = %q", result.Status)
	}
	if result.RiskScore != 0 {
		t.Errorf("RiskScore = %d, want 0", result.RiskScore)
	}
	if result.Summary.Total != 0 {
		t.Errorf("Summary.Total = %d", result.Summary.Total)
	}
}

func TestScanAuthFailure(t *testing.T) {
	template := &fakeEngine{name: "nuclei"}
	o := New(template, nil, nil)

	cfg := &auth.Config{Method: auth.Method("carrier-pigeon")}
	result := o.Scan(context.Background(), models.NewScanTarget("https://api.example.com"), models.ScanTypeQuick, cfg, "")

	if result.Status != models.StateFailed {
		t.Fatalf("Status = %q, want FAILED", result.Status)
	}
	if result.Summary.Error == "" {
		t.Error("Summary.Error not set")
	}
	if template.calls != 0 {
		t.Error("engines should not run after auth failure")
	}
	if len(result.Findings) != 0 {
		t.Errorf("got %d findings, want 0", len(result.Findings))
	}
}

func TestStatusCallbackSequence(t *testing.T) {
	o := New(&fakeEngine{name: "nuclei"}, nil, nil)

	var progress []int
	o.OnStatusChange(func(scanID string, state models.ScanState, pct int, message string) {
		progress = append(progress, pct)
	})
	// A panicking callback must not break the scan.
	o.OnStatusChange(func(scanID string, state models.ScanState, pct int, message string) {
		panic("listener bug")
	})

	result := o.Scan(context.Background(), models.NewScanTarget("https://api.example.com"), models.ScanTypeQuick, nil, "")
	if result.Status != models.StateCompleted {
		t.Fatalf("Status = %q", result.Status)
	}

	want := []int{5, 15, 85, 100, 100}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %d, want %d", i, progress[i], want[i])
		}
	}
}

func TestDeduplicate(t *testing.T) {
	findings := []models.Finding{
		finding("xss", "/search", "GET", models.SeverityMedium),
		finding("xss", "/search", "GET", models.SeverityHigh),
		finding("xss", "/search", "POST", models.SeverityLow),
		finding("sqli", "/search", "GET", models.SeverityLow),
	}
	findings[0].Evidence = "first"
	findings[1].Evidence = "second"

	out := Deduplicate(findings)
	if len(out) != 3 {
		t.Fatalf("got %d findings, want 3", len(out))
	}
	if out[0].Severity != models.SeverityHigh || out[0].Evidence != "second" {
		t.Errorf("higher severity should replace: %+v", out[0])
	}

	// Equal severity keeps the first occurrence.
	ties := Deduplicate([]models.Finding{
		{Type: "a", Endpoint: "/x", Method: "GET", Severity: models.SeverityLow, Evidence: "keep"},
		{Type: "a", Endpoint: "/x", Method: "GET", Severity: models.SeverityLow, Evidence: "drop"},
	})
	if len(ties) != 1 || ties[0].Evidence != "keep" {
		t.Errorf("tie handling wrong: %+v", ties)
	}
}

func TestBuildCoverage(t *testing.T) {
	target := models.NewScanTarget("https://api.example.com")
	findings := []models.Finding{
		{Endpoint: "/a", Method: "GET", OWASPCategory: "API1:2023 - Broken Object Level Authorization"},
		{Endpoint: "/a", Method: "POST"},
		{Endpoint: "/b", Method: "GET", OWASPCategory: "API1:2023 - Broken Object Level Authorization"},
	}

	cov := buildCoverage(target, findings, []string{"nuclei"}, true)
	if cov.EndpointsDiscovered != 2 {
		t.Errorf("EndpointsDiscovered = %d", cov.EndpointsDiscovered)
	}
	if len(cov.HTTPMethodsTested) != 2 {
		t.Errorf("HTTPMethodsTested = %v", cov.HTTPMethodsTested)
	}
	if !cov.Authenticated {
		t.Error("Authenticated = false")
	}
	if cov.DepthReached != 10 {
		t.Errorf("DepthReached = %d", cov.DepthReached)
	}
	if len(cov.OWASPCategoriesCovered) != 1 {
		t.Errorf("OWASPCategoriesCovered = %v", cov.OWASPCategoriesCovered)
	}
}
