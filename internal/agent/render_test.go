package agent

import (
	"strings"
	"testing"

	"github.com/vulx-io/vulx/internal/models"
)

func sampleResult() models.ScanResult {
	findings := []models.Finding{
		{
			Type:          "SQL_INJECTION",
			Title:         "SQL Injection",
			Severity:      models.SeverityCritical,
			Endpoint:      "/users",
			Method:        "POST",
			CWEID:         "CWE-89",
			OWASPCategory: "API8:2023 Security Misconfiguration",
			Description:   "Parameter id is concatenated into the query.",
			Remediation:   "Use parameterized statements.",
		},
		{
			Type:     "MISSING_RATE_LIMIT",
			Severity: models.SeverityMedium,
			Endpoint: "/login",
		},
	}
	return models.ScanResult{
		Findings:  findings,
		Summary:   models.BuildSummary(findings),
		RiskScore: models.RiskScore(findings),
	}
}

func TestPrintSummary(t *testing.T) {
	var buf strings.Builder
	PrintSummary(&buf, sampleResult())
	out := buf.String()

	for _, want := range []string{"CRITICAL", "MEDIUM", "TOTAL", "Risk Score: 30/100 - MEDIUM RISK"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRiskLabel(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, "LOW RISK"},
		{24, "LOW RISK"},
		{25, "MEDIUM RISK"},
		{50, "HIGH RISK"},
		{75, "CRITICAL RISK"},
		{100, "CRITICAL RISK"},
	}
	for _, tc := range cases {
		if got := riskLabel(tc.score); got != tc.want {
			t.Errorf("riskLabel(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestPrintFindings(t *testing.T) {
	var buf strings.Builder
	PrintFindings(&buf, sampleResult().Findings, true)
	out := buf.String()

	for _, want := range []string{
		"#1 [CRITICAL] SQL Injection",
		"Endpoint: POST /users",
		"CWE: CWE-89",
		"Fix: Use parameterized statements.",
		// falls back to the type and GET when title/method are empty
		"#2 [MEDIUM] MISSING_RATE_LIMIT",
		"Endpoint: GET /login",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("findings output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintFindingsEmpty(t *testing.T) {
	var buf strings.Builder
	PrintFindings(&buf, nil, false)
	if !strings.Contains(buf.String(), "No vulnerabilities found") {
		t.Errorf("unexpected empty output: %s", buf.String())
	}
}

func TestPrintCompliance(t *testing.T) {
	var buf strings.Builder
	result := models.ScanResult{ComplianceSummary: map[string]any{"total_controls_affected": 7}}
	PrintCompliance(&buf, result)
	if !strings.Contains(buf.String(), "7 controls affected") {
		t.Errorf("compliance output = %q", buf.String())
	}

	buf.Reset()
	PrintCompliance(&buf, models.ScanResult{ComplianceSummary: map[string]any{"total_controls_affected": 0}})
	if buf.Len() != 0 {
		t.Errorf("expected no output for zero controls, got %q", buf.String())
	}
}

func TestClip(t *testing.T) {
	if got := clip("short", 10); got != "short" {
		t.Errorf("clip(short) = %q", got)
	}
	long := strings.Repeat("a", 250)
	got := clip(long, 200)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("clip long: len=%d suffix=%q", len(got), got[len(got)-3:])
	}
}
