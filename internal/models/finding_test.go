package models

import (
	"strings"
	"testing"
)

func TestSeverityRank(t *testing.T) {
	cases := []struct {
		severity Severity
		rank     int
	}{
		{SeverityCritical, 5},
		{SeverityHigh, 4},
		{SeverityMedium, 3},
		{SeverityLow, 2},
		{SeverityInfo, 1},
		{Severity("BOGUS"), 0},
		{Severity("high"), 4}, // case-insensitive
	}

	for _, tc := range cases {
		if got := tc.severity.Rank(); got != tc.rank {
			t.Errorf("Rank(%q) = %d, want %d", tc.severity, got, tc.rank)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	if got := ParseSeverity("critical"); got != SeverityCritical {
		t.Errorf("ParseSeverity(critical) = %q", got)
	}
	if got := ParseSeverity(" Medium "); got != SeverityMedium {
		t.Errorf("ParseSeverity with whitespace = %q", got)
	}
	// Unknown severities degrade to INFO instead of dropping the finding.
	if got := ParseSeverity("unknown"); got != SeverityInfo {
		t.Errorf("ParseSeverity(unknown) = %q, want INFO", got)
	}
}

func TestRiskScore(t *testing.T) {
	t.Run("weighted sum", func(t *testing.T) {
		findings := []Finding{
			{Severity: SeverityCritical},
			{Severity: SeverityHigh},
			{Severity: SeverityHigh},
			{Severity: SeverityMedium},
			{Severity: SeverityLow},
		}
		// 25 + 15 + 15 + 5 + 2
		if got := RiskScore(findings); got != 62 {
			t.Errorf("RiskScore = %d, want 62", got)
		}
	})

	t.Run("capped at 100", func(t *testing.T) {
		findings := make([]Finding, 10)
		for i := range findings {
			findings[i] = Finding{Severity: SeverityCritical}
		}
		if got := RiskScore(findings); got != 100 {
			t.Errorf("RiskScore = %d, want 100", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := RiskScore(nil); got != 0 {
			t.Errorf("RiskScore(nil) = %d, want 0", got)
		}
	})

	t.Run("info findings carry no weight", func(t *testing.T) {
		findings := []Finding{{Severity: SeverityInfo}, {Severity: SeverityInfo}}
		if got := RiskScore(findings); got != 0 {
			t.Errorf("RiskScore = %d, want 0", got)
		}
	})
}

func TestBuildSummary(t *testing.T) {
	findings := []Finding{
		{Type: "SQL Injection", Severity: SeverityCritical, Engine: EngineTemplate, Endpoint: "/login"},
		{Type: "XSS", Severity: SeverityHigh, Engine: EngineDAST, Endpoint: "/search"},
		{Type: "XSS", Severity: SeverityMedium, Engine: EngineStatic, Endpoint: "/search"},
		{Type: "NO_PAGINATION", Severity: SeverityMedium, Engine: EngineStatic, Endpoint: "/users"},
	}

	summary := BuildSummary(findings)

	if summary.Total != 4 {
		t.Errorf("Total = %d, want 4", summary.Total)
	}
	if summary.BySeverity[SeverityCritical] != 1 || summary.BySeverity[SeverityHigh] != 1 || summary.BySeverity[SeverityMedium] != 2 {
		t.Errorf("BySeverity = %v", summary.BySeverity)
	}
	// All five severity buckets are always present, even at zero.
	if _, ok := summary.BySeverity[SeverityInfo]; !ok {
		t.Error("BySeverity missing INFO bucket")
	}
	if summary.ByType["XSS"] != 2 {
		t.Errorf("ByType[XSS] = %d, want 2", summary.ByType["XSS"])
	}
	if summary.ByEngine[EngineStatic] != 2 {
		t.Errorf("ByEngine[static] = %d, want 2", summary.ByEngine[EngineStatic])
	}
	if summary.ByEndpoint["/search"] != 2 {
		t.Errorf("ByEndpoint[/search] = %d, want 2", summary.ByEndpoint["/search"])
	}
	if summary.Actionable != 2 {
		t.Errorf("Actionable = %d, want 2 (critical+high)", summary.Actionable)
	}
}

func TestBuildSummaryTopEndpoints(t *testing.T) {
	var findings []Finding
	// 12 endpoints, /ep-0 gets the most findings, counts descend from there.
	for i := 0; i < 12; i++ {
		for j := 0; j <= 12-i; j++ {
			findings = append(findings, Finding{
				Type:     "T",
				Severity: SeverityLow,
				Endpoint: "/ep-" + string(rune('a'+i)),
			})
		}
	}

	summary := BuildSummary(findings)
	if len(summary.ByEndpoint) != 10 {
		t.Fatalf("ByEndpoint has %d entries, want 10", len(summary.ByEndpoint))
	}
	if _, ok := summary.ByEndpoint["/ep-a"]; !ok {
		t.Error("busiest endpoint /ep-a missing from top 10")
	}
	if _, ok := summary.ByEndpoint["/ep-l"]; ok {
		t.Error("quietest endpoint /ep-l should have been trimmed")
	}
}

func TestNewFindingID(t *testing.T) {
	id := NewFindingID("static")
	if !strings.HasPrefix(id, "static-") {
		t.Errorf("id %q missing engine prefix", id)
	}
	if len(id) != len("static-")+8 {
		t.Errorf("id %q has unexpected length", id)
	}
	if id == NewFindingID("static") {
		t.Error("consecutive ids collide")
	}
}

func TestNewScanTarget(t *testing.T) {
	target := NewScanTarget("https://api.example.com")

	if target.URL != "https://api.example.com" {
		t.Errorf("URL = %q", target.URL)
	}
	if target.RateLimit != 100 || target.TimeoutMS != 30000 || target.MaxDepth != 10 {
		t.Errorf("defaults = %d/%d/%d", target.RateLimit, target.TimeoutMS, target.MaxDepth)
	}

	wantExcluded := []string{"/health", "/metrics", "/ready", "/live", "/.well-known/*", "/favicon.ico"}
	if len(target.ExcludePaths) != len(wantExcluded) {
		t.Fatalf("ExcludePaths = %v", target.ExcludePaths)
	}
	for i, p := range wantExcluded {
		if target.ExcludePaths[i] != p {
			t.Errorf("ExcludePaths[%d] = %q, want %q", i, target.ExcludePaths[i], p)
		}
	}
}

func TestParseScanType(t *testing.T) {
	cases := map[string]ScanType{
		"quick":      ScanTypeQuick,
		"QUICK":      ScanTypeQuick,
		"standard":   ScanTypeStandard,
		"full":       ScanTypeFull,
		"continuous": ScanTypeContinuous,
		"":           ScanTypeStandard,
		"nonsense":   ScanTypeStandard,
	}
	for in, want := range cases {
		if got := ParseScanType(in); got != want {
			t.Errorf("ParseScanType(%q) = %q, want %q", in, got, want)
		}
	}
}
