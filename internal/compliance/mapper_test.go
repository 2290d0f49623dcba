package compliance

import (
	"reflect"
	"testing"

	"github.com/vulx-io/vulx/internal/models"
)

func bolaFinding() models.Finding {
	return models.Finding{
		ID:            "static-deadbeef",
		Engine:        models.EngineStatic,
		Type:          "BOLA",
		Severity:      models.SeverityHigh,
		Title:         "Potential BOLA vulnerability",
		Endpoint:      "/users/{id}",
		Method:        "GET",
		CWEID:         "CWE-639",
		OWASPCategory: "API1:2023 - Broken Object Level Authorization",
	}
}

func TestMapFindingUnionsCWEAndOWASP(t *testing.T) {
	m := NewMapper()
	mappings := m.MapFinding(bolaFinding())

	// CWE-639 soc2 controls plus API1:2023 soc2 controls, deduplicated.
	wantSOC2 := []string{"CC6.1", "CC6.3", "CC6.6"}
	if !reflect.DeepEqual(mappings[FrameworkSOC2], wantSOC2) {
		t.Errorf("soc2 controls = %v, want %v", mappings[FrameworkSOC2], wantSOC2)
	}

	wantPCI := []string{"7.1.1", "7.2.1", "7.3.1"}
	if !reflect.DeepEqual(mappings[FrameworkPCIDSS], wantPCI) {
		t.Errorf("pci_dss controls = %v, want %v", mappings[FrameworkPCIDSS], wantPCI)
	}

	if len(mappings[FrameworkNISTCSF]) == 0 {
		t.Error("expected nist_csf controls from CWE-639")
	}
}

func TestMapFindingIdempotent(t *testing.T) {
	m := NewMapper()
	f := bolaFinding()
	first := m.MapFinding(f)
	second := m.MapFinding(f)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated mapping differs: %v vs %v", first, second)
	}
}

func TestMapFindingNormalizesCWEPrefix(t *testing.T) {
	m := NewMapper()
	f := bolaFinding()
	f.CWEID = "639"
	f.OWASPCategory = ""

	mappings := m.MapFinding(f)
	if len(mappings[FrameworkSOC2]) == 0 {
		t.Error("bare numeric CWE id should map like CWE-639")
	}
}

func TestMapFindingUnknownIdentifiers(t *testing.T) {
	m := NewMapper()
	f := models.Finding{Type: "CUSTOM", CWEID: "CWE-99999", OWASPCategory: "API99:2023"}
	if mappings := m.MapFinding(f); len(mappings) != 0 {
		t.Errorf("unknown identifiers mapped to %v, want empty", mappings)
	}
}

func TestSetEnabledFrameworks(t *testing.T) {
	m := NewMapper()
	m.SetEnabledFrameworks([]string{FrameworkSOC2})

	mappings := m.MapFinding(bolaFinding())
	if len(mappings[FrameworkSOC2]) == 0 {
		t.Error("enabled framework missing from mappings")
	}
	if _, ok := mappings[FrameworkPCIDSS]; ok {
		t.Error("disabled framework present in mappings")
	}
}

func TestGetSummary(t *testing.T) {
	m := NewMapper()
	sqli := models.Finding{
		Type:     "sql_injection",
		Severity: models.SeverityCritical,
		CWEID:    "CWE-89",
	}
	summary := m.GetSummary([]models.Finding{bolaFinding(), sqli})

	soc2 := summary.Frameworks[FrameworkSOC2]
	if soc2.Status != "REQUIRES_ATTENTION" {
		t.Errorf("soc2 status = %q, want REQUIRES_ATTENTION", soc2.Status)
	}
	// Union of CWE-639+API1 (CC6.1, CC6.3, CC6.6) and CWE-89
	// (CC6.1, CC6.6, CC7.1, CC7.2), sorted.
	want := []string{"CC6.1", "CC6.3", "CC6.6", "CC7.1", "CC7.2"}
	if !reflect.DeepEqual(soc2.Controls, want) {
		t.Errorf("soc2 controls = %v, want %v", soc2.Controls, want)
	}
	if soc2.ControlsAffected != len(want) {
		t.Errorf("controls_affected = %d, want %d", soc2.ControlsAffected, len(want))
	}
	if summary.TotalControlsAffected == 0 {
		t.Error("total_controls_affected should be non-zero")
	}
}

func TestGetSummaryEmpty(t *testing.T) {
	m := NewMapper()
	summary := m.GetSummary(nil)
	if summary.TotalControlsAffected != 0 {
		t.Errorf("empty findings produced %d controls", summary.TotalControlsAffected)
	}
	if len(summary.Frameworks) != 0 {
		t.Errorf("empty findings produced frameworks %v", summary.Frameworks)
	}
}

func TestGenerateAuditReport(t *testing.T) {
	m := NewMapper()
	report := m.GenerateAuditReport([]models.Finding{bolaFinding()}, FrameworkSOC2)

	if report.FrameworkName != "SOC 2 Type II" {
		t.Errorf("framework name = %q", report.FrameworkName)
	}
	if report.TotalFindings != 1 {
		t.Errorf("total findings = %d, want 1", report.TotalFindings)
	}
	if report.ControlsAffected != 3 {
		t.Errorf("controls affected = %d, want 3", report.ControlsAffected)
	}

	var cc61 *AuditControl
	for i := range report.ControlDetails {
		if report.ControlDetails[i].ControlID == "CC6.1" {
			cc61 = &report.ControlDetails[i]
		}
	}
	if cc61 == nil {
		t.Fatal("CC6.1 missing from report")
	}
	if cc61.Title != "Logical and Physical Access Controls" {
		t.Errorf("CC6.1 title = %q", cc61.Title)
	}
	if cc61.Status != "NON_COMPLIANT" || !cc61.RemediationRequired {
		t.Errorf("CC6.1 status = %q remediation = %v", cc61.Status, cc61.RemediationRequired)
	}
	if cc61.FindingsCount != 1 || cc61.Findings[0].FindingID != "static-deadbeef" {
		t.Errorf("CC6.1 findings = %+v", cc61.Findings)
	}
}

func TestFrameworkNameFallback(t *testing.T) {
	if got := FrameworkName("made_up"); got != "made_up" {
		t.Errorf("FrameworkName fallback = %q", got)
	}
}
