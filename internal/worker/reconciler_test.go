package worker

import (
	"testing"

	"github.com/vulx-io/vulx/internal/models"
	"github.com/vulx-io/vulx/internal/repository"
)

func current(typ, method, endpoint string) models.Finding {
	return models.Finding{
		Type:     typ,
		Severity: models.SeverityHigh,
		Endpoint: endpoint,
		Method:   method,
	}
}

func previousState(status, notes, assignee string) models.FindingRecord {
	return models.FindingRecord{
		Status:          status,
		ResolutionNotes: notes,
		AssignedTo:      assignee,
	}
}

func TestReconcileNewFinding(t *testing.T) {
	result := Reconcile("scan-1", []models.Finding{current("sqli", "GET", "/users")}, nil)

	if result.New != 1 || len(result.Records) != 1 {
		t.Fatalf("result = %+v", result)
	}
	rec := result.Records[0]
	if rec.Status != models.FindingStatusOpen {
		t.Errorf("Status = %q", rec.Status)
	}
	if rec.ScanID != "scan-1" {
		t.Errorf("ScanID = %q", rec.ScanID)
	}
}

func TestReconcileRegression(t *testing.T) {
	previous := map[string]models.FindingRecord{
		repository.StateKey("sqli", "GET", "/users"): previousState(models.FindingStatusFixed, "patched in v2.1", "alice"),
	}

	result := Reconcile("scan-2", []models.Finding{current("sqli", "GET", "/users")}, previous)

	if result.Regressions != 1 {
		t.Fatalf("Regressions = %d", result.Regressions)
	}
	rec := result.Records[0]
	if rec.Status != models.FindingStatusOpen {
		t.Errorf("Status = %q, want OPEN", rec.Status)
	}
	if rec.ResolutionNotes != "REGRESSION: patched in v2.1" {
		t.Errorf("ResolutionNotes = %q", rec.ResolutionNotes)
	}
	if rec.AssignedTo != "alice" {
		t.Errorf("AssignedTo = %q, want preserved assignee", rec.AssignedTo)
	}
}

func TestReconcileRegressionWithoutNotes(t *testing.T) {
	previous := map[string]models.FindingRecord{
		repository.StateKey("sqli", "GET", "/users"): previousState(models.FindingStatusFixed, "", ""),
	}
	result := Reconcile("scan-2", []models.Finding{current("sqli", "GET", "/users")}, previous)
	if result.Records[0].ResolutionNotes != "REGRESSION: finding reappeared after being marked FIXED" {
		t.Errorf("ResolutionNotes = %q", result.Records[0].ResolutionNotes)
	}
}

func TestReconcileSuppressed(t *testing.T) {
	previous := map[string]models.FindingRecord{
		repository.StateKey("sqli", "GET", "/users"):  previousState(models.FindingStatusFalsePositive, "not exploitable", "bob"),
		repository.StateKey("xss", "GET", "/search"):  previousState(models.FindingStatusAccepted, "risk accepted", ""),
		repository.StateKey("csrf", "POST", "/forms"): previousState(models.FindingStatusOpen, "", ""),
	}

	result := Reconcile("scan-2", []models.Finding{
		current("sqli", "GET", "/users"),
		current("xss", "GET", "/search"),
		current("csrf", "POST", "/forms"),
	}, previous)

	if result.Suppressed != 2 {
		t.Errorf("Suppressed = %d, want 2", result.Suppressed)
	}
	if result.Inherited != 1 {
		t.Errorf("Inherited = %d, want 1", result.Inherited)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	if result.Records[0].Type != "csrf" {
		t.Errorf("kept %q", result.Records[0].Type)
	}
}

func TestReconcileInheritsInProgress(t *testing.T) {
	previous := map[string]models.FindingRecord{
		repository.StateKey("sqli", "GET", "/users"): previousState(models.FindingStatusInProgress, "working on it", "carol"),
	}
	result := Reconcile("scan-2", []models.Finding{current("sqli", "GET", "/users")}, previous)

	rec := result.Records[0]
	if rec.Status != models.FindingStatusInProgress {
		t.Errorf("Status = %q", rec.Status)
	}
	if rec.ResolutionNotes != "working on it" || rec.AssignedTo != "carol" {
		t.Errorf("record = %+v", rec)
	}
}

func TestReconcileMethodCaseInsensitive(t *testing.T) {
	previous := map[string]models.FindingRecord{
		repository.StateKey("sqli", "GET", "/users"): previousState(models.FindingStatusAccepted, "", ""),
	}
	result := Reconcile("scan-2", []models.Finding{current("sqli", "get", "/users")}, previous)
	if result.Suppressed != 1 || len(result.Records) != 0 {
		t.Errorf("lowercase method should match the state map: %+v", result)
	}
}
