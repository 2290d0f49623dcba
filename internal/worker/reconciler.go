package worker

import (
	"github.com/vulx-io/vulx/internal/models"
	"github.com/vulx-io/vulx/internal/repository"
)

// ReconcileResult is the triage outcome for one scan's findings.
type ReconcileResult struct {
	Records     []models.FindingRecord
	New         int
	Regressions int
	Inherited   int
	Suppressed  int
}

// Reconcile folds the current findings into the historical state map:
//
//	absent                    -> insert OPEN
//	prev FIXED                -> insert OPEN, notes prefixed REGRESSION,
//	                             assignee preserved (regression)
//	prev FALSE_POSITIVE       -> suppressed, no insert
//	prev ACCEPTED             -> suppressed, no insert
//	prev OPEN / IN_PROGRESS   -> insert inheriting status, notes, assignee
func Reconcile(scanID string, findings []models.Finding, previous map[string]models.FindingRecord) ReconcileResult {
	var result ReconcileResult

	for _, f := range findings {
		rec := models.FindingRecord{
			ScanID:        scanID,
			Type:          f.Type,
			Severity:      f.Severity,
			Description:   f.Description,
			Endpoint:      f.Endpoint,
			Method:        f.Method,
			Remediation:   f.Remediation,
			OWASPCategory: f.OWASPCategory,
			CWEID:         f.CWEID,
			Evidence:      f.Evidence,
			Status:        models.FindingStatusOpen,
		}

		prev, seen := previous[repository.StateKey(f.Type, f.Method, f.Endpoint)]
		if !seen {
			result.New++
			result.Records = append(result.Records, rec)
			continue
		}

		switch prev.Status {
		case models.FindingStatusFixed:
			rec.Status = models.FindingStatusOpen
			rec.ResolutionNotes = regressionNotes(prev.ResolutionNotes)
			rec.AssignedTo = prev.AssignedTo
			result.Regressions++

		case models.FindingStatusFalsePositive, models.FindingStatusAccepted:
			result.Suppressed++
			continue

		default: // OPEN, IN_PROGRESS
			rec.Status = prev.Status
			rec.ResolutionNotes = prev.ResolutionNotes
			rec.AssignedTo = prev.AssignedTo
			result.Inherited++
		}
		result.Records = append(result.Records, rec)
	}
	return result
}

func regressionNotes(previousNotes string) string {
	if previousNotes == "" {
		return "REGRESSION: finding reappeared after being marked FIXED"
	}
	return "REGRESSION: " + previousNotes
}
