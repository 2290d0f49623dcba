package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/vulx-io/vulx/internal/models"
)

type FindingRepository struct {
	db *sql.DB
}

func NewFindingRepository(db *sql.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// Insert persists one finding row; the database generates the id.
func (r *FindingRepository) Insert(rec models.FindingRecord) error {
	query := `
		INSERT INTO "Finding" (
			id, "scanId", type, severity, description, endpoint, method,
			remediation, "owaspCategory", "cweId", evidence, "createdAt",
			status, "resolutionNotes", "assignedTo"
		) VALUES (
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			now(), $11, $12, $13
		)`

	_, err := r.db.Exec(
		query,
		rec.ScanID,
		rec.Type,
		rec.Severity,
		rec.Description,
		rec.Endpoint,
		rec.Method,
		rec.Remediation,
		rec.OWASPCategory,
		rec.CWEID,
		rec.Evidence,
		rec.Status,
		nullable(rec.ResolutionNotes),
		nullable(rec.AssignedTo),
	)
	if err != nil {
		return fmt.Errorf("failed to insert finding for scan %s: %w", rec.ScanID, err)
	}
	return nil
}

// ListByScan returns findings of one scan, newest first.
func (r *FindingRepository) ListByScan(scanID string) ([]models.FindingRecord, error) {
	query := `
		SELECT id, "scanId", type, severity, description, endpoint, method,
		       remediation, "owaspCategory", "cweId", evidence, "createdAt",
		       status, "resolutionNotes", "assignedTo"
		FROM "Finding"
		WHERE "scanId" = $1
		ORDER BY "createdAt" DESC`

	rows, err := r.db.Query(query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings for scan %s: %w", scanID, err)
	}
	defer rows.Close()

	var records []models.FindingRecord
	for rows.Next() {
		rec, err := scanFindingRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StateKey is the natural identity of a finding across scans.
func StateKey(findingType, method, endpoint string) string {
	return findingType + "|" + strings.ToUpper(method) + "|" + endpoint
}

// PreviousStates builds the reconciliation state map: for every natural
// key seen in any COMPLETED scan of the project+environment, the most
// recent finding row.
func (r *FindingRepository) PreviousStates(projectID, environment string) (map[string]models.FindingRecord, error) {
	query := `
		SELECT f.id, f."scanId", f.type, f.severity, f.description, f.endpoint,
		       f.method, f.remediation, f."owaspCategory", f."cweId", f.evidence,
		       f."createdAt", f.status, f."resolutionNotes", f."assignedTo"
		FROM "Finding" f
		JOIN "Scan" s ON s.id = f."scanId"
		WHERE s."projectId" = $1 AND s.environment = $2 AND s.status = 'COMPLETED'
		ORDER BY f."createdAt" DESC`

	rows, err := r.db.Query(query, projectID, environment)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous finding states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]models.FindingRecord)
	for rows.Next() {
		rec, err := scanFindingRow(rows)
		if err != nil {
			return nil, err
		}
		key := StateKey(rec.Type, rec.Method, rec.Endpoint)
		// Rows arrive newest first; the first row per key wins.
		if _, ok := states[key]; !ok {
			states[key] = rec
		}
	}
	return states, rows.Err()
}

func scanFindingRow(rows *sql.Rows) (models.FindingRecord, error) {
	var rec models.FindingRecord
	var remediation, owasp, cwe, evidence, notes, assignee sql.NullString
	err := rows.Scan(
		&rec.ID,
		&rec.ScanID,
		&rec.Type,
		&rec.Severity,
		&rec.Description,
		&rec.Endpoint,
		&rec.Method,
		&remediation,
		&owasp,
		&cwe,
		&evidence,
		&rec.CreatedAt,
		&rec.Status,
		&notes,
		&assignee,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan finding row: %w", err)
	}
	rec.Remediation = remediation.String
	rec.OWASPCategory = owasp.String
	rec.CWEID = cwe.String
	rec.Evidence = evidence.String
	rec.ResolutionNotes = notes.String
	rec.AssignedTo = assignee.String
	return rec, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
