// Package repository persists scans and findings to the platform
// database. Table and column identifiers are quoted camelCase because
// the dashboard ORM owns the schema.
package repository

import (
	"database/sql"
	"fmt"

	"github.com/vulx-io/vulx/internal/models"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// GetByID loads one scan row.
func (r *ScanRepository) GetByID(scanID string) (*models.Scan, error) {
	query := `
		SELECT id, "projectId", environment, status, "createdAt", "completedAt"
		FROM "Scan"
		WHERE id = $1`

	scan := &models.Scan{}
	var completedAt sql.NullTime
	err := r.db.QueryRow(query, scanID).Scan(
		&scan.ID,
		&scan.ProjectID,
		&scan.Environment,
		&scan.Status,
		&scan.CreatedAt,
		&completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("scan %s not found", scanID)
		}
		return nil, fmt.Errorf("failed to load scan %s: %w", scanID, err)
	}
	if completedAt.Valid {
		scan.CompletedAt = &completedAt.Time
	}
	return scan, nil
}

// UpdateStatus is a single-statement status transition.
func (r *ScanRepository) UpdateStatus(scanID, status string) error {
	_, err := r.db.Exec(`UPDATE "Scan" SET status = $2 WHERE id = $1`, scanID, status)
	if err != nil {
		return fmt.Errorf("failed to update scan %s status: %w", scanID, err)
	}
	return nil
}

// MarkCompleted sets the terminal status and stamps completion time.
func (r *ScanRepository) MarkCompleted(scanID, status string) error {
	_, err := r.db.Exec(
		`UPDATE "Scan" SET status = $2, "completedAt" = now() WHERE id = $1`,
		scanID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to complete scan %s: %w", scanID, err)
	}
	return nil
}

// GetProjectEnvironment returns the reconciliation scope of a scan.
func (r *ScanRepository) GetProjectEnvironment(scanID string) (projectID, environment string, err error) {
	query := `SELECT "projectId", environment FROM "Scan" WHERE id = $1`
	if err = r.db.QueryRow(query, scanID).Scan(&projectID, &environment); err != nil {
		if err == sql.ErrNoRows {
			return "", "", fmt.Errorf("scan %s not found", scanID)
		}
		return "", "", fmt.Errorf("failed to load scan %s scope: %w", scanID, err)
	}
	return projectID, environment, nil
}
