package repository

import (
	"database/sql"
	"fmt"

	"github.com/vulx-io/vulx/internal/models"
)

type CustomRuleRepository struct {
	db *sql.DB
}

func NewCustomRuleRepository(db *sql.DB) *CustomRuleRepository {
	return &CustomRuleRepository{db: db}
}

// ListActive loads the enabled custom rules of one organization.
func (r *CustomRuleRepository) ListActive(organizationID string) ([]models.CustomRule, error) {
	query := `
		SELECT id, name, description, pattern, "patternType",
		       target, severity, message
		FROM "CustomRule"
		WHERE "organizationId" = $1 AND "isActive" = true`

	rows, err := r.db.Query(query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load custom rules: %w", err)
	}
	defer rows.Close()

	var rules []models.CustomRule
	for rows.Next() {
		var rule models.CustomRule
		var description, message sql.NullString
		err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&description,
			&rule.Pattern,
			&rule.PatternType,
			&rule.Target,
			&rule.Severity,
			&message,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom rule row: %w", err)
		}
		rule.Description = description.String
		rule.Message = message.String
		rule.OrganizationID = organizationID
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
