package models

// CustomRule is a user-defined content rule from the "CustomRule" table.
// PatternType is one of regex, contains, exact, json_path; Target names
// what the pattern runs against (response, request, header, url, body).
type CustomRule struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Pattern        string   `json:"pattern"`
	PatternType    string   `json:"patternType"`
	Target         string   `json:"target"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message,omitempty"`
	OrganizationID string   `json:"organizationId"`
	IsActive       bool     `json:"isActive"`
}
