// Package remediation turns security findings into actionable fix
// guidance: step-by-step instructions, references, and language-specific
// code examples.
package remediation

import (
	"fmt"
	"strings"

	"github.com/vulx-io/vulx/internal/models"
)

// Language selects which code examples are returned.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
	LangGo         Language = "go"
	LangCSharp     Language = "csharp"
	LangPHP        Language = "php"
	LangRuby       Language = "ruby"
)

// Fix priorities.
const (
	PriorityImmediate  = "immediate"
	PriorityShortTerm  = "short_term"
	PriorityMediumTerm = "medium_term"
)

// Remediation is the fix guidance attached to a finding.
type Remediation struct {
	Description           string   `json:"description"`
	Priority              string   `json:"priority"`
	Effort                string   `json:"effort"`
	CodeExample           string   `json:"code_example,omitempty"`
	Steps                 []string `json:"steps"`
	References            []string `json:"references"`
	AutomatedFixAvailable bool     `json:"automated_fix_available"`
}

type template struct {
	description  string
	priority     string
	effort       string
	steps        []string
	references   []string
	exampleOrder []Language
	codeExamples map[Language]string
}

// cweToType maps CWE identifiers to remediation template keys.
var cweToType = map[string]string{
	"CWE-89":  "sql_injection",
	"CWE-79":  "xss",
	"CWE-639": "bola",
	"CWE-287": "broken_auth",
	"CWE-306": "broken_auth",
	"CWE-770": "rate_limiting",
	"CWE-918": "ssrf",
	"CWE-16":  "security_headers",
	"CWE-693": "security_headers",
}

// owaspToType maps OWASP API Top 10 categories to remediation
// template keys. API3 shares the bola fix pattern.
var owaspToType = map[string]string{
	"API1:2023": "bola",
	"API2:2023": "broken_auth",
	"API3:2023": "bola",
	"API4:2023": "rate_limiting",
	"API7:2023": "ssrf",
	"API8:2023": "security_headers",
}

var effortHours = map[string]int{
	"low":    2,
	"medium": 8,
	"high":   24,
}

// Engine produces remediation guidance for findings.
type Engine struct {
	preferred Language
}

// NewEngine returns an engine defaulting to JavaScript code examples.
func NewEngine() *Engine {
	return &Engine{preferred: LangJavaScript}
}

// SetPreferredLanguage changes the default code example language.
func (e *Engine) SetPreferredLanguage(lang Language) {
	e.preferred = lang
}

// GetRemediation returns fix guidance for a finding. An empty language
// falls back to the engine's preferred language; a language without an
// example for that template falls back to the template's first example.
func (e *Engine) GetRemediation(f models.Finding, lang Language) Remediation {
	if lang == "" {
		lang = e.preferred
	}

	key := remediationType(f)
	tmpl, ok := templates[key]
	if key == "" || !ok {
		return genericRemediation(f)
	}

	example := tmpl.codeExamples[lang]
	if example == "" && len(tmpl.exampleOrder) > 0 {
		example = tmpl.codeExamples[tmpl.exampleOrder[0]]
	}

	return Remediation{
		Description: tmpl.description,
		Priority:    tmpl.priority,
		Effort:      tmpl.effort,
		CodeExample: example,
		Steps:       tmpl.steps,
		References:  tmpl.references,
	}
}

func genericRemediation(f models.Finding) Remediation {
	return Remediation{
		Description: fmt.Sprintf("Review and fix the %s vulnerability. Implement proper input validation, output encoding, and access controls.", f.Type),
		Priority:    PriorityShortTerm,
		Effort:      "medium",
		Steps: []string{
			"Analyze the finding and understand the attack vector",
			"Implement appropriate security controls",
			"Test the fix thoroughly",
			"Add security tests to prevent regression",
		},
		References: []string{"https://owasp.org/www-project-web-security-testing-guide/"},
	}
}

// remediationType resolves the template key for a finding: CWE first,
// then OWASP category, then keywords in the finding type.
func remediationType(f models.Finding) string {
	if f.CWEID != "" {
		cweKey := "CWE-" + strings.TrimPrefix(f.CWEID, "CWE-")
		if t, ok := cweToType[cweKey]; ok {
			return t
		}
	}

	if f.OWASPCategory != "" {
		owaspID := f.OWASPCategory
		if idx := strings.Index(owaspID, " - "); idx >= 0 {
			owaspID = owaspID[:idx]
		}
		if t, ok := owaspToType[owaspID]; ok {
			return t
		}
	}

	lower := strings.ToLower(f.Type)
	keywordTypes := []struct {
		keywords []string
		fixType  string
	}{
		{[]string{"sql", "injection", "sqli"}, "sql_injection"},
		{[]string{"xss", "cross-site scripting", "script"}, "xss"},
		{[]string{"bola", "idor", "authorization"}, "bola"},
		{[]string{"auth", "login", "password"}, "broken_auth"},
		{[]string{"rate", "limit", "dos", "throttl"}, "rate_limiting"},
		{[]string{"ssrf", "server-side request"}, "ssrf"},
	}
	for _, kt := range keywordTypes {
		for _, kw := range kt.keywords {
			if strings.Contains(lower, kw) {
				return kt.fixType
			}
		}
	}

	return ""
}

// GetAllRemediations deduplicates fix guidance across a finding set,
// grouped by priority. Each fix type appears once.
func (e *Engine) GetAllRemediations(findings []models.Finding, lang Language) map[string][]Remediation {
	if lang == "" {
		lang = e.preferred
	}

	remediations := map[string][]Remediation{
		PriorityImmediate:  {},
		PriorityShortTerm:  {},
		PriorityMediumTerm: {},
	}
	seen := make(map[string]bool)

	for _, f := range findings {
		key := remediationType(f)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		r := e.GetRemediation(f, lang)
		remediations[r.Priority] = append(remediations[r.Priority], r)
	}

	return remediations
}

// EffortEstimate summarizes the work needed to fix a finding set.
type EffortEstimate struct {
	TotalEstimatedHours int            `json:"total_estimated_hours"`
	ByPriority          map[string]int `json:"by_priority"`
	UniqueFixTypes      int            `json:"unique_fix_types"`
	Recommendation      string         `json:"recommendation"`
}

// EstimateFixEffort sums per-fix-type hours (low=2, medium=8, high=24)
// and produces a planning recommendation.
func (e *Engine) EstimateFixEffort(findings []models.Finding) EffortEstimate {
	byPriority := map[string]int{
		PriorityImmediate:  0,
		PriorityShortTerm:  0,
		PriorityMediumTerm: 0,
	}

	total := 0
	seen := make(map[string]bool)

	for _, f := range findings {
		key := remediationType(f)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if tmpl, ok := templates[key]; ok {
			hours := effortHours[tmpl.effort]
			total += hours
			byPriority[tmpl.priority] += hours
		}
	}

	return EffortEstimate{
		TotalEstimatedHours: total,
		ByPriority:          byPriority,
		UniqueFixTypes:      len(seen),
		Recommendation:      effortRecommendation(total),
	}
}

func effortRecommendation(hours int) string {
	switch {
	case hours <= 8:
		return "Fixes can likely be completed in a single sprint"
	case hours <= 40:
		return "Plan for 1-2 weeks of dedicated security work"
	case hours <= 80:
		return "Consider dedicating a full sprint to security improvements"
	default:
		return "Significant security debt - consider a phased remediation approach"
	}
}
