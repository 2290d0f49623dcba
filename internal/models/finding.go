package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity classifies how dangerous a finding is.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Rank returns the numeric rank of a severity (CRITICAL=5 .. INFO=1).
// Unknown values rank 0 and lose every comparison.
func (s Severity) Rank() int {
	switch Severity(strings.ToUpper(string(s))) {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// RiskWeight returns the contribution of a single finding to the scan risk score.
func (s Severity) RiskWeight() int {
	switch Severity(strings.ToUpper(string(s))) {
	case SeverityCritical:
		return 25
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 2
	default:
		return 0
	}
}

// ParseSeverity normalizes a tool-reported severity string. Unknown values
// degrade to INFO rather than dropping the finding.
func ParseSeverity(v string) Severity {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MEDIUM":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Confidence expresses how certain the reporting engine is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Engine origin tags. Every finding names the engine that produced it.
const (
	EngineStatic   = "static"
	EngineTemplate = "template"
	EngineFuzzer   = "fuzzer"
	EngineDAST     = "dast"
	EngineCustom   = "custom"
)

// Finding is the normalized shape every engine adapter emits. Once emitted
// a finding is treated as immutable except for enrichment (compliance
// mappings and remediation text) applied by the orchestrator.
type Finding struct {
	ID                 string              `json:"id"`
	Engine             string              `json:"engine"`
	Type               string              `json:"type"`
	Severity           Severity            `json:"severity"`
	Confidence         Confidence          `json:"confidence"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Endpoint           string              `json:"endpoint"`
	Method             string              `json:"method"`
	Parameter          string              `json:"parameter,omitempty"`
	Evidence           string              `json:"evidence,omitempty"`
	Request            string              `json:"request,omitempty"`
	Response           string              `json:"response,omitempty"`
	Remediation        string              `json:"remediation,omitempty"`
	CodeFix            string              `json:"code_fix,omitempty"`
	CWEID              string              `json:"cwe_id,omitempty"`
	CVEID              string              `json:"cve_id,omitempty"`
	CVSSScore          float64             `json:"cvss_score,omitempty"`
	OWASPCategory      string              `json:"owasp_category,omitempty"`
	ComplianceMappings map[string][]string `json:"compliance_mappings,omitempty"`
	References         []string            `json:"references,omitempty"`
	DetectedAt         time.Time           `json:"detected_at"`
}

// NewFindingID builds an engine-prefixed identifier like "static-3fa9c1d2".
func NewFindingID(prefix string) string {
	hex := fmt.Sprintf("%x", uuid.New())
	return prefix + "-" + hex[:8]
}

// Summary aggregates finding statistics for a completed scan.
type Summary struct {
	Total         int              `json:"total"`
	BySeverity    map[Severity]int `json:"by_severity"`
	ByType        map[string]int   `json:"by_type"`
	ByEndpoint    map[string]int   `json:"by_endpoint"`
	ByEngine      map[string]int   `json:"by_engine"`
	CriticalCount int              `json:"critical_count"`
	HighCount     int              `json:"high_count"`
	Actionable    int              `json:"actionable"`
	Error         string           `json:"error,omitempty"`
}

// BuildSummary tallies findings by severity, type, engine and endpoint.
// The endpoint map keeps only the ten endpoints with the most findings.
func BuildSummary(findings []Finding) Summary {
	bySeverity := map[Severity]int{
		SeverityCritical: 0,
		SeverityHigh:     0,
		SeverityMedium:   0,
		SeverityLow:      0,
		SeverityInfo:     0,
	}
	byType := make(map[string]int)
	byEndpoint := make(map[string]int)
	byEngine := make(map[string]int)

	for _, f := range findings {
		bySeverity[f.Severity]++
		byType[f.Type]++
		byEndpoint[f.Endpoint]++
		byEngine[f.Engine]++
	}

	return Summary{
		Total:         len(findings),
		BySeverity:    bySeverity,
		ByType:        byType,
		ByEndpoint:    topEndpoints(byEndpoint, 10),
		ByEngine:      byEngine,
		CriticalCount: bySeverity[SeverityCritical],
		HighCount:     bySeverity[SeverityHigh],
		Actionable:    bySeverity[SeverityCritical] + bySeverity[SeverityHigh],
	}
}

// topEndpoints keeps the n busiest endpoints, counting ties deterministically
// by endpoint name.
func topEndpoints(counts map[string]int, n int) map[string]int {
	type entry struct {
		endpoint string
		count    int
	}
	entries := make([]entry, 0, len(counts))
	for ep, c := range counts {
		entries = append(entries, entry{ep, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].endpoint < entries[j].endpoint
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	top := make(map[string]int, len(entries))
	for _, e := range entries {
		top[e.endpoint] = e.count
	}
	return top
}

// RiskScore computes the overall 0..100 risk of a finding set. Weights:
// CRITICAL 25, HIGH 15, MEDIUM 5, LOW 2, INFO 0, capped at 100.
func RiskScore(findings []Finding) int {
	if len(findings) == 0 {
		return 0
	}
	total := 0
	for _, f := range findings {
		total += f.Severity.RiskWeight()
	}
	if total > 100 {
		return 100
	}
	return total
}
