// Package compliance maps security findings to compliance framework
// controls (SOC 2, PCI-DSS v4.0, HIPAA, GDPR, ISO 27001, NIST CSF,
// CIS Controls v8).
package compliance

import (
	"sort"
	"strings"
	"time"

	"github.com/vulx-io/vulx/internal/models"
)

// Framework identifiers.
const (
	FrameworkSOC2        = "soc2"
	FrameworkPCIDSS      = "pci_dss"
	FrameworkHIPAA       = "hipaa"
	FrameworkGDPR        = "gdpr"
	FrameworkISO27001    = "iso_27001"
	FrameworkNISTCSF     = "nist_csf"
	FrameworkCISControls = "cis_controls"
)

// AllFrameworks lists every supported framework in display order.
var AllFrameworks = []string{
	FrameworkSOC2, FrameworkPCIDSS, FrameworkHIPAA, FrameworkGDPR,
	FrameworkISO27001, FrameworkNISTCSF, FrameworkCISControls,
}

var frameworkNames = map[string]string{
	FrameworkSOC2:        "SOC 2 Type II",
	FrameworkPCIDSS:      "PCI-DSS v4.0",
	FrameworkHIPAA:       "HIPAA Security Rule",
	FrameworkGDPR:        "GDPR",
	FrameworkISO27001:    "ISO 27001:2022",
	FrameworkNISTCSF:     "NIST Cybersecurity Framework",
	FrameworkCISControls: "CIS Controls v8",
}

// Control carries the audit metadata for a single framework control.
type Control struct {
	Framework        string `json:"framework"`
	ControlID        string `json:"control_id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	RequirementLevel string `json:"requirement_level"`
}

// cweMappings maps CWE identifiers to affected controls per framework.
var cweMappings = map[string]map[string][]string{
	// SQL Injection
	"CWE-89": {
		FrameworkSOC2:        {"CC6.1", "CC6.6", "CC7.1", "CC7.2"},
		FrameworkPCIDSS:      {"6.2.4", "6.3.1", "6.5.1"},
		FrameworkHIPAA:       {"164.312(a)(1)", "164.312(a)(2)(iv)"},
		FrameworkGDPR:        {"Art. 32(1)(b)", "Art. 32(1)(d)"},
		FrameworkISO27001:    {"A.14.2.5", "A.14.1.2"},
		FrameworkNISTCSF:     {"PR.DS-2", "PR.DS-5"},
		FrameworkCISControls: {"16.1", "16.11"},
	},
	// Cross-Site Scripting
	"CWE-79": {
		FrameworkSOC2:        {"CC6.1", "CC6.6", "CC7.1"},
		FrameworkPCIDSS:      {"6.2.4", "6.5.7"},
		FrameworkHIPAA:       {"164.312(a)(1)"},
		FrameworkGDPR:        {"Art. 32(1)(b)"},
		FrameworkISO27001:    {"A.14.2.5"},
		FrameworkNISTCSF:     {"PR.DS-5"},
		FrameworkCISControls: {"16.1"},
	},
	// Broken Authentication
	"CWE-287": {
		FrameworkSOC2:        {"CC6.1", "CC6.2", "CC6.3"},
		FrameworkPCIDSS:      {"8.2.1", "8.3.1", "8.3.2", "8.6.1"},
		FrameworkHIPAA:       {"164.312(d)", "164.312(a)(2)(i)"},
		FrameworkGDPR:        {"Art. 32(1)(b)", "Art. 32(1)(d)"},
		FrameworkISO27001:    {"A.9.2.1", "A.9.4.2", "A.9.4.3"},
		FrameworkNISTCSF:     {"PR.AC-1", "PR.AC-7"},
		FrameworkCISControls: {"5.1", "5.2", "6.3"},
	},
	// Sensitive Data Exposure
	"CWE-200": {
		FrameworkSOC2:        {"CC6.1", "CC6.7", "P4.1"},
		FrameworkPCIDSS:      {"3.4.1", "4.2.1", "8.3.1"},
		FrameworkHIPAA:       {"164.312(a)(2)(iv)", "164.312(e)(2)(ii)"},
		FrameworkGDPR:        {"Art. 32(1)(a)", "Art. 5(1)(f)"},
		FrameworkISO27001:    {"A.8.2.3", "A.13.2.3"},
		FrameworkNISTCSF:     {"PR.DS-1", "PR.DS-2"},
		FrameworkCISControls: {"3.10", "3.11"},
	},
	// BOLA / IDOR
	"CWE-639": {
		FrameworkSOC2:        {"CC6.1", "CC6.3", "CC6.6"},
		FrameworkPCIDSS:      {"7.1.1", "7.2.1", "7.3.1"},
		FrameworkHIPAA:       {"164.312(a)(1)", "164.312(a)(2)(i)"},
		FrameworkGDPR:        {"Art. 32(1)(b)", "Art. 25(2)"},
		FrameworkISO27001:    {"A.9.1.1", "A.9.4.1"},
		FrameworkNISTCSF:     {"PR.AC-4", "PR.PT-3"},
		FrameworkCISControls: {"6.1", "6.2"},
	},
	// SSRF
	"CWE-918": {
		FrameworkSOC2:        {"CC6.1", "CC6.6", "CC7.2"},
		FrameworkPCIDSS:      {"6.2.4", "6.5.8"},
		FrameworkHIPAA:       {"164.312(a)(1)"},
		FrameworkGDPR:        {"Art. 32(1)(b)"},
		FrameworkISO27001:    {"A.13.1.1", "A.14.1.2"},
		FrameworkNISTCSF:     {"PR.DS-5", "DE.CM-1"},
		FrameworkCISControls: {"12.1", "13.1"},
	},
	// Security Misconfiguration
	"CWE-16": {
		FrameworkSOC2:        {"CC6.1", "CC6.6", "CC7.1"},
		FrameworkPCIDSS:      {"2.2.1", "6.4.1", "6.4.2"},
		FrameworkHIPAA:       {"164.312(a)(2)(iv)"},
		FrameworkGDPR:        {"Art. 32(1)(d)"},
		FrameworkISO27001:    {"A.12.6.1", "A.14.2.8"},
		FrameworkNISTCSF:     {"PR.IP-1", "PR.IP-2"},
		FrameworkCISControls: {"4.1", "4.2"},
	},
	// Missing Rate Limiting
	"CWE-770": {
		FrameworkSOC2:        {"CC6.1", "CC6.6", "A1.2"},
		FrameworkPCIDSS:      {"6.5.10", "11.4.1"},
		FrameworkHIPAA:       {"164.312(a)(2)(i)"},
		FrameworkGDPR:        {"Art. 32(1)(b)"},
		FrameworkISO27001:    {"A.12.1.3", "A.13.1.2"},
		FrameworkNISTCSF:     {"PR.DS-4", "DE.CM-1"},
		FrameworkCISControls: {"9.2", "13.8"},
	},
	// Cryptographic Failures
	"CWE-327": {
		FrameworkSOC2:        {"CC6.1", "CC6.7"},
		FrameworkPCIDSS:      {"3.6.1", "4.2.1", "4.2.2"},
		FrameworkHIPAA:       {"164.312(a)(2)(iv)", "164.312(e)(2)(ii)"},
		FrameworkGDPR:        {"Art. 32(1)(a)"},
		FrameworkISO27001:    {"A.10.1.1", "A.10.1.2"},
		FrameworkNISTCSF:     {"PR.DS-1", "PR.DS-2"},
		FrameworkCISControls: {"3.10", "3.11"},
	},
	// Path Traversal
	"CWE-22": {
		FrameworkSOC2:        {"CC6.1", "CC6.6"},
		FrameworkPCIDSS:      {"6.2.4", "6.5.8"},
		FrameworkHIPAA:       {"164.312(a)(1)"},
		FrameworkGDPR:        {"Art. 32(1)(b)"},
		FrameworkISO27001:    {"A.14.2.5"},
		FrameworkNISTCSF:     {"PR.DS-5"},
		FrameworkCISControls: {"16.1"},
	},
	// Insufficient Logging
	"CWE-778": {
		FrameworkSOC2:        {"CC7.2", "CC7.3", "CC7.4"},
		FrameworkPCIDSS:      {"10.2.1", "10.3.1", "10.4.1"},
		FrameworkHIPAA:       {"164.312(b)"},
		FrameworkGDPR:        {"Art. 30", "Art. 33"},
		FrameworkISO27001:    {"A.12.4.1", "A.12.4.2"},
		FrameworkNISTCSF:     {"DE.AE-3", "DE.CM-1"},
		FrameworkCISControls: {"8.2", "8.5"},
	},
}

// owaspMappings maps OWASP API Top 10 (2023) categories to controls.
var owaspMappings = map[string]map[string][]string{
	"API1:2023": { // Broken Object Level Authorization
		FrameworkSOC2:   {"CC6.1", "CC6.3"},
		FrameworkPCIDSS: {"7.1.1", "7.2.1"},
		FrameworkHIPAA:  {"164.312(a)(1)"},
		FrameworkGDPR:   {"Art. 32(1)(b)"},
	},
	"API2:2023": { // Broken Authentication
		FrameworkSOC2:   {"CC6.1", "CC6.2", "CC6.3"},
		FrameworkPCIDSS: {"8.2.1", "8.3.1"},
		FrameworkHIPAA:  {"164.312(d)"},
		FrameworkGDPR:   {"Art. 32(1)(b)"},
	},
	"API3:2023": { // Broken Object Property Level Authorization
		FrameworkSOC2:   {"CC6.1", "CC6.3"},
		FrameworkPCIDSS: {"7.1.1"},
		FrameworkHIPAA:  {"164.312(a)(1)"},
		FrameworkGDPR:   {"Art. 25(2)"},
	},
	"API4:2023": { // Unrestricted Resource Consumption
		FrameworkSOC2:   {"CC6.1", "A1.2"},
		FrameworkPCIDSS: {"6.5.10"},
		FrameworkHIPAA:  {"164.312(a)(2)(i)"},
		FrameworkGDPR:   {"Art. 32(1)(b)"},
	},
	"API5:2023": { // Broken Function Level Authorization
		FrameworkSOC2:   {"CC6.1", "CC6.3"},
		FrameworkPCIDSS: {"7.1.1", "7.2.1"},
		FrameworkHIPAA:  {"164.312(a)(1)"},
		FrameworkGDPR:   {"Art. 32(1)(b)"},
	},
	"API6:2023": { // Unrestricted Access to Sensitive Business Flows
		FrameworkSOC2:   {"CC6.1", "CC6.6"},
		FrameworkPCIDSS: {"6.5.10"},
		FrameworkHIPAA:  {"164.312(a)(1)"},
		FrameworkGDPR:   {"Art. 32(1)(b)"},
	},
	"API7:2023": { // Server Side Request Forgery
		FrameworkSOC2:   {"CC6.1", "CC6.6"},
		FrameworkPCIDSS: {"6.5.8"},
		FrameworkHIPAA:  {"164.312(a)(1)"},
		FrameworkGDPR:   {"Art. 32(1)(b)"},
	},
	"API8:2023": { // Security Misconfiguration
		FrameworkSOC2:   {"CC6.1", "CC6.6", "CC7.1"},
		FrameworkPCIDSS: {"2.2.1", "6.4.1"},
		FrameworkHIPAA:  {"164.312(a)(2)(iv)"},
		FrameworkGDPR:   {"Art. 32(1)(d)"},
	},
	"API9:2023": { // Improper Inventory Management
		FrameworkSOC2:   {"CC6.1", "CC7.1"},
		FrameworkPCIDSS: {"2.4", "6.3.2"},
		FrameworkHIPAA:  {"164.312(a)(1)"},
		FrameworkGDPR:   {"Art. 30"},
	},
	"API10:2023": { // Unsafe Consumption of APIs
		FrameworkSOC2:   {"CC6.1", "CC9.2"},
		FrameworkPCIDSS: {"6.4.3", "12.8.1"},
		FrameworkHIPAA:  {"164.314(a)(2)(i)"},
		FrameworkGDPR:   {"Art. 28"},
	},
}

// controlDetails holds audit metadata for the controls referenced most
// often. Unknown controls degrade to id-only entries in reports.
var controlDetails = map[string]map[string]Control{
	FrameworkSOC2: {
		"CC6.1": {"SOC 2", "CC6.1", "Logical and Physical Access Controls", "The entity implements logical access security software, infrastructure, and architectures over protected information assets to protect them from security events to meet the entity's objectives.", "Common Criteria", "required"},
		"CC6.2": {"SOC 2", "CC6.2", "Authentication Controls", "Prior to issuing system credentials and granting system access, the entity registers and authorizes new internal and external users.", "Common Criteria", "required"},
		"CC6.3": {"SOC 2", "CC6.3", "Authorization Controls", "The entity authorizes, modifies, or removes access to data, software, functions, and other protected information assets based on roles.", "Common Criteria", "required"},
		"CC6.6": {"SOC 2", "CC6.6", "Security Measures Against Threats", "The entity implements logical access security measures to protect against threats from sources outside its system boundaries.", "Common Criteria", "required"},
		"CC6.7": {"SOC 2", "CC6.7", "Data Transmission Security", "The entity restricts the transmission, movement, and removal of information to authorized internal and external users and processes.", "Common Criteria", "required"},
		"CC7.1": {"SOC 2", "CC7.1", "Vulnerability Detection", "To meet its objectives, the entity uses detection and monitoring procedures to identify changes to configurations that result in the introduction of new vulnerabilities.", "Common Criteria", "required"},
		"CC7.2": {"SOC 2", "CC7.2", "Security Event Monitoring", "The entity monitors system components and the operation of those components for anomalies that are indicative of malicious acts.", "Common Criteria", "required"},
	},
	FrameworkPCIDSS: {
		"6.2.4": {"PCI-DSS v4.0", "6.2.4", "Secure Coding Techniques", "Software engineering techniques or other methods are defined and in use by software development personnel to prevent or mitigate common software attacks.", "Requirement 6", "required"},
		"6.5.1": {"PCI-DSS v4.0", "6.5.1", "Injection Flaws", "Injection flaws, particularly SQL injection, are addressed in development processes.", "Requirement 6", "required"},
		"8.3.1": {"PCI-DSS v4.0", "8.3.1", "Strong Authentication", "All user access to system components is authenticated via strong authentication.", "Requirement 8", "required"},
	},
	FrameworkHIPAA: {
		"164.312(a)(1)": {"HIPAA", "164.312(a)(1)", "Access Control", "Implement technical policies and procedures for electronic information systems that maintain ePHI to allow access only to authorized persons or software programs.", "Technical Safeguards", "required"},
		"164.312(d)":    {"HIPAA", "164.312(d)", "Person or Entity Authentication", "Implement procedures to verify that a person or entity seeking access to ePHI is the one claimed.", "Technical Safeguards", "required"},
	},
	FrameworkGDPR: {
		"Art. 32(1)(b)": {"GDPR", "Art. 32(1)(b)", "Security of Processing", "The ability to ensure the ongoing confidentiality, integrity, availability and resilience of processing systems and services.", "Article 32", "required"},
		"Art. 32(1)(d)": {"GDPR", "Art. 32(1)(d)", "Security Testing", "A process for regularly testing, assessing and evaluating the effectiveness of technical and organizational measures.", "Article 32", "required"},
	},
}

// Mapper resolves findings to the controls they put at risk.
type Mapper struct {
	enabled map[string]bool
}

// NewMapper returns a mapper with every framework enabled.
func NewMapper() *Mapper {
	m := &Mapper{enabled: make(map[string]bool, len(AllFrameworks))}
	for _, f := range AllFrameworks {
		m.enabled[f] = true
	}
	return m
}

// SetEnabledFrameworks restricts mapping output to the given frameworks.
func (m *Mapper) SetEnabledFrameworks(frameworks []string) {
	m.enabled = make(map[string]bool, len(frameworks))
	for _, f := range frameworks {
		m.enabled[f] = true
	}
}

// MapFinding returns framework -> affected control ids for a finding,
// unioning the CWE-derived and OWASP-derived sets. Control order is
// first-seen and the result is deduplicated, so repeated calls are equal.
func (m *Mapper) MapFinding(f models.Finding) map[string][]string {
	mappings := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	add := func(framework string, controls []string) {
		if !m.enabled[framework] {
			return
		}
		if seen[framework] == nil {
			seen[framework] = make(map[string]bool)
		}
		for _, c := range controls {
			if !seen[framework][c] {
				seen[framework][c] = true
				mappings[framework] = append(mappings[framework], c)
			}
		}
	}

	if f.CWEID != "" {
		cweKey := "CWE-" + strings.TrimPrefix(f.CWEID, "CWE-")
		for framework, controls := range byFramework(cweMappings[cweKey]) {
			add(framework, controls)
		}
	}

	if f.OWASPCategory != "" {
		owaspID := f.OWASPCategory
		if idx := strings.Index(owaspID, " - "); idx >= 0 {
			owaspID = owaspID[:idx]
		}
		for framework, controls := range byFramework(owaspMappings[owaspID]) {
			add(framework, controls)
		}
	}

	return mappings
}

// byFramework iterates a mapping table in the stable AllFrameworks order.
func byFramework(table map[string][]string) map[string][]string {
	if table == nil {
		return nil
	}
	ordered := make(map[string][]string, len(table))
	for _, f := range AllFrameworks {
		if controls, ok := table[f]; ok {
			ordered[f] = controls
		}
	}
	return ordered
}

// GetControlDetails looks up metadata for a control. The second return
// is false when only the id is known.
func (m *Mapper) GetControlDetails(framework, controlID string) (Control, bool) {
	c, ok := controlDetails[framework][controlID]
	return c, ok
}

// FrameworkSummary reports the affected controls of one framework.
type FrameworkSummary struct {
	ControlsAffected int      `json:"controls_affected"`
	Controls         []string `json:"controls"`
	Status           string   `json:"status"`
}

// Summary aggregates compliance impact across a finding set.
type Summary struct {
	Frameworks            map[string]FrameworkSummary `json:"frameworks"`
	TotalControlsAffected int                         `json:"total_controls_affected"`
	ControlsByFramework   map[string][]string         `json:"controls_by_framework"`
}

// GetSummary unions control sets across all findings.
func (m *Mapper) GetSummary(findings []models.Finding) Summary {
	all := make(map[string]map[string]bool)

	for _, f := range findings {
		for framework, controls := range m.MapFinding(f) {
			if all[framework] == nil {
				all[framework] = make(map[string]bool)
			}
			for _, c := range controls {
				all[framework][c] = true
			}
		}
	}

	summary := Summary{
		Frameworks:          make(map[string]FrameworkSummary, len(all)),
		ControlsByFramework: make(map[string][]string, len(all)),
	}

	for framework, controls := range all {
		list := make([]string, 0, len(controls))
		for c := range controls {
			list = append(list, c)
		}
		sort.Strings(list)

		status := "COMPLIANT"
		if len(list) > 0 {
			status = "REQUIRES_ATTENTION"
		}
		summary.ControlsByFramework[framework] = list
		summary.Frameworks[framework] = FrameworkSummary{
			ControlsAffected: len(list),
			Controls:         list,
			Status:           status,
		}
		summary.TotalControlsAffected += len(list)
	}

	return summary
}

// AuditFinding is one finding entry inside an audit report control.
type AuditFinding struct {
	FindingID   string          `json:"finding_id"`
	Type        string          `json:"type"`
	Severity    models.Severity `json:"severity"`
	Endpoint    string          `json:"endpoint"`
	Description string          `json:"description"`
}

// AuditControl is the per-control section of an audit report.
type AuditControl struct {
	ControlID           string         `json:"control_id"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	RequirementLevel    string         `json:"requirement_level"`
	FindingsCount       int            `json:"findings_count"`
	Findings            []AuditFinding `json:"findings"`
	Status              string         `json:"status"`
	RemediationRequired bool           `json:"remediation_required"`
}

// AuditReport is a framework-specific report suitable for auditor review.
type AuditReport struct {
	Framework        string         `json:"framework"`
	FrameworkName    string         `json:"framework_name"`
	GeneratedAt      time.Time      `json:"generated_at"`
	TotalFindings    int            `json:"total_findings"`
	ControlsAffected int            `json:"controls_affected"`
	ControlDetails   []AuditControl `json:"control_details"`
}

// GenerateAuditReport builds a detailed per-control report for one
// framework. Every affected control is marked NON_COMPLIANT.
func (m *Mapper) GenerateAuditReport(findings []models.Finding, framework string) AuditReport {
	affected := make(map[string][]AuditFinding)
	var order []string

	for _, f := range findings {
		mappings := m.MapFinding(f)
		for _, controlID := range mappings[framework] {
			if _, ok := affected[controlID]; !ok {
				order = append(order, controlID)
			}
			affected[controlID] = append(affected[controlID], AuditFinding{
				FindingID:   f.ID,
				Type:        f.Type,
				Severity:    f.Severity,
				Endpoint:    f.Endpoint,
				Description: f.Description,
			})
		}
	}

	report := AuditReport{
		Framework:        framework,
		FrameworkName:    FrameworkName(framework),
		GeneratedAt:      time.Now().UTC(),
		TotalFindings:    len(findings),
		ControlsAffected: len(affected),
	}

	for _, controlID := range order {
		entries := affected[controlID]
		detail := AuditControl{
			ControlID:           controlID,
			Title:               controlID,
			RequirementLevel:    "required",
			FindingsCount:       len(entries),
			Findings:            entries,
			Status:              "NON_COMPLIANT",
			RemediationRequired: true,
		}
		if info, ok := m.GetControlDetails(framework, controlID); ok {
			detail.Title = info.Title
			detail.Description = info.Description
			detail.RequirementLevel = info.RequirementLevel
		}
		report.ControlDetails = append(report.ControlDetails, detail)
	}

	return report
}

// FrameworkName returns the human-readable framework name.
func FrameworkName(framework string) string {
	if name, ok := frameworkNames[framework]; ok {
		return name
	}
	return framework
}
