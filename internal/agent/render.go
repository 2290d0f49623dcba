package agent

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vulx-io/vulx/internal/models"
	"github.com/vulx-io/vulx/internal/remediation"
)

const banner = `
 __      ___   _ _     __  __
 \ \    / / | | | |    \ \/ /
  \ \/\/ /| |_| | |___  >  <
   \_/\_/  \___/|____| /_/\_\

 VULX Scanner Agent - Enterprise DAST for CI/CD
`

var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
	models.SeverityInfo,
}

// PrintBanner writes the startup banner.
func PrintBanner(w io.Writer) {
	fmt.Fprintf(w, "%s\n", banner)
}

// PrintSummary renders the per-severity tally and the risk assessment.
func PrintSummary(w io.Writer, result models.ScanResult) {
	fmt.Fprintln(w, "Scan Summary")
	fmt.Fprintln(w, "------------")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tCOUNT")
	for _, sev := range severityOrder {
		fmt.Fprintf(tw, "%s\t%d\n", sev, result.Summary.BySeverity[sev])
	}
	fmt.Fprintf(tw, "TOTAL\t%d\n", result.Summary.Total)
	tw.Flush()

	fmt.Fprintf(w, "\nRisk Score: %d/100 - %s\n", result.RiskScore, riskLabel(result.RiskScore))
}

func riskLabel(score int) string {
	switch {
	case score >= 75:
		return "CRITICAL RISK"
	case score >= 50:
		return "HIGH RISK"
	case score >= 25:
		return "MEDIUM RISK"
	default:
		return "LOW RISK"
	}
}

// PrintFindings renders every finding with its endpoint, classification
// and, when asked for, the remediation guidance.
func PrintFindings(w io.Writer, findings []models.Finding, showRemediation bool) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "\nNo vulnerabilities found.")
		return
	}

	fmt.Fprintf(w, "\nDetailed Findings (%d issues)\n\n", len(findings))

	for i, f := range findings {
		title := f.Title
		if title == "" {
			title = f.Type
		}
		method := f.Method
		if method == "" {
			method = "GET"
		}
		endpoint := f.Endpoint
		if endpoint == "" {
			endpoint = "/"
		}

		fmt.Fprintf(w, "#%d [%s] %s\n", i+1, f.Severity, title)
		fmt.Fprintf(w, "   Endpoint: %s %s\n", method, endpoint)
		if f.OWASPCategory != "" {
			fmt.Fprintf(w, "   OWASP: %s\n", f.OWASPCategory)
		}
		if f.CWEID != "" {
			fmt.Fprintf(w, "   CWE: %s\n", f.CWEID)
		}
		if f.Description != "" {
			fmt.Fprintf(w, "   %s\n", clip(f.Description, 200))
		}
		if showRemediation && f.Remediation != "" {
			fmt.Fprintf(w, "   Fix: %s\n", clip(f.Remediation, 200))
		}
		fmt.Fprintln(w)
	}
}

// PrintRemediationPlan renders the top-n fixes in priority order,
// immediate work first.
func PrintRemediationPlan(w io.Writer, findings []models.Finding, eng *remediation.Engine, n int) {
	plan := eng.GetAllRemediations(findings, "")

	type fix struct {
		priority string
		rem      remediation.Remediation
	}
	var ordered []fix
	for _, priority := range []string{remediation.PriorityImmediate, remediation.PriorityShortTerm, remediation.PriorityMediumTerm} {
		for _, rem := range plan[priority] {
			ordered = append(ordered, fix{priority, rem})
		}
	}
	if len(ordered) > n {
		ordered = ordered[:n]
	}
	if len(ordered) == 0 {
		return
	}

	fmt.Fprintf(w, "\nPrioritized Fixes (top %d)\n\n", len(ordered))
	for i, fx := range ordered {
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, strings.ToUpper(fx.priority), clip(fx.rem.Description, 200))
	}
}

// PrintCompliance renders the compliance impact line when any controls
// are affected.
func PrintCompliance(w io.Writer, result models.ScanResult) {
	var affected int
	switch v := result.ComplianceSummary["total_controls_affected"].(type) {
	case int:
		affected = v
	case float64: // results round-tripped through JSON
		affected = int(v)
	}
	if affected == 0 {
		return
	}
	fmt.Fprintf(w, "\nCompliance Impact: %d controls affected\n", affected)
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
