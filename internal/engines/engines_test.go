package engines

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/models"
)

func TestAuthHeaderLines(t *testing.T) {
	authCtx := &auth.Context{
		BearerToken: "tok-123",
		Headers:     map[string]string{"X-Tenant": "acme", "X-API-Version": "2"},
		Cookies:     map[string]string{"sid": "abc", "csrf": "xyz"},
	}

	lines := authHeaderLines(authCtx)
	want := []string{
		"Authorization: Bearer tok-123",
		"X-API-Version: 2",
		"X-Tenant: acme",
		"Cookie: csrf=xyz; sid=abc",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestAuthHeaderLinesExplicitAuthorizationWins(t *testing.T) {
	authCtx := &auth.Context{
		BearerToken: "tok-123",
		Headers:     map[string]string{"Authorization": "Bearer other"},
	}
	lines := authHeaderLines(authCtx)
	if len(lines) != 1 || lines[0] != "Authorization: Bearer other" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestAuthHeaderLinesNil(t *testing.T) {
	if lines := authHeaderLines(nil); lines != nil {
		t.Fatalf("expected nil, got %v", lines)
	}
}

func TestParseNucleiResults(t *testing.T) {
	content := strings.Join([]string{
		`{"template-id":"CVE-2021-44228-log4j","type":"http","host":"https://api.example.com","matched-at":"https://api.example.com/actuator/env?x=1","matcher-name":"body","extracted-results":["${jndi:ldap}"],"info":{"name":"Log4j RCE","description":"JNDI lookup","severity":"critical","tags":["cve","cve2021","rce"],"reference":["https://nvd.nist.gov/CVE-2021-44228"],"classification":{"cwe-id":[502],"cvss-score":10.0}}}`,
		``,
		`not json at all`,
		`{"template-id":"sqli-error-based","type":"http","host":"https://api.example.com","info":{"severity":"high","tags":["sqli"],"classification":{"cwe-id":"CWE-89"}}}`,
	}, "\n")

	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	e := NewTemplateEngine(DefaultTemplateConfig())
	findings, err := e.parseResults(path)
	if err != nil {
		t.Fatalf("parseResults: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2", len(findings))
	}

	first := findings[0]
	if !strings.HasPrefix(first.ID, "nuclei-CVE-2021-44228-log4j-") {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Engine != models.EngineTemplate {
		t.Errorf("Engine = %q", first.Engine)
	}
	if first.Severity != models.SeverityCritical {
		t.Errorf("Severity = %q", first.Severity)
	}
	if first.Title != "Log4j RCE" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Endpoint != "/actuator/env" {
		t.Errorf("Endpoint = %q", first.Endpoint)
	}
	if first.Method != "HTTP" {
		t.Errorf("Method = %q", first.Method)
	}
	if first.Evidence != "${jndi:ldap}" {
		t.Errorf("Evidence = %q", first.Evidence)
	}
	if first.CWEID != "CWE-502" {
		t.Errorf("CWEID = %q", first.CWEID)
	}
	if first.CVEID != "" {
		// "cve2021" does not carry the dash, so no CVE id is assigned
		t.Errorf("CVEID = %q", first.CVEID)
	}
	if first.CVSSScore != 10.0 {
		t.Errorf("CVSSScore = %v", first.CVSSScore)
	}
	if first.OWASPCategory != "API9:2023 - Improper Inventory Management" {
		t.Errorf("OWASPCategory = %q", first.OWASPCategory)
	}
	if len(first.References) != 1 {
		t.Errorf("References = %v", first.References)
	}

	second := findings[1]
	if second.Endpoint != "/" {
		t.Errorf("Endpoint fallback = %q", second.Endpoint)
	}
	if second.Title != "sqli-error-based" {
		t.Errorf("Title fallback = %q", second.Title)
	}
	if second.CWEID != "CWE-89" {
		t.Errorf("CWEID = %q", second.CWEID)
	}
}

func TestNucleiCVEFromTags(t *testing.T) {
	f := mapNucleiResult(nucleiResult{
		TemplateID: "some-template",
		Info:       nucleiInfo{Tags: []string{"network", "cve-2023-1234"}},
	})
	if f.CVEID != "CVE-2023-1234" {
		t.Errorf("CVEID = %q", f.CVEID)
	}
}

func TestNucleiOWASPCategoryOrder(t *testing.T) {
	tests := []struct {
		templateID string
		tags       []string
		want       string
	}{
		// "cve" is checked first even when other needles also match
		{"cve-2020-sqli", nil, "API9:2023 - Improper Inventory Management"},
		{"generic-sqli-check", nil, "API1:2023 - Broken Object Level Authorization"},
		{"plain-template", []string{"misconfig"}, "API8:2023 - Security Misconfiguration"},
		{"plain-template", []string{"rate-limit"}, "API4:2023 - Unrestricted Resource Consumption"},
		{"plain-template", nil, ""},
	}
	for _, tt := range tests {
		if got := nucleiOWASPCategory(tt.templateID, tt.tags); got != tt.want {
			t.Errorf("nucleiOWASPCategory(%q, %v) = %q, want %q", tt.templateID, tt.tags, got, tt.want)
		}
	}
}

func TestParseFuzzerStdout(t *testing.T) {
	output := strings.Join([]string{
		"GET /users -> 200",
		"some noise line",
		"FAILED: Response status_code does not conform to the schema",
		"POST /orders -> ...",
		"ERROR: received 500 Internal Server Error",
		"FAILED without position context should be dropped",
	}, "\n")

	// The last FAILED line still has position context from /orders, so
	// only the pre-breadcrumb case is dropped; here every failure line
	// lands after a breadcrumb.
	findings := parseFuzzerStdout(output)
	if len(findings) != 3 {
		t.Fatalf("got %d findings, want 3: %+v", len(findings), findings)
	}

	first := findings[0]
	if first.Endpoint != "/users" || first.Method != "GET" {
		t.Errorf("position = %s %s", first.Method, first.Endpoint)
	}
	if first.Type != "API Fuzzing: Status Code Conformance" {
		t.Errorf("Type = %q", first.Type)
	}
	if first.Severity != models.SeverityMedium {
		t.Errorf("Severity = %q", first.Severity)
	}

	second := findings[1]
	if second.Endpoint != "/orders" || second.Method != "POST" {
		t.Errorf("position = %s %s", second.Method, second.Endpoint)
	}
	if second.Type != "API Fuzzing: Server Error" {
		t.Errorf("Type = %q", second.Type)
	}
	if second.Severity != models.SeverityHigh {
		t.Errorf("Severity = %q", second.Severity)
	}
	if second.OWASPCategory != "API8:2023 - Security Misconfiguration" {
		t.Errorf("OWASPCategory = %q", second.OWASPCategory)
	}
}

func TestParseFuzzerStdoutNoPosition(t *testing.T) {
	findings := parseFuzzerStdout("FAILED: something broke before any endpoint ran")
	if len(findings) != 0 {
		t.Fatalf("got %d findings, want 0", len(findings))
	}
}

func TestParseFuzzerJUnit(t *testing.T) {
	data := []byte(`<?xml version="1.0"?>
<testsuites>
  <testsuite name="schemathesis">
    <testcase name="test_api[GET /pets/{petId}]">
      <failure type="server_error" message="Received 500 from server">Traceback...</failure>
    </testcase>
    <testcase name="test_api[POST /pets]"/>
    <testcase name="test_api[DELETE /pets/{petId}]">
      <error message="schema mismatch">details</error>
    </testcase>
  </testsuite>
</testsuites>`)

	findings := parseFuzzerJUnit(data)
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2", len(findings))
	}

	first := findings[0]
	if first.Method != "GET" || first.Endpoint != "/pets/{petId}" {
		t.Errorf("position = %s %s", first.Method, first.Endpoint)
	}
	if first.Type != "API Fuzzing: Server Error" {
		t.Errorf("Type = %q", first.Type)
	}
	if first.Severity != models.SeverityHigh {
		t.Errorf("Severity = %q", first.Severity)
	}
	if first.Evidence != "Traceback..." {
		t.Errorf("Evidence = %q", first.Evidence)
	}

	second := findings[1]
	if second.Type != "API Fuzzing: Assertion Error" {
		t.Errorf("Type = %q", second.Type)
	}
	if second.Severity != models.SeverityMedium {
		t.Errorf("Severity = %q", second.Severity)
	}
}

func TestDedupeFuzzerFindings(t *testing.T) {
	findings := []models.Finding{
		{Type: "A", Endpoint: "/x", Method: "GET", Evidence: "first"},
		{Type: "A", Endpoint: "/x", Method: "GET", Evidence: "second"},
		{Type: "A", Endpoint: "/x", Method: "POST"},
	}
	out := dedupeFuzzerFindings(findings)
	if len(out) != 2 {
		t.Fatalf("got %d findings, want 2", len(out))
	}
	if out[0].Evidence != "first" {
		t.Errorf("kept %q, want first occurrence", out[0].Evidence)
	}
}

func TestFuzzerScanWithoutSpec(t *testing.T) {
	e := NewFuzzerEngine(DefaultFuzzerConfig())
	findings, err := e.Scan(context.Background(), models.ScanTarget{URL: "https://api.example.com"}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if findings != nil {
		t.Fatalf("expected no findings, got %v", findings)
	}
}
