package engines

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
)

const fuzzerScanTimeout = 900 * time.Second

// defaultChecks is the conformance suite we run against every schema.
var defaultChecks = []string{
	"not_a_server_error",
	"status_code_conformance",
	"content_type_conformance",
	"response_schema_conformance",
	"response_headers_conformance",
	"negative_data_rejection",
	"use_after_free",
}

// FuzzerConfig controls the schemathesis invocation.
type FuzzerConfig struct {
	BinaryPath       string
	MaxExamples      int
	DeadlineMS       int
	Workers          int
	RequestTimeoutMS int
	Checks           []string
	Stateful         bool
}

func DefaultFuzzerConfig() FuzzerConfig {
	return FuzzerConfig{
		BinaryPath:       "schemathesis",
		MaxExamples:      100,
		DeadlineMS:       15000,
		Workers:          4,
		RequestTimeoutMS: 30000,
		Checks:           defaultChecks,
		Stateful:         true,
	}
}

// FuzzerEngine drives schemathesis property-based testing against the
// target's OpenAPI schema. Without a schema there is nothing to fuzz.
type FuzzerEngine struct {
	cfg FuzzerConfig
	log *logger.Logger
}

func NewFuzzerEngine(cfg FuzzerConfig) *FuzzerEngine {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "schemathesis"
	}
	if len(cfg.Checks) == 0 {
		cfg.Checks = defaultChecks
	}
	return &FuzzerEngine{cfg: cfg, log: logger.NewLogger("FUZZER")}
}

func (e *FuzzerEngine) Name() string { return "schemathesis" }

func (e *FuzzerEngine) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, templateProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, e.cfg.BinaryPath, "--version").CombinedOutput()
	if err != nil {
		e.log.Warn("schemathesis not available", err)
		return false
	}
	e.log.Info("schemathesis detected", strings.TrimSpace(string(out)))
	return true
}

func (e *FuzzerEngine) Scan(ctx context.Context, target models.ScanTarget, authCtx *auth.Context) ([]models.Finding, error) {
	if target.OpenAPISpec == "" {
		e.log.Warn("No OpenAPI spec provided, skipping fuzzing", nil)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, fuzzerScanTimeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "vulx-fuzzer-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	specSource := target.OpenAPISpec
	if !strings.HasPrefix(specSource, "http://") && !strings.HasPrefix(specSource, "https://") {
		// Inline spec content gets staged as a file.
		specPath := filepath.Join(dir, "openapi.yaml")
		if err := os.WriteFile(specPath, []byte(specSource), 0o600); err != nil {
			return nil, fmt.Errorf("failed to stage spec file: %w", err)
		}
		specSource = specPath
	}

	junitPath := filepath.Join(dir, "report.xml")
	args := e.buildArgs(specSource, target, authCtx, junitPath)

	e.log.Info("Starting API fuzzing", target.URL)
	cmd := exec.CommandContext(ctx, e.cfg.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Schemathesis exits 1 when checks fail, which is exactly the case
	// we want to parse.
	if runErr := cmd.Run(); runErr != nil {
		if stdout.Len() == 0 {
			if _, statErr := os.Stat(junitPath); statErr != nil {
				return nil, fmt.Errorf("schemathesis run failed: %w: %s", runErr, strings.TrimSpace(stderr.String()))
			}
		}
	}

	findings := parseFuzzerStdout(stdout.String())
	if data, err := os.ReadFile(junitPath); err == nil {
		findings = append(findings, parseFuzzerJUnit(data)...)
	}
	findings = dedupeFuzzerFindings(findings)
	e.log.Info("API fuzzing complete", len(findings), "findings")
	return findings, nil
}

func (e *FuzzerEngine) buildArgs(specSource string, target models.ScanTarget, authCtx *auth.Context, junitPath string) []string {
	args := []string{
		"run", specSource,
		"--base-url", target.URL,
		"--hypothesis-max-examples", fmt.Sprintf("%d", e.cfg.MaxExamples),
		"--hypothesis-deadline", fmt.Sprintf("%d", e.cfg.DeadlineMS),
		"--workers", fmt.Sprintf("%d", e.cfg.Workers),
		"--request-timeout", fmt.Sprintf("%d", e.cfg.RequestTimeoutMS),
		"--junit-xml", junitPath,
		"--no-color",
	}
	for _, check := range e.cfg.Checks {
		args = append(args, "--checks", check)
	}
	if e.cfg.Stateful {
		args = append(args, "--stateful=links")
	}
	for _, h := range authHeaderLines(authCtx) {
		args = append(args, "--header", h)
	}
	return args
}

var fuzzerSeverity = map[string]models.Severity{
	"server_error":                 models.SeverityHigh,
	"status_code_conformance":      models.SeverityMedium,
	"content_type_conformance":     models.SeverityLow,
	"response_schema_conformance":  models.SeverityMedium,
	"response_headers_conformance": models.SeverityLow,
	"negative_data_rejection":      models.SeverityHigh,
	"use_after_free":               models.SeverityCritical,
}

var fuzzerOWASP = map[string]string{
	"server_error":                "API8:2023 - Security Misconfiguration",
	"status_code_conformance":     "API8:2023 - Security Misconfiguration",
	"response_schema_conformance": "API3:2023 - Broken Object Property Level Authorization",
	"negative_data_rejection":     "API8:2023 - Security Misconfiguration",
	"use_after_free":              "API1:2023 - Broken Object Level Authorization",
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// parseFuzzerStdout walks the run log. Endpoint breadcrumbs ("GET /users
// -> ...") set position, FAILED/ERROR lines become findings at that
// position.
func parseFuzzerStdout(output string) []models.Finding {
	var findings []models.Finding
	var currentEndpoint, currentMethod string

	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if strings.Contains(line, " -> ") {
			tokens := strings.Fields(line)
			for i, tok := range tokens {
				if httpMethods[tok] && i+1 < len(tokens) {
					currentMethod = tok
					currentEndpoint = tokens[i+1]
					break
				}
			}
			continue
		}

		if !strings.Contains(line, "FAILED") && !strings.Contains(line, "ERROR") {
			continue
		}
		if currentEndpoint == "" {
			continue
		}

		failureType := "server_error"
		switch {
		case strings.Contains(line, "status_code"):
			failureType = "status_code_conformance"
		case strings.Contains(line, "content_type"):
			failureType = "content_type_conformance"
		case strings.Contains(line, "schema"):
			failureType = "response_schema_conformance"
		case strings.Contains(line, "500"), strings.Contains(line, "Internal Server Error"):
			failureType = "server_error"
		}

		severity, ok := fuzzerSeverity[failureType]
		if !ok {
			severity = models.SeverityMedium
		}
		cwe := "CWE-754"
		if strings.Contains(failureType, "validation") {
			cwe = "CWE-20"
		}

		findings = append(findings, models.Finding{
			ID:            fmt.Sprintf("schema-%s-%s", failureType, shortHex(8)),
			Engine:        models.EngineFuzzer,
			Type:          "API Fuzzing: " + titleCase(failureType),
			Severity:      severity,
			Confidence:    models.ConfidenceHigh,
			Title:         fmt.Sprintf("API endpoint fails %s check", strings.ReplaceAll(failureType, "_", " ")),
			Endpoint:      currentEndpoint,
			Method:        currentMethod,
			Evidence:      line,
			OWASPCategory: fuzzerOWASP[failureType],
			CWEID:         cwe,
			DetectedAt:    time.Now().UTC(),
		})
	}
	return findings
}

type junitCase struct {
	Name    string        `xml:"name,attr"`
	Failure *junitElement `xml:"failure"`
	Error   *junitElement `xml:"error"`
}

type junitElement struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

type junitReport struct {
	Nested []junitCase `xml:"testsuite>testcase"`
	Direct []junitCase `xml:"testcase"`
}

func parseFuzzerJUnit(data []byte) []models.Finding {
	var report junitReport
	if err := xml.Unmarshal(data, &report); err != nil {
		return nil
	}

	var findings []models.Finding
	for _, tc := range append(report.Nested, report.Direct...) {
		element := tc.Failure
		if element == nil {
			element = tc.Error
		}
		if element == nil {
			continue
		}

		method, endpoint := parseJUnitCaseName(tc.Name)

		failureType := element.Type
		if failureType == "" {
			failureType = "assertion_error"
		}

		severity := models.SeverityMedium
		msg := element.Message
		if strings.Contains(msg, "500") || strings.Contains(strings.ToLower(msg), "server") {
			severity = models.SeverityHigh
		}

		findings = append(findings, models.Finding{
			ID:            "schema-" + shortHex(8),
			Engine:        models.EngineFuzzer,
			Type:          "API Fuzzing: " + titleCase(failureType),
			Severity:      severity,
			Confidence:    models.ConfidenceHigh,
			Title:         fmt.Sprintf("API endpoint fails %s check", strings.ReplaceAll(failureType, "_", " ")),
			Description:   msg,
			Endpoint:      endpoint,
			Method:        method,
			Evidence:      strings.TrimSpace(element.Text),
			OWASPCategory: "API8:2023 - Security Misconfiguration",
			CWEID:         "CWE-754",
			DetectedAt:    time.Now().UTC(),
		})
	}
	return findings
}

// parseJUnitCaseName extracts method and path from names shaped like
// "test_api[GET /users/{id}]".
func parseJUnitCaseName(name string) (method, endpoint string) {
	open := strings.Index(name, "[")
	end := strings.Index(name, "]")
	if open < 0 || end <= open {
		return "", ""
	}
	parts := strings.Fields(name[open+1 : end])
	if len(parts) == 2 && httpMethods[parts[0]] {
		return parts[0], parts[1]
	}
	if len(parts) == 1 {
		return "", parts[0]
	}
	return "", ""
}

// dedupeFuzzerFindings keeps the first finding per (type, endpoint,
// method); hypothesis tends to rediscover the same failure many times.
func dedupeFuzzerFindings(findings []models.Finding) []models.Finding {
	seen := make(map[string]bool, len(findings))
	var out []models.Finding
	for _, f := range findings {
		key := f.Type + "|" + f.Endpoint + "|" + f.Method
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

func titleCase(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
