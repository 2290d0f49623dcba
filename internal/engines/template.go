package engines

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
)

const (
	templateScanTimeout  = 600 * time.Second
	templateProbeTimeout = 10 * time.Second
)

// TemplateConfig controls the nuclei invocation.
type TemplateConfig struct {
	BinaryPath     string
	TemplatesPath  string
	RateLimit      int
	BulkSize       int
	Concurrency    int
	TimeoutSec     int
	Retries        int
	SeverityFilter []string
	Tags           []string
}

// DefaultTemplateConfig matches the tuning we ship in the scanner image.
func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		BinaryPath:     "nuclei",
		TemplatesPath:  "/opt/nuclei-templates",
		RateLimit:      150,
		BulkSize:       25,
		Concurrency:    25,
		TimeoutSec:     10,
		Retries:        1,
		SeverityFilter: []string{"critical", "high", "medium", "low"},
	}
}

// TemplateEngine shells out to nuclei and maps its JSON export into findings.
type TemplateEngine struct {
	cfg TemplateConfig
	log *logger.Logger
}

func NewTemplateEngine(cfg TemplateConfig) *TemplateEngine {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "nuclei"
	}
	return &TemplateEngine{cfg: cfg, log: logger.NewLogger("NUCLEI")}
}

func (e *TemplateEngine) Name() string { return "nuclei" }

// Available probes the binary so a missing install surfaces before a scan.
func (e *TemplateEngine) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, templateProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, e.cfg.BinaryPath, "-version").CombinedOutput()
	if err != nil {
		e.log.Warn("nuclei not available", err)
		return false
	}
	e.log.Info("nuclei detected", strings.TrimSpace(string(out)))
	return true
}

func (e *TemplateEngine) Scan(ctx context.Context, target models.ScanTarget, authCtx *auth.Context) ([]models.Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, templateScanTimeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "vulx-nuclei-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	resultsPath := filepath.Join(dir, "results.json")
	args := e.buildArgs(target, authCtx, resultsPath)

	e.log.Info("Starting template scan", target.URL)
	cmd := exec.CommandContext(ctx, e.cfg.BinaryPath, args...)
	output, runErr := cmd.CombinedOutput()

	// nuclei exits non-zero in some benign cases; the export file is
	// the source of truth.
	if _, statErr := os.Stat(resultsPath); statErr != nil {
		if runErr != nil {
			return nil, fmt.Errorf("nuclei run failed: %w: %s", runErr, strings.TrimSpace(string(output)))
		}
		return nil, nil
	}
	if runErr != nil {
		e.log.Debug("nuclei exited non-zero, parsing partial results", runErr)
	}

	findings, err := e.parseResults(resultsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nuclei results: %w", err)
	}
	e.log.Info("Template scan complete", len(findings), "findings")
	return findings, nil
}

func (e *TemplateEngine) buildArgs(target models.ScanTarget, authCtx *auth.Context, resultsPath string) []string {
	args := []string{
		"-target", target.URL,
		"-json-export", resultsPath,
		"-rate-limit", fmt.Sprintf("%d", e.cfg.RateLimit),
		"-bulk-size", fmt.Sprintf("%d", e.cfg.BulkSize),
		"-concurrency", fmt.Sprintf("%d", e.cfg.Concurrency),
		"-timeout", fmt.Sprintf("%d", e.cfg.TimeoutSec),
		"-retries", fmt.Sprintf("%d", e.cfg.Retries),
		"-severity", strings.Join(e.cfg.SeverityFilter, ","),
		"-silent",
		"-no-color",
	}
	if e.cfg.TemplatesPath != "" {
		if _, err := os.Stat(e.cfg.TemplatesPath); err == nil {
			args = append(args, "-templates", e.cfg.TemplatesPath)
		}
	}
	if len(e.cfg.Tags) > 0 {
		args = append(args, "-tags", strings.Join(e.cfg.Tags, ","))
	}
	for _, h := range authHeaderLines(authCtx) {
		args = append(args, "-header", h)
	}
	return args
}

type nucleiResult struct {
	TemplateID       string     `json:"template-id"`
	Type             string     `json:"type"`
	Host             string     `json:"host"`
	MatchedAt        string     `json:"matched-at"`
	MatcherName      string     `json:"matcher-name"`
	ExtractedResults []string   `json:"extracted-results"`
	Request          string     `json:"request"`
	Response         string     `json:"response"`
	Info             nucleiInfo `json:"info"`
}

type nucleiInfo struct {
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Severity       string      `json:"severity"`
	Remediation    string      `json:"remediation"`
	Tags           []string    `json:"tags"`
	Reference      interface{} `json:"reference"`
	Classification struct {
		CWEID     interface{} `json:"cwe-id"`
		CVSSScore interface{} `json:"cvss-score"`
	} `json:"classification"`
}

func (e *TemplateEngine) parseResults(path string) ([]models.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []models.Finding
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var res nucleiResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			e.log.Debug("Skipping malformed result line", err)
			continue
		}
		findings = append(findings, mapNucleiResult(res))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return findings, nil
}

func mapNucleiResult(res nucleiResult) models.Finding {
	templateID := res.TemplateID
	if templateID == "" {
		templateID = "Unknown"
	}

	matched := res.MatchedAt
	if matched == "" {
		matched = res.Host
	}
	endpoint := "/"
	if u, err := url.Parse(matched); err == nil && u.Path != "" {
		endpoint = u.Path
	}

	method := "GET"
	if res.Type != "" {
		method = strings.ToUpper(res.Type)
	}

	title := res.Info.Name
	if title == "" {
		title = templateID
	}

	evidence := ""
	if len(res.ExtractedResults) > 0 {
		evidence = res.ExtractedResults[0]
	}

	f := models.Finding{
		ID:            fmt.Sprintf("nuclei-%s-%s", templateID, shortHex(4)),
		Engine:        models.EngineTemplate,
		Type:          templateID,
		Severity:      models.ParseSeverity(res.Info.Severity),
		Confidence:    models.ConfidenceHigh,
		Title:         title,
		Description:   res.Info.Description,
		Endpoint:      endpoint,
		Method:        method,
		Parameter:     res.MatcherName,
		Evidence:      evidence,
		Request:       res.Request,
		Response:      res.Response,
		Remediation:   res.Info.Remediation,
		CWEID:         nucleiCWE(res.Info.Classification.CWEID),
		CVSSScore:     floatValue(res.Info.Classification.CVSSScore),
		OWASPCategory: nucleiOWASPCategory(templateID, res.Info.Tags),
		References:    stringListValue(res.Info.Reference),
		DetectedAt:    time.Now().UTC(),
	}

	for _, tag := range res.Info.Tags {
		upper := strings.ToUpper(tag)
		if strings.HasPrefix(upper, "CVE-") {
			f.CVEID = upper
			break
		}
	}
	return f
}

// nucleiOWASPEntries is ordered: the first substring hit over the
// template id (then the tag list) wins.
var nucleiOWASPEntries = []struct {
	needle   string
	category string
}{
	{"cve", "API9:2023 - Improper Inventory Management"},
	{"default-login", "API2:2023 - Broken Authentication"},
	{"exposed-panels", "API8:2023 - Security Misconfiguration"},
	{"exposures", "API3:2023 - Broken Object Property Level Authorization"},
	{"file", "API8:2023 - Security Misconfiguration"},
	{"misconfiguration", "API8:2023 - Security Misconfiguration"},
	{"misconfig", "API8:2023 - Security Misconfiguration"},
	{"takeover", "API8:2023 - Security Misconfiguration"},
	{"token-spray", "API2:2023 - Broken Authentication"},
	{"sqli", "API1:2023 - Broken Object Level Authorization"},
	{"xss", "API8:2023 - Security Misconfiguration"},
	{"ssrf", "API7:2023 - Server Side Request Forgery"},
	{"lfi", "API8:2023 - Security Misconfiguration"},
	{"rce", "API8:2023 - Security Misconfiguration"},
	{"idor", "API1:2023 - Broken Object Level Authorization"},
	{"injection", "API8:2023 - Security Misconfiguration"},
	{"auth-bypass", "API2:2023 - Broken Authentication"},
	{"rate-limit", "API4:2023 - Unrestricted Resource Consumption"},
}

func nucleiOWASPCategory(templateID string, tags []string) string {
	id := strings.ToLower(templateID)
	tagBlob := strings.ToLower(strings.Join(tags, ","))
	for _, entry := range nucleiOWASPEntries {
		if strings.Contains(id, entry.needle) || strings.Contains(tagBlob, entry.needle) {
			return entry.category
		}
	}
	return ""
}

func nucleiCWE(v interface{}) string {
	switch val := v.(type) {
	case []interface{}:
		if len(val) > 0 {
			return formatCWE(val[0])
		}
	case nil:
	default:
		return formatCWE(val)
	}
	return ""
}

func formatCWE(v interface{}) string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return ""
		}
		if strings.HasPrefix(strings.ToUpper(val), "CWE-") {
			return strings.ToUpper(val)
		}
		return "CWE-" + val
	case float64:
		return fmt.Sprintf("CWE-%d", int(val))
	}
	return ""
}

func floatValue(v interface{}) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}

func stringListValue(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func shortHex(n int) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:n]
}
