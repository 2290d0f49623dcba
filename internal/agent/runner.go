package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/config"
	"github.com/vulx-io/vulx/internal/engines"
	"github.com/vulx-io/vulx/internal/models"
	"github.com/vulx-io/vulx/internal/orchestrator"
)

// ScanOptions carries everything the CLI collects for one scan run.
type ScanOptions struct {
	Target      string
	Spec        string // URL, file path or inline OpenAPI content
	ScanType    string // quick | standard | full
	AuthToken   string
	AuthHeaders []string // "Header: Value" pairs
}

// Runner executes scans in-process with the same orchestrator the
// platform worker uses, configured from agent environment settings.
type Runner struct {
	orch *orchestrator.Orchestrator
}

// NewRunner wires the three engines from config. A nil config uses the
// shipped defaults for every engine.
func NewRunner(cfg *config.Config) *Runner {
	tmplCfg := engines.DefaultTemplateConfig()
	fuzzCfg := engines.DefaultFuzzerConfig()
	dastCfg := engines.DefaultDASTConfig()

	if cfg != nil {
		tmplCfg.BinaryPath = cfg.NucleiPath
		tmplCfg.TemplatesPath = cfg.NucleiTemplates
		fuzzCfg.BinaryPath = cfg.SchemathesisPath
		dastCfg.Host = cfg.ZAPHost
		dastCfg.Port = cfg.ZAPPort
		dastCfg.APIKey = cfg.ZAPAPIKey
	}

	orch := orchestrator.New(
		engines.NewTemplateEngine(tmplCfg),
		engines.NewFuzzerEngine(fuzzCfg),
		engines.NewDASTEngine(dastCfg),
	)
	return &Runner{orch: orch}
}

// OnProgress registers a callback fired at every scan state transition.
func (r *Runner) OnProgress(cb func(state models.ScanState, progress int, message string)) {
	r.orch.OnStatusChange(func(_ string, state models.ScanState, progress int, message string) {
		cb(state, progress, message)
	})
}

// Run executes one scan and returns its result. A failed scan comes
// back with Status FAILED and the error in Summary.Error, not as an
// error return.
func (r *Runner) Run(ctx context.Context, opts ScanOptions) models.ScanResult {
	target := models.NewScanTarget(opts.Target)
	target.OpenAPISpec = opts.Spec

	scanType := models.ParseScanType(opts.ScanType)

	var authCfg *auth.Config
	headers := parseHeaderFlags(opts.AuthHeaders)
	switch {
	case opts.AuthToken != "":
		authCfg = &auth.Config{Method: auth.MethodBearerToken, BearerToken: opts.AuthToken, CustomHeaders: headers}
	case len(headers) > 0:
		authCfg = &auth.Config{Method: auth.MethodCustomHeaders, CustomHeaders: headers}
	}

	return r.orch.Scan(ctx, target, scanType, authCfg, uuid.New().String())
}

// parseHeaderFlags splits repeated "Header: Value" flags. Entries
// without a colon separator are dropped.
func parseHeaderFlags(pairs []string) map[string]string {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			continue
		}
		headers[name] = value
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// ShouldFail reports whether any finding sits at or above the fail-on
// threshold. An unknown threshold never fails the build.
func ShouldFail(findings []models.Finding, failOn string) bool {
	threshold := models.ParseSeverity(failOn).Rank()
	// ParseSeverity degrades unknown values to INFO; only an explicit
	// "info" threshold should gate on informational findings.
	if threshold == models.SeverityInfo.Rank() && !strings.EqualFold(strings.TrimSpace(failOn), "info") {
		return false
	}
	for _, f := range findings {
		if f.Severity.Rank() >= threshold {
			return true
		}
	}
	return false
}
