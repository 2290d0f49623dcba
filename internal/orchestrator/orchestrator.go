// Package orchestrator coordinates the scan engines for one scan: phase
// gating by scan type, authentication, finding dedup and enrichment,
// summary and risk scoring.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/compliance"
	"github.com/vulx-io/vulx/internal/engines"
	"github.com/vulx-io/vulx/internal/models"
	"github.com/vulx-io/vulx/internal/remediation"
)

// StatusCallback receives every state transition of a running scan.
// Callback errors are swallowed; progress reporting never fails a scan.
type StatusCallback func(scanID string, state models.ScanState, progress int, message string)

// Orchestrator drives one scan through its phases. Engines run
// sequentially; an engine error skips that engine, it never fails the
// scan.
type Orchestrator struct {
	template engines.Engine
	fuzzer   engines.Engine
	dast     engines.Engine

	compliance  *compliance.Mapper
	remediation *remediation.Engine
	authHandler *auth.Handler

	callbacks []StatusCallback
}

func New(template, fuzzer, dast engines.Engine) *Orchestrator {
	return &Orchestrator{
		template:    template,
		fuzzer:      fuzzer,
		dast:        dast,
		compliance:  compliance.NewMapper(),
		remediation: remediation.NewEngine(),
		authHandler: auth.NewHandler(),
	}
}

// OnStatusChange registers a callback fired on every state transition.
func (o *Orchestrator) OnStatusChange(cb StatusCallback) {
	o.callbacks = append(o.callbacks, cb)
}

func (o *Orchestrator) updateStatus(scanID string, state models.ScanState, progress int, message string) {
	for _, cb := range o.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("scan_id", scanID).Errorf("status callback panic: %v", r)
				}
			}()
			cb(scanID, state, progress, message)
		}()
	}
}

// Scan runs the full pipeline and always returns a result; Status is
// FAILED only on orchestrator-level errors such as authentication.
func (o *Orchestrator) Scan(ctx context.Context, target models.ScanTarget, scanType models.ScanType, authCfg *auth.Config, scanID string) models.ScanResult {
	if scanID == "" {
		scanID = uuid.New().String()
	}
	startedAt := time.Now().UTC()

	log := logrus.WithFields(logrus.Fields{
		"scan_id":   scanID,
		"target":    target.URL,
		"scan_type": scanType,
	})
	log.Info("Starting scan")

	var (
		allFindings []models.Finding
		enginesUsed []string
		authMethod  string
	)

	o.updateStatus(scanID, models.StateInitializing, 5, "Initializing scan engines")

	var authCtx *auth.Context
	if authCfg != nil && authCfg.Method != "" && authCfg.Method != auth.MethodNone {
		o.updateStatus(scanID, models.StateAuthenticating, 10, "Authenticating to target")
		var err error
		authCtx, err = o.authHandler.Authenticate(ctx, *authCfg)
		if err != nil {
			log.WithError(err).Error("Authentication failed")
			return o.failedResult(scanID, target, scanType, startedAt, enginesUsed, fmt.Sprintf("authentication failed: %v", err))
		}
		authMethod = string(authCfg.Method)
		log.WithField("auth_method", authMethod).Info("Authentication successful")
	}

	// Phase 1: template scan runs for every scan type.
	o.updateStatus(scanID, models.StateScanningQuick, 15, "Running quick vulnerability scan")
	allFindings, enginesUsed = o.runEngine(ctx, log, o.template, target, authCtx, allFindings, enginesUsed)

	if scanType != models.ScanTypeQuick {
		// Phase 2: schema fuzzing, only with a spec to fuzz against.
		if target.OpenAPISpec != "" {
			o.updateStatus(scanID, models.StateScanningFuzzing, 35, "Running API fuzzing tests")
			allFindings, enginesUsed = o.runEngine(ctx, log, o.fuzzer, target, authCtx, allFindings, enginesUsed)
		}
	}

	if scanType == models.ScanTypeFull || scanType == models.ScanTypeContinuous {
		// Phase 3: deep DAST through the proxy.
		o.updateStatus(scanID, models.StateScanningDAST, 55, "Running deep DAST scan")
		allFindings, enginesUsed = o.runEngine(ctx, log, o.dast, target, authCtx, allFindings, enginesUsed)
	}

	o.updateStatus(scanID, models.StateAnalyzing, 85, "Analyzing and enriching findings")

	allFindings = Deduplicate(allFindings)
	for i := range allFindings {
		allFindings[i].ComplianceMappings = o.compliance.MapFinding(allFindings[i])
		rem := o.remediation.GetRemediation(allFindings[i], "")
		allFindings[i].Remediation = rem.Description
		allFindings[i].CodeFix = rem.CodeExample
	}

	o.updateStatus(scanID, models.StateGeneratingReport, 100, "Generating scan report")

	completedAt := time.Now().UTC()
	result := models.ScanResult{
		ScanID:          scanID,
		TargetURL:       target.URL,
		ScanType:        scanType,
		Status:          models.StateCompleted,
		StartedAt:       startedAt,
		CompletedAt:     &completedAt,
		DurationSeconds: int(completedAt.Sub(startedAt).Seconds()),
		Findings:        allFindings,
		Summary:         models.BuildSummary(allFindings),
		EnginesUsed:     enginesUsed,
		AuthMethod:      authMethod,
		Coverage:        buildCoverage(target, allFindings, enginesUsed, authCtx != nil),
		RiskScore:       models.RiskScore(allFindings),
	}
	result.ComplianceSummary = complianceSummaryMap(o.compliance.GetSummary(allFindings))

	o.updateStatus(scanID, models.StateCompleted, 100, "Scan completed successfully")
	log.WithFields(logrus.Fields{
		"findings":   len(allFindings),
		"engines":    enginesUsed,
		"risk_score": result.RiskScore,
		"duration_s": result.DurationSeconds,
	}).Info("Scan completed")

	return result
}

// runEngine executes one adapter. Errors log and skip: the engine is
// left out of engines-used and contributes no findings.
func (o *Orchestrator) runEngine(ctx context.Context, log *logrus.Entry, engine engines.Engine, target models.ScanTarget, authCtx *auth.Context, findings []models.Finding, used []string) ([]models.Finding, []string) {
	if engine == nil {
		return findings, used
	}
	engineLog := log.WithField("engine", engine.Name())

	engineFindings, err := engine.Scan(ctx, target, authCtx)
	if err != nil {
		engineLog.WithError(err).Warn("Engine failed, skipping")
		return findings, used
	}
	engineLog.WithField("findings", len(engineFindings)).Info("Engine complete")
	return append(findings, engineFindings...), append(used, engine.Name())
}

func (o *Orchestrator) failedResult(scanID string, target models.ScanTarget, scanType models.ScanType, startedAt time.Time, enginesUsed []string, errMsg string) models.ScanResult {
	o.updateStatus(scanID, models.StateFailed, 0, errMsg)
	completedAt := time.Now().UTC()
	return models.ScanResult{
		ScanID:          scanID,
		TargetURL:       target.URL,
		ScanType:        scanType,
		Status:          models.StateFailed,
		StartedAt:       startedAt,
		CompletedAt:     &completedAt,
		DurationSeconds: int(completedAt.Sub(startedAt).Seconds()),
		Findings:        []models.Finding{},
		Summary:         models.Summary{Error: errMsg},
		EnginesUsed:     enginesUsed,
	}
}

// Deduplicate collapses findings sharing (type, endpoint, method,
// parameter). The higher severity wins; ties keep the first seen.
func Deduplicate(findings []models.Finding) []models.Finding {
	type key struct {
		typ, endpoint, method, parameter string
	}
	index := make(map[key]int, len(findings))
	unique := make([]models.Finding, 0, len(findings))

	for _, f := range findings {
		k := key{f.Type, f.Endpoint, f.Method, f.Parameter}
		if i, ok := index[k]; ok {
			if f.Severity.Rank() > unique[i].Severity.Rank() {
				unique[i] = f
			}
			continue
		}
		index[k] = len(unique)
		unique = append(unique, f)
	}
	return unique
}

func buildCoverage(target models.ScanTarget, findings []models.Finding, enginesUsed []string, authenticated bool) models.Coverage {
	endpoints := make(map[string]bool)
	methods := make(map[string]bool)
	categories := make(map[string]bool)
	for _, f := range findings {
		endpoints[f.Endpoint] = true
		if f.Method != "" {
			methods[f.Method] = true
		}
		if f.OWASPCategory != "" {
			categories[f.OWASPCategory] = true
		}
	}

	return models.Coverage{
		EndpointsDiscovered:    len(endpoints),
		HTTPMethodsTested:      sortedKeys(methods),
		EnginesUsed:            enginesUsed,
		Authenticated:          authenticated,
		DepthReached:           target.MaxDepth,
		OWASPCategoriesCovered: sortedKeys(categories),
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func complianceSummaryMap(s compliance.Summary) map[string]any {
	frameworks := make(map[string]any, len(s.Frameworks))
	for name, fs := range s.Frameworks {
		frameworks[name] = fs
	}
	return map[string]any{
		"frameworks":              frameworks,
		"total_controls_affected": s.TotalControlsAffected,
		"controls_by_framework":   s.ControlsByFramework,
	}
}
