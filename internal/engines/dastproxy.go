package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
)

// DASTConfig controls the ZAP daemon connection and the active scan.
type DASTConfig struct {
	Host              string
	Port              int
	APIKey            string
	ZapCommand        string
	ScanPolicy        string
	AjaxSpider        bool
	SpiderMaxChildren int
	MaxDuration       time.Duration
	// APIRate caps requests against the ZAP REST API.
	APIRate rate.Limit
}

func DefaultDASTConfig() DASTConfig {
	return DASTConfig{
		Host:              "127.0.0.1",
		Port:              8090,
		ZapCommand:        "zap.sh",
		ScanPolicy:        "Default Policy",
		AjaxSpider:        true,
		SpiderMaxChildren: 100,
		MaxDuration:       3600 * time.Second,
		APIRate:           rate.Limit(10),
	}
}

// DASTEngine drives an OWASP ZAP daemon over its JSON API: session,
// auth rules, schema import, spiders, active scan, then alerts.
type DASTEngine struct {
	cfg     DASTConfig
	base    string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewDASTEngine(cfg DASTConfig) *DASTEngine {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8090
	}
	if cfg.ZapCommand == "" {
		cfg.ZapCommand = "zap.sh"
	}
	if cfg.ScanPolicy == "" {
		cfg.ScanPolicy = "Default Policy"
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 3600 * time.Second
	}
	if cfg.APIRate == 0 {
		cfg.APIRate = rate.Limit(10)
	}
	return &DASTEngine{
		cfg:     cfg,
		base:    fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		client:  &http.Client{Timeout: 120 * time.Second},
		limiter: rate.NewLimiter(cfg.APIRate, 10),
		log:     logger.NewLogger("ZAP"),
	}
}

func (e *DASTEngine) Name() string { return "zap" }

func (e *DASTEngine) Available(ctx context.Context) bool {
	_, err := e.version(ctx)
	return err == nil
}

func (e *DASTEngine) version(ctx context.Context) (string, error) {
	var res struct {
		Version string `json:"version"`
	}
	if err := e.call(ctx, "core", "view", "version", nil, &res); err != nil {
		return "", err
	}
	return res.Version, nil
}

// call issues one ZAP JSON API request: /JSON/{component}/{kind}/{name}/.
func (e *DASTEngine) call(ctx context.Context, component, kind, name string, params url.Values, out interface{}) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	if e.cfg.APIKey != "" {
		params.Set("apikey", e.cfg.APIKey)
	}

	endpoint := fmt.Sprintf("%s/JSON/%s/%s/%s/", e.base, component, kind, name)
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zap api %s/%s returned status %d", component, name, resp.StatusCode)
	}
	if out == nil {
		out = &map[string]interface{}{}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode zap response: %w", err)
	}
	return nil
}

func (e *DASTEngine) action(ctx context.Context, component, name string, params url.Values, out interface{}) error {
	return e.call(ctx, component, "action", name, params, out)
}

// ensureRunning probes the daemon and spawns one when nothing answers.
func (e *DASTEngine) ensureRunning(ctx context.Context) error {
	if _, err := e.version(ctx); err == nil {
		return nil
	}

	e.log.Info("ZAP daemon not running, starting one", e.base)
	cmd := exec.Command(e.cfg.ZapCommand,
		"-daemon",
		"-host", e.cfg.Host,
		"-port", strconv.Itoa(e.cfg.Port),
		"-config", "api.key="+e.cfg.APIKey,
		"-config", "api.addrs.addr.name=.*",
		"-config", "api.addrs.addr.regex=true",
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start zap daemon: %w", err)
	}

	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		if v, err := e.version(ctx); err == nil {
			e.log.Info("ZAP daemon ready", v)
			return nil
		}
	}
	return fmt.Errorf("zap daemon did not become ready")
}

func (e *DASTEngine) Scan(ctx context.Context, target models.ScanTarget, authCtx *auth.Context) ([]models.Finding, error) {
	if err := e.ensureRunning(ctx); err != nil {
		return nil, err
	}

	sessionName := shortHex(8)
	if err := e.action(ctx, "core", "newSession", url.Values{"name": {sessionName}}, nil); err != nil {
		return nil, fmt.Errorf("failed to create zap session: %w", err)
	}

	if err := e.configureAuth(ctx, authCtx); err != nil {
		return nil, fmt.Errorf("failed to configure zap auth: %w", err)
	}

	e.importSchema(ctx, target)

	if err := e.prepareContext(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to prepare zap context: %w", err)
	}

	if err := e.spider(ctx, target.URL); err != nil {
		return nil, fmt.Errorf("spider failed: %w", err)
	}
	if e.cfg.AjaxSpider {
		if err := e.ajaxSpider(ctx, target.URL); err != nil {
			e.log.Warn("Ajax spider failed, continuing", err)
		}
	}

	if err := e.activeScan(ctx, target.URL); err != nil {
		return nil, fmt.Errorf("active scan failed: %w", err)
	}

	findings, err := e.collectAlerts(ctx, target.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to collect alerts: %w", err)
	}
	e.log.Info("DAST scan complete", len(findings), "findings")
	return findings, nil
}

func (e *DASTEngine) configureAuth(ctx context.Context, authCtx *auth.Context) error {
	if authCtx == nil {
		return nil
	}

	if authCtx.BearerToken != "" {
		params := url.Values{
			"description": {"Auth Header"},
			"enabled":     {"true"},
			"matchType":   {"REQ_HEADER"},
			"matchRegex":  {"false"},
			"matchString": {"Authorization"},
			"replacement": {"Bearer " + authCtx.BearerToken},
			"initiators":  {""},
		}
		if err := e.action(ctx, "replacer", "addRule", params, nil); err != nil {
			return err
		}
	}

	for header, value := range authCtx.Headers {
		params := url.Values{
			"description": {"Custom Header: " + header},
			"enabled":     {"true"},
			"matchType":   {"REQ_HEADER"},
			"matchRegex":  {"false"},
			"matchString": {header},
			"replacement": {value},
			"initiators":  {""},
		}
		if err := e.action(ctx, "replacer", "addRule", params, nil); err != nil {
			return err
		}
	}

	for name, value := range authCtx.Cookies {
		params := url.Values{
			"session":      {"default"},
			"sessionToken": {name},
			"tokenValue":   {value},
		}
		if err := e.action(ctx, "httpSessions", "setSessionTokenValue", params, nil); err != nil {
			return err
		}
	}
	return nil
}

// importSchema feeds the OpenAPI document to ZAP so the scanner knows
// every route. Import failure only degrades coverage, never the scan.
func (e *DASTEngine) importSchema(ctx context.Context, target models.ScanTarget) {
	if target.OpenAPISpec == "" {
		return
	}
	var err error
	if strings.HasPrefix(target.OpenAPISpec, "http") {
		err = e.action(ctx, "openapi", "importUrl", url.Values{
			"url":          {target.OpenAPISpec},
			"hostOverride": {target.URL},
		}, nil)
	} else {
		err = e.action(ctx, "openapi", "importFile", url.Values{
			"file":         {target.OpenAPISpec},
			"hostOverride": {target.URL},
		}, nil)
	}
	if err != nil {
		e.log.Warn("OpenAPI import failed, spidering only", err)
	}
}

func (e *DASTEngine) prepareContext(ctx context.Context, target models.ScanTarget) error {
	if err := e.action(ctx, "context", "newContext", url.Values{"contextName": {"vulx"}}, nil); err != nil {
		return err
	}
	include := url.Values{
		"contextName": {"vulx"},
		"regex":       {target.URL + ".*"},
	}
	if err := e.action(ctx, "context", "includeInContext", include, nil); err != nil {
		return err
	}
	for _, path := range target.ExcludePaths {
		pattern := ".*" + strings.ReplaceAll(path, "*", ".*") + ".*"
		exclude := url.Values{
			"contextName": {"vulx"},
			"regex":       {pattern},
		}
		if err := e.action(ctx, "context", "excludeFromContext", exclude, nil); err != nil {
			e.log.Debug("Exclude pattern rejected", err)
		}
	}
	return nil
}

func (e *DASTEngine) spider(ctx context.Context, targetURL string) error {
	var started struct {
		Scan string `json:"scan"`
	}
	params := url.Values{
		"url":         {targetURL},
		"maxChildren": {strconv.Itoa(e.cfg.SpiderMaxChildren)},
		"recurse":     {"true"},
		"contextName": {"vulx"},
	}
	if err := e.action(ctx, "spider", "scan", params, &started); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
		var status struct {
			Status string `json:"status"`
		}
		if err := e.call(ctx, "spider", "view", "status", url.Values{"scanId": {started.Scan}}, &status); err != nil {
			return err
		}
		if pct, err := strconv.Atoi(status.Status); err == nil && pct >= 100 {
			return nil
		}
	}
}

func (e *DASTEngine) ajaxSpider(ctx context.Context, targetURL string) error {
	params := url.Values{
		"url":     {targetURL},
		"inScope": {"true"},
	}
	if err := e.action(ctx, "ajaxSpider", "scan", params, nil); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
		var status struct {
			Status string `json:"status"`
		}
		if err := e.call(ctx, "ajaxSpider", "view", "status", nil, &status); err != nil {
			return err
		}
		if status.Status == "stopped" {
			return nil
		}
	}
}

func (e *DASTEngine) activeScan(ctx context.Context, targetURL string) error {
	var started struct {
		Scan string `json:"scan"`
	}
	params := url.Values{
		"url":            {targetURL},
		"recurse":        {"true"},
		"inScopeOnly":    {"true"},
		"scanPolicyName": {e.cfg.ScanPolicy},
	}
	if err := e.action(ctx, "ascan", "scan", params, &started); err != nil {
		return err
	}

	deadline := time.Now().Add(e.cfg.MaxDuration)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
		if time.Now().After(deadline) {
			e.log.Warn("Active scan hit max duration, stopping", nil)
			_ = e.action(ctx, "ascan", "stop", url.Values{"scanId": {started.Scan}}, nil)
			return nil
		}
		var status struct {
			Status string `json:"status"`
		}
		if err := e.call(ctx, "ascan", "view", "status", url.Values{"scanId": {started.Scan}}, &status); err != nil {
			return err
		}
		if pct, err := strconv.Atoi(status.Status); err == nil && pct >= 100 {
			return nil
		}
	}
}

type zapAlert struct {
	AlertRef    string `json:"alertRef"`
	Name        string `json:"name"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence"`
	URL         string `json:"url"`
	Method      string `json:"method"`
	Param       string `json:"param"`
	Evidence    string `json:"evidence"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
	Reference   string `json:"reference"`
	CWEID       string `json:"cweid"`
	Request     string `json:"request"`
	Response    string `json:"response"`
}

func (e *DASTEngine) collectAlerts(ctx context.Context, targetURL string) ([]models.Finding, error) {
	var res struct {
		Alerts []zapAlert `json:"alerts"`
	}
	params := url.Values{
		"baseurl": {targetURL},
		"start":   {"0"},
		"count":   {"10000"},
	}
	if err := e.call(ctx, "core", "view", "alerts", params, &res); err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0, len(res.Alerts))
	for _, alert := range res.Alerts {
		findings = append(findings, mapZapAlert(alert))
	}
	return findings, nil
}

var zapRisk = map[string]models.Severity{
	"Informational": models.SeverityInfo,
	"Low":           models.SeverityLow,
	"Medium":        models.SeverityMedium,
	"High":          models.SeverityHigh,
	"Critical":      models.SeverityCritical,
}

var zapConfidence = map[string]models.Confidence{
	"False Positive": models.ConfidenceLow,
	"Low":            models.ConfidenceLow,
	"Medium":         models.ConfidenceMedium,
	"High":           models.ConfidenceHigh,
	"Confirmed":      models.ConfidenceHigh,
}

// zapOWASPEntries is ordered: the first alert-name substring hit wins.
var zapOWASPEntries = []struct {
	needle   string
	category string
}{
	{"sql injection", "API1:2023 - Broken Object Level Authorization"},
	{"cross site scripting", "API8:2023 - Security Misconfiguration"},
	{"path traversal", "API8:2023 - Security Misconfiguration"},
	{"remote file inclusion", "API8:2023 - Security Misconfiguration"},
	{"external redirect", "API8:2023 - Security Misconfiguration"},
	{"session id in url", "API2:2023 - Broken Authentication"},
	{"weak authentication", "API2:2023 - Broken Authentication"},
	{"missing anti-csrf", "API8:2023 - Security Misconfiguration"},
	{"insecure http method", "API5:2023 - Broken Function Level Authorization"},
	{"server side request forgery", "API7:2023 - Server Side Request Forgery"},
	{"mass assignment", "API3:2023 - Broken Object Property Level Authorization"},
	{"rate limiting", "API4:2023 - Unrestricted Resource Consumption"},
}

func mapZapAlert(alert zapAlert) models.Finding {
	id := "zap-" + alert.AlertRef
	if alert.AlertRef == "" {
		id = "zap-" + shortHex(8)
	}

	severity, ok := zapRisk[alert.Risk]
	if !ok {
		severity = models.SeverityInfo
	}
	confidence, ok := zapConfidence[alert.Confidence]
	if !ok {
		confidence = models.ConfidenceMedium
	}

	endpoint := "/"
	raw := alert.URL
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[:i]
	}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		endpoint = u.Path
	}

	method := alert.Method
	if method == "" {
		method = "GET"
	}

	cwe := ""
	if alert.CWEID != "" && alert.CWEID != "0" && alert.CWEID != "-1" {
		cwe = "CWE-" + alert.CWEID
	}

	category := ""
	lowerName := strings.ToLower(alert.Name)
	for _, entry := range zapOWASPEntries {
		if strings.Contains(lowerName, entry.needle) {
			category = entry.category
			break
		}
	}

	var references []string
	for _, ref := range strings.Split(alert.Reference, "\n") {
		if ref = strings.TrimSpace(ref); ref != "" {
			references = append(references, ref)
		}
	}

	return models.Finding{
		ID:            id,
		Engine:        models.EngineDAST,
		Type:          alert.Name,
		Severity:      severity,
		Confidence:    confidence,
		Title:         alert.Name,
		Description:   alert.Description,
		Endpoint:      endpoint,
		Method:        method,
		Parameter:     alert.Param,
		Evidence:      alert.Evidence,
		Request:       alert.Request,
		Response:      alert.Response,
		Remediation:   alert.Solution,
		CWEID:         cwe,
		OWASPCategory: category,
		References:    references,
		DetectedAt:    time.Now().UTC(),
	}
}
