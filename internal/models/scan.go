package models

import (
	"strings"
	"time"
)

// ScanType selects which engines a scan runs.
type ScanType string

const (
	ScanTypeQuick      ScanType = "QUICK"      // template engine only
	ScanTypeStandard   ScanType = "STANDARD"   // + fuzzer when a spec is available
	ScanTypeFull       ScanType = "FULL"       // + full DAST proxy
	ScanTypeContinuous ScanType = "CONTINUOUS" // FULL, scheduled externally
)

// ParseScanType maps a CLI/queue string to a ScanType, defaulting to STANDARD.
func ParseScanType(v string) ScanType {
	switch ScanType(strings.ToUpper(strings.TrimSpace(v))) {
	case ScanTypeQuick:
		return ScanTypeQuick
	case ScanTypeFull:
		return ScanTypeFull
	case ScanTypeContinuous:
		return ScanTypeContinuous
	default:
		return ScanTypeStandard
	}
}

// ScanState is the orchestrator-visible lifecycle of a running scan.
type ScanState string

const (
	StateQueued           ScanState = "QUEUED"
	StateInitializing     ScanState = "INITIALIZING"
	StateAuthenticating   ScanState = "AUTHENTICATING"
	StateScanningQuick    ScanState = "SCANNING_QUICK"
	StateScanningFuzzing  ScanState = "SCANNING_FUZZING"
	StateScanningDAST     ScanState = "SCANNING_DAST"
	StateAnalyzing        ScanState = "ANALYZING"
	StateGeneratingReport ScanState = "GENERATING_REPORT"
	StateCompleted        ScanState = "COMPLETED"
	StateFailed           ScanState = "FAILED"
)

// Persisted scan row statuses. Transitions are monotonic:
// QUEUED -> PROCESSING -> (COMPLETED | FAILED).
const (
	ScanStatusQueued     = "QUEUED"
	ScanStatusProcessing = "PROCESSING"
	ScanStatusCompleted  = "COMPLETED"
	ScanStatusFailed     = "FAILED"
)

// Persisted finding row statuses.
const (
	FindingStatusOpen          = "OPEN"
	FindingStatusInProgress    = "IN_PROGRESS"
	FindingStatusFixed         = "FIXED"
	FindingStatusFalsePositive = "FALSE_POSITIVE"
	FindingStatusAccepted      = "ACCEPTED"
)

// ScanTarget describes what to scan and how hard to push it.
type ScanTarget struct {
	URL          string   `json:"url"`
	OpenAPISpec  string   `json:"openapi_spec,omitempty"` // URL, file path or inline content
	IncludePaths []string `json:"include_paths,omitempty"`
	ExcludePaths []string `json:"exclude_paths,omitempty"`
	RateLimit    int      `json:"rate_limit"` // requests per second
	TimeoutMS    int      `json:"timeout_ms"`
	MaxDepth     int      `json:"max_depth"`
}

// NewScanTarget builds a target with the platform defaults: operational
// endpoints excluded, 100 req/s, 30 s request timeout, crawl depth 10.
func NewScanTarget(url string) ScanTarget {
	return ScanTarget{
		URL: url,
		ExcludePaths: []string{
			"/health", "/metrics", "/ready", "/live", "/.well-known/*", "/favicon.ico",
		},
		RateLimit: 100,
		TimeoutMS: 30000,
		MaxDepth:  10,
	}
}

// Coverage reports how much of the target a scan exercised.
type Coverage struct {
	EndpointsDiscovered    int      `json:"endpoints_discovered"`
	HTTPMethodsTested      []string `json:"http_methods_tested"`
	EnginesUsed            []string `json:"engines_used"`
	Authenticated          bool     `json:"authenticated"`
	DepthReached           int      `json:"depth_reached"`
	OWASPCategoriesCovered []string `json:"owasp_categories_covered"`
}

// ScanResult is the complete outcome of one orchestrated scan.
type ScanResult struct {
	ScanID            string         `json:"scan_id"`
	TargetURL         string         `json:"target_url"`
	ScanType          ScanType       `json:"scan_type"`
	Status            ScanState      `json:"status"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds   int            `json:"duration_seconds"`
	Findings          []Finding      `json:"findings"`
	Summary           Summary        `json:"summary"`
	EnginesUsed       []string       `json:"engines_used"`
	AuthMethod        string         `json:"auth_method,omitempty"`
	Coverage          Coverage       `json:"coverage"`
	ComplianceSummary map[string]any `json:"compliance_summary,omitempty"`
	RiskScore         int            `json:"risk_score"`
}

// Scan mirrors the persisted "Scan" row owned by the platform schema.
type Scan struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Environment string     `json:"environment"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// FindingRecord mirrors the persisted "Finding" row.
type FindingRecord struct {
	ID              string    `json:"id"`
	ScanID          string    `json:"scanId"`
	Type            string    `json:"type"`
	Severity        Severity  `json:"severity"`
	Description     string    `json:"description"`
	Endpoint        string    `json:"endpoint"`
	Method          string    `json:"method"`
	Remediation     string    `json:"remediation"`
	OWASPCategory   string    `json:"owaspCategory"`
	CWEID           string    `json:"cweId"`
	Evidence        string    `json:"evidence"`
	CreatedAt       time.Time `json:"createdAt"`
	Status          string    `json:"status"`
	ResolutionNotes string    `json:"resolutionNotes,omitempty"`
	AssignedTo      string    `json:"assignedTo,omitempty"`
}

// ScanJob is the queue payload the platform pushes onto vulx:scan-queue.
type ScanJob struct {
	ScanID      string `json:"scanId"`
	SpecContent string `json:"specContent"`
}

// ProgressEvent is published on the vulx:scan-events channel at every
// orchestrator state transition and relayed to WebSocket subscribers.
type ProgressEvent struct {
	ScanID    string    `json:"scanId"`
	State     ScanState `json:"state"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
