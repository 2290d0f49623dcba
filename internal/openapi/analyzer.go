package openapi

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/vulx-io/vulx/internal/models"
)

// Field names that suggest sensitive data in response schemas.
var sensitiveFields = []string{
	"password", "passwd", "secret", "token", "apikey", "api_key", "api-key",
	"auth", "credential", "private", "ssn", "social_security", "credit_card",
	"card_number", "cvv", "pin", "bank_account", "routing_number", "access_token",
	"refresh_token", "bearer", "jwt", "session", "cookie",
}

// Path patterns that look like object identifiers (potential BOLA).
var idPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\{.*id\}`),
	regexp.MustCompile(`(?i)\{user.*\}`),
	regexp.MustCompile(`(?i)\{account.*\}`),
	regexp.MustCompile(`(?i)\{order.*\}`),
	regexp.MustCompile(`(?i)\{customer.*\}`),
	regexp.MustCompile(`(?i)\{profile.*\}`),
	regexp.MustCompile(`(?i)\{document.*\}`),
	regexp.MustCompile(`(?i)\{file.*\}`),
	regexp.MustCompile(`(?i)\{record.*\}`),
	regexp.MustCompile(`(?i)\{item.*\}`),
}

// Path substrings that suggest admin or privileged surfaces.
var adminPathPatterns = []string{
	"admin", "manage", "management", "internal", "system", "config",
	"configuration", "settings", "control", "super", "root", "master",
	"privileged", "staff", "operator", "debug", "test", "dev",
}

// Path substrings that suggest sensitive business flows.
var businessFlowPatterns = []string{
	"payment", "pay", "checkout", "purchase", "buy", "order", "transaction",
	"transfer", "withdraw", "deposit", "refund", "invoice", "billing",
	"subscription", "upgrade", "downgrade", "cancel", "delete", "remove",
	"approve", "reject", "verify", "confirm", "reset", "change-password",
	"change_password", "forgot-password", "forgot_password", "signup", "register",
}

// Parameter/property names that may let callers steer server-side fetches.
var ssrfPatterns = []string{
	"url", "uri", "link", "callback", "webhook", "redirect", "return_url",
	"returnUrl", "return-url", "next", "destination", "target", "fetch",
	"proxy", "forward", "load", "image_url", "imageUrl", "image-url",
	"file_url", "fileUrl", "file-url", "resource", "source",
}

// Property names that should never be user-controllable in request bodies.
var massAssignmentFields = []string{
	"role", "admin", "privilege", "permission", "level", "type",
	"status", "verified", "approved", "active", "enabled",
}

var paginationParams = map[string]bool{
	"limit": true, "page": true, "pagesize": true,
	"page_size": true, "per_page": true, "offset": true, "cursor": true,
}

var debugPathPatterns = []string{
	"debug", "test", "dev", "staging", "swagger", "docs", "graphql", "playground",
}

var externalIndicators = []string{
	"external", "third-party", "3rd party", "integration",
	"webhook", "callback", "partner", "provider",
}

var trailingIDParam = regexp.MustCompile(`\{[^}]+\}$`)

var versionSegmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/v\d+/`),
	regexp.MustCompile(`/api/v\d+/`),
	regexp.MustCompile(`/version\d+/`),
}

var scanMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// Analyzer runs the static checks against a parsed specification.
type Analyzer struct {
	doc            *openapi3.T
	globalSecurity openapi3.SecurityRequirements
	schemes        openapi3.SecuritySchemes
	findings       []models.Finding
}

// NewAnalyzer prepares an analyzer for one document.
func NewAnalyzer(doc *openapi3.T) *Analyzer {
	a := &Analyzer{doc: doc, globalSecurity: doc.Security}
	if doc.Components != nil {
		a.schemes = doc.Components.SecuritySchemes
	}
	return a
}

// Scan walks every operation, applies the endpoint checks, then the
// document-level checks, and returns the accumulated findings.
func (a *Analyzer) Scan() []models.Finding {
	a.findings = nil

	for _, path := range a.sortedPaths() {
		item := a.doc.Paths.Value(path)
		if item == nil {
			continue
		}
		for _, method := range scanMethods {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			a.scanOperation(path, method, op)
		}
	}

	a.checkGlobalSecurity()
	a.checkInventory()

	return a.findings
}

func (a *Analyzer) sortedPaths() []string {
	if a.doc.Paths == nil {
		return nil
	}
	paths := make([]string, 0, a.doc.Paths.Len())
	for path := range a.doc.Paths.Map() {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (a *Analyzer) scanOperation(path, method string, op *openapi3.Operation) {
	a.checkBOLA(path, method, op)
	a.checkAuthentication(path, method, op)
	a.checkPropertyAuthorization(path, method, op)
	a.checkResourceConsumption(path, method, op)
	a.checkFunctionAuthorization(path, method, op)
	a.checkSensitiveFlows(path, method, op)
	a.checkSSRF(path, method, op)
	a.checkMisconfiguration(path, method, op)
	a.checkExternalConsumption(path, method, op)
}

func (a *Analyzer) add(f models.Finding) {
	f.ID = models.NewFindingID(models.EngineStatic)
	f.Engine = models.EngineStatic
	if f.Confidence == "" {
		f.Confidence = models.ConfidenceHigh
	}
	f.DetectedAt = time.Now().UTC()
	a.findings = append(a.findings, f)
}

// API1: endpoints whose path carries an object identifier.
func (a *Analyzer) checkBOLA(path, method string, op *openapi3.Operation) {
	for _, pattern := range idPathPatterns {
		if !pattern.MatchString(path) {
			continue
		}
		hasSecurity := a.operationHasSecurity(op)
		severity := models.SeverityMedium
		securityNote := ""
		if !hasSecurity {
			severity = models.SeverityHigh
			securityNote = " No authentication/authorization defined for this endpoint."
		}
		a.add(models.Finding{
			Type:     "BOLA",
			Severity: severity,
			Title:    "Object identifier exposed in path",
			Description: "Endpoint contains object identifier parameter that may be vulnerable to BOLA attacks. " +
				"Attackers could manipulate the ID to access unauthorized resources." + securityNote,
			Endpoint: path,
			Method:   method,
			Remediation: "1. Implement object-level authorization checks in your business logic.\n" +
				"2. Verify the authenticated user has permission to access the requested resource.\n" +
				"3. Use indirect references (e.g., user-specific indices) instead of direct database IDs.\n" +
				"4. Example (Node.js):\n" +
				"   const resource = await Resource.findById(req.params.id);\n" +
				"   if (resource.ownerId !== req.user.id) {\n" +
				"     return res.status(403).json({ error: \"Forbidden\" });\n" +
				"   }",
			OWASPCategory: "API1:2023 - Broken Object Level Authorization",
			CWEID:         "CWE-639",
			Evidence:      "Path parameter pattern detected: " + path,
		})
		return // one report per endpoint
	}
}

// API2: missing or weak authentication.
func (a *Analyzer) checkAuthentication(path, method string, op *openapi3.Operation) {
	hasSecurity := a.operationHasSecurity(op)

	lower := strings.ToLower(path)
	isSensitive := false
	for _, pattern := range append(append([]string{}, businessFlowPatterns...), adminPathPatterns...) {
		if strings.Contains(lower, pattern) {
			isSensitive = true
			break
		}
	}

	if !hasSecurity {
		severity := models.SeverityHigh
		sensitiveNote := ""
		if isSensitive {
			severity = models.SeverityCritical
			sensitiveNote = "sensitive "
		}
		a.add(models.Finding{
			Type:     "AUTH_MISSING",
			Severity: severity,
			Title:    "Missing authentication",
			Description: fmt.Sprintf("No authentication defined for %sendpoint. "+
				"This may allow unauthorized access to the API.", sensitiveNote),
			Endpoint: path,
			Method:   method,
			Remediation: "1. Add security requirements to this endpoint in your OpenAPI spec.\n" +
				"2. Implement proper authentication (OAuth2, JWT, API keys with proper scoping).\n" +
				"3. Example OpenAPI security:\n" +
				"   security:\n" +
				"     - bearerAuth: []\n" +
				"4. Validate tokens server-side and check expiration.\n" +
				"5. Use HTTPS to protect credentials in transit.",
			OWASPCategory: "API2:2023 - Broken Authentication",
			CWEID:         "CWE-306",
		})
		return
	}

	for _, name := range a.operationSchemeNames(op) {
		ref := a.schemes[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		scheme := ref.Value

		if strings.EqualFold(scheme.Type, "http") && strings.EqualFold(scheme.Scheme, "basic") {
			a.add(models.Finding{
				Type:     "WEAK_AUTH",
				Severity: models.SeverityMedium,
				Title:    "Basic authentication in use",
				Description: "Basic authentication is used. While functional, it transmits credentials " +
					"in easily decodable format and lacks modern security features.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Upgrade to token-based authentication (JWT, OAuth2).\n" +
					"2. If Basic auth is required, ensure HTTPS is enforced.\n" +
					"3. Implement rate limiting to prevent brute force attacks.\n" +
					"4. Consider adding MFA for sensitive operations.",
				OWASPCategory: "API2:2023 - Broken Authentication",
				CWEID:         "CWE-287",
			})
		}

		if strings.EqualFold(scheme.Type, "apikey") && scheme.In == "query" {
			a.add(models.Finding{
				Type:     "APIKEY_IN_QUERY",
				Severity: models.SeverityMedium,
				Title:    "API key passed in query string",
				Description: "API key is passed in query string. This can expose the key in " +
					"browser history, server logs, and referrer headers.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Move API key to request header instead of query parameter.\n" +
					"2. Example: Use \"Authorization: Bearer <key>\" or custom header.\n" +
					"3. Ensure keys are not logged by your server.\n" +
					"4. Implement key rotation policies.",
				OWASPCategory: "API2:2023 - Broken Authentication",
				CWEID:         "CWE-598",
			})
		}
	}
}

// API3: mass assignment on write bodies, data exposure in success responses.
func (a *Analyzer) checkPropertyAuthorization(path, method string, op *openapi3.Operation) {
	if method == "POST" || method == "PUT" || method == "PATCH" {
		if schemaHasProperty(requestBodyContent(op), massAssignmentFields) {
			a.add(models.Finding{
				Type:     "MASS_ASSIGNMENT",
				Severity: models.SeverityHigh,
				Title:    "Possible mass assignment",
				Description: "Request body may accept sensitive properties that should not be user-controllable. " +
					"This could allow attackers to modify privileged fields.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Create separate DTOs for input that only include allowed fields.\n" +
					"2. Explicitly whitelist properties that users can modify.\n" +
					"3. Never bind request data directly to database models.\n" +
					"4. Example (Node.js):\n" +
					"   const allowed = [\"name\", \"email\"]; // whitelist\n" +
					"   const safeData = _.pick(req.body, allowed);\n" +
					"5. Remove sensitive fields (role, isAdmin, etc.) from input schemas.",
				OWASPCategory: "API3:2023 - Broken Object Property Level Authorization",
				CWEID:         "CWE-915",
			})
		}
	}

	if op.Responses == nil {
		return
	}
	for status, ref := range op.Responses.Map() {
		if !strings.HasPrefix(status, "2") || ref == nil || ref.Value == nil {
			continue
		}
		if schemaHasProperty(ref.Value.Content, sensitiveFields) {
			a.add(models.Finding{
				Type:     "EXCESSIVE_DATA_EXPOSURE",
				Severity: models.SeverityMedium,
				Title:    "Response may expose sensitive fields",
				Description: "Response may expose sensitive data fields. Review the response schema " +
					"to ensure only necessary data is returned.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Return only the data necessary for the client.\n" +
					"2. Use response DTOs to filter out sensitive fields.\n" +
					"3. Implement field-level filtering based on user roles.\n" +
					"4. Never return password hashes, tokens, or internal IDs.\n" +
					"5. Example: Remove fields like \"passwordHash\", \"internalId\" from responses.",
				OWASPCategory: "API3:2023 - Broken Object Property Level Authorization",
				CWEID:         "CWE-213",
			})
			break
		}
	}
}

// API4: pagination, upload limits, and rate limiting.
func (a *Analyzer) checkResourceConsumption(path, method string, op *openapi3.Operation) {
	if method == "GET" {
		hasPagination := false
		for _, ref := range op.Parameters {
			if ref != nil && ref.Value != nil && paginationParams[strings.ToLower(ref.Value.Name)] {
				hasPagination = true
				break
			}
		}

		mightReturnList := !trailingIDParam.MatchString(path) ||
			strings.Contains(strings.ToLower(path), "list") ||
			strings.HasSuffix(path, "s")

		if mightReturnList && !hasPagination {
			a.add(models.Finding{
				Type:       "NO_PAGINATION",
				Severity:   models.SeverityMedium,
				Confidence: models.ConfidenceMedium,
				Title:      "List endpoint without pagination",
				Description: "List endpoint may lack pagination controls. This could allow attackers " +
					"to request excessive data, causing performance issues or denial of service.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Implement pagination with limit and offset/cursor parameters.\n" +
					"2. Set reasonable default and maximum limits.\n" +
					"3. Example: GET /users?limit=20&page=1 (max limit: 100)\n" +
					"4. Return total count in response headers or body.\n" +
					"5. Consider cursor-based pagination for large datasets.",
				OWASPCategory: "API4:2023 - Unrestricted Resource Consumption",
				CWEID:         "CWE-770",
			})
		}
	}

	if method == "POST" || method == "PUT" {
		for contentType := range requestBodyContent(op) {
			if strings.Contains(contentType, "multipart") || strings.Contains(contentType, "octet-stream") {
				a.add(models.Finding{
					Type:     "FILE_UPLOAD_NO_LIMIT",
					Severity: models.SeverityMedium,
					Title:    "File upload endpoint",
					Description: "File upload endpoint detected. Ensure proper size limits and " +
						"file type validation are implemented to prevent resource exhaustion.",
					Endpoint: path,
					Method:   method,
					Remediation: "1. Implement file size limits (e.g., max 10MB).\n" +
						"2. Validate file types against a whitelist.\n" +
						"3. Scan uploaded files for malware.\n" +
						"4. Store files outside web root.\n" +
						"5. Example (Express.js):\n" +
						"   const upload = multer({ limits: { fileSize: 10 * 1024 * 1024 } });",
					OWASPCategory: "API4:2023 - Unrestricted Resource Consumption",
					CWEID:         "CWE-400",
				})
				break
			}
		}
	}

	// Rate limiting lives outside the spec, so every modifying operation
	// gets a reminder.
	if method == "POST" || method == "PUT" || method == "DELETE" || method == "PATCH" {
		a.add(models.Finding{
			Type:     "RATE_LIMIT_RECOMMENDED",
			Severity: models.SeverityLow,
			Title:    "Rate limiting recommended",
			Description: "Ensure rate limiting is implemented for this modifying endpoint to prevent " +
				"abuse and denial of service attacks.",
			Endpoint: path,
			Method:   method,
			Remediation: "1. Implement rate limiting per user/IP.\n" +
				"2. Use sliding window or token bucket algorithms.\n" +
				"3. Return 429 Too Many Requests when limit exceeded.\n" +
				"4. Include rate limit headers: X-RateLimit-Limit, X-RateLimit-Remaining.\n" +
				"5. Example (Express.js):\n" +
				"   const limiter = rateLimit({ windowMs: 60000, max: 100 });\n" +
				"   app.use(\"/api/\", limiter);",
			OWASPCategory: "API4:2023 - Unrestricted Resource Consumption",
			CWEID:         "CWE-770",
		})
	}
}

// API5: admin surfaces.
func (a *Analyzer) checkFunctionAuthorization(path, method string, op *openapi3.Operation) {
	lower := strings.ToLower(path)
	for _, pattern := range adminPathPatterns {
		if !strings.Contains(lower, pattern) {
			continue
		}
		if !a.operationHasSecurity(op) {
			a.add(models.Finding{
				Type:     "ADMIN_NO_AUTH",
				Severity: models.SeverityCritical,
				Title:    "Unauthenticated administrative endpoint",
				Description: fmt.Sprintf("Administrative endpoint %q has no authentication defined. "+
					"This could allow unauthorized access to privileged functions.", path),
				Endpoint: path,
				Method:   method,
				Remediation: "1. Require authentication for all admin endpoints.\n" +
					"2. Implement role-based access control (RBAC).\n" +
					"3. Verify user has admin/appropriate role before processing.\n" +
					"4. Log all access attempts to admin functions.\n" +
					"5. Consider IP whitelisting for sensitive admin operations.",
				OWASPCategory: "API5:2023 - Broken Function Level Authorization",
				CWEID:         "CWE-285",
			})
		} else {
			a.add(models.Finding{
				Type:     "ADMIN_ENDPOINT",
				Severity: models.SeverityInfo,
				Title:    "Administrative endpoint",
				Description: "Administrative endpoint detected. Ensure proper role-based " +
					"access control is implemented beyond just authentication.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Implement role checks (e.g., isAdmin, hasRole(\"admin\")).\n" +
					"2. Use principle of least privilege.\n" +
					"3. Separate admin APIs on different subdomain if possible.\n" +
					"4. Implement audit logging for all admin actions.",
				OWASPCategory: "API5:2023 - Broken Function Level Authorization",
				CWEID:         "CWE-285",
			})
		}
		return
	}
}

// API6: sensitive business flows.
func (a *Analyzer) checkSensitiveFlows(path, method string, op *openapi3.Operation) {
	lower := strings.ToLower(path)
	for _, pattern := range businessFlowPatterns {
		if !strings.Contains(lower, pattern) {
			continue
		}
		severity := models.SeverityMedium
		if !a.operationHasSecurity(op) {
			severity = models.SeverityHigh
		}
		a.add(models.Finding{
			Type:     "SENSITIVE_FLOW",
			Severity: severity,
			Title:    "Sensitive business flow",
			Description: fmt.Sprintf("Sensitive business flow endpoint detected (%s). "+
				"This endpoint may require additional protection against automated abuse.", pattern),
			Endpoint: path,
			Method:   method,
			Remediation: "1. Implement CAPTCHA or proof-of-work for user-facing flows.\n" +
				"2. Add velocity checks (e.g., max 3 password resets per hour).\n" +
				"3. Require step-up authentication for sensitive operations.\n" +
				"4. Implement transaction signing for financial operations.\n" +
				"5. Monitor for anomalous patterns (e.g., bulk purchases).\n" +
				"6. Consider adding confirmation steps (email/SMS verification).",
			OWASPCategory: "API6:2023 - Unrestricted Access to Sensitive Business Flows",
			CWEID:         "CWE-799",
		})
		return
	}
}

// API7: parameters and body properties that steer server-side requests.
func (a *Analyzer) checkSSRF(path, method string, op *openapi3.Operation) {
	for _, ref := range op.Parameters {
		if ref == nil || ref.Value == nil {
			continue
		}
		name := ref.Value.Name
		lower := strings.ToLower(name)
		for _, pattern := range ssrfPatterns {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				a.add(models.Finding{
					Type:     "SSRF_RISK",
					Severity: models.SeverityHigh,
					Title:    "Possible SSRF via parameter",
					Description: fmt.Sprintf("Parameter %q may be used to fetch external resources. "+
						"This could be exploited for Server-Side Request Forgery attacks.", name),
					Endpoint: path,
					Method:   method,
					Remediation: "1. Validate and sanitize all URL inputs.\n" +
						"2. Use allowlist for permitted domains/IPs.\n" +
						"3. Block requests to internal networks (10.x, 172.16.x, 192.168.x, localhost).\n" +
						"4. Disable unnecessary URL schemes (file://, gopher://, etc.).\n" +
						"5. Use a dedicated service/proxy for external requests.\n" +
						"6. Example validation:\n" +
						"   const url = new URL(input);\n" +
						"   if (!ALLOWED_DOMAINS.includes(url.hostname)) throw new Error(\"Blocked\");",
					OWASPCategory: "API7:2023 - Server Side Request Forgery",
					CWEID:         "CWE-918",
					Evidence:      "Suspicious parameter: " + name,
				})
				break
			}
		}
	}

	if schemaHasProperty(requestBodyContent(op), ssrfPatterns) {
		a.add(models.Finding{
			Type:     "SSRF_BODY_RISK",
			Severity: models.SeverityMedium,
			Title:    "URL-like properties in request body",
			Description: "Request body contains URL-like properties. Ensure proper validation " +
				"to prevent SSRF attacks.",
			Endpoint: path,
			Method:   method,
			Remediation: "1. Validate all URL inputs against an allowlist.\n" +
				"2. Never fetch URLs provided by users without validation.\n" +
				"3. Use URL parser to extract and validate hostname.\n" +
				"4. Block private IP ranges and localhost.\n" +
				"5. Set timeouts for external requests.",
			OWASPCategory: "API7:2023 - Server Side Request Forgery",
			CWEID:         "CWE-918",
		})
	}
}

// API8: debug endpoints and verbose errors.
func (a *Analyzer) checkMisconfiguration(path, method string, op *openapi3.Operation) {
	lower := strings.ToLower(path)
	for _, pattern := range debugPathPatterns {
		if !strings.Contains(lower, pattern) {
			continue
		}
		severity := models.SeverityMedium
		if pattern == "swagger" || pattern == "docs" || pattern == "graphql" {
			severity = models.SeverityLow
		}
		a.add(models.Finding{
			Type:     "DEBUG_ENDPOINT",
			Severity: severity,
			Title:    "Development endpoint exposed",
			Description: "Development/debug endpoint detected. Ensure this is disabled " +
				"or properly protected in production.",
			Endpoint: path,
			Method:   method,
			Remediation: "1. Disable debug endpoints in production.\n" +
				"2. Use environment variables to control endpoint availability.\n" +
				"3. If needed, protect with authentication and IP whitelisting.\n" +
				"4. Remove Swagger/API docs from production or protect them.\n" +
				"5. Set DEBUG=false and proper NODE_ENV in production.",
			OWASPCategory: "API8:2023 - Security Misconfiguration",
			CWEID:         "CWE-489",
		})
		break
	}

	if op.Responses == nil {
		return
	}
	for status, ref := range op.Responses.Map() {
		if !strings.HasPrefix(status, "5") || ref == nil || ref.Value == nil {
			continue
		}
		desc := ""
		if ref.Value.Description != nil {
			desc = strings.ToLower(*ref.Value.Description)
		}
		leaky := false
		for _, word := range []string{"stack", "trace", "debug", "internal"} {
			if strings.Contains(desc, word) {
				leaky = true
				break
			}
		}
		if leaky {
			a.add(models.Finding{
				Type:     "VERBOSE_ERROR",
				Severity: models.SeverityLow,
				Title:    "Verbose error response",
				Description: "Error response may expose internal details. Ensure production errors " +
					"do not leak stack traces or internal information.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Use generic error messages in production.\n" +
					"2. Log detailed errors server-side, not in responses.\n" +
					"3. Return standardized error format: { \"error\": \"Something went wrong\" }\n" +
					"4. Include correlation ID for debugging without exposing details.",
				OWASPCategory: "API8:2023 - Security Misconfiguration",
				CWEID:         "CWE-209",
			})
			break
		}
	}
}

// API10: operations that describe external integrations.
func (a *Analyzer) checkExternalConsumption(path, method string, op *openapi3.Operation) {
	description := strings.ToLower(op.Description)
	summary := strings.ToLower(op.Summary)

	for _, indicator := range externalIndicators {
		if strings.Contains(description, indicator) || strings.Contains(summary, indicator) {
			a.add(models.Finding{
				Type:     "EXTERNAL_API_CONSUMPTION",
				Severity: models.SeverityLow,
				Title:    "External API interaction",
				Description: "Endpoint appears to interact with external/third-party APIs. " +
					"Ensure proper validation of external data.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Validate and sanitize all data from external APIs.\n" +
					"2. Implement timeouts for external requests.\n" +
					"3. Use circuit breaker pattern for resilience.\n" +
					"4. Log and monitor external API responses.\n" +
					"5. Have fallback behavior for external API failures.\n" +
					"6. Validate TLS certificates of external services.",
				OWASPCategory: "API10:2023 - Unsafe Consumption of APIs",
				CWEID:         "CWE-20",
			})
			return
		}
	}
}

// Document-level: no security anywhere, plain-HTTP servers.
func (a *Analyzer) checkGlobalSecurity() {
	if len(a.globalSecurity) == 0 && len(a.schemes) == 0 {
		a.add(models.Finding{
			Type:     "NO_GLOBAL_SECURITY",
			Severity: models.SeverityHigh,
			Title:    "No global security scheme",
			Description: "No global security scheme defined in the API specification. " +
				"All endpoints may be accessible without authentication.",
			Endpoint: "/api",
			Method:   "*",
			Remediation: "1. Define security schemes in your OpenAPI spec.\n" +
				"2. Apply global security requirement.\n" +
				"3. Example OpenAPI 3.0:\n" +
				"   components:\n" +
				"     securitySchemes:\n" +
				"       bearerAuth:\n" +
				"         type: http\n" +
				"         scheme: bearer\n" +
				"   security:\n" +
				"     - bearerAuth: []",
			OWASPCategory: "API2:2023 - Broken Authentication",
			CWEID:         "CWE-306",
		})
	}

	for _, server := range a.doc.Servers {
		url := server.URL
		if strings.HasPrefix(url, "http://") &&
			!strings.Contains(url, "localhost") && !strings.Contains(url, "127.0.0.1") {
			a.add(models.Finding{
				Type:     "HTTP_SERVER",
				Severity: models.SeverityHigh,
				Title:    "Unencrypted server URL",
				Description: fmt.Sprintf("Non-HTTPS server URL defined: %s. "+
					"API traffic should be encrypted.", url),
				Endpoint: "/api",
				Method:   "*",
				Remediation: "1. Use HTTPS for all production API traffic.\n" +
					"2. Obtain TLS certificate (Let's Encrypt is free).\n" +
					"3. Redirect HTTP to HTTPS.\n" +
					"4. Use HSTS header to enforce HTTPS.",
				OWASPCategory: "API8:2023 - Security Misconfiguration",
				CWEID:         "CWE-319",
			})
		}
	}
}

// Document-level: deprecated operations and version sprawl.
func (a *Analyzer) checkInventory() {
	versions := make(map[string]bool)

	for _, path := range a.sortedPaths() {
		item := a.doc.Paths.Value(path)
		if item == nil {
			continue
		}
		for _, method := range scanMethods {
			op := item.GetOperation(method)
			if op == nil || !op.Deprecated {
				continue
			}
			a.add(models.Finding{
				Type:     "DEPRECATED_ENDPOINT",
				Severity: models.SeverityLow,
				Title:    "Deprecated endpoint still documented",
				Description: "Deprecated endpoint still documented. Consider removing from " +
					"production or setting a sunset date.",
				Endpoint: path,
				Method:   method,
				Remediation: "1. Set a sunset date and communicate to API consumers.\n" +
					"2. Return deprecation headers: Deprecation, Sunset.\n" +
					"3. Monitor usage and remove when safe.\n" +
					"4. Redirect old endpoints to new versions if applicable.",
				OWASPCategory: "API9:2023 - Improper Inventory Management",
				CWEID:         "CWE-1059",
			})
		}

		for _, pattern := range versionSegmentPatterns {
			if match := pattern.FindString(path); match != "" {
				versions[match] = true
			}
		}
	}

	if len(versions) > 1 {
		list := make([]string, 0, len(versions))
		for v := range versions {
			list = append(list, v)
		}
		sort.Strings(list)
		a.add(models.Finding{
			Type:     "MULTIPLE_API_VERSIONS",
			Severity: models.SeverityInfo,
			Title:    "Multiple API versions in one document",
			Description: fmt.Sprintf("Multiple API versions detected: %s. "+
				"Ensure old versions are properly maintained or deprecated.", strings.Join(list, ", ")),
			Endpoint: "/api",
			Method:   "*",
			Remediation: "1. Maintain documentation for all supported versions.\n" +
				"2. Set deprecation timelines for old versions.\n" +
				"3. Apply security patches to all supported versions.\n" +
				"4. Consider API gateway for version routing.",
			OWASPCategory: "API9:2023 - Improper Inventory Management",
			CWEID:         "CWE-1059",
		})
	}
}

// operationHasSecurity applies the override rule: operation-level security
// replaces the global requirement, and an explicitly empty list means none.
func (a *Analyzer) operationHasSecurity(op *openapi3.Operation) bool {
	if op.Security != nil {
		return len(*op.Security) > 0
	}
	return len(a.globalSecurity) > 0
}

// operationSchemeNames resolves which declared schemes apply to an
// operation, in sorted order.
func (a *Analyzer) operationSchemeNames(op *openapi3.Operation) []string {
	requirements := a.globalSecurity
	if op.Security != nil {
		requirements = *op.Security
	}

	seen := make(map[string]bool)
	var names []string
	for _, requirement := range requirements {
		for name := range requirement {
			if _, declared := a.schemes[name]; declared && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func requestBodyContent(op *openapi3.Operation) openapi3.Content {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	return op.RequestBody.Value.Content
}

// schemaHasProperty reports whether any property name anywhere in the
// content schemas contains one of the given substrings.
func schemaHasProperty(content openapi3.Content, patterns []string) bool {
	for _, mediaType := range content {
		if mediaType == nil {
			continue
		}
		for _, name := range collectProperties(mediaType.Schema, 0) {
			lower := strings.ToLower(name)
			for _, pattern := range patterns {
				if strings.Contains(lower, strings.ToLower(pattern)) {
					return true
				}
			}
		}
	}
	return false
}

// collectProperties walks properties, items, and allOf/oneOf/anyOf
// branches, bounded at depth 5 against self-referential schemas.
func collectProperties(ref *openapi3.SchemaRef, depth int) []string {
	if ref == nil || ref.Value == nil || depth > 5 {
		return nil
	}
	schema := ref.Value

	var names []string
	for name, prop := range schema.Properties {
		names = append(names, name)
		names = append(names, collectProperties(prop, depth+1)...)
	}
	names = append(names, collectProperties(schema.Items, depth+1)...)
	for _, group := range [][]*openapi3.SchemaRef{schema.AllOf, schema.OneOf, schema.AnyOf} {
		for _, sub := range group {
			names = append(names, collectProperties(sub, depth+1)...)
		}
	}
	return names
}
