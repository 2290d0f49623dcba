// Package customrules applies user-defined content rules to captured
// request/response material. It is an extension point: the worker loads
// rules per organization and runs them over recorded responses.
package customrules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
)

// Pattern types a rule may declare.
const (
	PatternRegex    = "regex"
	PatternContains = "contains"
	PatternExact    = "exact"
	PatternJSONPath = "json_path"
)

// Scanner matches loaded rules against content. Rules whose pattern
// fails to apply (bad regex, non-JSON content) are skipped quietly.
type Scanner struct {
	rules []models.CustomRule
	log   *logger.Logger
}

func NewScanner(rules []models.CustomRule) *Scanner {
	return &Scanner{rules: rules, log: logger.NewLogger("CUSTOM_RULES")}
}

func (s *Scanner) RuleCount() int { return len(s.rules) }

// ScanContent runs every applicable rule against one piece of content.
// targetType names what the content is: response, request, header, url.
// Rules targeting "body" apply to any content.
func (s *Scanner) ScanContent(content, targetType, endpoint, method string) []models.Finding {
	var findings []models.Finding

	for _, rule := range s.rules {
		if rule.Target != targetType && rule.Target != "body" {
			continue
		}

		evidence, matched := matchPattern(content, rule.Pattern, rule.PatternType)
		if !matched {
			continue
		}

		description := rule.Message
		if description == "" {
			description = rule.Description
		}
		if description == "" {
			description = fmt.Sprintf("Custom rule '%s' matched", rule.Name)
		}

		findings = append(findings, models.Finding{
			ID:            models.NewFindingID("custom"),
			Engine:        models.EngineCustom,
			Type:          "CUSTOM_RULE",
			Severity:      models.ParseSeverity(string(rule.Severity)),
			Confidence:    models.ConfidenceMedium,
			Title:         rule.Name,
			Description:   description,
			Endpoint:      endpoint,
			Method:        method,
			Evidence:      evidence,
			OWASPCategory: "Custom",
			Remediation:   "Review this finding based on your custom rule: " + rule.Description,
			DetectedAt:    time.Now().UTC(),
		})
	}
	return findings
}

// ScanResponses runs the rules over a map of "endpoint|METHOD" keys to
// response bodies, the shape the worker captures during a scan.
func (s *Scanner) ScanResponses(responses map[string]string) []models.Finding {
	var all []models.Finding
	for key, content := range responses {
		endpoint, method, ok := strings.Cut(key, "|")
		if !ok {
			s.log.Warn("Skipping malformed response key: "+key, nil)
			continue
		}
		all = append(all, s.ScanContent(content, "response", endpoint, method)...)
	}
	return all
}

func matchPattern(content, pattern, patternType string) (string, bool) {
	if content == "" || pattern == "" {
		return "", false
	}

	switch patternType {
	case PatternRegex:
		re, err := regexp.Compile("(?im)" + pattern)
		if err != nil {
			return "", false
		}
		if m := re.FindString(content); m != "" {
			return "Matched: " + truncate(m, 200), true
		}

	case PatternContains:
		idx := strings.Index(strings.ToLower(content), strings.ToLower(pattern))
		if idx >= 0 {
			start := idx - 20
			if start < 0 {
				start = 0
			}
			end := idx + len(pattern) + 20
			if end > len(content) {
				end = len(content)
			}
			return fmt.Sprintf("Found at position %d: ...%s...", idx, content[start:end]), true
		}

	case PatternExact:
		if strings.Contains(content, pattern) {
			return "Exact match found for: " + truncate(pattern, 100), true
		}

	case PatternJSONPath:
		var data interface{}
		if err := json.Unmarshal([]byte(content), &data); err != nil {
			return "", false
		}
		if value, ok := jsonPath(data, pattern); ok {
			return fmt.Sprintf("JSON path %s = %s", pattern, truncate(fmt.Sprintf("%v", value), 100)), true
		}
	}
	return "", false
}

// jsonPath resolves dotted paths like $.data.secret or $.items[0].key.
func jsonPath(data interface{}, path string) (interface{}, bool) {
	if !strings.HasPrefix(path, "$") {
		return nil, false
	}
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")

	current := data
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}

		if open := strings.Index(part, "["); open >= 0 && strings.HasSuffix(part, "]") {
			key := part[:open]
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil {
				return nil, false
			}
			if key != "" {
				obj, ok := current.(map[string]interface{})
				if !ok {
					return nil, false
				}
				current, ok = obj[key]
				if !ok {
					return nil, false
				}
			}
			list, ok := current.([]interface{})
			if !ok || idx >= len(list) {
				return nil, false
			}
			current = list[idx]
			continue
		}

		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
