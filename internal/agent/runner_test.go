package agent

import (
	"testing"

	"github.com/vulx-io/vulx/internal/models"
)

func TestParseHeaderFlags(t *testing.T) {
	headers := parseHeaderFlags([]string{
		"X-API-Key: secret",
		"X-Tenant:acme",
		"not-a-header",
		": empty-name",
	})
	if len(headers) != 2 {
		t.Fatalf("got %d headers: %v", len(headers), headers)
	}
	if headers["X-API-Key"] != "secret" {
		t.Errorf("X-API-Key = %q", headers["X-API-Key"])
	}
	if headers["X-Tenant"] != "acme" {
		t.Errorf("X-Tenant = %q", headers["X-Tenant"])
	}
}

func TestParseHeaderFlagsEmpty(t *testing.T) {
	if got := parseHeaderFlags(nil); got != nil {
		t.Errorf("expected nil map, got %v", got)
	}
}

func TestShouldFail(t *testing.T) {
	findings := []models.Finding{
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityLow},
	}

	cases := []struct {
		failOn string
		want   bool
	}{
		{"critical", false},
		{"high", false},
		{"medium", true},
		{"low", true},
		{"info", true},
		{"bogus", false},
	}
	for _, tc := range cases {
		if got := ShouldFail(findings, tc.failOn); got != tc.want {
			t.Errorf("ShouldFail(%q) = %v, want %v", tc.failOn, got, tc.want)
		}
	}

	if ShouldFail(nil, "low") {
		t.Error("no findings should never fail")
	}
}
