// Package engines wraps the external scanners behind one contract. An
// adapter error means "engine skipped": the orchestrator logs it and
// carries on with the findings from the other engines.
package engines

import (
	"context"
	"sort"

	"github.com/vulx-io/vulx/internal/auth"
	"github.com/vulx-io/vulx/internal/models"
)

// Engine is the common adapter contract.
type Engine interface {
	Name() string
	Available(ctx context.Context) bool
	Scan(ctx context.Context, target models.ScanTarget, authCtx *auth.Context) ([]models.Finding, error)
}

// authHeaderLines flattens an auth context into "K: V" strings in the
// form the scanner CLIs accept, cookies joined into one Cookie header.
// Keys are sorted so commands are reproducible.
func authHeaderLines(authCtx *auth.Context) []string {
	if authCtx == nil {
		return nil
	}

	var lines []string
	if authCtx.BearerToken != "" && authCtx.Headers["Authorization"] == "" {
		lines = append(lines, "Authorization: Bearer "+authCtx.BearerToken)
	}

	keys := make([]string, 0, len(authCtx.Headers))
	for k := range authCtx.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+authCtx.Headers[k])
	}

	if len(authCtx.Cookies) > 0 {
		names := make([]string, 0, len(authCtx.Cookies))
		for name := range authCtx.Cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		cookie := ""
		for i, name := range names {
			if i > 0 {
				cookie += "; "
			}
			cookie += name + "=" + authCtx.Cookies[name]
		}
		lines = append(lines, "Cookie: "+cookie)
	}

	return lines
}
