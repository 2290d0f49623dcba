// Package openapi parses API specifications and statically analyzes them
// for OWASP API Security Top 10 (2023) weaknesses.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// Parse loads an OpenAPI document from raw JSON or YAML. Swagger 2.0
// documents are upgraded to 3.x so callers only ever see openapi3 types.
func Parse(ctx context.Context, specContent []byte) (*openapi3.T, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(specContent, &raw); err != nil {
		return nil, fmt.Errorf("decode spec: %w", err)
	}

	if _, ok := raw["swagger"]; ok {
		return convertSwagger(raw)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(specContent)
	if err != nil {
		return nil, fmt.Errorf("load openapi 3.x spec: %w", err)
	}
	return doc, nil
}

// convertSwagger bridges a swagger 2.0 document (already decoded to a
// generic map, so YAML input is handled) into an openapi3.T.
func convertSwagger(raw map[string]interface{}) (*openapi3.T, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode swagger 2.0 spec: %w", err)
	}

	var doc2 openapi2.T
	if err := json.Unmarshal(data, &doc2); err != nil {
		return nil, fmt.Errorf("decode swagger 2.0 spec: %w", err)
	}

	doc, err := openapi2conv.ToV3(&doc2)
	if err != nil {
		return nil, fmt.Errorf("convert swagger 2.0 spec: %w", err)
	}
	return doc, nil
}
