// Package agent implements the CI/CD scanner agent: an in-process scan
// runner, terminal rendering, and the platform upload client.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
)

// AuthInfo is the platform's answer to an API key verification.
type AuthInfo struct {
	Valid        bool   `json:"valid"`
	Organization string `json:"organization,omitempty"`
	Plan         string `json:"plan,omitempty"`
}

// Project is the subset of the platform project record the agent uses.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Environment string `json:"environment,omitempty"`
}

// Reporter talks to the VULX platform API with bearer authentication.
type Reporter struct {
	apiURL string
	apiKey string
	client *http.Client
	log    *logger.Logger
}

func NewReporter(apiURL, apiKey string) *Reporter {
	return &Reporter{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    logger.NewLogger("REPORTER"),
	}
}

// VerifyAuth checks the API key against the platform. A non-200 response
// is reported as an invalid key, not an error.
func (r *Reporter) VerifyAuth(ctx context.Context) (AuthInfo, error) {
	resp, err := r.get(ctx, r.apiURL+"/auth/verify")
	if err != nil {
		return AuthInfo{}, fmt.Errorf("failed to verify API key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AuthInfo{Valid: false}, nil
	}

	var info AuthInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return AuthInfo{}, fmt.Errorf("failed to decode verification response: %w", err)
	}
	return info, nil
}

// UploadResults posts a completed scan result to the project's scan
// collection and returns the platform-assigned scan id.
func (r *Reporter) UploadResults(ctx context.Context, projectID string, result models.ScanResult) (string, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode scan result: %w", err)
	}

	url := fmt.Sprintf("%s/projects/%s/scans", r.apiURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload scan results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	r.log.Info("Results uploaded, scan id:", created.ID)
	return created.ID, nil
}

// GetProject fetches project details, returning nil when the project
// does not exist or the key lacks access.
func (r *Reporter) GetProject(ctx context.Context, projectID string) (*Project, error) {
	resp, err := r.get(ctx, fmt.Sprintf("%s/projects/%s", r.apiURL, projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var p Project
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode project: %w", err)
	}
	return &p, nil
}

func (r *Reporter) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	return r.client.Do(req)
}
