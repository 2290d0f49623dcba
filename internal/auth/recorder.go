package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// RecordedRequest is one captured step of an authentication flow.
type RecordedRequest struct {
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
	Body     string            `json:"body,omitempty"`
	Response RecordedResponse  `json:"response"`
}

// RecordedResponse is the captured reply for a recorded request.
type RecordedResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

// Recorder captures multi-step authentication flows so they can be
// replayed before a scan.
type Recorder struct {
	requests []RecordedRequest
	cookies  map[string]string
	headers  map[string]string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		cookies: map[string]string{},
		headers: map[string]string{},
	}
}

// Record appends a request/response pair and harvests any Set-Cookie
// values from the response headers.
func (r *Recorder) Record(req RecordedRequest) {
	if req.Response.Headers == nil {
		req.Response.Headers = map[string]string{}
	}
	r.requests = append(r.requests, req)

	for key, value := range req.Response.Headers {
		if strings.EqualFold(key, "set-cookie") {
			if name, cookieValue, ok := parseSetCookie(value); ok {
				r.cookies[name] = cookieValue
			}
		}
	}
}

// ExportedFlow is the serializable form of a recorded flow.
type ExportedFlow struct {
	Requests []RecordedRequest `json:"requests"`
	Cookies  map[string]string `json:"cookies"`
	Headers  map[string]string `json:"headers"`
}

// Export returns the flow for persistence.
func (r *Recorder) Export() ExportedFlow {
	return ExportedFlow{
		Requests: r.requests,
		Cookies:  r.cookies,
		Headers:  r.headers,
	}
}

// Replay re-issues every recorded request in order and returns an auth
// context holding the cookies accumulated along the way.
func (r *Recorder) Replay(ctx context.Context) (*Context, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	for _, recorded := range r.requests {
		req, err := http.NewRequestWithContext(ctx, recorded.Method, recorded.URL, strings.NewReader(recorded.Body))
		if err != nil {
			return nil, fmt.Errorf("build replay request: %w", err)
		}
		for k, v := range recorded.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("replay %s %s: %w", recorded.Method, recorded.URL, err)
		}
		for _, cookie := range jar.Cookies(resp.Request.URL) {
			r.cookies[cookie.Name] = cookie.Value
		}
		resp.Body.Close()
	}

	return &Context{
		Method:  "recorded_flow",
		Cookies: r.cookies,
		Headers: r.headers,
	}, nil
}
