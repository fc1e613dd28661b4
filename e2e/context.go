// Package e2e drives the assembled HTTP API through Gherkin scenarios.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cardgate/internal/app"
	"cardgate/internal/platform/config"
)

const (
	IssuerUsername = "issuer"
	IssuerPassword = "issuer-password"
)

// TestContext is the per-scenario world shared by every step package.
type TestContext struct {
	app       *app.App
	clientIP  string
	userAgent string
	bearer    string
	last      *httptest.ResponseRecorder
	lastBody  []byte
	names     map[string]string
}

func NewTestContext() *TestContext {
	return &TestContext{names: make(map[string]string)}
}

// Start builds a fresh in-memory gateway. requestsPerMinute bounds the token
// and auth endpoints per client IP.
func (tc *TestContext) Start(requestsPerMinute int) error {
	tc.Stop()
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	cfg.Auth.AdminUsername = IssuerUsername
	cfg.Auth.AdminEmail = "issuer@example.test"
	cfg.Auth.AdminPassword = IssuerPassword
	cfg.RateLimit.Requests = requestsPerMinute
	cfg.RateLimit.Window = time.Minute

	a, err := app.Build(context.Background(), cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		app.WithRegistry(prometheus.NewRegistry()),
	)
	if err != nil {
		return err
	}
	tc.app = a
	tc.clientIP = "198.51.100.1"
	tc.userAgent = ""
	tc.bearer = ""
	tc.last = nil
	tc.lastBody = nil
	clear(tc.names)
	return nil
}

func (tc *TestContext) Stop() {
	if tc.app != nil {
		_ = tc.app.Close()
		tc.app = nil
	}
}

func (tc *TestContext) SetClientIP(ip string)       { tc.clientIP = ip }
func (tc *TestContext) SetUserAgent(ua string)      { tc.userAgent = ua }
func (tc *TestContext) SetBearer(token string)      { tc.bearer = token }
func (tc *TestContext) Remember(name, value string) { tc.names[name] = value }

func (tc *TestContext) Recall(name string) (string, error) {
	v, ok := tc.names[name]
	if !ok {
		return "", fmt.Errorf("nothing remembered as %q", name)
	}
	return v, nil
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	if tc.app == nil {
		return fmt.Errorf("gateway not started")
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+tc.bearer)
	}
	if tc.userAgent != "" {
		req.Header.Set("User-Agent", tc.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.RemoteAddr = tc.clientIP + ":40000"

	rr := httptest.NewRecorder()
	tc.app.Router.ServeHTTP(rr, req)
	tc.last = rr
	tc.lastBody = rr.Body.Bytes()
	return nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.last == nil {
		return 0
	}
	return tc.last.Code
}

func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.last == nil {
		return ""
	}
	return tc.last.Header().Get(name)
}

// GetResponseField reads a top-level field of the last JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("response has no %q field: %s", field, strings.TrimSpace(string(tc.lastBody)))
	}
	return v, nil
}
