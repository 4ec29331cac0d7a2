package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const callerHeader = "X-Caller-Address"

// TestContext drives a running server over HTTP. Participant names used in
// features are suffixed with the scenario ID so scenarios never share
// addresses on a long-lived server.
type TestContext struct {
	baseURL string
	admin   string
	client  *http.Client

	scenario   string
	caller     string
	lastStatus int
	lastHeader http.Header
	lastBody   []byte
	saved      map[string]any
}

func NewTestContext(baseURL, admin string) *TestContext {
	return &TestContext{
		baseURL: strings.TrimRight(baseURL, "/"),
		admin:   admin,
		client:  &http.Client{Timeout: 10 * time.Second},
		saved:   make(map[string]any),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset(scenarioID string) {
	tc.scenario = scenarioID
	tc.caller = ""
	tc.lastStatus = 0
	tc.lastHeader = nil
	tc.lastBody = nil
	tc.saved = make(map[string]any)
}

// Address maps a feature name to a ledger address. "admin" is the seeded
// administrator.
func (tc *TestContext) Address(name string) string {
	if name == "admin" {
		return tc.admin
	}
	return fmt.Sprintf("0x%s-%s", name, tc.scenario)
}

func (tc *TestContext) ActAs(name string) {
	tc.caller = tc.Address(name)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) PUT(path string, body any) error {
	return tc.do(http.MethodPut, path, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.caller != "" {
		req.Header.Set(callerHeader, tc.caller)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	return nil
}

// GetResponseField reads a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("decode response %q: %w", tc.lastBody, err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) LastStatus() int              { return tc.lastStatus }
func (tc *TestContext) LastBody() []byte             { return tc.lastBody }
func (tc *TestContext) LastHeader(name string) string { return tc.lastHeader.Get(name) }

func (tc *TestContext) Save(key string, v any) { tc.saved[key] = v }

func (tc *TestContext) Saved(key string) (any, bool) {
	v, ok := tc.saved[key]
	return v, ok
}
