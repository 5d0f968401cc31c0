// Package e2e drives the gateway and user-service as a black box with godog
// scenarios. Point E2E_BASE_URL at a running gateway.
package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

// TestContext holds per-scenario HTTP state.
type TestContext struct {
	BaseURL string
	client  *http.Client

	lastStatus int
	lastBody   []byte
	lastHeader http.Header

	accessToken string
	phone       string
	passport    string
	password    string
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears state between scenarios and draws fresh identity numbers so
// scenarios never collide on unique constraints.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeader = nil
	tc.accessToken = ""
	tc.phone = "79" + randomDigits(9)
	tc.passport = randomDigits(10)
	tc.password = "Str0ng!Pass"
}

func (tc *TestContext) POST(path string, body any, headers map[string]string) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(raw), headers)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
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

func (tc *TestContext) GetResponseField(field string) (any, error) {
	var out map[string]any
	if err := json.Unmarshal(tc.lastBody, &out); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := out[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) GetLastResponseStatus() int  { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

func (tc *TestContext) GetLastResponseHeader(k string) string {
	if tc.lastHeader == nil {
		return ""
	}
	return tc.lastHeader.Get(k)
}

func (tc *TestContext) GetAccessToken() string      { return tc.accessToken }
func (tc *TestContext) SetAccessToken(token string) { tc.accessToken = token }
func (tc *TestContext) GetPhone() string            { return tc.phone }
func (tc *TestContext) GetPassport() string         { return tc.passport }
func (tc *TestContext) GetPassword() string         { return tc.password }

func randomDigits(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			panic(err)
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf)
}
