// Package e2e drives a running canopy server through its public HTTP surface
// using godog features. Point CANOPY_E2E_URL at the server under test; when
// it is unset the suite skips. Tokens are minted locally with the server's
// development signing key (override with CANOPY_E2E_SIGNING_KEY).
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSigningKey = "dev-secret-key-change-in-production"
	tokenIssuer       = "canopy"
	tokenAudience     = "canopy-api"
)

// TestContext carries the state steps share within one scenario: the current
// bearer token, the last response, and values saved by earlier steps.
type TestContext struct {
	baseURL    string
	signingKey []byte
	client     *http.Client

	token      string
	lastStatus int
	lastBody   []byte
	saved      map[string]string
}

func NewTestContext() *TestContext {
	key := os.Getenv("CANOPY_E2E_SIGNING_KEY")
	if key == "" {
		key = defaultSigningKey
	}
	return &TestContext{
		baseURL:    strings.TrimRight(os.Getenv("CANOPY_E2E_URL"), "/"),
		signingKey: []byte(key),
		client:     &http.Client{Timeout: 30 * time.Second},
		saved:      map[string]string{},
	}
}

// Reset clears per-scenario state, keeping the connection settings.
func (tc *TestContext) Reset() {
	tc.token = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.saved = map[string]string{}
}

// AuthenticateAs mints a bearer token for a synthetic actor with the given
// role, signed with the key the server trusts.
func (tc *TestContext) AuthenticateAs(role string) error {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   "e2e-" + role,
		"email": "e2e-" + role + "@example.com",
		"role":  role,
		"iss":   tokenIssuer,
		"aud":   tokenAudience,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.signingKey)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	tc.token = token
	return nil
}

// Save stores a value under key for later steps of the same scenario.
func (tc *TestContext) Save(key, value string) {
	tc.saved[key] = value
}

// Saved returns a value stored by an earlier step.
func (tc *TestContext) Saved(key string) (string, error) {
	value, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved under %q; a prior step must save it", key)
	}
	return value, nil
}

// LastStatus returns the status code of the last response.
func (tc *TestContext) LastStatus() int {
	return tc.lastStatus
}

// LastBody returns the raw body of the last response.
func (tc *TestContext) LastBody() []byte {
	return tc.lastBody
}

// ResponseField resolves a dotted path ("metadata.projectName") in the last
// JSON response.
func (tc *TestContext) ResponseField(path string) (any, error) {
	var parsed any
	if err := json.Unmarshal(tc.lastBody, &parsed); err != nil {
		return nil, fmt.Errorf("last response is not JSON: %w", err)
	}
	current := parsed
	for _, segment := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, segment)
		}
		current, ok = object[segment]
		if !ok {
			return nil, fmt.Errorf("field %q is absent from the response", path)
		}
	}
	return current, nil
}

// GET issues an authenticated GET request.
func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, "", nil)
}

// POST issues an authenticated POST request with a JSON body.
func (tc *TestContext) POST(path string, body any) error {
	return tc.sendJSON(http.MethodPost, path, body)
}

// PUT issues an authenticated PUT request with a JSON body.
func (tc *TestContext) PUT(path string, body any) error {
	return tc.sendJSON(http.MethodPut, path, body)
}

// DELETE issues an authenticated DELETE request.
func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, "", nil)
}

// UploadDocument issues the multipart upload request: one file part named
// "file" plus the given form fields.
func (tc *TestContext) UploadDocument(filename, contentType string, content []byte, fields map[string]string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("build file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write file part: %w", err)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	return tc.do(http.MethodPost, "/v1/documents", writer.FormDataContentType(), buf.Bytes())
}

func (tc *TestContext) sendJSON(method, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return tc.do(method, path, "application/json", payload)
}

func (tc *TestContext) do(method, path, contentType string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	return nil
}
