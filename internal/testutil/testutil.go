// Package testutil holds helpers shared by the package tests: scratch data
// directories backed by the real module registry, and JSON request and
// envelope helpers for the HTTP surface.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"intratool/internal/modules"
	"intratool/internal/response"
	"intratool/internal/storage"
)

// NewManager returns a storage manager over a fresh data directory with
// every module registered. It is closed when the test ends.
func NewManager(t *testing.T) *storage.Manager {
	t.Helper()
	mgr := storage.New(zaptest.NewLogger(t), storage.Config{Dir: filepath.Join(t.TempDir(), "data")}, modules.Default())
	t.Cleanup(func() {
		if err := mgr.Close(); err != nil {
			t.Errorf("close manager: %v", err)
		}
	})
	return mgr
}

// Acquire acquires file and fails the test on error.
func Acquire(t *testing.T, mgr *storage.Manager, file string) *sql.DB {
	t.Helper()
	h, err := mgr.Acquire(context.Background(), file)
	if err != nil {
		t.Fatalf("acquire %s: %v", file, err)
	}
	return h.DB()
}

// Exec runs statements against db and fails the test on the first error.
func Exec(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

// WriteGarbage creates path with content that is not a SQLite database.
func WriteGarbage(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	junk := bytes.Repeat([]byte("this is not a database "), 256)
	if err := os.WriteFile(path, junk, 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
}

// JSONRequest creates an HTTP request with a JSON body.
func JSONRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope into v and returns the
// envelope's total, or -1 when it carries none.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v any) int {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
		Meta *response.Meta  `json:"meta"`
	}
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("Failed to decode data from envelope: %v", err)
		}
	}
	if env.Meta == nil {
		return -1
	}
	return env.Meta.Total
}

// DecodeError decodes an API error body.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var body response.ErrorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}
