package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"intratool/internal/backup"
	"intratool/internal/federation"
	"intratool/internal/modules"
	"intratool/internal/store"
	"intratool/internal/testutil"
	"intratool/internal/websocket"
)

func newApp(t *testing.T) *App {
	t.Helper()
	log := zaptest.NewLogger(t)
	mgr := testutil.NewManager(t)
	return &App{
		Log:     log,
		Storage: mgr,
		Exec:    federation.New(log, mgr, federation.Config{ProfileSize: 20}),
		Store:   store.New(mgr),
		Backup:  backup.New(log, mgr, t.TempDir(), 2),
		Hub:     websocket.NewHub(zap.NewNop()),
	}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := newApp(t).Handler()
	w := serve(h, httptest.NewRequest("GET", "/api/v1/health", nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	var body map[string]any
	testutil.DecodeEnvelope(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body["driver"], "sqlite")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestStorageStatus(t *testing.T) {
	app := newApp(t)
	testutil.Acquire(t, app.Storage, "planner.db")
	h := app.Handler()

	w := serve(h, httptest.NewRequest("GET", "/api/v1/storage/status", nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	var statuses []struct {
		Module      string `json:"module"`
		File        string `json:"file"`
		Open        bool   `json:"open"`
		Created     bool   `json:"created"`
		Initialized bool   `json:"initialized"`
		Healthy     bool   `json:"healthy"`
	}
	total := testutil.DecodeEnvelope(t, w, &statuses)
	assert.Equal(t, len(statuses), total)
	require.NotEmpty(t, statuses)
	assert.Equal(t, modules.MainFile, statuses[0].File)
	assert.False(t, statuses[0].Open)

	var planner bool
	for _, st := range statuses {
		if st.File == "planner.db" {
			planner = true
			assert.Equal(t, "planner", st.Module)
			assert.True(t, st.Open)
			assert.True(t, st.Created)
			assert.True(t, st.Initialized)
			assert.True(t, st.Healthy)
		}
	}
	assert.True(t, planner)
}

func TestAIQuery(t *testing.T) {
	app := newApp(t)
	testutil.Exec(t, testutil.Acquire(t, app.Storage, modules.MainFile),
		`INSERT INTO customers (name) VALUES ('ACME Srl')`)
	testutil.Acquire(t, app.Storage, "warehouse.db")
	h := app.Handler()

	conv, err := app.Store.StartConversation(context.Background(), 1, "stock", "local")
	require.NoError(t, err)

	w := serve(h, testutil.JSONRequest("POST", "/api/v1/ai/query", map[string]string{
		"sql":             `SELECT name FROM customers UNION ALL SELECT code FROM warehouse_management.locations`,
		"conversation_id": conv,
	}))
	testutil.AssertStatus(t, w, http.StatusOK)

	var res queryResponse
	testutil.DecodeEnvelope(t, w, &res)
	assert.Equal(t, []string{"name"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []map[string]any{{"name": "ACME Srl"}, {"name": "RECEIVING"}}, res.Rows)

	logged, err := app.Store.RecentQueries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, conv, logged[0].ConversationID)
	assert.Equal(t, 2, logged[0].RowCount)
	assert.Empty(t, logged[0].Error)
}

func TestAIQuery_Rejected(t *testing.T) {
	app := newApp(t)
	h := app.Handler()

	w := serve(h, testutil.JSONRequest("POST", "/api/v1/ai/query", map[string]string{
		"sql": "DELETE FROM users",
	}))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "NOT_READ_ONLY", testutil.DecodeError(t, w).Code)

	w = serve(h, testutil.JSONRequest("POST", "/api/v1/ai/query", map[string]string{"sql": "  "}))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = serve(h, httptest.NewRequest("POST", "/api/v1/ai/query", strings.NewReader("{")))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	// users is untouched
	var n int
	require.NoError(t, testutil.Acquire(t, app.Storage, modules.MainFile).
		QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestAIQuery_WritesNeverReachTheFiles(t *testing.T) {
	app := newApp(t)
	h := app.Handler()

	// a quote inside a trailing comment must not hide the second statement
	w := serve(h, testutil.JSONRequest("POST", "/api/v1/ai/query", map[string]string{
		"sql": "SELECT 1 -- don't\n; DELETE FROM app_settings",
	}))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "NOT_READ_ONLY", testutil.DecodeError(t, w).Code)

	// passes the keyword check, stopped by the query-only connection
	w = serve(h, testutil.JSONRequest("POST", "/api/v1/ai/query", map[string]string{
		"sql": "WITH t AS (SELECT 1) DELETE FROM app_settings",
	}))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "QUERY_FAILED", testutil.DecodeError(t, w).Code)

	db := testutil.Acquire(t, app.Storage, modules.MainFile)
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM app_settings`).Scan(&n))
	assert.Equal(t, 1, n)

	// the connection is writable again afterwards
	_, err := db.Exec(`UPDATE app_settings SET company_name = 'ACME Srl' WHERE id = 1`)
	require.NoError(t, err)
}

func TestAIQuery_FailureIsLogged(t *testing.T) {
	app := newApp(t)
	h := app.Handler()

	w := serve(h, testutil.JSONRequest("POST", "/api/v1/ai/query", map[string]string{
		"sql": "SELECT * FROM no_such_table",
	}))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	body := testutil.DecodeError(t, w)
	assert.Equal(t, "QUERY_FAILED", body.Code)
	assert.Contains(t, body.Error, "no such table")

	w = serve(h, httptest.NewRequest("GET", "/api/v1/ai/queries?limit=5", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var logged []store.QueryLogEntry
	assert.Equal(t, 1, testutil.DecodeEnvelope(t, w, &logged))
	assert.Contains(t, logged[0].Error, "no such table")

	w = serve(h, httptest.NewRequest("GET", "/api/v1/ai/queries?limit=zero", nil))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = serve(h, httptest.NewRequest("GET", "/api/v1/federation/profile", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var profile struct {
		Stats federation.Stats `json:"stats"`
	}
	testutil.DecodeEnvelope(t, w, &profile)
	assert.Equal(t, 1, profile.Stats.TotalQueries)
	assert.Equal(t, 1, profile.Stats.Failed)

	w = serve(h, httptest.NewRequest("DELETE", "/api/v1/federation/profile", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Empty(t, app.Exec.Profiler().All())
}

func TestAISchema(t *testing.T) {
	app := newApp(t)
	testutil.Acquire(t, app.Storage, "planner.db")
	h := app.Handler()

	w := serve(h, httptest.NewRequest("GET", "/api/v1/ai/schema", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var tables []federation.TableInfo
	testutil.DecodeEnvelope(t, w, &tables)

	var names []string
	for _, tbl := range tables {
		names = append(names, tbl.Qualified())
	}
	assert.Contains(t, names, "users")
	assert.Contains(t, names, "planner.machines")
	assert.NotContains(t, names, "warehouse_management.inventory")

	w = serve(h, httptest.NewRequest("GET", "/api/v1/ai/schema?format=text", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "planner.machines(")
}

func TestSettingsAndDrafts(t *testing.T) {
	h := newApp(t).Handler()

	w := serve(h, testutil.JSONRequest("PUT", "/api/v1/settings", store.Settings{
		CompanyName: "Officine Rossi", Currency: "EUR", VATRate: 22,
	}))
	testutil.AssertStatus(t, w, http.StatusOK)
	var st store.Settings
	testutil.DecodeEnvelope(t, w, &st)
	assert.Equal(t, "Officine Rossi", st.CompanyName)

	w = serve(h, testutil.JSONRequest("PUT", "/api/v1/settings", store.Settings{VATRate: 140}))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = serve(h, testutil.JSONRequest("POST", "/api/v1/drafts", map[string]any{
		"name": "Gate 3m", "user_id": 1, "payload": `{"w":3}`,
	}))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = serve(h, testutil.JSONRequest("POST", "/api/v1/drafts", map[string]any{"id": 42, "name": "ghost"}))
	testutil.AssertStatus(t, w, http.StatusNotFound)

	w = serve(h, httptest.NewRequest("GET", "/api/v1/drafts?user_id=1", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var drafts []store.Draft
	assert.Equal(t, 1, testutil.DecodeEnvelope(t, w, &drafts))
	assert.Equal(t, "Gate 3m", drafts[0].Name)

	w = serve(h, httptest.NewRequest("GET", "/api/v1/drafts", nil))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestNotificationsBroadcast(t *testing.T) {
	app := newApp(t)
	// the socket handler may finish after the test does
	app.Log = zap.NewNop()
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.Hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	h := app.Handler()
	w := serve(h, testutil.JSONRequest("POST", "/api/v1/notifications", map[string]any{
		"user_id": 3, "title": "Low stock", "module": "warehouse-management",
	}))
	testutil.AssertStatus(t, w, http.StatusOK)
	var created map[string]string
	testutil.DecodeEnvelope(t, w, &created)
	require.NotEmpty(t, created["id"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg websocket.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)

	w = serve(h, httptest.NewRequest("GET", "/api/v1/notifications?user_id=3", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, 1, testutil.DecodeEnvelope(t, w, nil))

	w = serve(h, httptest.NewRequest("POST", "/api/v1/notifications/"+created["id"]+"/read", nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	w = serve(h, httptest.NewRequest("GET", "/api/v1/notifications?user_id=3", nil))
	assert.Equal(t, 0, testutil.DecodeEnvelope(t, w, nil))

	w = serve(h, httptest.NewRequest("POST", "/api/v1/notifications/nope/read", nil))
	testutil.AssertStatus(t, w, http.StatusNotFound)

	w = serve(h, testutil.JSONRequest("POST", "/api/v1/notifications", map[string]any{"title": "x"}))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestBackups(t *testing.T) {
	app := newApp(t)
	testutil.Acquire(t, app.Storage, modules.MainFile)
	testutil.Acquire(t, app.Storage, "requests.db")
	h := app.Handler()

	w := serve(h, httptest.NewRequest("POST", "/api/v1/backups", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var set backup.Set
	testutil.DecodeEnvelope(t, w, &set)
	var files []string
	for _, f := range set.Files {
		files = append(files, f.Name)
	}
	assert.ElementsMatch(t, []string{modules.MainFile, "requests.db"}, files)

	w = serve(h, httptest.NewRequest("GET", "/api/v1/backups", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, 1, testutil.DecodeEnvelope(t, w, nil))
}
