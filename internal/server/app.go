// Package server is the HTTP surface of intratool: storage status,
// federated queries for the assistant, backups and the live event socket.
package server

import (
	"net/http"

	"go.uber.org/zap"

	"intratool/internal/backup"
	"intratool/internal/federation"
	"intratool/internal/storage"
	"intratool/internal/store"
	"intratool/internal/websocket"
)

// App holds shared dependencies for the application.
type App struct {
	Log     *zap.Logger
	Storage *storage.Manager
	Exec    *federation.Executor
	Store   *store.Store
	Backup  *backup.Service
	Hub     *websocket.Hub
	Limiter *RateLimiter
}

// Handler returns the routed and wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", a.handleHealth)
	mux.HandleFunc("GET /api/v1/storage/status", a.handleStorageStatus)

	mux.HandleFunc("POST /api/v1/ai/query", a.handleAIQuery)
	mux.HandleFunc("GET /api/v1/ai/schema", a.handleAISchema)
	mux.HandleFunc("GET /api/v1/ai/queries", a.handleRecentQueries)

	mux.HandleFunc("GET /api/v1/federation/profile", a.handleProfile)
	mux.HandleFunc("DELETE /api/v1/federation/profile", a.handleProfileReset)

	mux.HandleFunc("GET /api/v1/backups", a.handleListBackups)
	mux.HandleFunc("POST /api/v1/backups", a.handleCreateBackup)

	mux.HandleFunc("GET /api/v1/settings", a.handleGetSettings)
	mux.HandleFunc("PUT /api/v1/settings", a.handleSaveSettings)
	mux.HandleFunc("GET /api/v1/drafts", a.handleListDrafts)
	mux.HandleFunc("POST /api/v1/drafts", a.handleSaveDraft)

	mux.HandleFunc("GET /api/v1/notifications", a.handleUnread)
	mux.HandleFunc("POST /api/v1/notifications", a.handleNotify)
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", a.handleMarkRead)

	if a.Hub != nil {
		mux.Handle("GET /ws", a.Hub)
	}

	limiter := a.Limiter
	if limiter == nil {
		limiter = NewRateLimiter()
	}

	var h http.Handler = mux
	h = GzipMiddleware(h)
	h = RateLimitMiddleware(limiter)(h)
	h = LoggingMiddleware(a.Log.Named("http"))(h)
	h = SecurityHeaders(h)
	return h
}
