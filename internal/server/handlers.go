package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"intratool/internal/federation"
	"intratool/internal/response"
	"intratool/internal/storage"
	"intratool/internal/store"
	"intratool/internal/validation"
	"intratool/internal/websocket"
)

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if a.Hub != nil {
		clients = a.Hub.Clients()
	}
	response.JSON(w, map[string]any{
		"status":  "ok",
		"driver":  storage.Driver(),
		"clients": clients,
	})
}

type statusView struct {
	storage.Status
	Healthy bool `json:"healthy"`
}

func (a *App) handleStorageStatus(w http.ResponseWriter, r *http.Request) {
	statuses := a.Storage.Status()
	out := make([]statusView, len(statuses))
	for i, st := range statuses {
		out[i] = statusView{Status: st, Healthy: st.Healthy()}
	}
	response.JSONTotal(w, out, len(out))
}

type queryRequest struct {
	SQL            string `json:"sql"`
	ConversationID string `json:"conversation_id"`
}

type queryResponse struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Duration string           `json:"duration"`
}

// handleAIQuery runs a read-only federated statement on behalf of the
// assistant and records it in the query log.
func (a *App) handleAIQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.SQL = strings.TrimSpace(req.SQL)
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "sql", req.SQL)
	validation.ValidateMaxLength(ve, "sql", req.SQL, validation.MaxSQLLength)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}
	if err := federation.ReadOnly(req.SQL); err != nil {
		response.ErrCode(w, err.Error(), "NOT_READ_ONLY", http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := a.Exec.RunReadOnly(r.Context(), req.SQL)
	elapsed := time.Since(start)

	entry := store.QueryLogEntry{
		ConversationID: req.ConversationID,
		SQL:            req.SQL,
		DurationMs:     elapsed.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.RowCount = len(res.Rows)
	}
	if lerr := a.Store.LogQuery(r.Context(), entry); lerr != nil {
		a.Log.Warn("query log", zap.Error(lerr))
	}

	if err != nil {
		if storage.Error.Has(err) {
			response.Err(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		response.ErrCode(w, err.Error(), "QUERY_FAILED", http.StatusBadRequest)
		return
	}
	response.JSON(w, queryResponse{
		Columns:  res.Columns,
		Rows:     res.Records(),
		RowCount: len(res.Rows),
		Duration: elapsed.String(),
	})
}

func (a *App) handleAISchema(w http.ResponseWriter, r *http.Request) {
	tables, err := a.Exec.Schema(r.Context())
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(federation.Describe(tables)))
		return
	}
	response.JSONTotal(w, tables, len(tables))
}

func (a *App) handleRecentQueries(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.Err(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}
	entries, err := a.Store.RecentQueries(r.Context(), limit)
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response.JSONTotal(w, entries, len(entries))
}

func (a *App) handleProfile(w http.ResponseWriter, r *http.Request) {
	p := a.Exec.Profiler()
	out := map[string]any{
		"stats": p.Stats(),
		"slow":  p.Slow(),
	}
	if r.URL.Query().Get("all") == "1" {
		out["queries"] = p.All()
	}
	response.JSON(w, out)
}

func (a *App) handleProfileReset(w http.ResponseWriter, r *http.Request) {
	a.Exec.Profiler().Reset()
	response.JSON(w, map[string]string{"status": "ok"})
}

func (a *App) handleListBackups(w http.ResponseWriter, r *http.Request) {
	sets, err := a.Backup.List()
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response.JSONTotal(w, sets, len(sets))
}

func (a *App) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	set, err := a.Backup.Run(r.Context())
	if err != nil {
		response.Err(w, "backup failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	response.JSON(w, set)
}

func (a *App) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.Store.Settings(r.Context())
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response.JSON(w, st)
}

func (a *App) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var st store.Settings
	if err := response.DecodeBody(r, &st); err != nil {
		response.Err(w, "invalid body", http.StatusBadRequest)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateMaxLength(ve, "company_name", st.CompanyName, validation.MaxNameLength)
	validation.ValidateCurrency(ve, "currency", st.Currency)
	validation.ValidatePercentage(ve, "vat_rate", st.VATRate)
	validation.ValidateMaxLength(ve, "smtp_config", st.SMTPConfig, validation.MaxStringLength)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}
	if st.Currency == "" {
		st.Currency = "EUR"
	}
	if err := a.Store.SaveSettings(r.Context(), st); err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.handleGetSettings(w, r)
}

type draftRequest struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CustomerID int64  `json:"customer_id"`
	Payload    string `json:"payload"`
	UserID     int64  `json:"user_id"`
}

func (a *App) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	drafts, err := a.Store.Drafts(r.Context(), userID)
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response.JSONTotal(w, drafts, len(drafts))
}

func (a *App) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", http.StatusBadRequest)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", req.Name)
	validation.ValidateMaxLength(ve, "name", req.Name, validation.MaxNameLength)
	validation.ValidateMaxLength(ve, "payload", req.Payload, validation.MaxStringLength)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}
	id, err := a.Store.SaveDraft(r.Context(), store.Draft{
		ID:         req.ID,
		Name:       req.Name,
		CustomerID: sql.NullInt64{Int64: req.CustomerID, Valid: req.CustomerID != 0},
		Payload:    req.Payload,
		UserID:     sql.NullInt64{Int64: req.UserID, Valid: req.UserID != 0},
	})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		response.Err(w, "draft not found", http.StatusNotFound)
	case err != nil:
		response.Err(w, err.Error(), http.StatusBadRequest)
	default:
		response.JSON(w, map[string]int64{"id": id})
	}
}

func (a *App) handleUnread(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	list, err := a.Store.Unread(r.Context(), userID)
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response.JSONTotal(w, list, len(list))
}

func (a *App) handleNotify(w http.ResponseWriter, r *http.Request) {
	var n store.Notification
	if err := response.DecodeBody(r, &n); err != nil {
		response.Err(w, "invalid body", http.StatusBadRequest)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequirePositiveID(ve, "user_id", n.UserID)
	validation.RequireField(ve, "title", n.Title)
	validation.ValidateMaxLength(ve, "title", n.Title, validation.MaxNameLength)
	validation.ValidateMaxLength(ve, "body", n.Body, validation.MaxStringLength)
	validation.ValidateEnum(ve, "severity", n.Severity, validation.ValidSeverities)
	validation.ValidateEnum(ve, "channel", n.Channel, validation.ValidChannels)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}
	id, err := a.Store.Notify(r.Context(), n)
	if err != nil {
		response.Err(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.ID = id
	if a.Hub != nil {
		a.Hub.Broadcast(websocket.Message{Type: "notification", Data: n})
	}
	response.JSON(w, map[string]string{"id": id})
}

func (a *App) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	err := a.Store.MarkRead(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		response.Err(w, "notification not found", http.StatusNotFound)
	case err != nil:
		response.Err(w, err.Error(), http.StatusInternalServerError)
	default:
		response.JSON(w, map[string]string{"status": "ok"})
	}
}

func userParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || id <= 0 {
		response.Err(w, "user_id is required", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
