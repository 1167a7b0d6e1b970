// Package httpapi is the REST binding of the chat core. Handlers decode the
// request, call the same services the realtime gateway uses, and map service
// errors to status codes with a {"error": "<kind>"} body.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/identity"
	"github.com/tavarakyyti/chat/internal/metrics"
	"github.com/tavarakyyti/chat/internal/ratelimit"
	"github.com/tavarakyyti/chat/internal/report"
	"github.com/tavarakyyti/chat/internal/upload"
)

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (identity.Identity, error)
}

// Deps are the collaborators the REST API is built from. Limiter, WS and
// Health are optional.
type Deps struct {
	Conversations *chat.ConversationService
	Messages      *chat.MessageService
	Reports       *report.Service
	Uploads       *upload.Service
	Verifier      TokenVerifier
	Limiter       *ratelimit.HTTPLimiter
	WS            http.Handler
	Health        http.HandlerFunc
	Origins       []string
}

type api struct {
	conversations *chat.ConversationService
	messages      *chat.MessageService
	reports       *report.Service
	uploads       *upload.Service
	verifier      TokenVerifier
}

// NewHandler builds the full HTTP surface: /api/chat REST routes, the
// attachment download route, /ws, /health and /metrics.
func NewHandler(d Deps) http.Handler {
	a := &api{
		conversations: d.Conversations,
		messages:      d.Messages,
		reports:       d.Reports,
		uploads:       d.Uploads,
		verifier:      d.Verifier,
	}

	r := mux.NewRouter()
	r.Use(logRequests)

	health := d.Health
	if health == nil {
		health = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}
	}
	r.HandleFunc("/health", health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if d.WS != nil {
		r.Handle("/ws", d.WS).Methods(http.MethodGet)
	}

	// Attachment URLs are handed to other participants, so downloads are
	// public. Registered before the authenticated subrouter so it wins.
	r.HandleFunc("/api/chat/files/{id}", a.downloadFile).Methods(http.MethodGet)

	chatAPI := r.PathPrefix("/api/chat").Subrouter()
	chatAPI.Use(a.authenticate)
	if d.Limiter != nil {
		chatAPI.Use(d.Limiter.Middleware)
	}

	chatAPI.HandleFunc("/conversations", a.createConversation).Methods(http.MethodPost)
	chatAPI.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	chatAPI.HandleFunc("/conversations/{id}", a.getConversation).Methods(http.MethodGet)
	chatAPI.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)
	chatAPI.HandleFunc("/conversations/{id}/messages", a.sendMessage).Methods(http.MethodPost)
	chatAPI.HandleFunc("/conversations/{id}/messages/{messageId}", a.deleteMessage).Methods(http.MethodDelete)
	chatAPI.HandleFunc("/conversations/{id}/read", a.markRead).Methods(http.MethodPost)
	chatAPI.HandleFunc("/conversations/{id}/mute", a.setMuted).Methods(http.MethodPost)
	chatAPI.HandleFunc("/upload", a.uploadFile).Methods(http.MethodPost)
	chatAPI.HandleFunc("/report", a.createReport).Methods(http.MethodPost)
	chatAPI.HandleFunc("/block", a.block).Methods(http.MethodPost)
	chatAPI.HandleFunc("/unblock", a.unblock).Methods(http.MethodPost)

	admin := chatAPI.NewRoute().Subrouter()
	admin.Use(requireAdmin)
	admin.HandleFunc("/admin/reports", a.listReports).Methods(http.MethodGet)
	admin.HandleFunc("/admin/reports/{id}", a.setReportStatus).Methods(http.MethodPost)
	admin.HandleFunc("/transports/{transportId}/conversation", a.openTransportConversation).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, chat.ErrNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed"})
	})

	return withCORS(d.Origins, r)
}
