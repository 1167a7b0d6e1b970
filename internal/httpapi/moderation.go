package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/identity"
	"github.com/tavarakyyti/chat/internal/report"
)

func (a *api) createReport(w http.ResponseWriter, r *http.Request) {
	var in report.Input
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := a.reports.Report(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type blockRequest struct {
	ConversationID string `json:"conversationId"`
	BlockedUserID  string `json:"blockedUserId"`
}

func (a *api) block(w http.ResponseWriter, r *http.Request) {
	a.changeBlock(w, r, a.conversations.SetBlock)
}

func (a *api) unblock(w http.ResponseWriter, r *http.Request) {
	a.changeBlock(w, r, a.conversations.ClearBlock)
}

func (a *api) changeBlock(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, conversationID, blockerID, blockedID string) error) {
	var req blockRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ConversationID == "" {
		writeError(w, r, chat.ErrInvalidPayload)
		return
	}
	if err := apply(r.Context(), req.ConversationID, userID(r), req.BlockedUserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (a *api) listReports(w http.ResponseWriter, r *http.Request) {
	actor, _ := identity.FromContext(r.Context())
	list, err := a.reports.List(r.Context(), actor, report.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type statusRequest struct {
	Status report.Status `json:"status"`
}

func (a *api) setReportStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	actor, _ := identity.FromContext(r.Context())
	rep, err := a.reports.SetStatus(r.Context(), actor, mux.Vars(r)["id"], req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type openTransportRequest struct {
	ReceiverID string `json:"receiverId"`
	CarrierID  string `json:"carrierId"`
}

// openTransportConversation is the marketplace hook called when an offer is
// accepted. It answers 201 when the conversation was created and 200 when
// an existing one was returned.
func (a *api) openTransportConversation(w http.ResponseWriter, r *http.Request) {
	var req openTransportRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	conv, created, err := a.conversations.OpenTransportConversation(r.Context(),
		mux.Vars(r)["transportId"], req.ReceiverID, req.CarrierID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}
