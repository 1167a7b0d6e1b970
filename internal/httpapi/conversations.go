package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/identity"
)

func userID(r *http.Request) string {
	id, _ := identity.FromContext(r.Context())
	return id.UserID
}

func (a *api) createConversation(w http.ResponseWriter, r *http.Request) {
	var in chat.CreateConversationInput
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	conv, err := a.conversations.Create(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (a *api) listConversations(w http.ResponseWriter, r *http.Request) {
	list, err := a.conversations.List(r.Context(), userID(r), r.URL.Query().Get("transportId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*chat.Conversation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := a.conversations.Get(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (a *api) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var page chat.Page
	var err error

	if page.Before, err = parseCursor(q.Get("before")); err != nil {
		writeError(w, r, err)
		return
	}
	if page.After, err = parseCursor(q.Get("after")); err != nil {
		writeError(w, r, err)
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, chat.ErrInvalidPayload)
			return
		}
		page.Limit = n
	}

	msgs, err := a.messages.List(r.Context(), mux.Vars(r)["id"], userID(r), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// parseCursor accepts an RFC 3339 timestamp or Unix milliseconds.
func parseCursor(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, chat.ErrInvalidPayload
	}
	t = t.UTC()
	return &t, nil
}

type sendRequest struct {
	Text        string            `json:"text"`
	Attachments []chat.Attachment `json:"attachments"`
}

func (a *api) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := a.messages.Send(r.Context(), chat.SendInput{
		ConversationID: mux.Vars(r)["id"],
		SenderID:       userID(r),
		Text:           req.Text,
		Attachments:    req.Attachments,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*chat.MessageView{"message": msg})
}

func (a *api) deleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.messages.DeleteForUser(r.Context(), vars["id"], vars["messageId"], userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type readRequest struct {
	At *time.Time `json:"at"`
}

type readResponse struct {
	OK bool      `json:"ok"`
	At time.Time `json:"at"`
}

func (a *api) markRead(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	at, err := a.messages.MarkRead(r.Context(), mux.Vars(r)["id"], userID(r), req.At)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readResponse{OK: true, At: at})
}

type muteRequest struct {
	Until *time.Time `json:"until"`
}

type muteResponse struct {
	OK    bool       `json:"ok"`
	Until *time.Time `json:"until"`
}

func (a *api) setMuted(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.conversations.SetMuted(r.Context(), mux.Vars(r)["id"], userID(r), req.Until); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, muteResponse{OK: true, Until: req.Until})
}
