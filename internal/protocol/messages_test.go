package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tavarakyyti/chat/internal/chat"
)

// ---------------------------------------------------------------------------
// Test: Parsing a chat:message frame
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMsg(t *testing.T) {
	input := []byte(`{"type":"chat:message","conversationId":"c-1","text":"Hello!","tempId":"t1",` +
		`"attachments":[{"url":"https://cdn/a.png","mime":"image/png","size":12,"name":"a.png"}]}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.ConversationID != "c-1" || cm.Text != "Hello!" || cm.TempID != "t1" {
		t.Errorf("unexpected fields: %+v", cm)
	}
	if len(cm.Attachments) != 1 || cm.Attachments[0].Size != 12 {
		t.Errorf("unexpected attachments: %+v", cm.Attachments)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing chat:typing and chat:read frames
// ---------------------------------------------------------------------------

func TestParseClientMessage_TypingAndRead(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"chat:typing","conversationId":"c-1","isTyping":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tm, ok := msg.(TypingMsg)
	if !ok || !tm.IsTyping || tm.ConversationID != "c-1" {
		t.Fatalf("unexpected typing message: %#v", msg)
	}

	_, msg, err = ParseClientMessage([]byte(`{"type":"chat:read","conversationId":"c-1","at":"2024-03-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rm, ok := msg.(ReadMsg)
	if !ok || rm.At == nil {
		t.Fatalf("unexpected read message: %#v", msg)
	}
	if want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC); !rm.At.Equal(want) {
		t.Errorf("expected at %v, got %v", want, rm.At)
	}

	_, msg, err = ParseClientMessage([]byte(`{"type":"chat:read","conversationId":"c-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rm := msg.(ReadMsg); rm.At != nil {
		t.Errorf("expected nil at, got %v", rm.At)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing errors
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

func TestParseClientMessage_Malformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"conversationId":"c-1"}`),
		[]byte(`{"type":"chat:typing","isTyping":"yes"}`),
	}
	for _, input := range cases {
		if _, _, err := ParseClientMessage(input); err == nil {
			t.Errorf("expected error for %s", input)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Server frames built from events
// ---------------------------------------------------------------------------

func TestFromEvent_MessageNew(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	data, err := FromEvent(chat.Event{
		Type:           chat.EventMessageNew,
		ConversationID: "c-1",
		TempID:         "t1",
		Message: &chat.MessageView{
			ID: "m1", ConversationID: "c-1", SenderID: "u1", Text: "hi",
			Attachments: []chat.Attachment{}, CreatedAt: created,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeMessageNew {
		t.Errorf("expected type %q, got %v", TypeMessageNew, result["type"])
	}
	if result["tempId"] != "t1" {
		t.Errorf("expected tempId t1, got %v", result["tempId"])
	}
	msg, ok := result["message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected message object, got %T", result["message"])
	}
	if msg["text"] != "hi" || msg["senderId"] != "u1" {
		t.Errorf("unexpected message payload: %v", msg)
	}
	if _, leaked := msg["deletedFor"]; leaked {
		t.Error("deletedFor must not be exposed")
	}
}

func TestFromEvent_TypingKeepsFalse(t *testing.T) {
	data, err := FromEvent(chat.Event{Type: chat.EventTyping, ConversationID: "c-1", UserID: "u1", IsTyping: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded ServerTypingMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeTyping || decoded.UserID != "u1" || decoded.IsTyping {
		t.Errorf("unexpected typing frame: %+v", decoded)
	}

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	if _, ok := raw["isTyping"]; !ok {
		t.Error("expected isTyping to be present when false")
	}
}

func TestFromEvent_Read(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	data, err := FromEvent(chat.Event{Type: chat.EventRead, ConversationID: "c-1", UserID: "u2", At: &at})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded ServerReadMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeRead || decoded.UserID != "u2" || !decoded.At.Equal(at) {
		t.Errorf("unexpected read frame: %+v", decoded)
	}
}

func TestFromEvent_Unknown(t *testing.T) {
	if _, err := FromEvent(chat.Event{Type: "bogus"}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if _, err := FromEvent(chat.Event{Type: chat.EventMessageNew}); err == nil {
		t.Fatal("expected error for message event without message")
	}
}
