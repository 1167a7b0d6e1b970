package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tavarakyyti/chat/internal/chat"
	"github.com/tavarakyyti/chat/internal/storage/memory"
)

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []chat.Event
}

func (r *recorder) Publish(_ context.Context, ev chat.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) byType(typ string) []chat.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// clock hands out strictly increasing millisecond timestamps.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type fixture struct {
	convs  *chat.ConversationService
	msgs   *chat.MessageService
	convDB *memory.ConversationStore
	msgDB  *memory.MessageStore
	events *recorder
	clock  *clock
}

func newFixture() *fixture {
	f := &fixture{
		convDB: memory.NewConversationStore(),
		msgDB:  memory.NewMessageStore(),
		events: &recorder{},
		clock:  newClock(),
	}
	f.convs = chat.NewConversationService(f.convDB)
	f.msgs = chat.NewMessageService(f.convDB, f.msgDB, f.events)
	f.convs.SetSystemPoster(f.msgs)
	f.convs.SetNow(f.clock.Now)
	f.msgs.SetNow(f.clock.Now)
	return f
}

func (f *fixture) create(t *testing.T, requester string, typ chat.ConversationType, transportID string, others ...string) *chat.Conversation {
	t.Helper()
	conv, err := f.convs.Create(context.Background(), requester, chat.CreateConversationInput{
		Type:           typ,
		TransportID:    transportID,
		ParticipantIDs: others,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return conv
}

func (f *fixture) history(t *testing.T, convID string) []chat.MessageView {
	t.Helper()
	msgs, err := f.msgDB.List(context.Background(), convID, chat.MessageQuery{Limit: 1000})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	out := make([]chat.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.View())
	}
	return out
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name      string
		requester string
		in        chat.CreateConversationInput
		want      error
	}{
		{"no requester", "", chat.CreateConversationInput{Type: chat.TypeDirect, ParticipantIDs: []string{"b"}}, chat.ErrUnauthorized},
		{"missing type", "a", chat.CreateConversationInput{ParticipantIDs: []string{"b"}}, chat.ErrInvalidPayload},
		{"unknown type", "a", chat.CreateConversationInput{Type: "group", ParticipantIDs: []string{"b"}}, chat.ErrInvalidPayload},
		{"no participants", "a", chat.CreateConversationInput{Type: chat.TypeDirect}, chat.ErrInvalidPayload},
		{"only self", "a", chat.CreateConversationInput{Type: chat.TypeDirect, ParticipantIDs: []string{"a", " "}}, chat.ErrInvalidPayload},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.convs.Create(ctx, tc.requester, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreate_DedupsParticipants(t *testing.T) {
	f := newFixture()
	conv := f.create(t, "a", chat.TypeDirect, "", "b", "a", "b", "c")

	ids := conv.ParticipantIDs()
	want := []string{"a", "b", "c"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("expected participants %v, got %v", want, ids)
	}
	for _, p := range conv.Participants {
		if p.Role != chat.RoleOther {
			t.Errorf("expected role other for %s, got %q", p.UserID, p.Role)
		}
	}
	if conv.CreatedBy != "a" {
		t.Errorf("expected createdBy a, got %q", conv.CreatedBy)
	}
	if conv.LastMessageAt.IsZero() {
		t.Error("expected lastMessageAt to be set on create")
	}
}

func TestCreate_TransportIsIdempotent(t *testing.T) {
	f := newFixture()
	first := f.create(t, "a", chat.TypeTransport, "T1", "b")
	second := f.create(t, "b", chat.TypeTransport, "T1", "a")
	if first.ID != second.ID {
		t.Fatalf("expected the same transport conversation, got %s and %s", first.ID, second.ID)
	}

	other := f.create(t, "a", chat.TypeTransport, "T2", "b")
	if other.ID == first.ID {
		t.Fatal("expected a different conversation for a different transport")
	}
}

func TestCreate_DirectIsNotDeduplicated(t *testing.T) {
	f := newFixture()
	first := f.create(t, "a", chat.TypeDirect, "", "b")
	second := f.create(t, "a", chat.TypeDirect, "", "b")
	if first.ID == second.ID {
		t.Fatal("expected distinct direct conversations")
	}
}

func TestCreate_ConcurrentTransportRequests(t *testing.T) {
	f := newFixture()
	ids := make(chan string, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, err := f.convs.Create(context.Background(), "a", chat.CreateConversationInput{
				Type: chat.TypeTransport, TransportID: "T1", ParticipantIDs: []string{"b"},
			})
			if err != nil {
				t.Errorf("Create() error: %v", err)
				return
			}
			ids <- conv.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("expected one conversation, got %d", len(seen))
	}
}

func TestOpenTransportConversation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, created, err := f.convs.OpenTransportConversation(ctx, "T9", "recv", "carr")
	if err != nil {
		t.Fatalf("OpenTransportConversation() error: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first open")
	}
	if conv.Participants[0].Role != chat.RoleReceiver || conv.Participants[1].Role != chat.RoleCarrier {
		t.Errorf("unexpected roles: %+v", conv.Participants)
	}

	msgs := f.history(t, conv.ID)
	if len(msgs) != 1 || !msgs[0].System {
		t.Fatalf("expected one system notice, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Text, "T9") {
		t.Errorf("expected notice to mention transport, got %q", msgs[0].Text)
	}

	again, created, err := f.convs.OpenTransportConversation(ctx, "T9", "recv", "carr")
	if err != nil {
		t.Fatalf("second OpenTransportConversation() error: %v", err)
	}
	if created || again.ID != conv.ID {
		t.Fatalf("expected existing conversation, got created=%v id=%s", created, again.ID)
	}
	if n := len(f.history(t, conv.ID)); n != 1 {
		t.Errorf("expected no second notice, got %d messages", n)
	}

	if _, _, err := f.convs.OpenTransportConversation(ctx, "T9", "same", "same"); !errors.Is(err, chat.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for identical parties, got %v", err)
	}
}

func TestList_SortedByLastMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	older := f.create(t, "a", chat.TypeTransport, "T1", "b")
	newer := f.create(t, "a", chat.TypeTransport, "T2", "b")
	f.create(t, "x", chat.TypeDirect, "", "y")

	if _, err := f.msgs.Send(ctx, chat.SendInput{ConversationID: older.ID, SenderID: "a", Text: "bump"}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	list, err := f.convs.List(ctx, "a", "")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 || list[0].ID != older.ID || list[1].ID != newer.ID {
		t.Fatalf("expected [older, newer] after bump, got %d items", len(list))
	}

	filtered, err := f.convs.List(ctx, "a", "T2")
	if err != nil {
		t.Fatalf("List(T2) error: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != newer.ID {
		t.Fatalf("expected only T2 conversation, got %d items", len(filtered))
	}
}

func TestGet_Authorization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	if _, err := f.convs.Get(ctx, conv.ID, "b"); err != nil {
		t.Fatalf("Get() by participant error: %v", err)
	}
	if _, err := f.convs.Get(ctx, conv.ID, "c"); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.convs.Get(ctx, "missing", "a"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSend_NonParticipantForbidden(t *testing.T) {
	f := newFixture()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	_, err := f.msgs.Send(context.Background(), chat.SendInput{ConversationID: conv.ID, SenderID: "c", Text: "hi"})
	if !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if n := len(f.history(t, conv.ID)); n != 0 {
		t.Fatalf("expected nothing persisted, got %d messages", n)
	}
	if n := len(f.events.byType(chat.EventMessageNew)); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestSend_MissingConversation(t *testing.T) {
	f := newFixture()
	_, err := f.msgs.Send(context.Background(), chat.SendInput{ConversationID: "nope", SenderID: "a", Text: "hi"})
	if !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSend_BlockAndUnblock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	if err := f.convs.SetBlock(ctx, conv.ID, "a", "b"); err != nil {
		t.Fatalf("SetBlock() error: %v", err)
	}
	if err := f.convs.SetBlock(ctx, conv.ID, "a", "b"); err != nil {
		t.Fatalf("repeated SetBlock() error: %v", err)
	}
	got, _ := f.convs.Get(ctx, conv.ID, "a")
	if len(got.BlockedPairs) != 1 {
		t.Fatalf("expected one block pair, got %d", len(got.BlockedPairs))
	}

	_, err := f.msgs.Send(ctx, chat.SendInput{ConversationID: conv.ID, SenderID: "b", Text: "hi"})
	if !errors.Is(err, chat.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if n := len(f.history(t, conv.ID)); n != 0 {
		t.Fatalf("expected nothing persisted while blocked, got %d", n)
	}

	// The blocker can still send.
	if _, err := f.msgs.Send(ctx, chat.SendInput{ConversationID: conv.ID, SenderID: "a", Text: "hey"}); err != nil {
		t.Fatalf("blocker Send() error: %v", err)
	}

	before, _ := f.convs.Get(ctx, conv.ID, "a")
	if err := f.convs.ClearBlock(ctx, conv.ID, "a", "b"); err != nil {
		t.Fatalf("ClearBlock() error: %v", err)
	}
	msg, err := f.msgs.Send(ctx, chat.SendInput{ConversationID: conv.ID, SenderID: "b", Text: "thanks"})
	if err != nil {
		t.Fatalf("Send() after unblock error: %v", err)
	}
	after, _ := f.convs.Get(ctx, conv.ID, "a")
	if !after.LastMessageAt.After(before.LastMessageAt) {
		t.Errorf("expected lastMessageAt to advance: before=%v after=%v", before.LastMessageAt, after.LastMessageAt)
	}
	if !after.LastMessageAt.Equal(msg.CreatedAt) {
		t.Errorf("expected lastMessageAt=%v, got %v", msg.CreatedAt, after.LastMessageAt)
	}
}

func TestSetBlock_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	if err := f.convs.SetBlock(ctx, conv.ID, "a", "a"); !errors.Is(err, chat.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for self-block, got %v", err)
	}
	if err := f.convs.SetBlock(ctx, conv.ID, "c", "b"); !errors.Is(err, chat.ErrForbidden) {
		t.Errorf("expected ErrForbidden for outsider, got %v", err)
	}
	if err := f.convs.ClearBlock(ctx, "missing", "a", "b"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSend_ClipsTextKeepsAttachments(t *testing.T) {
	f := newFixture()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")
	atts := []chat.Attachment{
		{URL: "https://cdn/x", Mime: "image/png", Size: 10, Name: "x.png"},
		{URL: "https://cdn/y", Mime: "application/pdf", Size: 20, Name: "y.pdf"},
	}

	msg, err := f.msgs.Send(context.Background(), chat.SendInput{
		ConversationID: conv.ID,
		SenderID:       "a",
		Text:           strings.Repeat("é", chat.MaxTextChars+123),
		Attachments:    atts,
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if n := len([]rune(msg.Text)); n != chat.MaxTextChars {
		t.Errorf("expected %d characters, got %d", chat.MaxTextChars, n)
	}
	if len(msg.Attachments) != len(atts) {
		t.Errorf("expected %d attachments, got %d", len(atts), len(msg.Attachments))
	}

	stored := f.history(t, conv.ID)
	if len(stored) != 1 || stored[0].Text != msg.Text || len(stored[0].Attachments) != 2 {
		t.Fatalf("persisted message does not match returned view: %+v", stored)
	}
}

func TestSend_PublishesSanitizedEvent(t *testing.T) {
	f := newFixture()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	msg, err := f.msgs.Send(context.Background(), chat.SendInput{
		ConversationID: conv.ID, SenderID: "a", Text: "hello", TempID: "tmp-1",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	evs := f.events.byType(chat.EventMessageNew)
	if len(evs) != 1 {
		t.Fatalf("expected one message event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.ConversationID != conv.ID || ev.TempID != "tmp-1" {
		t.Errorf("unexpected event routing: %+v", ev)
	}
	if ev.Message == nil || ev.Message.ID != msg.ID || ev.Message.Text != "hello" {
		t.Errorf("unexpected event payload: %+v", ev.Message)
	}
}

type denyLimiter struct{ err error }

func (d denyLimiter) AllowMessage(context.Context, string) (bool, error) {
	return d.err != nil, d.err
}

func TestSend_RateLimited(t *testing.T) {
	f := newFixture()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	f.msgs.SetLimiter(denyLimiter{})
	_, err := f.msgs.Send(context.Background(), chat.SendInput{ConversationID: conv.ID, SenderID: "a", Text: "x"})
	if !errors.Is(err, chat.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// A failing limiter lets the message through.
	f.msgs.SetLimiter(denyLimiter{err: errors.New("redis down")})
	if _, err := f.msgs.Send(context.Background(), chat.SendInput{ConversationID: conv.ID, SenderID: "a", Text: "x"}); err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
}

func TestList_AscendingWithCursors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	var sent []*chat.MessageView
	for i := 0; i < 10; i++ {
		m, err := f.msgs.Send(ctx, chat.SendInput{ConversationID: conv.ID, SenderID: "a", Text: string(rune('0' + i))})
		if err != nil {
			t.Fatalf("Send() error: %v", err)
		}
		sent = append(sent, m)
	}

	assertAscending := func(t *testing.T, page []chat.MessageView) {
		t.Helper()
		for i := 1; i < len(page); i++ {
			if page[i].CreatedAt.Before(page[i-1].CreatedAt) {
				t.Fatalf("page not ascending at %d", i)
			}
		}
	}

	latest, err := f.msgs.List(ctx, conv.ID, "b", chat.Page{Limit: 3})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	assertAscending(t, latest)
	if len(latest) != 3 || latest[0].Text != "7" || latest[2].Text != "9" {
		t.Fatalf("expected the newest three in order, got %+v", latest)
	}

	before := sent[5].CreatedAt
	older, err := f.msgs.List(ctx, conv.ID, "b", chat.Page{Before: &before, Limit: 3})
	if err != nil {
		t.Fatalf("List(before) error: %v", err)
	}
	assertAscending(t, older)
	if len(older) != 3 || older[0].Text != "2" || older[2].Text != "4" {
		t.Fatalf("expected 2..4, got %+v", older)
	}

	after := sent[5].CreatedAt
	newer, err := f.msgs.List(ctx, conv.ID, "b", chat.Page{After: &after, Limit: 3})
	if err != nil {
		t.Fatalf("List(after) error: %v", err)
	}
	assertAscending(t, newer)
	if len(newer) != 3 || newer[0].Text != "6" || newer[2].Text != "8" {
		t.Fatalf("expected 6..8, got %+v", newer)
	}

	// before wins when both cursors are set
	both, err := f.msgs.List(ctx, conv.ID, "b", chat.Page{Before: &before, After: &after, Limit: 3})
	if err != nil {
		t.Fatalf("List(both) error: %v", err)
	}
	if len(both) != 3 || both[0].Text != "2" {
		t.Fatalf("expected before cursor to win, got %+v", both)
	}

	if _, err := f.msgs.List(ctx, conv.ID, "c", chat.Page{}); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}
}

func TestList_LimitIsCapped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")
	for i := 0; i < chat.MaxPageSize+5; i++ {
		if _, err := f.msgs.Send(ctx, chat.SendInput{ConversationID: conv.ID, SenderID: "a", Text: "m"}); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}

	page, err := f.msgs.List(ctx, conv.ID, "a", chat.Page{Limit: 10000})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(page) != chat.MaxPageSize {
		t.Fatalf("expected %d messages, got %d", chat.MaxPageSize, len(page))
	}

	page, err = f.msgs.List(ctx, conv.ID, "a", chat.Page{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(page) != chat.DefaultPageSize {
		t.Fatalf("expected default page of %d, got %d", chat.DefaultPageSize, len(page))
	}
}

func TestDeleteForUser_HidesOnlyForViewer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")
	msg, _ := f.msgs.Send(ctx, chat.SendInput{ConversationID: conv.ID, SenderID: "a", Text: "oops"})

	if err := f.msgs.DeleteForUser(ctx, conv.ID, msg.ID, "a"); err != nil {
		t.Fatalf("DeleteForUser() error: %v", err)
	}
	mine, _ := f.msgs.List(ctx, conv.ID, "a", chat.Page{})
	theirs, _ := f.msgs.List(ctx, conv.ID, "b", chat.Page{})
	if len(mine) != 0 {
		t.Errorf("expected message hidden for a, got %d", len(mine))
	}
	if len(theirs) != 1 {
		t.Errorf("expected message visible for b, got %d", len(theirs))
	}

	if err := f.msgs.DeleteForUser(ctx, conv.ID, "missing", "a"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	got, err := f.msgs.MarkRead(ctx, conv.ID, "b", &at)
	if err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("expected at=%v, got %v", at, got)
	}

	stored, _ := f.convs.Get(ctx, conv.ID, "a")
	for _, p := range stored.Participants {
		switch p.UserID {
		case "b":
			if p.LastReadAt == nil || !p.LastReadAt.Equal(at) {
				t.Errorf("expected b lastReadAt=%v, got %v", at, p.LastReadAt)
			}
		default:
			if p.LastReadAt != nil {
				t.Errorf("expected %s lastReadAt unset, got %v", p.UserID, p.LastReadAt)
			}
		}
	}

	evs := f.events.byType(chat.EventRead)
	if len(evs) != 1 || evs[0].UserID != "b" || evs[0].At == nil || !evs[0].At.Equal(at) {
		t.Fatalf("unexpected read events: %+v", evs)
	}
}

func TestMarkRead_NonParticipant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	if _, err := f.msgs.MarkRead(ctx, conv.ID, "c", nil); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	stored, _ := f.convs.Get(ctx, conv.ID, "a")
	for _, p := range stored.Participants {
		if p.LastReadAt != nil {
			t.Errorf("expected no lastReadAt mutation, %s has %v", p.UserID, p.LastReadAt)
		}
	}
	if n := len(f.events.byType(chat.EventRead)); n != 0 {
		t.Errorf("expected no read event, got %d", n)
	}
}

func TestSetMuted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.create(t, "a", chat.TypeDirect, "", "b")

	until := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := f.convs.SetMuted(ctx, conv.ID, "a", &until); err != nil {
		t.Fatalf("SetMuted() error: %v", err)
	}
	stored, _ := f.convs.Get(ctx, conv.ID, "a")
	if p := stored.Participants[0]; p.MutedUntil == nil || !p.MutedUntil.Equal(until) {
		t.Fatalf("expected mutedUntil=%v, got %v", until, p.MutedUntil)
	}

	if err := f.convs.SetMuted(ctx, conv.ID, "a", nil); err != nil {
		t.Fatalf("SetMuted(nil) error: %v", err)
	}
	stored, _ = f.convs.Get(ctx, conv.ID, "a")
	if stored.Participants[0].MutedUntil != nil {
		t.Fatal("expected mutedUntil cleared")
	}

	if err := f.convs.SetMuted(ctx, conv.ID, "c", &until); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for outsider, got %v", err)
	}
}

func TestTransportScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv := f.create(t, "A", chat.TypeTransport, "T1", "B")
	if _, err := f.msgs.Send(ctx, chat.SendInput{ConversationID: conv.ID, SenderID: "A", Text: "hello"}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	page, err := f.msgs.List(ctx, conv.ID, "B", chat.Page{Limit: 10})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(page) != 1 || page[0].Text != "hello" {
		t.Fatalf("expected one 'hello' message, got %+v", page)
	}

	if _, err := f.convs.Get(ctx, conv.ID, "C"); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for C, got %v", err)
	}
}

func TestClipText(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"", 5, ""},
	}
	for _, tc := range tests {
		if got := chat.ClipText(tc.in, tc.max); got != tc.want {
			t.Errorf("ClipText(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
