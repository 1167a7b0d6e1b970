package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// SystemPoster posts a system-generated notice into a conversation. The
// MessageService implements it.
type SystemPoster interface {
	PostSystem(ctx context.Context, conversationID, text string) (*MessageView, error)
}

// CreateConversationInput is the payload of a create request.
type CreateConversationInput struct {
	Type           ConversationType `json:"type"`
	TransportID    string           `json:"transportId"`
	ParticipantIDs []string         `json:"participantIds"`
}

// ConversationService owns conversation creation, listing, membership checks
// and block rules.
type ConversationService struct {
	store  ConversationStore
	system SystemPoster
	now    func() time.Time
}

// NewConversationService creates a ConversationService backed by store.
func NewConversationService(store ConversationStore) *ConversationService {
	return &ConversationService{store: store, now: defaultNow}
}

// SetSystemPoster registers the poster used for transport-open notices. It
// is set after construction because the MessageService is built from the
// same stores.
func (s *ConversationService) SetSystemPoster(p SystemPoster) {
	s.system = p
}

// Create creates a conversation with requesterID and in.ParticipantIDs as
// participants. Transport conversations with a transport id are
// deduplicated: an existing one whose participants cover the requested set
// is returned instead. Direct conversations are never deduplicated.
func (s *ConversationService) Create(ctx context.Context, requesterID string, in CreateConversationInput) (*Conversation, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}
	if in.Type == "" || !in.Type.Valid() || len(in.ParticipantIDs) == 0 {
		return nil, ErrInvalidPayload
	}

	ids := uniqueIDs(append([]string{requesterID}, in.ParticipantIDs...)...)
	if len(ids) < 2 {
		return nil, ErrInvalidPayload
	}

	participants := make([]Participant, 0, len(ids))
	for _, id := range ids {
		participants = append(participants, Participant{UserID: id, Role: RoleOther})
	}

	conv, _, err := s.create(ctx, &Conversation{
		Type:         in.Type,
		TransportID:  in.TransportID,
		Participants: participants,
		CreatedBy:    requesterID,
	})
	return conv, err
}

// OpenTransportConversation is called by the marketplace when an offer is
// accepted. It returns the transport conversation between receiver and
// carrier, creating it (and posting a system notice) if needed.
func (s *ConversationService) OpenTransportConversation(ctx context.Context, transportID, receiverID, carrierID string) (*Conversation, bool, error) {
	if transportID == "" || receiverID == "" || carrierID == "" || receiverID == carrierID {
		return nil, false, ErrInvalidPayload
	}

	conv, created, err := s.create(ctx, &Conversation{
		Type:        TypeTransport,
		TransportID: transportID,
		Participants: []Participant{
			{UserID: receiverID, Role: RoleReceiver},
			{UserID: carrierID, Role: RoleCarrier},
		},
		CreatedBy: receiverID,
	})
	if err != nil {
		return nil, false, err
	}

	if created && s.system != nil {
		text := fmt.Sprintf("Conversation opened for transport %s", transportID)
		if _, err := s.system.PostSystem(ctx, conv.ID, text); err != nil {
			log.Printf("chat: system notice conversation=%s: %v", conv.ID, err)
		}
	}
	return conv, created, nil
}

func (s *ConversationService) create(ctx context.Context, conv *Conversation) (*Conversation, bool, error) {
	now := s.now()
	conv.ID = uuid.NewString()
	conv.LastMessageAt = now
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.BlockedPairs = []BlockPair{}

	if conv.Type == TypeTransport && conv.TransportID != "" {
		got, created, err := s.store.FindOrCreateTransport(ctx, conv)
		if err != nil {
			return nil, false, fmt.Errorf("chat: create transport conversation: %w", err)
		}
		if created {
			log.Printf("chat: conversation created id=%s type=%s transport=%s", got.ID, got.Type, got.TransportID)
		}
		return got, created, nil
	}

	if err := s.store.Create(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("chat: create conversation: %w", err)
	}
	log.Printf("chat: conversation created id=%s type=%s", conv.ID, conv.Type)
	return conv, true, nil
}

// List returns the conversations userID participates in, newest activity first.
func (s *ConversationService) List(ctx context.Context, userID, transportID string) ([]*Conversation, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	list, err := s.store.ListForUser(ctx, userID, transportID)
	if err != nil {
		return nil, fmt.Errorf("chat: list conversations: %w", err)
	}
	return list, nil
}

// Get loads a conversation and checks that requesterID participates in it.
func (s *ConversationService) Get(ctx context.Context, id, requesterID string) (*Conversation, error) {
	return loadForParticipant(ctx, s.store, id, requesterID)
}

// SetBlock records that blockerID blocks blockedID within the conversation.
// Adding an existing pair is a no-op.
func (s *ConversationService) SetBlock(ctx context.Context, conversationID, blockerID, blockedID string) error {
	if err := validateBlock(blockerID, blockedID); err != nil {
		return err
	}
	if _, err := loadForParticipant(ctx, s.store, conversationID, blockerID); err != nil {
		return err
	}
	if err := s.store.AddBlock(ctx, conversationID, BlockPair{Blocker: blockerID, Blocked: blockedID}); err != nil {
		return fmt.Errorf("chat: add block: %w", err)
	}
	log.Printf("chat: block conversation=%s blocker=%s blocked=%s", conversationID, blockerID, blockedID)
	return nil
}

// ClearBlock removes the blockerID -> blockedID pair if present.
func (s *ConversationService) ClearBlock(ctx context.Context, conversationID, blockerID, blockedID string) error {
	if err := validateBlock(blockerID, blockedID); err != nil {
		return err
	}
	if _, err := loadForParticipant(ctx, s.store, conversationID, blockerID); err != nil {
		return err
	}
	if err := s.store.RemoveBlock(ctx, conversationID, BlockPair{Blocker: blockerID, Blocked: blockedID}); err != nil {
		return fmt.Errorf("chat: remove block: %w", err)
	}
	log.Printf("chat: unblock conversation=%s blocker=%s blocked=%s", conversationID, blockerID, blockedID)
	return nil
}

// SetMuted sets or clears the participant's mutedUntil timestamp.
func (s *ConversationService) SetMuted(ctx context.Context, conversationID, userID string, until *time.Time) error {
	if userID == "" {
		return ErrUnauthorized
	}
	if err := s.store.SetMuted(ctx, conversationID, userID, until); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("chat: set muted: %w", err)
	}
	return nil
}

func validateBlock(blockerID, blockedID string) error {
	if blockerID == "" {
		return ErrUnauthorized
	}
	if blockedID == "" || blockedID == blockerID {
		return ErrInvalidPayload
	}
	return nil
}

// loadForParticipant fetches a conversation, mapping a missing one to
// ErrNotFound and a non-participant requester to ErrForbidden.
func loadForParticipant(ctx context.Context, store ConversationStore, id, userID string) (*Conversation, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if id == "" {
		return nil, ErrNotFound
	}
	conv, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	if !conv.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	return conv, nil
}

// defaultNow truncates to milliseconds so cursors round-trip through JSON
// clients and the database unchanged.
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
