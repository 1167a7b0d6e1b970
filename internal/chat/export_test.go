package chat

import "time"

// Test hooks for the external chat_test package.

func (s *MessageService) SetNow(now func() time.Time) { s.now = now }

func (s *ConversationService) SetNow(now func() time.Time) { s.now = now }
