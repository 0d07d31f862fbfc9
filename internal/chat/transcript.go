// Package chat implements the conversational session model shared by the
// global chat page, the per-movie chat widget and the terminal client.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/moviechat/internal/domain"
)

// Transcript is the ordered message history of one chat session.
// Append and Clear are the only mutations.
type Transcript struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// NewTranscript returns an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{messages: make([]domain.Message, 0, 16)}
}

// Append adds a message to the end of the transcript and returns the stored copy
func (t *Transcript) Append(msg domain.Message) domain.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	return msg
}

// Clear empties the transcript unconditionally
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.messages = make([]domain.Message, 0, 16)
	t.mu.Unlock()
}

// Messages returns a copy of the transcript in append order
func (t *Transcript) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	copied := make([]domain.Message, len(t.messages))
	copy(copied, t.messages)
	return copied
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message
func (t *Transcript) Last() (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.messages) == 0 {
		return domain.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Export renders the stored messages as plain text
func (t *Transcript) Export(now time.Time) Export {
	return FormatExport(t.Messages(), now)
}
