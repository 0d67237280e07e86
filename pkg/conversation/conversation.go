// Package conversation keeps the message history of chat conversations.
//
// Stores are safe for concurrent use. Appends to one conversation are
// serialized; different conversations proceed in parallel.
package conversation

import (
	"context"
	"errors"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Roles of a message author.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrInvalidID is returned for an empty conversation id.
var ErrInvalidID = errors.New("conversation id is required")

// Message is one entry of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role, content string) Message {
	id, err := gonanoid.New()
	if err != nil {
		id = ""
	}
	return Message{ID: id, Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Store holds conversation histories keyed by conversation id. A
// conversation is created by its first Append and removed only by Clear or
// by the store's size bound or expiry, if configured.
type Store interface {
	Append(ctx context.Context, id string, msg Message) error
	// History returns all messages of the conversation in append order. An
	// unknown conversation has an empty history.
	History(ctx context.Context, id string) ([]Message, error)
	// Recent returns at most the last n messages in append order. A
	// negative n returns the whole history, as History does, and n == 0
	// returns no messages.
	Recent(ctx context.Context, id string, n int) ([]Message, error)
	Clear(ctx context.Context, id string) error
}

// Tail returns a copy of at most the last n messages, or of all of them
// when n is negative.
func Tail(msgs []Message, n int) []Message {
	if n == 0 {
		return []Message{}
	}
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
