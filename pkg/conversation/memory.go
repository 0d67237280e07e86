package conversation

import (
	"context"
	"sync"
)

type record struct {
	mu       sync.Mutex
	messages []Message
}

// Memory is an in-process Store. Each conversation has its own lock, so
// only appends to the same id contend.
//
// A Memory should be created using NewMemory.
type Memory struct {
	maxMessages int

	mu      sync.RWMutex
	records map[string]*record
}

// NewMemoryParams defines the configuration for creating a Memory store.
//
// MaxMessages bounds each conversation; older messages are dropped first.
// Zero keeps everything until Clear.
type NewMemoryParams struct {
	MaxMessages int
}

// NewMemory creates an empty Memory store.
func NewMemory(params NewMemoryParams) *Memory {
	return &Memory{
		maxMessages: params.MaxMessages,
		records:     make(map[string]*record),
	}
}

func (m *Memory) record(id string, create bool) *record {
	m.mu.RLock()
	r, ok := m.records[id]
	m.mu.RUnlock()
	if ok || !create {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return r
	}
	r = &record{}
	m.records[id] = r
	return r
}

func (m *Memory) Append(ctx context.Context, id string, msg Message) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r := m.record(id, true)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	if m.maxMessages > 0 && len(r.messages) > m.maxMessages {
		r.messages = append([]Message(nil), r.messages[len(r.messages)-m.maxMessages:]...)
	}
	return nil
}

func (m *Memory) History(ctx context.Context, id string) ([]Message, error) {
	return m.Recent(ctx, id, -1)
}

func (m *Memory) Recent(ctx context.Context, id string, n int) ([]Message, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := m.record(id, false)
	if r == nil {
		return []Message{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Tail(r.messages, n), nil
}

func (m *Memory) Clear(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	r := m.record(id, false)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
	return nil
}
