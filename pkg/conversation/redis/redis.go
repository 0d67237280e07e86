// Package redis stores conversation histories in Redis lists, one list per
// conversation. RPUSH is atomic per key, so concurrent appends to the same
// conversation are serialized by the server.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/polisight/backend/pkg/conversation"
)

// Store implements conversation.Store on Redis.
//
// A Store should be created using NewStore.
type Store struct {
	rdb         goredis.UniversalClient
	prefix      string
	maxMessages int
	ttl         time.Duration
}

// NewStoreParams defines the configuration for creating a Store.
//
// Prefix namespaces the list keys (default "conversation:"). MaxMessages
// trims each list to its newest entries; TTL expires a conversation after
// its last append. Zero disables either bound.
type NewStoreParams struct {
	Client      goredis.UniversalClient
	Prefix      string
	MaxMessages int
	TTL         time.Duration
}

// NewStore creates a Store over an existing client.
//
// Example:
//
//	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	store, err := redis.NewStore(redis.NewStoreParams{Client: rdb, MaxMessages: 200})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewStore(params NewStoreParams) (*Store, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := params.Prefix
	if prefix == "" {
		prefix = "conversation:"
	}
	return &Store{
		rdb:         params.Client,
		prefix:      prefix,
		maxMessages: params.MaxMessages,
		ttl:         params.TTL,
	}, nil
}

// Connect dials addr and verifies the connection with a PING.
func Connect(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) Append(ctx context.Context, id string, msg conversation.Message) error {
	if id == "" {
		return conversation.ErrInvalidID
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	key := s.key(id)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, raw)
		if s.maxMessages > 0 {
			pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, id string) ([]conversation.Message, error) {
	return s.lrange(ctx, id, 0)
}

func (s *Store) Recent(ctx context.Context, id string, n int) ([]conversation.Message, error) {
	start, ok := recentStart(n)
	if !ok {
		if id == "" {
			return nil, conversation.ErrInvalidID
		}
		return []conversation.Message{}, nil
	}
	return s.lrange(ctx, id, start)
}

// recentStart maps the n of Recent to an LRANGE start index. ok is false
// when no message is wanted.
func recentStart(n int) (start int64, ok bool) {
	switch {
	case n < 0:
		return 0, true
	case n == 0:
		return 0, false
	}
	return int64(-n), true
}

func (s *Store) lrange(ctx context.Context, id string, start int64) ([]conversation.Message, error) {
	if id == "" {
		return nil, conversation.ErrInvalidID
	}
	raws, err := s.rdb.LRange(ctx, s.key(id), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}

	out := make([]conversation.Message, 0, len(raws))
	for _, raw := range raws {
		var msg conversation.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("corrupt message in conversation %s: %w", id, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, id string) error {
	if id == "" {
		return conversation.ErrInvalidID
	}
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation %s: %w", id, err)
	}
	return nil
}
