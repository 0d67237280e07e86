package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestMemoryHistoryAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(NewMemoryParams{})

	for _, text := range []string{"Who is Jane Smith?", "What did she sponsor?"} {
		if err := store.Append(ctx, "conv1", NewMessage(RoleUser, text)); err != nil {
			t.Fatal(err)
		}
	}

	history, err := store.History(ctx, "conv1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Who is Jane Smith?", "What did she sponsor?"}, contents(history)); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}

	if err := store.Clear(ctx, "conv1"); err != nil {
		t.Fatal(err)
	}
	history, err = store.History(ctx, "conv1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("history after clear = %v", contents(history))
	}

	unknown, err := store.History(ctx, "nope")
	if err != nil || unknown == nil || len(unknown) != 0 {
		t.Fatalf("History(unknown) = %v, %v; want empty", unknown, err)
	}
}

func TestMemoryRecent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(NewMemoryParams{})
	for i := range 7 {
		_ = store.Append(ctx, "conv1", NewMessage(RoleUser, fmt.Sprint(i)))
	}

	tests := []struct {
		n    int
		want []string
	}{
		{n: 5, want: []string{"2", "3", "4", "5", "6"}},
		{n: 10, want: []string{"0", "1", "2", "3", "4", "5", "6"}},
		{n: 0, want: []string{}},
		{n: -1, want: []string{"0", "1", "2", "3", "4", "5", "6"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			got, err := store.Recent(ctx, "conv1", tt.n)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, contents(got)); diff != "" {
				t.Errorf("Recent(%d) mismatch (-want +got):\n%s", tt.n, diff)
			}
		})
	}
}

func TestMemoryMaxMessages(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(NewMemoryParams{MaxMessages: 3})
	for i := range 5 {
		_ = store.Append(ctx, "conv1", NewMessage(RoleUser, fmt.Sprint(i)))
	}
	got, _ := store.History(ctx, "conv1")
	if diff := cmp.Diff([]string{"2", "3", "4"}, contents(got)); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(NewMemoryParams{})
	const n = 100

	var wg sync.WaitGroup
	for i := range n {
		for _, id := range []string{"conv1", "conv2"} {
			wg.Go(func() {
				if err := store.Append(ctx, id, NewMessage(RoleUser, fmt.Sprint(i))); err != nil {
					t.Error(err)
				}
			})
		}
	}
	wg.Wait()

	for _, id := range []string{"conv1", "conv2"} {
		history, err := store.History(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != n {
			t.Fatalf("%s has %d messages, want %d", id, len(history), n)
		}
		seen := make(map[string]bool, n)
		for _, m := range history {
			seen[m.Content] = true
		}
		if len(seen) != n {
			t.Errorf("%s lost messages: %d distinct of %d", id, len(seen), n)
		}
	}
}

func TestMemoryRejectsEmptyID(t *testing.T) {
	store := NewMemory(NewMemoryParams{})
	if err := store.Append(context.Background(), "", NewMessage(RoleUser, "hi")); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Append() error = %v, want ErrInvalidID", err)
	}
}
