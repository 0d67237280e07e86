package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rabbitmq/amqp091-go"

	"github.com/polisight/backend/pkg/pipeline"
	"github.com/polisight/backend/pkg/source"
)

type published struct {
	key string
	msg amqp091.Publishing
}

type fakeChannel struct {
	published []published
	declared  map[string]amqp091.Table
	err       error
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{key: key, msg: msg})
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp091.Table) (amqp091.Queue, error) {
	if f.declared == nil {
		f.declared = make(map[string]amqp091.Table)
	}
	f.declared[name] = args
	return amqp091.Queue{Name: name}, nil
}

type fakeAcknowledger struct {
	acked, nacked, requeued bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error { f.acked = true; return nil }
func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}
func (f *fakeAcknowledger) Reject(uint64, bool) error { return nil }

func TestSetupQueues(t *testing.T) {
	ch := &fakeChannel{}
	if err := SetupQueues(ch, []string{IndexQueue}); err != nil {
		t.Fatal(err)
	}
	want := map[string]amqp091.Table{
		"index_queue":     nil,
		"index_queue_dlq": nil,
		"index_queue_retry": {
			"x-message-ttl":             int32(10000),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": "index_queue",
		},
	}
	if diff := cmp.Diff(want, ch.declared); diff != "" {
		t.Errorf("declared queues mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleProcessingError(t *testing.T) {
	tests := []struct {
		name        string
		headers     amqp091.Table
		cause       error
		wantQueue   string
		wantRetries any
	}{
		{name: "first failure", cause: errors.New("boom"), wantQueue: "index_queue_retry", wantRetries: int32(1)},
		{name: "retried", headers: amqp091.Table{"x-retries": int32(4)}, cause: errors.New("boom"), wantQueue: "index_queue_retry", wantRetries: int32(5)},
		{name: "exhausted", headers: amqp091.Table{"x-retries": int32(MaxRetries)}, cause: errors.New("boom"), wantQueue: "index_queue_dlq", wantRetries: int32(MaxRetries)},
		{name: "malformed", cause: ErrMalformedMessage, wantQueue: "index_queue_dlq", wantRetries: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{}
			ack := &fakeAcknowledger{}
			msg := amqp091.Delivery{Acknowledger: ack, Headers: tt.headers, Body: []byte(`{}`)}

			HandleProcessingError(ch, msg, IndexQueue, tt.cause)

			if len(ch.published) != 1 {
				t.Fatalf("published %d messages, want 1", len(ch.published))
			}
			got := ch.published[0]
			if got.key != tt.wantQueue {
				t.Errorf("published to %s, want %s", got.key, tt.wantQueue)
			}
			if got.msg.Headers["x-retries"] != tt.wantRetries {
				t.Errorf("x-retries = %v, want %v", got.msg.Headers["x-retries"], tt.wantRetries)
			}
			if !ack.acked || ack.nacked {
				t.Errorf("ack state = %+v, want acked", ack)
			}
		})
	}
}

func TestHandleProcessingErrorRequeuesOnPublishFailure(t *testing.T) {
	ack := &fakeAcknowledger{}
	HandleProcessingError(&fakeChannel{err: errors.New("channel closed")}, amqp091.Delivery{Acknowledger: ack}, IndexQueue, errors.New("boom"))
	if ack.acked || !ack.nacked || !ack.requeued {
		t.Errorf("ack state = %+v, want requeued", ack)
	}
}

type fakeIndexer struct {
	docs []source.Document
	ids  []string
	fail bool
}

func (f *fakeIndexer) results(n int, ids func(int) string) ([]pipeline.Result, error) {
	out := make([]pipeline.Result, n)
	for i := range out {
		out[i] = pipeline.Result{DocumentID: ids(i), Status: pipeline.Persisted}
		if f.fail {
			out[i].Status = pipeline.Failed
		}
	}
	if f.fail {
		return out, errors.New("graph unavailable")
	}
	return out, nil
}

func (f *fakeIndexer) ProcessDocuments(_ context.Context, docs []source.Document) ([]pipeline.Result, error) {
	f.docs = docs
	return f.results(len(docs), func(i int) string { return docs[i].ID })
}

func (f *fakeIndexer) FetchAndProcess(_ context.Context, ids []string) ([]pipeline.Result, error) {
	f.ids = ids
	return f.results(len(ids), func(i int) string { return ids[i] })
}

func TestProcessIndexMessage(t *testing.T) {
	body, _ := json.Marshal(IndexMessage{
		DocumentIDs: []string{"doc2"},
		Documents:   []source.Document{{ID: "doc1", Text: "Senator Jane Smith sponsored the Privacy Act."}},
	})

	indexer := &fakeIndexer{}
	if err := ProcessIndexMessage(context.Background(), indexer, body); err != nil {
		t.Fatal(err)
	}
	if len(indexer.docs) != 1 || indexer.docs[0].ID != "doc1" {
		t.Errorf("documents = %+v", indexer.docs)
	}
	if diff := cmp.Diff([]string{"doc2"}, indexer.ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	if err := ProcessIndexMessage(context.Background(), &fakeIndexer{fail: true}, body); err == nil {
		t.Error("expected error when nothing was persisted")
	}

	for _, bad := range []string{`not json`, `{}`} {
		if err := ProcessIndexMessage(context.Background(), &fakeIndexer{}, []byte(bad)); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("ProcessIndexMessage(%s) error = %v, want ErrMalformedMessage", bad, err)
		}
	}
}
