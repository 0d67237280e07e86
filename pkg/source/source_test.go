package source

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type countingSource struct {
	calls atomic.Int32
	inner Source
}

func (c *countingSource) Fetch(ctx context.Context, id string) (Document, error) {
	c.calls.Add(1)
	return c.inner.Fetch(ctx, id)
}

func TestCachedFetchesOnce(t *testing.T) {
	inner := &countingSource{inner: NewMemory(Document{ID: "doc1", Text: "text"})}
	cached := NewCached(inner)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			if _, err := cached.Fetch(context.Background(), "doc1"); err != nil {
				t.Error(err)
			}
		})
	}
	wg.Wait()

	if _, err := cached.Fetch(context.Background(), "doc1"); err != nil {
		t.Fatal(err)
	}
	if n := inner.calls.Load(); n < 1 || n > 10 {
		t.Fatalf("inner fetched %d times", n)
	}
	before := inner.calls.Load()
	_, _ = cached.Fetch(context.Background(), "doc1")
	if inner.calls.Load() != before {
		t.Fatal("cached document fetched again")
	}

	if _, err := cached.Fetch(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch() error = %v, want ErrNotFound", err)
	}
}

func TestFetchAll(t *testing.T) {
	src := NewMemory(Document{ID: "a", Text: "A"}, Document{ID: "c", Text: "C"})

	docs, err := FetchAll(context.Background(), src, []string{"a", "b", "c"}, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FetchAll() error = %v, want ErrNotFound", err)
	}
	want := []Document{{ID: "a", Text: "A"}, {ID: "c", Text: "C"}}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Fatalf("documents mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode(t *testing.T) {
	docx := buildDocx(t, `<w:document xmlns:w="w"><w:body>`+
		`<w:p><w:r><w:t>Senator Jane Smith sponsored the Privacy Act.</w:t></w:r></w:p>`+
		`<w:p><w:del><w:r><w:t>removed</w:t></w:r></w:del><w:r><w:t>Kept.</w:t></w:r></w:p>`+
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Name</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Vote</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
		`</w:body></w:document>`)

	tests := []struct {
		name    string
		file    string
		content []byte
		want    Document
	}{
		{
			name:    "plain text",
			file:    "doc1.txt",
			content: []byte("Hello."),
			want:    Document{ID: "doc1", Text: "Hello.", SourceType: "text", Metadata: map[string]any{"file": "doc1.txt"}},
		},
		{
			name:    "json keeps its own id",
			file:    "doc1.json",
			content: []byte(`{"id":"other","text":"Hi","source_type":"press","metadata":{"title":"T"}}`),
			want:    Document{ID: "other", Text: "Hi", SourceType: "press", Metadata: map[string]any{"title": "T"}},
		},
		{
			name:    "json without id",
			file:    "doc1.json",
			content: []byte(`{"text":"Hi"}`),
			want:    Document{ID: "doc1", Text: "Hi"},
		},
		{
			name:    "docx",
			file:    "doc1.docx",
			content: docx,
			want: Document{
				ID:         "doc1",
				Text:       "Senator Jane Smith sponsored the Privacy Act.\nKept.\nName | Vote",
				SourceType: "document",
				Metadata:   map[string]any{"file": "doc1.docx"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode("doc1", tt.file, tt.content)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := Decode("doc1", "doc1.json", []byte("{")); err == nil {
		t.Error("expected error for malformed json")
	}
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
