package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("polictl %v: %v", args, err)
	}
	return out.String()
}

func TestIngestThenChat(t *testing.T) {
	t.Setenv("AI_ADAPTER", "heuristic")
	t.Setenv("CONVERSATION_BACKEND", "memory")
	t.Setenv("DOCUMENT_SOURCE", "")

	dir := t.TempDir()
	snapshot := filepath.Join(dir, "graph.json")
	doc := filepath.Join(dir, "doc1.txt")
	if err := os.WriteFile(doc, []byte("Senator Jane Smith sponsored the Privacy Act."), 0o644); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "ingest", "--snapshot", snapshot, doc)
	if !strings.Contains(out, "doc1") || !strings.Contains(out, "relationships=1") {
		t.Errorf("ingest output = %q", out)
	}
	if _, err := os.Stat(snapshot); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	out = execute(t, "chat", "--snapshot", snapshot, "conv1", "Tell", "me", "about", "Senator", "Jane", "Smith")
	if !strings.Contains(out, "Jane Smith") || !strings.Contains(out, "intent politician-query") {
		t.Errorf("chat output = %q", out)
	}
}
