// Package web fetches documents from URLs, reducing HTML pages to their
// readable article text.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/polisight/backend/pkg/source"
)

// Source treats a document id as the URL to fetch.
type Source struct {
	client *http.Client
}

// NewSource creates a web source. A nil client uses a client with a 30
// second timeout.
func NewSource(client *http.Client) *Source {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Source{client: client}
}

func (s *Source) Fetch(ctx context.Context, id string) (source.Document, error) {
	u, err := url.Parse(id)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return source.Document{}, fmt.Errorf("invalid document url %q", id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id, nil)
	if err != nil {
		return source.Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return source.Document{}, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return source.Document{}, fmt.Errorf("%w: %s", source.ErrNotFound, id)
	case resp.StatusCode >= 300:
		return source.Document{}, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	doc := source.Document{ID: id, SourceType: "web", Metadata: map[string]any{"url": id}}
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		text, title, err := source.ReadableText(resp.Body, u)
		if err != nil {
			return source.Document{}, err
		}
		doc.Text = text
		if title != "" {
			doc.Metadata["title"] = title
		}
		return doc, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return source.Document{}, err
	}
	doc.Text = string(body)
	return doc, nil
}
