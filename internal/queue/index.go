package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/pipeline"
	"github.com/polisight/backend/pkg/source"
)

// IndexMessage asks the worker to process documents, given inline or by id
// in the document source.
type IndexMessage struct {
	DocumentIDs []string          `json:"document_ids,omitempty"`
	Documents   []source.Document `json:"documents,omitempty"`
}

// Indexer processes documents.
type Indexer interface {
	ProcessDocuments(ctx context.Context, docs []source.Document) ([]pipeline.Result, error)
	FetchAndProcess(ctx context.Context, ids []string) ([]pipeline.Result, error)
}

// ErrMalformedMessage is returned for a message body that is not an
// IndexMessage. Such messages are never retried.
var ErrMalformedMessage = errors.New("malformed queue message")

// ProcessIndexMessage handles one index_queue message. A document that
// fails does not fail the message, unless no document of the batch could be
// processed at all.
func ProcessIndexMessage(ctx context.Context, indexer Indexer, body []byte) error {
	var msg IndexMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(msg.DocumentIDs) == 0 && len(msg.Documents) == 0 {
		return fmt.Errorf("%w: no documents", ErrMalformedMessage)
	}

	var (
		results []pipeline.Result
		errs    []error
	)
	if len(msg.Documents) > 0 {
		res, err := indexer.ProcessDocuments(ctx, msg.Documents)
		results = append(results, res...)
		errs = append(errs, err)
	}
	if len(msg.DocumentIDs) > 0 {
		res, err := indexer.FetchAndProcess(ctx, msg.DocumentIDs)
		results = append(results, res...)
		errs = append(errs, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	persisted := 0
	for _, r := range results {
		if r.Status == pipeline.Persisted {
			persisted++
		}
	}
	err := errors.Join(errs...)
	logger.Info("[Queue] Index message processed",
		"requested", len(msg.DocumentIDs)+len(msg.Documents),
		"persisted", persisted,
		"failed", len(results)-persisted,
	)
	if persisted == 0 && err != nil {
		return err
	}
	if err != nil {
		logger.Warn("[Queue] Some documents failed", "err", err)
	}
	return nil
}
