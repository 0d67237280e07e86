// Package app exposes the document pipeline and the conversation cascade
// as one service used by the HTTP server, the queue worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/polisight/backend/pkg/ai"
	"github.com/polisight/backend/pkg/cascade"
	"github.com/polisight/backend/pkg/conversation"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/pipeline"
	"github.com/polisight/backend/pkg/source"

	"github.com/go-playground/validator"
)

// ErrNoDocumentSource is returned by FetchAndProcess when no document
// source is configured.
var ErrNoDocumentSource = errors.New("no document source configured")

// Service is the application façade. It is safe for concurrent use.
//
// A Service should be created using NewService.
type Service struct {
	pipeline      *pipeline.Pipeline
	cascade       *cascade.Orchestrator
	conversations conversation.Store
	documents     source.Source
	archive       source.Store
	fetchLimit    int
	validate      *validator.Validate
	ai            ai.GraphAIClient
	closers       []func(context.Context) error
}

// NewServiceParams defines the configuration for creating a Service.
//
// Documents is optional and used by FetchAndProcess. Archive, when set,
// keeps a copy of every document handed to ProcessDocument. AI is the model
// client behind an LLM adapter and only reported through AIMetrics. Closers
// run on Close in reverse order.
type NewServiceParams struct {
	Pipeline      *pipeline.Pipeline
	Cascade       *cascade.Orchestrator
	Conversations conversation.Store
	Documents     source.Source
	Archive       source.Store
	FetchLimit    int
	AI            ai.GraphAIClient
	Closers       []func(context.Context) error
}

// NewService creates a Service.
func NewService(params NewServiceParams) (*Service, error) {
	if params.Pipeline == nil || params.Cascade == nil || params.Conversations == nil {
		return nil, fmt.Errorf("pipeline, cascade and conversation store are required")
	}
	limit := params.FetchLimit
	if limit <= 0 {
		limit = 8
	}
	return &Service{
		pipeline:      params.Pipeline,
		cascade:       params.Cascade,
		conversations: params.Conversations,
		documents:     params.Documents,
		archive:       params.Archive,
		fetchLimit:    limit,
		validate:      validator.New(),
		ai:            params.AI,
		closers:       params.Closers,
	}, nil
}

// ProcessDocument validates and processes one document.
func (s *Service) ProcessDocument(ctx context.Context, doc source.Document) (pipeline.Result, error) {
	if err := s.validate.Struct(doc); err != nil {
		return pipeline.Result{DocumentID: doc.ID, Status: pipeline.Failed, Error: err.Error()},
			fmt.Errorf("invalid document: %w", err)
	}
	s.save(ctx, doc)
	return s.pipeline.ProcessDocument(ctx, doc)
}

// ProcessDocuments processes a batch. Invalid documents fail individually.
func (s *Service) ProcessDocuments(ctx context.Context, docs []source.Document) ([]pipeline.Result, error) {
	valid := make([]source.Document, 0, len(docs))
	index := make([]int, 0, len(docs))
	results := make([]pipeline.Result, len(docs))
	var errs []error

	for i, doc := range docs {
		if err := s.validate.Struct(doc); err != nil {
			results[i] = pipeline.Result{DocumentID: doc.ID, Status: pipeline.Failed, Error: err.Error()}
			errs = append(errs, fmt.Errorf("document %d: invalid: %w", i, err))
			continue
		}
		s.save(ctx, doc)
		valid = append(valid, doc)
		index = append(index, i)
	}

	processed, err := s.pipeline.ProcessDocuments(ctx, valid)
	for j, res := range processed {
		results[index[j]] = res
	}
	if err != nil {
		errs = append(errs, err)
	}
	return results, errors.Join(errs...)
}

// FetchAndProcess loads documents by id from the document source and
// processes those that could be fetched.
func (s *Service) FetchAndProcess(ctx context.Context, ids []string) ([]pipeline.Result, error) {
	if s.documents == nil {
		return nil, ErrNoDocumentSource
	}
	docs, fetchErr := source.FetchAll(ctx, s.documents, ids, s.fetchLimit)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		logger.Warn("[App] Some documents could not be fetched", "requested", len(ids), "fetched", len(docs), "err", fetchErr)
	}

	results, err := s.pipeline.ProcessDocuments(ctx, docs)
	return results, errors.Join(fetchErr, err)
}

// ProcessMessage answers a conversation message.
func (s *Service) ProcessMessage(ctx context.Context, conversationID, text string) (cascade.Reply, error) {
	return s.cascade.ProcessMessage(ctx, conversationID, text)
}

// GetConversationHistory returns the messages of a conversation.
func (s *Service) GetConversationHistory(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	return s.conversations.History(ctx, conversationID)
}

// ClearConversation removes a conversation's history and the entities
// remembered for it.
func (s *Service) ClearConversation(ctx context.Context, conversationID string) error {
	if err := s.conversations.Clear(ctx, conversationID); err != nil {
		return err
	}
	s.cascade.Forget(conversationID)
	return nil
}

// AIMetrics returns the token usage of the model client since the last
// call and resets it. ok is false when no LLM adapter is configured.
func (s *Service) AIMetrics() (metrics ai.ModelMetrics, ok bool) {
	if s.ai == nil {
		return ai.ModelMetrics{}, false
	}
	metrics = s.ai.GetMetrics()
	s.ai.ResetMetrics()
	return metrics, true
}

// Close releases the service's connections.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) save(ctx context.Context, doc source.Document) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Save(ctx, doc); err != nil {
		logger.Warn("[App] Failed to archive document", "document_id", doc.ID, "err", err)
	}
}
