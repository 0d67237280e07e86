package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/polisight/backend/internal/app"
	"github.com/polisight/backend/internal/queue"
	"github.com/polisight/backend/internal/server/middleware"
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/pipeline"
	"github.com/polisight/backend/pkg/source"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

type documentResponse struct {
	Message string           `json:"message,omitempty"`
	Result  *pipeline.Result `json:"result,omitempty"`
}

type batchResponse struct {
	Message string            `json:"message,omitempty"`
	Queued  int               `json:"queued,omitempty"`
	Results []pipeline.Result `json:"results,omitempty"`
	Errors  string            `json:"errors,omitempty"`
}

// processingStatus maps a processing error to an HTTP status.
func processingStatus(err error) int {
	var invalid validator.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNoDocumentSource):
		return http.StatusBadRequest
	case errors.Is(err, graphstore.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// ProcessDocumentHandler runs one document through the analysis pipeline
// and answers with its result.
func ProcessDocumentHandler(c echo.Context) error {
	doc := new(source.Document)
	if err := c.Bind(doc); err != nil {
		return c.JSON(http.StatusBadRequest, documentResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(doc); err != nil {
		return c.JSON(http.StatusBadRequest, documentResponse{Message: "id and text are required"})
	}

	svc := c.(*middleware.AppContext).App.Service
	res, err := svc.ProcessDocument(c.Request().Context(), *doc)
	if err != nil {
		logger.Error("[Server] Failed to process document", "document_id", doc.ID, "err", err)
		return c.JSON(processingStatus(err), documentResponse{Message: "Failed to process document", Result: &res})
	}
	return c.JSON(http.StatusOK, documentResponse{Result: &res})
}

// ProcessBatchHandler queues a batch for the worker when a broker is
// configured and processes it in the request otherwise.
func ProcessBatchHandler(c echo.Context) error {
	batch := new(queue.IndexMessage)
	if err := c.Bind(batch); err != nil {
		return c.JSON(http.StatusBadRequest, batchResponse{Message: "Invalid request body"})
	}
	total := len(batch.Documents) + len(batch.DocumentIDs)
	if total == 0 {
		return c.JSON(http.StatusBadRequest, batchResponse{Message: "documents or document_ids are required"})
	}

	a := c.(*middleware.AppContext).App
	if a.Queue != nil {
		data, err := json.Marshal(batch)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, batchResponse{Message: "Internal server error"})
		}
		if err := queue.PublishFIFO(a.Queue, queue.IndexQueue, data); err != nil {
			logger.Error("[Server] Failed to queue batch", "err", err)
			return c.JSON(http.StatusServiceUnavailable, batchResponse{Message: "Failed to queue documents"})
		}
		return c.JSON(http.StatusAccepted, batchResponse{Message: "Documents queued", Queued: total})
	}

	ctx := c.Request().Context()
	var (
		results []pipeline.Result
		errs    []error
	)
	if len(batch.Documents) > 0 {
		res, err := a.Service.ProcessDocuments(ctx, batch.Documents)
		results = append(results, res...)
		errs = append(errs, err)
	}
	if len(batch.DocumentIDs) > 0 {
		res, err := a.Service.FetchAndProcess(ctx, batch.DocumentIDs)
		if errors.Is(err, app.ErrNoDocumentSource) {
			return c.JSON(http.StatusBadRequest, batchResponse{Message: "No document source configured", Results: results})
		}
		results = append(results, res...)
		errs = append(errs, err)
	}

	resp := batchResponse{Results: results}
	if err := errors.Join(errs...); err != nil {
		resp.Errors = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
