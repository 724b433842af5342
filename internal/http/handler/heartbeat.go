package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trackio.app/trackio/internal/http/dto"
	"trackio.app/trackio/internal/service"
)

const apiKeyHeader = "x-api-key"

type HeartbeatHandler struct {
	service service.HeartbeatService
}

func NewHeartbeatHandler(service service.HeartbeatService) *HeartbeatHandler {
	return &HeartbeatHandler{service: service}
}

// Ingest accepts a heartbeat batch for deferred aggregation. A 202 means
// "durably queued", never "aggregated".
func (h *HeartbeatHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	apiKey := c.GetHeader(apiKeyHeader)
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	count, err := h.service.Ingest(ctx, apiKey, body)
	if err != nil {
		h.writeIngestError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.IngestHeartbeatsResponse{Count: count})
}

func (h *HeartbeatHandler) writeIngestError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var rateErr *service.RateLimitError
	var validationErr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrInvalidAPIKey):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
	case errors.As(err, &rateErr):
		c.Header("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	case errors.Is(err, service.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed json body"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, validationErrorResponse(validationErr))
	case errors.Is(err, service.ErrQueueUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		slog.ErrorContext(ctx, "failed to ingest heartbeats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest heartbeats"})
	}
}

func validationErrorResponse(err *service.ValidationError) dto.ValidationErrorResponse {
	resp := dto.ValidationErrorResponse{
		Error:  "invalid payload",
		Fields: make([]dto.FieldErrorResponse, 0, len(err.Fields)),
	}
	for _, f := range err.Fields {
		resp.Fields = append(resp.Fields, dto.FieldErrorResponse{Field: f.Field, Message: f.Message})
	}
	return resp
}
