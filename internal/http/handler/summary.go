package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trackio.app/trackio/internal/http/dto"
	"trackio.app/trackio/internal/service"
)

type SummaryHandler struct {
	service service.HeartbeatService
}

func NewSummaryHandler(service service.HeartbeatService) *SummaryHandler {
	return &SummaryHandler{service: service}
}

// List returns the caller's aggregated daily summaries for a date range.
// Defaults to the trailing seven days when no range is given.
func (h *SummaryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	apiKey := c.GetHeader(apiKeyHeader)
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}

	now := time.Now().UTC()
	to := c.DefaultQuery("to", now.Format("2006-01-02"))
	from := c.DefaultQuery("from", now.AddDate(0, 0, -6).Format("2006-01-02"))

	report, err := h.service.Summaries(ctx, apiKey, from, to)
	if err != nil {
		var validationErr *service.ValidationError
		switch {
		case errors.Is(err, service.ErrInvalidAPIKey):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, validationErrorResponse(validationErr))
		default:
			slog.ErrorContext(ctx, "failed to list summaries", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list summaries"})
		}
		return
	}

	resp := dto.SummariesResponse{
		From:     from,
		To:       to,
		Projects: make([]dto.ProjectSummaryResponse, 0, len(report.Projects)),
		Totals:   make([]dto.ActivityTotalResponse, 0, len(report.Totals)),
	}
	for _, p := range report.Projects {
		resp.Projects = append(resp.Projects, dto.ProjectSummaryResponse{
			Date:            p.Date,
			ProjectName:     p.ProjectName,
			Language:        p.Language,
			Category:        string(p.Category),
			DurationSeconds: p.DurationSeconds,
		})
	}
	for _, t := range report.Totals {
		resp.Totals = append(resp.Totals, dto.ActivityTotalResponse{
			Date:             t.Date,
			CodingSeconds:    t.CodingSeconds,
			DebuggingSeconds: t.DebuggingSeconds,
		})
	}

	c.JSON(http.StatusOK, resp)
}
