package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/internal/store"
	"deduction-matching-service/pkg/errors"
)

const healthTimeout = 2 * time.Second

// MatchRequest is the body of POST /match
type MatchRequest struct {
	Deduction  *models.Deduction     `json:"deduction"`
	Candidates []*models.Transaction `json:"candidates"`
}

// BatchRequest is the body of POST /match/batch and POST /review-queue
type BatchRequest struct {
	Deductions []*models.Deduction   `json:"deductions"`
	Candidates []*models.Transaction `json:"candidates"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func (s *Server) healthHandler(c *gin.Context) {
	if s.pinger == nil {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Health check: database unreachable")
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}

func (s *Server) matchHandler(c *gin.Context) {
	var req MatchRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Deduction == nil {
		writeError(c, http.StatusBadRequest, CodeValidation, "deduction is required", map[string]interface{}{"field": "deduction"})
		return
	}

	c.JSON(http.StatusOK, s.service.MatchDeduction(req.Deduction, req.Candidates))
}

func (s *Server) batchHandler(c *gin.Context) {
	var req BatchRequest
	if !bindJSON(c, &req) {
		return
	}

	batch, err := s.service.BatchMatch(c.Request.Context(), req.Deductions, req.Candidates)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) reviewQueueHandler(c *gin.Context) {
	var req BatchRequest
	if !bindJSON(c, &req) {
		return
	}

	queue, err := s.service.ReviewQueue(c.Request.Context(), req.Deductions, req.Candidates)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue)
}

func (s *Server) sourceReviewQueueHandler(c *gin.Context) {
	if s.runner == nil {
		writeError(c, http.StatusServiceUnavailable, CodeServiceUnavailable, "no data source configured", nil)
		return
	}

	filter, err := filterFromQuery(c)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	queue, err := s.runner.ReviewQueue(c.Request.Context(), filter)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue)
}

func (s *Server) getThresholdsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Thresholds())
}

func (s *Server) updateThresholdsHandler(c *gin.Context) {
	var update models.ThresholdUpdate
	if !bindJSON(c, &update) {
		return
	}

	thresholds, err := s.service.UpdateThresholds(update)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, thresholds)
}

func (s *Server) resetThresholdsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.ResetThresholds())
}

// bindJSON decodes the body into dst, writing a 400 (or 413) envelope on failure
func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		writeError(c, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large",
			map[string]interface{}{"limit": tooLarge.Limit})
		return false
	}

	writeBadRequest(c, "invalid request body: "+err.Error())
	return false
}

func filterFromQuery(c *gin.Context) (store.Filter, error) {
	filter := store.Filter{CustomerID: strings.TrimSpace(c.Query("customerId"))}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		date, err := models.ParseDate(raw)
		if err != nil {
			return filter, errors.ValidationError(errors.CodeInvalidDate, p.name, raw, err).
				WithSuggestion("Use YYYY-MM-DD")
		}
		*p.dst = &date
	}

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.ValidationError(errors.CodeInvalidInput, "limit", raw, err)
		}
		filter.Limit = limit
	}

	return filter, nil
}
