package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/wattsync/wattsync/internal/provider"
	syncsvc "github.com/wattsync/wattsync/internal/service/sync"
	"github.com/wattsync/wattsync/internal/service/usage"
	"github.com/wattsync/wattsync/pkg/models"
)

// Request/Response types

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the readiness check response
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncStartedResponse acknowledges a background pass that was kicked off
type SyncStartedResponse struct {
	Status string `json:"status"`
}

// HourlyQuery defines query parameters for the hourly usage endpoint
type HourlyQuery struct {
	Date string `form:"date" binding:"omitempty,datetime=2006-01-02"`
}

// MonthlyQuery defines query parameters for the monthly usage endpoint
type MonthlyQuery struct {
	StartMonth string `form:"start" binding:"omitempty,datetime=2006-01"`
	EndMonth   string `form:"end" binding:"omitempty,datetime=2006-01"`
}

// SyncQuery defines query parameters for the regular sync triggers
type SyncQuery struct {
	DaysBack int  `form:"days_back" binding:"omitempty,min=1,max=90"`
	Months   int  `form:"months" binding:"omitempty,min=1,max=24"`
	Force    bool `form:"force"`
}

// BackfillQuery defines query parameters for the fixed-window backfill
type BackfillQuery struct {
	Months   int  `form:"months" binding:"omitempty,min=1,max=60"`
	Adaptive bool `form:"adaptive"`
}

// AdaptiveQuery defines query parameters for the adaptive backfill triggers
type AdaptiveQuery struct {
	StartDate string `form:"start_date" binding:"omitempty,datetime=2006-01-02"`
	Force     bool   `form:"force"`
}

func (q AdaptiveQuery) passOptions() syncsvc.PassOptions {
	opts := syncsvc.PassOptions{Force: q.Force}
	if q.StartDate != "" {
		// Layout already validated by the binding
		opts.StartDate, _ = time.Parse(models.DateLayout, q.StartDate)
	}
	return opts
}

// defaultMonthlyRange is how many months the monthly endpoint covers when
// the caller gives no range.
const defaultMonthlyRange = 12

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	}

	if !s.ready.Load() {
		response.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleReady(c *gin.Context) {
	response := ReadyResponse{
		Ready:     s.ready.Load(),
		Timestamp: time.Now(),
	}

	if !response.Ready {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleGetAccounts(c *gin.Context) {
	accounts, err := s.usage.GetAccounts(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) handleGetCurrentUsage(c *gin.Context) {
	result, err := s.usage.GetCurrentUsage(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetHourlyUsage(c *gin.Context) {
	var query HourlyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	date := time.Now().UTC()
	if query.Date != "" {
		// Layout already validated by the binding
		date, _ = time.Parse(models.DateLayout, query.Date)
	}

	result, err := s.usage.GetHourlyUsage(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetMonthlyUsage(c *gin.Context) {
	var query MonthlyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	now := time.Now().UTC()
	endMonth := query.EndMonth
	if endMonth == "" {
		endMonth = now.Format(models.MonthLayout)
	}
	startMonth := query.StartMonth
	if startMonth == "" {
		end, _ := time.Parse(models.MonthLayout, endMonth)
		startMonth = end.AddDate(0, -(defaultMonthlyRange - 1), 0).Format(models.MonthLayout)
	}

	result, err := s.usage.GetMonthlyUsage(c.Request.Context(), c.Param("id"), startMonth, endMonth)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract_id": c.Param("id"),
		"start_month": startMonth,
		"end_month":   endMonth,
		"months":      result,
	})
}

func (s *Server) handleGetSummary(c *gin.Context) {
	summary, err := s.usage.GetSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleGetStats(c *gin.Context) {
	stats, err := s.usage.GetDataStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract_id": c.Param("id"),
		"intervals":   stats,
	})
}

func (s *Server) handleSyncAll(c *gin.Context) {
	var query SyncQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	results, err := s.syncer.SyncAll(c.Request.Context(), syncsvc.PassOptions{
		DaysBack: query.DaysBack,
		Months:   query.Months,
		Force:    query.Force,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed", "results": results})
}

func (s *Server) handleSyncContract(c *gin.Context) {
	var query SyncQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	stats, err := s.syncer.SyncContract(c.Request.Context(), c.Param("id"), syncsvc.PassOptions{
		DaysBack: query.DaysBack,
		Months:   query.Months,
		Force:    query.Force,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed", "results": stats})
}

func (s *Server) handleBackfill(c *gin.Context) {
	var query BackfillQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	if query.Adaptive {
		if err := s.syncer.StartAdaptiveBackfillAll(c.Request.Context(), syncsvc.PassOptions{Months: query.Months}); err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, SyncStartedResponse{Status: "started"})
		return
	}

	results, err := s.syncer.Backfill(c.Request.Context(), query.Months)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "completed", "results": results})
}

func (s *Server) handleAdaptiveBackfillAll(c *gin.Context) {
	var query AdaptiveQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	if err := s.syncer.StartAdaptiveBackfillAll(c.Request.Context(), query.passOptions()); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SyncStartedResponse{Status: "started"})
}

func (s *Server) handleAdaptiveBackfill(c *gin.Context) {
	var query AdaptiveQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	if err := s.syncer.StartAdaptiveBackfill(c.Request.Context(), c.Param("id"), query.passOptions()); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SyncStartedResponse{Status: "started"})
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.syncer.Status())
}

// Error mapping

func (s *Server) respondBadRequest(c *gin.Context, err error) {
	msg := "invalid query parameters"
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msg = fmt.Sprintf("invalid value for %s", verrs[0].Field())
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     msg,
		RequestID: c.GetString("request_id"),
	})
}

// respondError maps service errors onto HTTP statuses. A concurrent sync is
// reported as state, not failure; upstream trouble is a gateway problem,
// not ours.
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")

	switch {
	case errors.Is(err, syncsvc.ErrSyncRunning):
		c.JSON(http.StatusOK, gin.H{"status": "already_running"})

	case errors.Is(err, usage.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     err.Error(),
			RequestID: requestID,
		})

	case errors.Is(err, usage.ErrUnknownContract), errors.Is(err, syncsvc.ErrUnknownContract):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "contract not found",
			RequestID: requestID,
		})

	case provider.IsAuthError(err):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:     "upstream authentication failed",
			RequestID: requestID,
		})

	case isUpstreamError(err):
		s.logger.Warn("upstream request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:     "upstream provider error",
			RequestID: requestID,
		})

	default:
		s.logger.Error("request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "internal server error",
			RequestID: requestID,
		})
	}
}

func isUpstreamError(err error) bool {
	var apiErr *provider.APIError
	return errors.As(err, &apiErr)
}
