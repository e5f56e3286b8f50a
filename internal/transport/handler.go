package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/blur-inspector-go/internal/config"
	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/internal/logger"
	"github.com/anime-shed/blur-inspector-go/internal/service"
	"github.com/anime-shed/blur-inspector-go/internal/system"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// defaultListLimit caps GET /scans when no limit is given
const defaultListLimit = 20

// MetricsProvider exposes scan counters
type MetricsProvider interface {
	GetMetrics() map[string]interface{}
}

func NewHandler(scans service.ScanService, metrics MetricsProvider, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck(scans))
	r.GET("/metrics", getMetrics(metrics))
	r.POST("/scans", startScan(scans, cfg))
	r.GET("/scans", listScans(scans, cfg))
	r.GET("/scans/:id", getScan(scans, cfg))
	r.POST("/scans/:id/delete", deleteBlurred(scans, cfg))

	return r
}

func startScan(scans service.ScanService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.ScanTimeout)
		defer cancel()

		// Log request start
		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing scan request")

		// an empty body asks for a scan with every default
		var req models.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		report, err := scans.Scan(ctx, req)
		if err != nil {
			respondError(c, statusFor(err), "scan failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"run_id":             report.RunID,
			"mode":               report.Mode,
			"total":              report.Total,
			"blurred":            report.Blurred,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Scan request completed")

		c.JSON(http.StatusOK, report)
	}
}

func listScans(scans service.ScanService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				respondError(c, http.StatusBadRequest, "invalid limit",
					apperrors.NewValidationError(fmt.Sprintf("limit must be a positive integer, got %q", raw), err))
				return
			}
			limit = n
		}

		runs, err := scans.ListRuns(ctx, limit)
		if err != nil {
			respondError(c, statusFor(err), "failed to list scans", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func getScan(scans service.ScanService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		report, err := scans.GetRun(ctx, c.Param("id"))
		if err != nil {
			respondError(c, statusFor(err), "failed to load scan", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// deleteBlurred cannot prompt anyone, so challenged items come back with
// their tokens and stay pending on the run
func deleteBlurred(scans service.ScanService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.ScanTimeout)
		defer cancel()

		runID := c.Param("id")
		report, err := scans.DeleteBlurred(ctx, runID, nil)
		if err != nil {
			resp := errorResponse(c, statusFor(err), "deletion failed", err)
			resp.Deletion = report
			c.AbortWithStatusJSON(statusFor(err), resp)
			return
		}

		logger.ForRun(runID).WithFields(logrus.Fields{
			"deleted":    report.Deleted,
			"challenged": report.Challenged,
			"failed":     report.Failed,
		}).Info("Deletion request completed")

		c.JSON(http.StatusOK, report)
	}
}

func getMetrics(metrics MetricsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"scans":  metrics.GetMetrics(),
			"system": system.Sample(),
		})
	}
}

func healthCheck(scans service.ScanService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "available",
			"version": "1.0.0",
			"source":  scans.Source(),
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			respondError(c, statusFor(err), "request processing failed", err)
		}
	}
}

func statusFor(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	if _, ok := apperrors.AsPermissionChallenge(err); ok {
		return apperrors.GetStatusCode(err)
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	c.AbortWithStatusJSON(code, errorResponse(c, code, message, err))
}

// errorResponse logs a failed request and builds its body
func errorResponse(c *gin.Context, code int, message string, err error) models.ErrorResponse {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	return models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	}
}
