package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ecom-agent/internal/apperr"
	"ecom-agent/internal/catalog"
	"ecom-agent/internal/models"
	"ecom-agent/internal/store"
	"ecom-agent/internal/stream"
	"ecom-agent/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// sampleRows is the number of rows per table served by /schema
const sampleRows = 2

// Answerer runs the question pipeline
type Answerer interface {
	AnswerRequest(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error)
}

// Streamer runs the question pipeline as an event stream
type Streamer interface {
	Stream(ctx context.Context, question string) <-chan stream.Event
}

// SchemaSource reports on the backing store
type SchemaSource interface {
	Ping(ctx context.Context) error
	Tables(ctx context.Context) ([]string, error)
	Samples(ctx context.Context, cat *catalog.Catalog, n int) (map[string]*store.Rows, error)
}

// Handler contains HTTP handlers
type Handler struct {
	answerer    Answerer
	streamer    Streamer
	schema      SchemaSource
	catalog     *catalog.Catalog
	allowOrigin string
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(answerer Answerer, streamer Streamer, schema SchemaSource, cat *catalog.Catalog, allowOrigin string) *Handler {
	return &Handler{
		answerer:    answerer,
		streamer:    streamer,
		schema:      schema,
		catalog:     cat,
		allowOrigin: allowOrigin,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(h.allowOrigin))
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/", h.home)
	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/schema", h.getSchema)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/query", h.query)
	router.POST("/stream_query", h.streamQuery)
}

func (h *Handler) home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "E-commerce Data Question Answering API",
		"version": "1.0.0",
		"endpoints": gin.H{
			"/query":        "POST - Submit natural language questions",
			"/stream_query": "POST - Submit questions with streaming response",
			"/schema":       "GET - Describe the queryable tables",
			"/health":       "GET - Check API health",
		},
		"example_questions": []string{
			"What is the total sales?",
			"Calculate the RoAS (Return on Ad Spend)",
			"Which product had the highest CPC?",
			"Show me products that are not eligible",
			"Top 5 products by ad sales",
		},
	})
}

// healthCheck reports store connectivity and the tables it holds
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	tables, err := h.schema.Tables(ctx)
	if err == nil {
		err = h.schema.Ping(ctx)
	}
	if err != nil {
		h.logger.Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
		"tables":   tables,
		"time":     time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.schema.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) getSchema(c *gin.Context) {
	samples, err := h.schema.Samples(c.Request.Context(), h.catalog, sampleRows)
	if err != nil {
		h.logger.Error("Failed to load sample data", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": apperr.GenericFailureMessage,
		})
		return
	}

	sampleData := make(map[string][]map[string]interface{}, len(samples))
	for table, rows := range samples {
		sampleData[table] = records(rows)
	}

	c.JSON(http.StatusOK, gin.H{
		"schema":      h.catalog.Names(),
		"tables":      h.catalog.Tables(),
		"sample_data": sampleData,
	})
}

// query answers a single question
func (h *Handler) query(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.answerer.AnswerRequest(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"error": apperr.PublicMessage(err),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// streamQuery answers a question as server-sent events. Pipeline errors
// arrive as the stream's final event, not as an HTTP status.
func (h *Handler) streamQuery(c *gin.Context) {
	var req models.StreamQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	requestID := uuid.New().String()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Request-ID", requestID)
	c.Status(http.StatusOK)

	sent := 0
	for ev := range h.streamer.Stream(c.Request.Context(), req.Question) {
		if err := writeEvent(c, ev); err != nil {
			h.logger.Warn("Failed to write stream event",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			// the emitter stops once the request context is done
			continue
		}
		sent++
	}

	h.logger.Debug("Stream finished",
		zap.String("request_id", requestID),
		zap.Int("events", sent),
	)
}

func writeEvent(c *gin.Context, ev stream.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write stream event: %w", err)
	}
	c.Writer.Flush()
	return nil
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNoIntentMatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// records turns sample rows into column-keyed objects
func records(rows *store.Rows) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows.Values))
	for _, row := range rows.Values {
		rec := make(map[string]interface{}, len(rows.Columns))
		for i, col := range rows.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

func corsMiddleware(allowOrigin string) gin.HandlerFunc {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
