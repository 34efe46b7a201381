package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inkbooks/ledger_backend/config"
	"github.com/inkbooks/ledger_backend/extract"
	"github.com/inkbooks/ledger_backend/ledger"
	"github.com/inkbooks/ledger_backend/models"
	"github.com/inkbooks/ledger_backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("inkbooks-ledger")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// correlationMiddleware propagates X-Correlation-Id (or mints one) so log
// lines and published events from one request can be tied together.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := strings.TrimSpace(c.GetHeader("X-Correlation-Id"))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationID)
		if source := strings.TrimSpace(c.GetHeader("X-Request-Source")); source != "" {
			ctx = utils.SetRequestSourceInContext(ctx, source)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-Id", correlationID)
		c.Next()
	}
}

func candidateToNewEvent(candidate *extract.CandidateInvoice, verdict extract.Classification, embedding []float64) *models.NewInvoiceEvent {
	items := make([]models.NewInvoiceItem, 0, len(candidate.Items))
	for _, item := range candidate.Items {
		items = append(items, models.NewInvoiceItem{
			Name:     item.Name,
			Qty:      item.Qty,
			UnitRate: item.UnitRate,
			Amount:   item.Amount,
		})
	}
	return &models.NewInvoiceEvent{
		InvoiceNumber:    candidate.InvoiceNumber,
		InvoiceDate:      candidate.InvoiceDate,
		CounterpartyName: candidate.CounterpartyName,
		Classification:   models.InvoiceClassification(candidate.Classification),
		Items:            items,
		Subtotal:         candidate.Subtotal,
		TaxAmount:        candidate.TaxAmount,
		GrandTotal:       candidate.GrandTotal,
		SourceText:       candidate.SourceText,
		QualityLabel:     models.QualityLabel(verdict.Label),
		QualityIssues:    verdict.Issues,
		Embedding:        embedding,
	}
}

func respondIngestError(c *gin.Context, err error) {
	var rejection *ledger.StockRejection
	if errors.As(err, &rejection) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        "insufficient stock",
			"understocked": rejection.Lines,
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// ingestDocumentHandler is the full pipeline: store the uploaded file,
// extract structured fields, classify, embed, ingest.
func ingestDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx, span := tracer.Start(c.Request.Context(), "ingest-document")
		defer span.End()

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer file.Close()
		fileData, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}

		objectName := fmt.Sprintf("documents/%s_%s", utils.GenerateUniqueFilename(), fileHeader.Filename)
		fileKey, err := utils.StoreDocument(ctx, objectName, bytes.NewReader(fileData))
		if err != nil {
			config.LogError(logger, "server.go", "ingestDocumentHandler", "StoreDocument", objectName, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not store document"})
			return
		}

		mediaType := fileHeader.Header.Get("Content-Type")
		if mediaType == "" {
			mediaType = http.DetectContentType(fileData)
		}

		client, clientErr := extract.NewClient()

		var candidate *extract.CandidateInvoice
		if clientErr == nil {
			candidate, err = client.ExtractDocument(ctx, fileData, mediaType)
		} else {
			err = clientErr
		}
		if err != nil {
			// Extraction failure is fatal unless the upload is raw text the
			// local fallback parser can handle.
			if strings.HasPrefix(mediaType, "text/plain") {
				logger.WithFields(logrus.Fields{
					"file_key": fileKey,
				}).Warn("extraction service failed; using local fallback parser: " + err.Error())
				candidate = extract.ParseDocumentText(string(fileData))
			} else {
				config.LogError(logger, "server.go", "ingestDocumentHandler", "ExtractDocument", fileKey, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "document extraction failed"})
				return
			}
		}

		verdict := extract.ClassifyLocally(candidate)
		var embedding []float64
		if clientErr == nil {
			verdict = client.ClassifyCandidate(ctx, candidate)
			embedding = client.EmbedText(ctx, candidate.SourceText)
		}

		event, err := ledger.IngestInvoice(ctx, candidateToNewEvent(candidate, verdict, embedding), fileKey)
		if err != nil {
			respondIngestError(c, err)
			return
		}
		c.JSON(http.StatusCreated, event)
	}
}

// ingestCandidateHandler accepts an already-structured candidate (callers
// that run extraction themselves, or test rigs).
func ingestCandidateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewInvoiceEvent
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}

		if input.QualityLabel == "" {
			candidate := &extract.CandidateInvoice{
				InvoiceNumber:    input.InvoiceNumber,
				InvoiceDate:      input.InvoiceDate,
				CounterpartyName: input.CounterpartyName,
				Classification:   string(input.Classification),
				Subtotal:         input.Subtotal,
				TaxAmount:        input.TaxAmount,
				GrandTotal:       input.GrandTotal,
			}
			for _, item := range input.Items {
				candidate.Items = append(candidate.Items, extract.CandidateItem{
					Name: item.Name, Qty: item.Qty, UnitRate: item.UnitRate, Amount: item.Amount,
				})
			}
			verdict := extract.ClassifyLocally(candidate)
			input.QualityLabel = models.QualityLabel(verdict.Label)
			input.QualityIssues = verdict.Issues
		}

		event, err := ledger.IngestInvoice(c.Request.Context(), &input, "")
		if err != nil {
			respondIngestError(c, err)
			return
		}
		c.JSON(http.StatusCreated, event)
	}
}

func deleteInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		if err := ledger.DeleteInvoiceEvent(c.Request.Context(), id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

// reclassifyInvoiceHandler re-runs the quality classifier (and embedding)
// over a stored event's source text. Quality fields only; quantities and the
// materialized views are never touched.
func reclassifyInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		ctx := c.Request.Context()

		stored, err := models.GetInvoiceEvent(ctx, id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		candidate := &extract.CandidateInvoice{
			InvoiceNumber:    stored.InvoiceNumber,
			InvoiceDate:      stored.InvoiceDate,
			CounterpartyName: stored.CounterpartyName,
			Classification:   string(stored.Classification),
			Subtotal:         stored.Subtotal,
			TaxAmount:        stored.TaxAmount,
			GrandTotal:       stored.GrandTotal,
			SourceText:       stored.SourceText,
		}
		for _, item := range stored.Items {
			candidate.Items = append(candidate.Items, extract.CandidateItem{
				Name: item.Name, Qty: item.Qty, UnitRate: item.UnitRate, Amount: item.Amount,
			})
		}

		verdict := extract.ClassifyLocally(candidate)
		var embedding []float64
		if client, clientErr := extract.NewClient(); clientErr == nil {
			verdict = client.ClassifyCandidate(ctx, candidate)
			if stored.SourceText != "" {
				embedding = client.EmbedText(ctx, stored.SourceText)
			}
		}
		if embedding == nil {
			embedding = []float64(stored.Embedding)
		}

		updated, err := models.UpdateInvoiceEventCorrections(ctx, id, models.QualityLabel(verdict.Label), verdict.Issues, embedding)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func repairInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := ledger.RepairInventory(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func repairCounterpartiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := ledger.RepairCounterparties(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// viewCacheTTL bounds staleness of the cached list endpoints; write paths
// invalidate eagerly, the TTL covers lost invalidations.
const viewCacheTTL = 30 * time.Second

func listInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cached []*models.InventoryLine
		if hit, err := config.GetRedisObject(ledger.ViewCacheInventory, &cached); err == nil && hit {
			c.JSON(http.StatusOK, cached)
			return
		}
		lines, err := models.GetInventoryLines(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = config.SetRedisObject(ledger.ViewCacheInventory, lines, viewCacheTTL)
		c.JSON(http.StatusOK, lines)
	}
}

func listCounterpartiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cached []*models.CounterpartyAggregate
		if hit, err := config.GetRedisObject(ledger.ViewCacheCounterparties, &cached); err == nil && hit {
			c.JSON(http.StatusOK, cached)
			return
		}
		aggs, err := models.GetCounterpartyAggregates(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = config.SetRedisObject(ledger.ViewCacheCounterparties, aggs, viewCacheTTL)
		c.JSON(http.StatusOK, aggs)
	}
}

func getInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		event, err := models.GetInvoiceEvent(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

func listInvoicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		events, err := models.GetInvoiceEvents(c.Request.Context(), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

func main() {
	logger := config.GetLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(correlationMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/documents", ingestDocumentHandler())
	r.POST("/api/invoices", ingestCandidateHandler())
	r.GET("/api/invoices", listInvoicesHandler())
	r.GET("/api/invoices/:id", getInvoiceHandler())
	r.DELETE("/api/invoices/:id", deleteInvoiceHandler())
	r.POST("/api/invoices/:id/reclassify", reclassifyInvoiceHandler())
	r.POST("/api/repair/inventory", repairInventoryHandler())
	r.POST("/api/repair/counterparties", repairCounterpartiesHandler())
	r.GET("/api/inventory", listInventoryHandler())
	r.GET("/api/counterparties", listCounterpartiesHandler())

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("ledger backend listening on :", port)

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
