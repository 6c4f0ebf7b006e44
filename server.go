package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/middlewares"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"bitbucket.org/mmdatafocus/hotel_cashflow/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// application holds what the handlers need once the store is connected.
// Until ready is set every request but /healthz gets 503.
type application struct {
	logger *logrus.Logger
	ready  atomic.Bool

	mu    sync.RWMutex
	svc   *workflow.CashflowService
	store workflow.Store
	db    *gorm.DB
}

func newApplication(logger *logrus.Logger) *application {
	return &application{logger: logger}
}

// attach wires store into a service and opens the gate.
func (a *application) attach(store workflow.Store, db *gorm.DB) *workflow.CashflowService {
	svc := workflow.NewCashflowService(store, a.logger)
	if locker := config.GetRedisLock(); locker != nil {
		svc.Guard = workflow.NewRedisWriteGuard(locker, a.logger)
	}
	svc.OnLedgerChanged = ledgerChanged(a.logger)

	a.mu.Lock()
	a.svc, a.store, a.db = svc, store, db
	a.mu.Unlock()
	a.ready.Store(true)
	return svc
}

func (a *application) service() *workflow.CashflowService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.svc
}

// GetLedgerCategoriesByIds lets the dataloader read through whichever store is attached.
func (a *application) GetLedgerCategoriesByIds(ctx context.Context, ids []int) ([]*models.LedgerCategory, error) {
	a.mu.RLock()
	store := a.store
	a.mu.RUnlock()
	if store == nil {
		return nil, errors.New("store not ready")
	}
	return store.GetLedgerCategoriesByIds(ctx, ids)
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func newRouter(a *application) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !a.ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins

	r.Use(cors.New(corsConfig))

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

	r.Use(customErrorLogger(a.logger))
	r.Use(gin.Recovery())
	r.POST("/pubsub", commandPubSubHandler(a))

	api := &cashflowAPI{app: a}
	authed := r.Group("/", middlewares.SessionMiddleware(), middlewares.AuthMiddleware(), middlewares.RequireActor(), middlewares.LoaderMiddleware(a))
	v1 := authed.Group("/api/v1")
	{
		v1.POST("/obligations/:kind", api.createObligation)
		v1.GET("/obligations/:kind/:id", api.getObligation)
		v1.PUT("/obligations/:kind/:id", api.updateObligation)
		v1.DELETE("/obligations/:kind/:id", api.deleteObligation)
		v1.PATCH("/obligations/:kind/:id/status", api.updateObligationStatus)

		v1.PUT("/inflows/actual/:date", api.recordActualInflow)
		v1.PUT("/inflows/projected/:date", api.updateProjectedInflow)
		v1.GET("/inflows/projected/:date", api.getProjectedInflow)

		v1.GET("/ledger", api.getLedgerRange)
		v1.POST("/ledger/months", api.generateMonth)
		v1.POST("/ledger/recompute", api.recompute)
		v1.PUT("/ledger/opening-balance", api.setOpeningBalance)
		v1.GET("/ledger/:date/breakdown", api.getBreakdown)

		v1.GET("/reports/summary", api.getSummary)

		v1.GET("/ledger-categories", api.listLedgerCategories)
		v1.POST("/ledger-categories", api.createLedgerCategory)
	}
	authed.POST("/internal/ops/outbox/replay", api.outboxReplay)
	r.NoRoute(customNotFoundHandler)
	return r
}

// openStore connects the configured backend. The memory store is for local runs and demos.
func openStore(logger *logrus.Logger) (workflow.Store, *gorm.DB) {
	driver := config.DatabaseDriver()
	if driver == config.DriverMemory {
		logger.WithFields(logrus.Fields{"field": "database"}).Warn("DB_DRIVER=memory; ledger is not persisted")
		return workflow.NewMemoryStore().WithLockTimeout(config.LedgerLockTimeout()), nil
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}
	return workflow.NewGormStore(db, driver), db
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	app := newApplication(logger)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(app),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// IMPORTANT (Cloud Run): listen first, connect dependencies after.
	if config.DatabaseDriver() != config.DriverMemory || os.Getenv("REDIS_ADDRESS") != "" {
		config.ConnectRedisWithRetry()
	}
	store, db := openStore(logger)
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
	}
	app.attach(store, db)

	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	if db != nil && config.OutboxDispatchEnabled() {
		go workflow.NewOutboxDispatcher(db, logger).Run(backgroundCtx)
	}
	if config.CommandPullEnabled() {
		if err := RunCommandSubscriber(backgroundCtx, app); err != nil {
			config.LogError(logger, "server.go", "main", "RunCommandSubscriber", nil, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"info":   "Connection Established",
		"driver": config.DatabaseDriver(),
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped: " + err.Error())
		}
	}

	cancelBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
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
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
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
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// fail open
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
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
