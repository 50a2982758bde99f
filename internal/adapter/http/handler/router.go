package handler

import (
	"chainremit/internal/adapter/http/middleware"
	redisStore "chainremit/internal/adapter/storage/redis"
	"chainremit/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	TransferSvc    ports.TransferService
	CardSvc        ports.CardService
	BalanceRepo    ports.BalanceRepository
	JWTSecret      string
	JWTIssuer      string
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(64 << 10))

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.JWTSecret, deps.JWTIssuer, deps.Logger)

	transferHandler := NewTransferHandler(deps.TransferSvc)
	cardHandler := NewCardHandler(deps.CardSvc)
	balanceHandler := NewBalanceHandler(deps.BalanceRepo)

	v1 := r.Group("/api/v1", jwtAuth)

	v1.POST("/transfers", rl("transfers"), transferHandler.Transfer)
	v1.POST("/deposits", rl("deposits"), transferHandler.Deposit)
	v1.POST("/withdrawals", rl("withdrawals"), transferHandler.Withdraw)

	transactions := v1.Group("/transactions")
	{
		transactions.GET("", rl("transactions"), transferHandler.List)
		transactions.GET("/:id", rl("transactions"), transferHandler.Get)
		transactions.POST("/:id/cancel", rl("transactions"), transferHandler.Cancel)
	}

	cards := v1.Group("/cards")
	{
		cards.POST("", rl("cards"), cardHandler.Add)
		cards.GET("", rl("cards"), cardHandler.List)
		cards.DELETE("/:id", rl("cards"), cardHandler.Remove)
		cards.PUT("/:id/default", rl("cards"), cardHandler.SetDefault)
	}

	v1.GET("/balance", rl("transactions"), balanceHandler.Get)

	return r
}
