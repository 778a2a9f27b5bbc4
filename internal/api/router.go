// Package api exposes the ledger, the product lifecycle and the return desk
// over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/chainguard/tracker/internal/importer"
	"github.com/chainguard/tracker/internal/returns"
	"github.com/chainguard/tracker/internal/tracker"
	"github.com/chainguard/tracker/pkg/logging"
	"github.com/chainguard/tracker/pkg/telemetry"
)

// Router sets up API routes
type Router struct {
	tracker  *tracker.Tracker
	returns  *returns.Service
	importer *importer.Importer
	validate *validatorv10.Validate
	now      func() time.Time
	logger   *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(t *tracker.Tracker, svc *returns.Service, im *importer.Importer) *Router {
	return &Router{
		tracker:  t,
		returns:  svc,
		importer: im,
		validate: im.Validator(),
		now:      time.Now,
		logger:   logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(r.traceRequests())

	engine.GET("/api/health", r.healthHandler)
	engine.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	// JSON-RPC endpoint for other nodes
	rpc := NewJSONRPCHandler()
	r.registerMethods(rpc)
	engine.POST("/rpc", rpc.Handle)

	products := engine.Group("/api/products")
	products.GET("", r.listProducts)
	products.POST("", r.registerProduct)
	products.GET("/:uid", r.getProduct)
	products.POST("/:uid/status", r.updateStatus)
	products.GET("/:uid/refund-eligibility", r.refundEligibility)
	products.POST("/:uid/refund", r.decideRefund)
	products.GET("/:uid/audit", r.auditProduct)

	chain := engine.Group("/api/chain")
	chain.GET("", r.listBlocks)
	chain.GET("/verify", r.verifyChain)
	chain.POST("/tx", r.submitTransaction)
	chain.POST("/import", r.importTransactions)

	engine.GET("/api/platforms", r.listPlatforms)
	engine.GET("/api/platforms/:platform/orders/:id", r.lookupOrder)
	engine.GET("/api/orders", r.listOrders)
	engine.GET("/api/orders/:id", r.getOrder)
	engine.POST("/api/returns", r.processReturn)

	bots := engine.Group("/api/bots")
	bots.GET("", r.listBots)
	bots.POST("", r.connectBot)
	bots.DELETE("/:id", r.disconnectBot)
}

// traceRequests opens a span per request named after its route.
func (r *Router) traceRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "http "+c.Request.Method+" "+c.FullPath())
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"ts":      r.now().UnixMilli(),
		"service": "chainguard-api",
		"blocks":  len(r.tracker.Blocks()),
	})
}
