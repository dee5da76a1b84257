// Package api exposes the ledger over HTTP with gin.
//
// Mutating operations that need a signer read the caller from a bearer
// token when a verifier is configured; the engine's authorizer still has
// the final say.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/renewal"
)

// Handler serves the ledger HTTP API.
type Handler struct {
	engine   *subledger.Engine
	sweeper  *renewal.Sweeper
	verifier *auth.JWTVerifier
	token    payment.Ledger
	minting  bool
	metrics  http.Handler
	health   func(context.Context) error
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithVerifier enables bearer-token authentication on signed routes.
func WithVerifier(v *auth.JWTVerifier) Option {
	return func(h *Handler) { h.verifier = v }
}

// WithSweeper enables POST /v1/renewals/due.
func WithSweeper(s *renewal.Sweeper) Option {
	return func(h *Handler) { h.sweeper = s }
}

// WithToken exposes the payment token under /v1/token: its identifier, the
// engine's spender address and, when the token reports them, balances.
func WithToken(l payment.Ledger) Option {
	return func(h *Handler) { h.token = l }
}

// WithMinting enables POST /v1/token/mint when the token can mint. Anyone
// can fund any principal through it; enable it only for development.
func WithMinting() Option {
	return func(h *Handler) { h.minting = true }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithHealthCheck replaces the default store ping used by /healthz.
func WithHealthCheck(fn func(context.Context) error) Option {
	return func(h *Handler) { h.health = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New returns a Handler over engine.
func New(engine *subledger.Engine, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		health: engine.Store().Ping,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds a gin engine with recovery, request logging and all routes
// mounted under basePath.
func (h *Handler) Router(basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))
	h.Register(r.Group(basePath))
	return r
}

// Register mounts the API routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/healthz", h.healthz)
	if h.metrics != nil {
		rg.GET("/metrics", gin.WrapH(h.metrics))
	}

	signed := BearerAuth(h.verifier)

	v1 := rg.Group("/v1")
	v1.POST("/init", signed, h.initLedger)
	v1.GET("/config", h.configuration)

	plans := v1.Group("/plans")
	plans.POST("", signed, h.createPlan)
	plans.GET("", h.listPlans)
	plans.GET("/:id", h.getPlan)
	plans.PUT("/:id/status", signed, h.setPlanStatus)

	subs := v1.Group("/subscriptions")
	subs.POST("", signed, h.subscribe)
	subs.GET("", h.listSubscriptions)
	subs.GET("/:subscriber", h.getSubscription)
	subs.GET("/:subscriber/capacity", h.renewalCapacity)
	subs.POST("/:subscriber/renew", h.renew)
	subs.POST("/:subscriber/cancel", signed, h.cancel)
	subs.PUT("/:subscriber/allowance", signed, h.approveRenewals)
	subs.POST("/:subscriber/allowance", signed, h.increaseRenewals)

	v1.GET("/subscribers", h.listSubscribers)

	if h.sweeper != nil {
		v1.POST("/renewals/due", h.renewDue)
	}

	if h.token != nil {
		tok := v1.Group("/token")
		tok.GET("", h.tokenInfo)
		if _, ok := h.token.(payment.BalanceReader); ok {
			tok.GET("/balances/:principal", h.balance)
		}
		if _, ok := h.token.(payment.Minter); ok && h.minting {
			tok.POST("/mint", h.mint)
		}
	}
}

func (h *Handler) healthz(c *gin.Context) {
	if err := h.health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
