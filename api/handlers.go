package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xraph/subledger"
	"github.com/xraph/subledger/auth"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/index"
	"github.com/xraph/subledger/payment"
	"github.com/xraph/subledger/types"
)

// InitRequest is the body of POST /v1/init.
type InitRequest struct {
	Admin        string `json:"admin" binding:"required"`
	PaymentToken string `json:"payment_token" binding:"required"`
	Treasury     string `json:"treasury" binding:"required"`
}

// CreatePlanRequest is the body of POST /v1/plans.
type CreatePlanRequest struct {
	ID     uint32       `json:"id"`
	Name   string       `json:"name"`
	Period uint32       `json:"period"`
	Price  types.Amount `json:"price"`
	// Caller is used only when no bearer token identified the caller.
	Caller string `json:"caller,omitempty"`
}

// SetPlanStatusRequest is the body of PUT /v1/plans/:id/status.
type SetPlanStatusRequest struct {
	Active *bool  `json:"active" binding:"required"`
	Caller string `json:"caller,omitempty"`
}

// SubscribeRequest is the body of POST /v1/subscriptions.
type SubscribeRequest struct {
	Subscriber string `json:"subscriber,omitempty"`
	PlanID     uint32 `json:"plan_id"`
}

// AllowanceRequest is the body of PUT and POST
// /v1/subscriptions/:subscriber/allowance.
type AllowanceRequest struct {
	Cycles         uint32 `json:"cycles" binding:"required"`
	ExpirationTick uint32 `json:"expiration_tick" binding:"required"`
}

// MintRequest is the body of POST /v1/token/mint.
type MintRequest struct {
	To     string       `json:"to" binding:"required"`
	Amount types.Amount `json:"amount" binding:"required"`
}

// TokenInfo is the body of GET /v1/token.
type TokenInfo struct {
	ID      id.TokenID   `json:"id"`
	Spender id.Principal `json:"spender"`
}

// ──────────────────────────────────────────────────
// Configuration
// ──────────────────────────────────────────────────

func (h *Handler) initLedger(c *gin.Context) {
	var req InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	admin, err := parsePrincipal("admin", req.Admin)
	if err != nil {
		writeError(c, err)
		return
	}
	tokenID, err := id.ParseTokenID(req.PaymentToken)
	if err != nil {
		writeError(c, badRequest(fmt.Errorf("payment_token: %w", err)))
		return
	}
	treasury, err := parsePrincipal("treasury", req.Treasury)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.engine.Init(c.Request.Context(), admin, tokenID, treasury); err != nil {
		writeError(c, err)
		return
	}
	cfg, err := h.engine.Configuration(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *Handler) configuration(c *gin.Context) {
	cfg, err := h.engine.Configuration(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// ──────────────────────────────────────────────────
// Plans
// ──────────────────────────────────────────────────

func (h *Handler) createPlan(c *gin.Context) {
	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	caller, err := callerOf(c, req.Caller)
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := h.engine.CreatePlan(c.Request.Context(), caller, req.ID, req.Name, req.Period, req.Price)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) setPlanStatus(c *gin.Context) {
	planID, err := planIDParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req SetPlanStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	caller, err := callerOf(c, req.Caller)
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := h.engine.SetPlanStatus(c.Request.Context(), caller, planID, *req.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) getPlan(c *gin.Context) {
	planID, err := planIDParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := h.engine.GetPlan(c.Request.Context(), planID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listPlans(c *gin.Context) {
	offset, limit, err := pageParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	plans, err := h.engine.ListPlans(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func (h *Handler) subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	subscriber, err := callerOf(c, req.Subscriber)
	if err != nil {
		writeError(c, err)
		return
	}

	sub, err := h.engine.Subscribe(c.Request.Context(), subscriber, req.PlanID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) renew(c *gin.Context) {
	subscriber, err := parsePrincipal("subscriber", c.Param("subscriber"))
	if err != nil {
		writeError(c, err)
		return
	}
	sub, err := h.engine.Renew(c.Request.Context(), subscriber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) cancel(c *gin.Context) {
	subscriber, err := parsePrincipal("subscriber", c.Param("subscriber"))
	if err != nil {
		writeError(c, err)
		return
	}
	sub, err := h.engine.Cancel(c.Request.Context(), subscriber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) getSubscription(c *gin.Context) {
	subscriber, err := parsePrincipal("subscriber", c.Param("subscriber"))
	if err != nil {
		writeError(c, err)
		return
	}
	sub, err := h.engine.GetSubscription(c.Request.Context(), subscriber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) renewalCapacity(c *gin.Context) {
	subscriber, err := parsePrincipal("subscriber", c.Param("subscriber"))
	if err != nil {
		writeError(c, err)
		return
	}
	capacity, err := h.engine.RenewalCapacity(c.Request.Context(), subscriber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, capacity)
}

func (h *Handler) approveRenewals(c *gin.Context) {
	h.grantRenewals(c, h.engine.ApproveRenewals)
}

func (h *Handler) increaseRenewals(c *gin.Context) {
	h.grantRenewals(c, h.engine.IncreaseRenewals)
}

type grantFunc func(ctx context.Context, subscriber id.Principal, cycles, expirationTick uint32) (*subledger.Capacity, error)

func (h *Handler) grantRenewals(c *gin.Context, grant grantFunc) {
	subscriber, err := parsePrincipal("subscriber", c.Param("subscriber"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req AllowanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	capacity, err := grant(c.Request.Context(), subscriber, req.Cycles, req.ExpirationTick)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, capacity)
}

func (h *Handler) listSubscriptions(c *gin.Context) {
	offset, limit, err := pageParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	subs, err := h.engine.ListSubscriptions(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *Handler) listSubscribers(c *gin.Context) {
	offset, limit, err := pageParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	subscribers, err := h.engine.ListSubscribers(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscribers)
}

func (h *Handler) renewDue(c *gin.Context) {
	report, err := h.sweeper.RenewDue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ──────────────────────────────────────────────────
// Payment token
// ──────────────────────────────────────────────────

func (h *Handler) tokenInfo(c *gin.Context) {
	c.JSON(http.StatusOK, TokenInfo{ID: h.token.ID(), Spender: h.engine.Address()})
}

func (h *Handler) balance(c *gin.Context) {
	p, err := parsePrincipal("principal", c.Param("principal"))
	if err != nil {
		writeError(c, err)
		return
	}
	amount, err := h.token.(payment.BalanceReader).Balance(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": p, "balance": amount})
}

func (h *Handler) mint(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest(err))
		return
	}
	to, err := parsePrincipal("to", req.To)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.token.(payment.Minter).Mint(c.Request.Context(), to, req.Amount); err != nil {
		writeError(c, err)
		return
	}
	h.logger.Warn("development mint", "to", to.String(), "amount", int64(req.Amount))
	c.JSON(http.StatusCreated, gin.H{"principal": to, "minted": req.Amount})
}

// ──────────────────────────────────────────────────
// Request helpers
// ──────────────────────────────────────────────────

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

func parsePrincipal(field, raw string) (id.Principal, error) {
	p, err := id.ParsePrincipal(raw)
	if err != nil {
		return id.Nil, badRequest(fmt.Errorf("%s: %w", field, err))
	}
	return p, nil
}

// callerOf prefers the principal attached by BearerAuth and falls back to
// the principal named in the body.
func callerOf(c *gin.Context, fallback string) (id.Principal, error) {
	if p, ok := auth.PrincipalFrom(c.Request.Context()); ok {
		return p, nil
	}
	if fallback == "" {
		return id.Nil, fmt.Errorf("%w: no caller", auth.ErrAuthRequired)
	}
	return parsePrincipal("caller", fallback)
}

func planIDParam(c *gin.Context) (uint32, error) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, badRequest(fmt.Errorf("plan id: %w", err))
	}
	return uint32(v), nil
}

// pageParams reads offset and limit. A missing limit means a full page.
func pageParams(c *gin.Context) (offset, limit uint32, err error) {
	o, err := strconv.ParseUint(c.DefaultQuery("offset", "0"), 10, 32)
	if err != nil {
		return 0, 0, badRequest(fmt.Errorf("offset: %w", err))
	}
	l, err := strconv.ParseUint(c.DefaultQuery("limit", strconv.FormatUint(uint64(index.MaxPageSize), 10)), 10, 32)
	if err != nil {
		return 0, 0, badRequest(fmt.Errorf("limit: %w", err))
	}
	return uint32(o), uint32(l), nil
}
