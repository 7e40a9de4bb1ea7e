package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eaglebank/transactions-svc/internal/risk"
	"github.com/eaglebank/transactions-svc/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RiskHandler serves the mock remote risk evaluator. It applies the same
// per-currency rules as the local fallback and can be told to fail or stall.
type RiskHandler struct {
	rules risk.RuleFinder
}

func NewRiskHandler(rules risk.RuleFinder) *RiskHandler {
	return &RiskHandler{rules: rules}
}

func (h *RiskHandler) Allow(c *gin.Context) {
	ctx := c.Request.Context()

	if ms, err := strconv.Atoi(c.DefaultQuery("delayMs", "0")); err == nil && ms > 0 {
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if c.Query("fail") == "true" {
		middleware.RespondWithError(c, http.StatusInternalServerError, "simulated risk failure")
		return
	}

	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "amount must be a decimal")
		return
	}
	allowed, err := risk.Lookup(ctx, h.rules, c.Query("currency"), strings.ToUpper(c.Query("type")), amount)
	if err != nil {
		_ = c.Error(err)
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to load risk rule")
		return
	}

	c.JSON(http.StatusOK, allowed)
}
