package handler

import (
	"net/http"
	"strconv"

	"github.com/charlieram96/sniperstradingacademy-sub002/internal/ledger"
	"github.com/charlieram96/sniperstradingacademy-sub002/internal/treasury"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the operational endpoints: manual payout execution,
// batch inspection and a treasury balance snapshot.
type AdminHandler struct {
	store          *ledger.Store
	chain          treasury.ChainClient
	executor       *treasury.PayoutExecutor
	gasTankAddress string
	payoutAddress  string
}

func NewAdminHandler(store *ledger.Store, chainClient treasury.ChainClient, executor *treasury.PayoutExecutor, gasTankAddress, payoutAddress string) *AdminHandler {
	return &AdminHandler{
		store:          store,
		chain:          chainClient,
		executor:       executor,
		gasTankAddress: gasTankAddress,
		payoutAddress:  payoutAddress,
	}
}

// ExecutePayout pays a single commission on demand. The caller identifies
// itself through X-Actor-Id, which lands in the audit trail.
func (h *AdminHandler) ExecutePayout(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid commission id")
		return
	}
	actor := c.GetHeader("X-Actor-Id")
	if actor == "" {
		actor = "admin"
	}

	result := h.executor.Execute(c.Request.Context(), uint(id), actor)
	if result.Success || result.Skipped {
		SuccessResponse(c, http.StatusOK, "payout executed", result)
		return
	}
	status := http.StatusUnprocessableEntity
	if result.RequiresManualReview {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Response{Success: false, Message: result.Error, Data: result})
}

func (h *AdminHandler) ListBatches(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	batches, err := h.store.ListBatches(limit)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	SuccessResponse(c, http.StatusOK, "batches retrieved", batches)
}

// TreasuryStatus reports live wallet balances next to what the ledger says
// is still owed.
func (h *AdminHandler) TreasuryStatus(c *gin.Context) {
	ctx := c.Request.Context()

	gasBalance, err := h.chain.NativeBalance(ctx, h.gasTankAddress)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "read gas tank balance: "+err.Error())
		return
	}
	payoutBalance, err := h.chain.USDCBalance(ctx, h.payoutAddress)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "read payout wallet balance: "+err.Error())
		return
	}
	pendingOwed, err := h.store.PendingCommissionTotal()
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "sum pending commissions: "+err.Error())
		return
	}

	SuccessResponse(c, http.StatusOK, "treasury status", gin.H{
		"gas_tank_address":        h.gasTankAddress,
		"gas_balance_wei":         gasBalance.String(),
		"payout_wallet_address":   h.payoutAddress,
		"payout_balance_usd":      payoutBalance.String(),
		"pending_commissions_usd": pendingOwed.String(),
		"shortfall":               payoutBalance.LessThan(pendingOwed),
	})
}
