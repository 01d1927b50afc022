package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"settlement-service/internal/middleware"
	"settlement-service/internal/services"
	"settlement-service/pkg/common"
)

type CreateWalletRequest struct {
	UserId   int    `json:"user_id" binding:"required"`
	Username string `json:"username" binding:"required"`
}

type OpenWalletRequest struct {
	CreateWalletRequest
	OpeningDeposit decimal.Decimal `json:"opening_deposit"`
}

// CreateWallet opens an empty wallet. Money only arrives through an approved
// deposit request.
func (h *Handler) CreateWallet(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.createWallet(c, services.CreateWalletInput{UserId: req.UserId, Username: req.Username})
}

// OpenWallet is the admin variant that may book an opening deposit.
func (h *Handler) OpenWallet(c *gin.Context) {
	var req OpenWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	log.WithFields(log.Fields{
		"user_id":         req.UserId,
		"opening_deposit": req.OpeningDeposit.String(),
		"admin_id":        middleware.AdminID(c),
	}).Info("Admin opening wallet")
	h.createWallet(c, services.CreateWalletInput{
		UserId:         req.UserId,
		Username:       req.Username,
		OpeningDeposit: req.OpeningDeposit,
	})
}

func (h *Handler) createWallet(c *gin.Context, in services.CreateWalletInput) {
	wallet, err := h.Wallets.CreateWallet(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(wallet, "Wallet created"))
}

func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := intParam(c, "userId")
	if !ok {
		return
	}
	wallet, err := h.Wallets.GetByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"wallet":  wallet,
		"balance": wallet.Total(),
	}, "success"))
}

func (h *Handler) ListLedger(c *gin.Context) {
	userID, ok := intParam(c, "userId")
	if !ok {
		return
	}
	wallet, err := h.Wallets.GetByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	p, limit := page(c)
	entries, total, err := h.Ledger.ListEntries(c.Request.Context(), wallet.ID, p, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.PaginateResponse(entries, total, p, limit, ""))
}

func (h *Handler) ReconcileWallet(c *gin.Context) {
	userID, ok := intParam(c, "userId")
	if !ok {
		return
	}
	wallet, err := h.Wallets.GetByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	rec, err := h.Ledger.Reconcile(c.Request.Context(), wallet.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"wallet_id": rec.WalletID,
		"balanced":  rec.Balanced(),
		"drift":     rec.Drift,
	}, "success"))
}
