package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"settlement-service/internal/middleware"
	"settlement-service/internal/models"
	"settlement-service/internal/services"
	"settlement-service/pkg/common"
)

type CreateRequestRequest struct {
	UserId   int                    `json:"user_id" binding:"required"`
	Kind     models.RequestKind     `json:"kind" binding:"required"`
	Amount   decimal.Decimal        `json:"amount"`
	Evidence map[string]interface{} `json:"evidence"`
}

func (h *Handler) CreateRequest(c *gin.Context) {
	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := h.Approvals.CreateRequest(c.Request.Context(), services.CreateRequestInput{
		UserId:   req.UserId,
		Kind:     req.Kind,
		Amount:   req.Amount,
		Evidence: req.Evidence,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(created, "Request submitted"))
}

type ReviewRequestRequest struct {
	Action string `json:"action" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *Handler) ReviewRequest(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req ReviewRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.Approvals.Review(c.Request.Context(), services.ReviewInput{
		RequestID:  id,
		Action:     req.Action,
		ReviewerID: middleware.AdminID(c),
		Notes:      req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(res, "Request "+string(res.Request.Status)))
}

func (h *Handler) ListRequests(c *gin.Context) {
	p, limit := page(c)
	userID, _ := strconv.Atoi(c.Query("user_id"))
	reqs, total, err := h.Approvals.ListRequests(c.Request.Context(), services.RequestFilter{
		UserId: userID,
		Kind:   models.RequestKind(c.Query("kind")),
		Status: models.RequestStatus(c.Query("status")),
		Page:   p,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.PaginateResponse(reqs, total, p, limit, ""))
}
