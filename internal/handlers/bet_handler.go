package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"settlement-service/internal/models"
	"settlement-service/internal/services"
	"settlement-service/pkg/common"
)

type PlaceBetRequest struct {
	UserId   int                  `json:"user_id" binding:"required"`
	GameId   uint                 `json:"game_id" binding:"required"`
	GameDate string               `json:"game_date"`
	BetType  models.BetType       `json:"bet_type" binding:"required"`
	Number   string               `json:"number" binding:"required"`
	Position models.HarufPosition `json:"position"`
	Stake    decimal.Decimal      `json:"stake"`
}

func (h *Handler) PlaceBet(c *gin.Context) {
	var req PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	placed, err := h.Bets.PlaceBet(c.Request.Context(), services.PlaceBetInput{
		UserId:   req.UserId,
		GameId:   req.GameId,
		GameDate: req.GameDate,
		BetType:  req.BetType,
		Number:   req.Number,
		Position: req.Position,
		Stake:    req.Stake,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(placed, "Bet placed"))
}

func (h *Handler) ListBets(c *gin.Context) {
	p, limit := page(c)
	userID, _ := strconv.Atoi(c.Query("user_id"))
	gameID, _ := strconv.ParseUint(c.Query("game_id"), 10, 64)
	bets, total, err := h.Bets.ListBets(c.Request.Context(), services.BetFilter{
		UserId:   userID,
		GameId:   uint(gameID),
		GameDate: c.Query("date"),
		Status:   models.BetStatus(c.Query("status")),
		Page:     p,
		Limit:    limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.PaginateResponse(bets, total, p, limit, ""))
}
