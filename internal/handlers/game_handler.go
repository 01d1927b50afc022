package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"settlement-service/internal/middleware"
	"settlement-service/internal/models"
	"settlement-service/internal/services"
	"settlement-service/pkg/common"
)

type GameRequest struct {
	Name               string               `json:"name" binding:"required"`
	Type               models.GameType      `json:"type" binding:"required"`
	OpenTime           string               `json:"open_time" binding:"required"`
	CloseTime          string               `json:"close_time" binding:"required"`
	ResultTime         string               `json:"result_time" binding:"required"`
	JodiMultiplier     decimal.Decimal      `json:"jodi_multiplier"`
	HarufMultiplier    decimal.Decimal      `json:"haruf_multiplier"`
	CrossingMultiplier decimal.Decimal      `json:"crossing_multiplier"`
	HarufPosition      models.HarufPosition `json:"haruf_position"`
	Active             *bool                `json:"active"`
}

func (r GameRequest) input() services.GameInput {
	return services.GameInput{
		Name:               r.Name,
		Type:               r.Type,
		OpenTime:           r.OpenTime,
		CloseTime:          r.CloseTime,
		ResultTime:         r.ResultTime,
		JodiMultiplier:     r.JodiMultiplier,
		HarufMultiplier:    r.HarufMultiplier,
		CrossingMultiplier: r.CrossingMultiplier,
		HarufPosition:      r.HarufPosition,
		Active:             r.Active,
	}
}

func (h *Handler) CreateGame(c *gin.Context) {
	var req GameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	game, err := h.Games.CreateGame(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(game, "Game created"))
}

func (h *Handler) UpdateGame(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req GameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	game, err := h.Games.UpdateGame(c.Request.Context(), id, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(game, "Game updated"))
}

func (h *Handler) ListGames(c *gin.Context) {
	games, err := h.Games.ListGames(c.Request.Context(), c.Query("all") != "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(games, "success"))
}

func (h *Handler) GetGame(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	game, err := h.Games.GetGame(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	days, err := h.Games.ListDays(c.Request.Context(), id, 7)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{"game": game, "days": days}, "success"))
}

type DeclareResultRequest struct {
	ResultDate  string `json:"result_date" binding:"required"`
	ResultValue string `json:"result_value" binding:"required"`
}

// settlementResponse is the admin-facing summary of a declaration.
type settlementResponse struct {
	ResultID           uint                    `json:"resultId"`
	GameID             uint                    `json:"gameId"`
	ResultDate         string                  `json:"resultDate"`
	ResultValue        string                  `json:"resultValue"`
	TotalBets          int                     `json:"totalBets"`
	WinnersCount       int                     `json:"winnersCount"`
	TotalBetAmount     decimal.Decimal         `json:"totalBetAmount"`
	TotalWinningAmount decimal.Decimal         `json:"totalWinningAmount"`
	PlatformCommission decimal.Decimal         `json:"platformCommission"`
	NetProfit          decimal.Decimal         `json:"netProfit"`
	DeclaredBy         string                  `json:"declaredBy"`
	DeclaredAt         time.Time               `json:"declaredAt"`
	Winners            []services.WinnerPayout `json:"winners"`
}

func (h *Handler) DeclareResult(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req DeclareResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := h.Settlement.DeclareResult(c.Request.Context(), services.DeclareResultInput{
		GameID:      id,
		ResultDate:  req.ResultDate,
		ResultValue: req.ResultValue,
		DeclaredBy:  middleware.AdminID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(settlementResponse{
		ResultID:           report.ResultID,
		GameID:             report.GameID,
		ResultDate:         report.ResultDate,
		ResultValue:        report.ResultValue,
		TotalBets:          report.TotalBets,
		WinnersCount:       report.WinnersCount,
		TotalBetAmount:     report.TotalBetAmount,
		TotalWinningAmount: report.TotalWinningAmount,
		PlatformCommission: report.PlatformCommission,
		NetProfit:          report.NetProfit,
		DeclaredBy:         report.DeclaredBy,
		DeclaredAt:         report.DeclaredAt,
		Winners:            report.Winners,
	}, "Result declared"))
}

func (h *Handler) ListResults(c *gin.Context) {
	p, limit := page(c)
	gameID, _ := strconv.ParseUint(c.Query("game_id"), 10, 64)
	results, total, err := h.Settlement.ListResults(c.Request.Context(), services.ResultFilter{
		GameId: uint(gameID),
		Date:   c.Query("date"),
		Page:   p,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.PaginateResponse(results, total, p, limit, ""))
}
