package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"settlement-service/internal/services"
	"settlement-service/pkg/common"
)

type Handler struct {
	Games      *services.GameService
	Bets       *services.BetStore
	Settlement *services.SettlementService
	Approvals  *services.ApprovalService
	Wallets    *services.WalletService
	Ledger     *services.LedgerService
}

// NewRouter wires every route. Admin routes sit behind requireAdmin.
func NewRouter(h *Handler, requireAdmin gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome To Settlement service"})
	})

	r.GET("/games", h.ListGames)
	r.GET("/games/:id", h.GetGame)
	r.GET("/results", h.ListResults)
	r.GET("/bets", h.ListBets)
	r.POST("/bets", h.PlaceBet)
	r.POST("/wallets", h.CreateWallet)
	r.GET("/wallets/:userId", h.GetWallet)
	r.GET("/wallets/:userId/ledger", h.ListLedger)
	r.GET("/requests", h.ListRequests)
	r.POST("/requests", h.CreateRequest)

	admin := r.Group("/admin", requireAdmin)
	admin.POST("/wallets", h.OpenWallet)
	admin.POST("/games", h.CreateGame)
	admin.PUT("/games/:id", h.UpdateGame)
	admin.POST("/games/:id/results", h.DeclareResult)
	admin.PUT("/requests/:id", h.ReviewRequest)
	admin.GET("/wallets/:userId/reconcile", h.ReconcileWallet)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Debug("HTTP request")
	}
}

// statusFor maps an error kind to the HTTP status a client sees.
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	case services.KindResource:
		return http.StatusUnprocessableEntity
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindSystem:
		return http.StatusInternalServerError
	}
	return http.StatusServiceUnavailable
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	res := common.NewErrorResponse(err.Error(), services.CodeOf(err), status)
	res.MoneyMoved = string(services.OutcomeOf(err))
	if services.KindOf(err) == services.KindInfrastructure {
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		res.Message = "temporary failure, re-read the entity before retrying"
	}
	c.JSON(status, res)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, common.NewErrorResponse(message, "BAD_REQUEST", http.StatusBadRequest))
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func page(c *gin.Context) (int, int) {
	return common.ParsePage(c.Query("page"), c.Query("limit"), common.DefaultPageSize, common.MaxPageSize)
}
