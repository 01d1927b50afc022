package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"settlement-service/internal/database"
	"settlement-service/internal/middleware"
	"settlement-service/internal/models"
	"settlement-service/internal/services"
)

const testSecret = "handler-test-secret-0123456789abcdef"

type testEnv struct {
	router *gin.Engine
	h      *Handler
	db     *gorm.DB
	now    time.Time
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "handlers.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	env := &testEnv{db: db, now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	ledger := services.NewLedgerService(db)
	games := services.NewGameService(db, time.UTC)
	games.Now = clock
	matchers := services.NewMatcherRegistry(services.PairPermutations{})
	bets := services.NewBetStore(db, ledger, games, matchers)
	bets.Now = clock
	settlement := services.NewSettlementService(db, games, bets, ledger, matchers, services.RateCommission{Rate: decimal.RequireFromString("0.05")})
	settlement.Now = clock
	approvals := services.NewApprovalService(db, ledger,
		[]models.Segment{models.SegmentWinning, models.SegmentDeposit},
		decimal.NewFromInt(100), decimal.NewFromInt(1000000))
	approvals.Now = clock

	env.h = &Handler{
		Games:      games,
		Bets:       bets,
		Settlement: settlement,
		Approvals:  approvals,
		Wallets:    services.NewWalletService(db, ledger),
		Ledger:     ledger,
	}
	auth, err := middleware.NewAdminAuth(testSecret)
	require.NoError(t, err)
	env.token, err = auth.IssueToken("admin-1", time.Hour)
	require.NoError(t, err)
	env.router = NewRouter(env.h, auth.RequireAdmin())
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, admin bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (e *testEnv) seedGame(t *testing.T) uint {
	t.Helper()
	w, out := e.do(t, http.MethodPost, "/admin/games", gin.H{
		"name":                "Gali",
		"type":                "jodi",
		"open_time":           "10:00",
		"close_time":          "18:00",
		"result_time":         "19:00",
		"jodi_multiplier":     "95",
		"haruf_multiplier":    "9",
		"crossing_multiplier": "95",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, out)
	return uint(out["data"].(map[string]interface{})["id"].(float64))
}

func TestDeclareResultFlow(t *testing.T) {
	env := newTestEnv(t)
	gameID := env.seedGame(t)

	w, _ := env.do(t, http.MethodPost, "/admin/wallets", gin.H{"user_id": 1, "username": "asha", "opening_deposit": "100"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	w, out := env.do(t, http.MethodPost, "/bets", gin.H{"user_id": 1, "game_id": gameID, "game_date": "2026-03-10", "bet_type": "jodi", "number": "56", "stake": "100"}, false)
	require.Equal(t, http.StatusCreated, w.Code, out)

	path := "/admin/games/" + itoa(gameID) + "/results"
	body := gin.H{"result_date": "2026-03-10", "result_value": "56"}

	w, out = env.do(t, http.MethodPost, path, body, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "GAME_STILL_OPEN", out["code"])

	env.now = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)

	w, _ = env.do(t, http.MethodPost, path, body, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, out = env.do(t, http.MethodPost, path, body, true)
	require.Equal(t, http.StatusOK, w.Code, out)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["winnersCount"])
	assert.Equal(t, "9500", data["totalWinningAmount"])
	assert.Equal(t, "-9400", data["netProfit"])
	assert.Equal(t, "admin-1", data["declaredBy"])

	w, out = env.do(t, http.MethodPost, path, body, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RESULT_ALREADY_DECLARED", out["code"])
	assert.Equal(t, "no", out["moneyMoved"])

	w, out = env.do(t, http.MethodPost, path, gin.H{"result_date": "2026-03-10", "result_value": "5"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_RESULT_SHAPE", out["code"])

	w, out = env.do(t, http.MethodGet, "/wallets/1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "9500", out["data"].(map[string]interface{})["balance"])

	w, out = env.do(t, http.MethodGet, "/wallets/1/ledger?limit=10", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), out["count"])

	w, out = env.do(t, http.MethodGet, "/results?game_id="+itoa(gameID), nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["count"])

	w, out = env.do(t, http.MethodGet, "/admin/wallets/1/reconcile", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["data"].(map[string]interface{})["balanced"])
}

func TestReviewRequestFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.h.Wallets.CreateWallet(ctx, services.CreateWalletInput{UserId: 5, Username: "kiran", OpeningDeposit: decimal.NewFromInt(600)})
	require.NoError(t, err)

	w, out := env.do(t, http.MethodPost, "/requests", gin.H{"user_id": 5, "kind": "withdrawal", "amount": "500", "evidence": gin.H{"bank": "HDFC"}}, false)
	require.Equal(t, http.StatusCreated, w.Code, out)
	id := uint(out["data"].(map[string]interface{})["id"].(float64))
	path := "/admin/requests/" + itoa(id)

	w, out = env.do(t, http.MethodPut, path, gin.H{"action": "reject"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NOTES_REQUIRED", out["code"])

	// Balance drops below the request before it is reviewed.
	require.NoError(t, env.db.Model(&models.Wallet{}).Where("user_id = ?", 5).Update("deposit_balance", 100).Error)
	w, out = env.do(t, http.MethodPut, path, gin.H{"action": "approve"}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", out["code"])
	assert.Equal(t, "no", out["moneyMoved"])

	w, out = env.do(t, http.MethodPut, path, gin.H{"action": "reject", "notes": "insufficient balance"}, true)
	require.Equal(t, http.StatusOK, w.Code, out)
	request := out["data"].(map[string]interface{})["request"].(map[string]interface{})
	assert.Equal(t, "rejected", request["status"])
	assert.Equal(t, "admin-1", request["reviewed_by"])

	w, out = env.do(t, http.MethodPut, path, gin.H{"action": "approve"}, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_REVIEWED", out["code"])

	w, out = env.do(t, http.MethodGet, "/requests?status=rejected", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["count"])
}

func TestPublicWalletOpensEmpty(t *testing.T) {
	env := newTestEnv(t)
	body := gin.H{"user_id": 77, "username": "dev", "opening_deposit": "1000000"}

	w, out := env.do(t, http.MethodPost, "/wallets", body, false)
	require.Equal(t, http.StatusCreated, w.Code, out)
	w, out = env.do(t, http.MethodGet, "/wallets/77", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", out["data"].(map[string]interface{})["balance"])

	w, out = env.do(t, http.MethodGet, "/wallets/77/ledger", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), out["count"])

	body["user_id"] = 78
	w, _ = env.do(t, http.MethodPost, "/admin/wallets", body, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = env.do(t, http.MethodGet, "/wallets/78", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out = env.do(t, http.MethodPost, "/admin/wallets", body, true)
	require.Equal(t, http.StatusCreated, w.Code, out)
	w, out = env.do(t, http.MethodGet, "/wallets/78", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000000", out["data"].(map[string]interface{})["balance"])
}

func TestRouteValidation(t *testing.T) {
	env := newTestEnv(t)

	w, out := env.do(t, http.MethodGet, "/wallets/42", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "WALLET_NOT_FOUND", out["code"])

	w, _ = env.do(t, http.MethodGet, "/wallets/abc", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPut, "/admin/requests/0", gin.H{"action": "approve"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/bets", gin.H{"user_id": 1}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = env.do(t, http.MethodGet, "/games/99", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "GAME_NOT_FOUND", out["code"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(services.ErrNotesRequired))
	assert.Equal(t, http.StatusConflict, statusFor(services.ErrAlreadyReviewed))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(services.ErrInsufficientFunds))
	assert.Equal(t, http.StatusNotFound, statusFor(services.ErrRequestNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(services.ErrInsufficientSystemState))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errors.New("connection reset")))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
