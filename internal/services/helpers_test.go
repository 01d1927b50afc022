package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"settlement-service/internal/database"
	"settlement-service/internal/models"
)

// newTestDB opens a migrated sqlite database in a temp dir. A single
// connection serializes transactions the way row locks would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settlement.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingDispatcher struct {
	mu       sync.Mutex
	results  []uint
	wallets  []uint
	failWith error
}

func (d *recordingDispatcher) ReconcileWallets(_ context.Context, walletIDs ...uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wallets = append(d.wallets, walletIDs...)
	return d.failWith
}

func (d *recordingDispatcher) ResultDeclared(_ context.Context, resultID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, resultID)
	return d.failWith
}

const testDate = "2026-03-10"

var (
	// Inside the 10:00-18:00 window of testDate.
	duringWindow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// After the window of testDate has closed.
	afterWindow = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
)

type fixture struct {
	db         *gorm.DB
	clock      *testClock
	dispatcher *recordingDispatcher
	ledger     *LedgerService
	wallets    *WalletService
	games      *GameService
	bets       *BetStore
	settlement *SettlementService
	approvals  *ApprovalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, newTestDB(t))
}

func newFixtureOn(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	clock := &testClock{now: duringWindow}
	dispatcher := &recordingDispatcher{}

	ledger := NewLedgerService(db)
	games := NewGameService(db, time.UTC)
	games.Now = clock.Now
	matchers := NewMatcherRegistry(PairPermutations{})
	bets := NewBetStore(db, ledger, games, matchers)
	bets.Now = clock.Now
	settlement := NewSettlementService(db, games, bets, ledger, matchers, RateCommission{Rate: decimal.RequireFromString("0.05")})
	settlement.Now = clock.Now
	settlement.Dispatcher = dispatcher
	approvals := NewApprovalService(db, ledger,
		[]models.Segment{models.SegmentWinning, models.SegmentDeposit},
		decimal.NewFromInt(100), decimal.NewFromInt(1000000))
	approvals.Now = clock.Now
	approvals.Dispatcher = dispatcher

	return &fixture{
		db:         db,
		clock:      clock,
		dispatcher: dispatcher,
		ledger:     ledger,
		wallets:    NewWalletService(db, ledger),
		games:      games,
		bets:       bets,
		settlement: settlement,
		approvals:  approvals,
	}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f *fixture) createGame(t *testing.T, name string, gameType models.GameType) *models.Game {
	t.Helper()
	game, err := f.games.CreateGame(context.Background(), GameInput{
		Name:               name,
		Type:               gameType,
		OpenTime:           "10:00",
		CloseTime:          "18:00",
		ResultTime:         "19:00",
		JodiMultiplier:     dec("95"),
		HarufMultiplier:    dec("9"),
		CrossingMultiplier: dec("95"),
	})
	require.NoError(t, err)
	return game
}

// createWallet opens a wallet with the given deposit and winning balances,
// both booked through the ledger.
func (f *fixture) createWallet(t *testing.T, userID int, deposit, winning string) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := f.wallets.CreateWallet(ctx, CreateWalletInput{
		UserId:         userID,
		Username:       "user",
		OpeningDeposit: dec(deposit),
	})
	require.NoError(t, err)
	if dec(winning).IsPositive() {
		_, err := f.ledger.ApplyEntries(ctx, fmt.Sprintf("seed:winning:%d", userID), []Entry{{
			WalletID: w.ID,
			Segment:  models.SegmentWinning,
			Amount:   dec(winning),
			Reason:   models.ReasonBetWin,
		}})
		require.NoError(t, err)
	}
	return f.reloadWallet(t, w.ID)
}

func (f *fixture) reloadWallet(t *testing.T, id uint) *models.Wallet {
	t.Helper()
	var w models.Wallet
	require.NoError(t, f.db.First(&w, id).Error)
	return &w
}

func (f *fixture) placeBet(t *testing.T, userID int, gameID uint, bt models.BetType, number string, stake string) *models.Bet {
	t.Helper()
	var pos models.HarufPosition
	if bt == models.BetTypeHaruf {
		pos = models.PositionLast
	}
	placed, err := f.bets.PlaceBet(context.Background(), PlaceBetInput{
		UserId:   userID,
		GameId:   gameID,
		GameDate: testDate,
		BetType:  bt,
		Number:   number,
		Position: pos,
		Stake:    dec(stake),
	})
	require.NoError(t, err)
	return &placed.Bet
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
