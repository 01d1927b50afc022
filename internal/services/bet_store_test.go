package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-service/internal/models"
)

func TestPlaceBet_DebitsStake(t *testing.T) {
	f := newFixture(t)
	game := f.createGame(t, "Gali", models.GameTypeJodi)
	w := f.createWallet(t, 1, "60", "100")

	placed, err := f.bets.PlaceBet(context.Background(), PlaceBetInput{
		UserId:   1,
		GameId:   game.ID,
		GameDate: testDate,
		BetType:  models.BetTypeJodi,
		Number:   "56",
		Stake:    dec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusPending, placed.Bet.Status)
	assert.Equal(t, BetRef(placed.Bet.ID), placed.Ledger.CausalRef)

	reloaded := f.reloadWallet(t, w.ID)
	assertDecimal(t, "0", reloaded.DepositBalance)
	assertDecimal(t, "60", reloaded.WinningBalance)
	assertDecimal(t, "100", reloaded.TotalBets)
}

func TestPlaceBet_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jodi := f.createGame(t, "Gali", models.GameTypeJodi)
	haruf := f.createGame(t, "Single", models.GameTypeHaruf)
	f.createWallet(t, 1, "50", "0")

	base := PlaceBetInput{UserId: 1, GameId: jodi.ID, GameDate: testDate, BetType: models.BetTypeJodi, Number: "12", Stake: dec("10")}

	tests := []struct {
		name   string
		mutate func(*PlaceBetInput)
		want   error
	}{
		{"zero stake", func(in *PlaceBetInput) { in.Stake = dec("0") }, ErrInvalidAmount},
		{"stake below a paisa", func(in *PlaceBetInput) { in.Stake = dec("10.005") }, ErrInvalidAmount},
		{"bad number", func(in *PlaceBetInput) { in.Number = "123" }, ErrInvalidBet},
		{"unknown type", func(in *PlaceBetInput) { in.BetType = "panna" }, ErrInvalidBet},
		{"type not offered", func(in *PlaceBetInput) { in.GameId = haruf.ID }, ErrInvalidBet},
		{"haruf side not drawn", func(in *PlaceBetInput) {
			in.GameId, in.BetType, in.Number, in.Position = haruf.ID, models.BetTypeHaruf, "5", models.PositionFirst
		}, ErrInvalidBet},
		{"bad date", func(in *PlaceBetInput) { in.GameDate = "10/03/2026" }, ErrInvalidDate},
		{"unknown game", func(in *PlaceBetInput) { in.GameId = 999 }, ErrGameNotFound},
		{"no wallet", func(in *PlaceBetInput) { in.UserId = 2 }, ErrWalletNotFound},
		{"over balance", func(in *PlaceBetInput) { in.Stake = dec("51") }, ErrInsufficientFunds},
		{"window not open", func(in *PlaceBetInput) { in.GameDate = "2026-03-11" }, ErrGameClosed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := f.bets.PlaceBet(ctx, in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Bet{}).Count(&count).Error)
	assert.Zero(t, count)

	f.clock.Set(afterWindow)
	_, err := f.bets.PlaceBet(ctx, base)
	require.ErrorIs(t, err, ErrGameClosed)
}

func TestPlaceBet_HarufGameDrawnSide(t *testing.T) {
	f := newFixture(t)
	haruf := f.createGame(t, "Single", models.GameTypeHaruf)
	require.Equal(t, models.PositionLast, haruf.HarufPosition)
	f.createWallet(t, 1, "50", "0")

	bet := f.placeBet(t, 1, haruf.ID, models.BetTypeHaruf, "5", "10")
	assert.Equal(t, models.PositionLast, bet.Position)
	assertDecimal(t, "10.5", f.placeBet(t, 1, haruf.ID, models.BetTypeHaruf, "6", "10.5").Stake)
}

func TestPlaceBet_ReadsGameDayUnderLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	game := f.createGame(t, "Gali", models.GameTypeJodi)
	w := f.createWallet(t, 1, "100", "0")

	f.placeBet(t, 1, game.ID, models.BetTypeJodi, "12", "10")
	days, err := f.games.ListDays(ctx, game.ID, 10)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, testDate, days[0].GameDate)

	// A declared day refuses bets even while the clock says open.
	require.NoError(t, f.db.Model(&models.GameDay{}).Where("id = ?", days[0].ID).Update("status", models.GameStatusResultDeclared).Error)
	_, err = f.bets.PlaceBet(ctx, PlaceBetInput{UserId: 1, GameId: game.ID, GameDate: testDate, BetType: models.BetTypeJodi, Number: "12", Stake: dec("10")})
	require.ErrorIs(t, err, ErrGameClosed)
	assertDecimal(t, "90", f.reloadWallet(t, w.ID).DepositBalance)
}

func TestMarkSettled_OnlyMovesPendingBets(t *testing.T) {
	f := newFixture(t)
	game := f.createGame(t, "Gali", models.GameTypeJodi)
	f.createWallet(t, 1, "1000", "0")
	a := f.placeBet(t, 1, game.ID, models.BetTypeJodi, "11", "10")
	b := f.placeBet(t, 1, game.ID, models.BetTypeJodi, "22", "10")

	at := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	outcomes := map[uint]Outcome{
		a.ID: {Status: models.BetStatusWon, WinningAmount: dec("950")},
		b.ID: {Status: models.BetStatusLost, WinningAmount: dec("0")},
	}
	changed, err := f.bets.MarkSettled(f.db, outcomes, at)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	changed, err = f.bets.MarkSettled(f.db, outcomes, at)
	require.NoError(t, err)
	assert.Zero(t, changed)

	pending, err := f.bets.FindPendingBets(f.db, game.ID, testDate)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var won models.Bet
	require.NoError(t, f.db.First(&won, a.ID).Error)
	assert.Equal(t, models.BetStatusWon, won.Status)
	assertDecimal(t, "950", won.WinningAmount)
	require.NotNil(t, won.SettledAt)
}

func TestListBets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	game := f.createGame(t, "Gali", models.GameTypeJodi)
	f.createWallet(t, 1, "1000", "0")
	f.createWallet(t, 2, "1000", "0")
	f.placeBet(t, 1, game.ID, models.BetTypeJodi, "11", "10")
	f.placeBet(t, 1, game.ID, models.BetTypeHaruf, "1", "10")
	f.placeBet(t, 2, game.ID, models.BetTypeCrossing, "12", "10")

	bets, total, err := f.bets.ListBets(ctx, BetFilter{UserId: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, bets, 2)

	bets, total, err = f.bets.ListBets(ctx, BetFilter{GameId: game.ID, GameDate: testDate, Status: models.BetStatusPending, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, bets, 2)
}
