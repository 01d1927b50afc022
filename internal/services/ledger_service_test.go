package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement-service/internal/models"
)

func TestApplyEntries_ReplayReturnsStoredResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWallet(t, 1, "0", "0")

	entries := []Entry{{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("500"), Reason: models.ReasonDepositCredit}}
	first, err := f.ledger.ApplyEntries(ctx, "request:77", entries)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	require.Len(t, first.Entries, 1)
	assertDecimal(t, "500", first.Entries[0].BalanceAfter)

	second, err := f.ledger.ApplyEntries(ctx, "request:77", entries)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.BatchID, second.BatchID)

	reloaded := f.reloadWallet(t, w.ID)
	assertDecimal(t, "500", reloaded.DepositBalance)
	assertDecimal(t, "500", reloaded.TotalDeposits)

	var count int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).Where("causal_ref = ?", "request:77").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplyEntries_SameRefDifferentReasonIsSeparateBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWallet(t, 1, "1000", "0")

	_, err := f.ledger.ApplyEntries(ctx, BetRef(9), []Entry{{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("-100"), Reason: models.ReasonBetStake}})
	require.NoError(t, err)
	win, err := f.ledger.ApplyEntries(ctx, BetRef(9), []Entry{{WalletID: w.ID, Segment: models.SegmentWinning, Amount: dec("950"), Reason: models.ReasonBetWin}})
	require.NoError(t, err)
	assert.False(t, win.Replayed)

	reloaded := f.reloadWallet(t, w.ID)
	assertDecimal(t, "900", reloaded.DepositBalance)
	assertDecimal(t, "950", reloaded.WinningBalance)
	assertDecimal(t, "100", reloaded.TotalBets)
	assertDecimal(t, "950", reloaded.TotalWinnings)
}

func TestApplyEntries_InsufficientFundsRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payer := f.createWallet(t, 1, "100", "0")
	payee := f.createWallet(t, 2, "0", "0")

	_, err := f.ledger.ApplyEntries(ctx, "transfer:1", []Entry{
		{WalletID: payee.ID, Segment: models.SegmentDeposit, Amount: dec("200"), Reason: models.ReasonDepositCredit},
		{WalletID: payer.ID, Segment: models.SegmentDeposit, Amount: dec("-200"), Reason: models.ReasonDepositCredit},
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, KindResource, KindOf(err))

	assertDecimal(t, "100", f.reloadWallet(t, payer.ID).DepositBalance)
	assertDecimal(t, "0", f.reloadWallet(t, payee.ID).DepositBalance)

	var batches int64
	require.NoError(t, f.db.Model(&models.LedgerBatch{}).Where("causal_ref = ?", "transfer:1").Count(&batches).Error)
	assert.Zero(t, batches)
}

func TestApplyEntries_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWallet(t, 1, "100", "0")

	tests := []struct {
		name    string
		ref     string
		entries []Entry
	}{
		{name: "no entries", ref: "x:1"},
		{name: "no ref", entries: []Entry{{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("1"), Reason: models.ReasonDepositCredit}}},
		{name: "zero amount", ref: "x:2", entries: []Entry{{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("0"), Reason: models.ReasonDepositCredit}}},
		{name: "unknown segment", ref: "x:3", entries: []Entry{{WalletID: w.ID, Segment: "vault", Amount: dec("1"), Reason: models.ReasonDepositCredit}}},
		{name: "unknown reason", ref: "x:4", entries: []Entry{{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("1"), Reason: "gift"}}},
		{name: "mixed reasons", ref: "x:5", entries: []Entry{
			{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("1"), Reason: models.ReasonDepositCredit},
			{WalletID: w.ID, Segment: models.SegmentWinning, Amount: dec("1"), Reason: models.ReasonBetWin},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.ApplyEntries(ctx, tc.ref, tc.entries)
			require.ErrorIs(t, err, ErrInvalidEntries)
		})
	}
}

func TestApplyEntries_UnknownWallet(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.ApplyEntries(context.Background(), "x:1", []Entry{
		{WalletID: 404, Segment: models.SegmentDeposit, Amount: dec("10"), Reason: models.ReasonDepositCredit},
	})
	require.ErrorIs(t, err, ErrWalletNotFound)
}

func TestApplyEntries_ConcurrentCreditsAllLand(t *testing.T) {
	f := newFixture(t)
	w := f.createWallet(t, 1, "0", "0")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ledger.ApplyEntries(context.Background(), fmt.Sprintf("request:%d", i+1), []Entry{
				{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("10"), Reason: models.ReasonDepositCredit},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	reloaded := f.reloadWallet(t, w.ID)
	assertDecimal(t, "200", reloaded.DepositBalance)
	assert.Equal(t, w.Version+workers, reloaded.Version)
}

func TestApplyEntries_ConcurrentSameRefAppliesOnce(t *testing.T) {
	f := newFixture(t)
	w := f.createWallet(t, 1, "0", "0")

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	replayed := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.ledger.ApplyEntries(context.Background(), "request:1", []Entry{
				{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("250"), Reason: models.ReasonDepositCredit},
			})
			if !assert.NoError(t, err) {
				return
			}
			if res.Replayed {
				mu.Lock()
				replayed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers-1, replayed)
	assertDecimal(t, "250", f.reloadWallet(t, w.ID).DepositBalance)
}

func TestApplyEntries_DebitAcrossSegmentsRecordsBalanceAfter(t *testing.T) {
	f := newFixture(t)
	w := f.createWallet(t, 1, "300", "200")

	res, err := f.ledger.ApplyEntries(context.Background(), "request:5", []Entry{
		{WalletID: w.ID, Segment: models.SegmentWinning, Amount: dec("-200"), Reason: models.ReasonWithdrawalDebit},
		{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("-50"), Reason: models.ReasonWithdrawalDebit},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	after := map[models.Segment]decimal.Decimal{}
	for _, e := range res.Entries {
		after[e.Segment] = e.BalanceAfter
	}
	assertDecimal(t, "0", after[models.SegmentWinning])
	assertDecimal(t, "250", after[models.SegmentDeposit])
	assertDecimal(t, "250", f.reloadWallet(t, w.ID).TotalWithdrawals)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWallet(t, 1, "500", "120")

	rec, err := f.ledger.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced())

	require.NoError(t, f.db.Model(&models.Wallet{}).Where("id = ?", w.ID).UpdateColumn("bonus_balance", 75).Error)

	rec, err = f.ledger.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, rec.Drift, 1)
	assert.Equal(t, models.SegmentBonus, rec.Drift[0].Segment)
	assertDecimal(t, "75", rec.Drift[0].Stored)
	assertDecimal(t, "0", rec.Drift[0].Ledger)

	drifted, err := f.ledger.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, drifted, 1)
	assert.Equal(t, w.ID, drifted[0].WalletID)

	_, err = f.ledger.Reconcile(ctx, 999)
	require.ErrorIs(t, err, ErrWalletNotFound)
}

func TestListEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWallet(t, 1, "100", "0")
	for i := 0; i < 4; i++ {
		_, err := f.ledger.ApplyEntries(ctx, fmt.Sprintf("request:%d", i+1), []Entry{
			{WalletID: w.ID, Segment: models.SegmentDeposit, Amount: dec("10"), Reason: models.ReasonDepositCredit},
		})
		require.NoError(t, err)
	}

	entries, total, err := f.ledger.ListEntries(ctx, w.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, entries, 3)

	entries, _, err = f.ledger.ListEntries(ctx, w.ID, 2, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLedgerStartScheduler(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.StartScheduler("61 * * * *", time.UTC)
	require.Error(t, err)

	c, err := f.ledger.StartScheduler("30 3 * * *", time.UTC)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	c.Stop()
}
