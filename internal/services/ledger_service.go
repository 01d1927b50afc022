package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"settlement-service/internal/database"
	"settlement-service/internal/models"
	"settlement-service/pkg/common"
)

// errBatchRace means another transaction claimed the same causal reference
// between our lookup and our insert.
var errBatchRace = errors.New("ledger batch claimed concurrently")

type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// Entry is one signed movement on one wallet segment.
type Entry struct {
	WalletID uint
	Segment  models.Segment
	Amount   decimal.Decimal
	Reason   models.LedgerReason
}

type WalletSnapshot struct {
	WalletID          uint            `json:"wallet_id"`
	DepositBalance    decimal.Decimal `json:"deposit_balance"`
	WinningBalance    decimal.Decimal `json:"winning_balance"`
	BonusBalance      decimal.Decimal `json:"bonus_balance"`
	CommissionBalance decimal.Decimal `json:"commission_balance"`
	Version           int             `json:"version"`
}

// AppliedResult is what a causal reference produced the first time it was
// applied. Replays return the stored copy.
type AppliedResult struct {
	BatchID   string               `json:"batch_id"`
	CausalRef string               `json:"causal_ref"`
	Reason    models.LedgerReason  `json:"reason"`
	Entries   []models.LedgerEntry `json:"entries"`
	Wallets   []WalletSnapshot     `json:"wallets"`
	Replayed  bool                 `json:"replayed"`
}

func BetRef(betID uint) string {
	return fmt.Sprintf("bet:%d", betID)
}

func RequestRef(requestID uint) string {
	return fmt.Sprintf("request:%d", requestID)
}

func openingRef(walletID uint) string {
	return fmt.Sprintf("wallet:%d:opening", walletID)
}

// ApplyEntries applies a batch in its own transaction. A causal reference is
// applied at most once; later calls get the original result back.
func (s *LedgerService) ApplyEntries(ctx context.Context, causalRef string, entries []Entry) (*AppliedResult, error) {
	var result *AppliedResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.ApplyEntriesTx(tx, causalRef, entries)
		return err
	})
	if errors.Is(err, errBatchRace) {
		return s.loadBatch(s.DB.WithContext(ctx), causalRef, entries[0].Reason)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyEntriesTx applies a batch inside the caller's transaction so it commits
// or rolls back together with the caller's state change.
func (s *LedgerService) ApplyEntriesTx(tx *gorm.DB, causalRef string, entries []Entry) (*AppliedResult, error) {
	if err := validateEntries(causalRef, entries); err != nil {
		return nil, err
	}
	reason := entries[0].Reason

	if prior, err := s.loadBatch(tx, causalRef, reason); err == nil {
		return prior, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	batch := models.LedgerBatch{ID: uuid.NewString(), CausalRef: causalRef, Reason: reason}
	if err := tx.Create(&batch).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errBatchRace
		}
		return nil, fmt.Errorf("claim ledger batch: %w", err)
	}

	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	// Lock wallets in id order so two batches touching the same wallets
	// cannot deadlock each other.
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].WalletID != ordered[j].WalletID {
			return ordered[i].WalletID < ordered[j].WalletID
		}
		return ordered[i].Segment < ordered[j].Segment
	})

	for _, e := range ordered {
		if err := applyOne(tx, e); err != nil {
			return nil, err
		}
	}

	walletIDs := make([]uint, 0, len(ordered))
	for _, e := range ordered {
		if len(walletIDs) == 0 || walletIDs[len(walletIDs)-1] != e.WalletID {
			walletIDs = append(walletIDs, e.WalletID)
		}
	}
	var wallets []models.Wallet
	if err := tx.Where("id IN ?", walletIDs).Order("id").Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("reload wallets: %w", err)
	}
	byID := make(map[uint]models.Wallet, len(wallets))
	for _, w := range wallets {
		byID[w.ID] = w
	}

	rows := make([]models.LedgerEntry, len(ordered))
	running := make(map[string]decimal.Decimal)
	for i := len(ordered) - 1; i >= 0; i-- {
		e := ordered[i]
		key := fmt.Sprintf("%d/%s", e.WalletID, e.Segment)
		after, ok := running[key]
		if !ok {
			after = byID[e.WalletID].Balance(e.Segment)
		}
		rows[i] = models.LedgerEntry{
			ID:           uuid.NewString(),
			BatchId:      batch.ID,
			WalletId:     e.WalletID,
			Segment:      e.Segment,
			Amount:       e.Amount,
			Reason:       e.Reason,
			CausalRef:    causalRef,
			BalanceAfter: after,
		}
		running[key] = after.Sub(e.Amount)
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("write ledger entries: %w", err)
	}

	result := &AppliedResult{
		BatchID:   batch.ID,
		CausalRef: causalRef,
		Reason:    reason,
		Entries:   rows,
	}
	for _, w := range wallets {
		result.Wallets = append(result.Wallets, snapshotOf(w))
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := tx.Model(&models.LedgerBatch{}).Where("id = ?", batch.ID).Update("result", datatypes.JSON(raw)).Error; err != nil {
		return nil, fmt.Errorf("store batch result: %w", err)
	}

	log.WithFields(log.Fields{
		"causal_ref": causalRef,
		"reason":     reason,
		"entries":    len(rows),
		"batch_id":   batch.ID,
	}).Info("Ledger batch applied")
	return result, nil
}

func validateEntries(causalRef string, entries []Entry) error {
	if causalRef == "" {
		return fmt.Errorf("%w: causal reference is required", ErrInvalidEntries)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: at least one entry is required", ErrInvalidEntries)
	}
	reason := entries[0].Reason
	if !reason.Valid() {
		return fmt.Errorf("%w: unknown reason %q", ErrInvalidEntries, reason)
	}
	for _, e := range entries {
		if e.Reason != reason {
			return fmt.Errorf("%w: entries of one batch must share a reason", ErrInvalidEntries)
		}
		if e.Segment.Column() == "" {
			return fmt.Errorf("%w: unknown segment %q", ErrInvalidEntries, e.Segment)
		}
		if e.Amount.IsZero() {
			return fmt.Errorf("%w: zero amount", ErrInvalidEntries)
		}
		if e.WalletID == 0 {
			return fmt.Errorf("%w: wallet is required", ErrInvalidEntries)
		}
	}
	return nil
}

// applyOne moves a segment with a single conditional update. A debit only
// matches the row while the segment stays non-negative.
func applyOne(tx *gorm.DB, e Entry) error {
	col := e.Segment.Column()
	updates := map[string]interface{}{
		col:       gorm.Expr(col+" + CAST(? AS DECIMAL(20,2))", e.Amount),
		"version": gorm.Expr("version + 1"),
	}
	if counter := e.Reason.CounterColumn(); counter != "" {
		updates[counter] = gorm.Expr(counter+" + CAST(? AS DECIMAL(20,2))", e.Amount.Abs())
	}

	q := tx.Model(&models.Wallet{}).Where("id = ?", e.WalletID)
	if e.Amount.IsNegative() {
		q = q.Where(col+" + CAST(? AS DECIMAL(20,2)) >= 0", e.Amount)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update wallet %d: %w", e.WalletID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.Wallet{}).Where("id = ?", e.WalletID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: id %d", ErrWalletNotFound, e.WalletID)
	}
	return fmt.Errorf("%w: wallet %d segment %s", ErrInsufficientFunds, e.WalletID, e.Segment)
}

func (s *LedgerService) loadBatch(db *gorm.DB, causalRef string, reason models.LedgerReason) (*AppliedResult, error) {
	var batch models.LedgerBatch
	res := db.Where("causal_ref = ? AND reason = ?", causalRef, reason).Limit(1).Find(&batch)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	var result AppliedResult
	if err := json.Unmarshal(batch.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: batch %s has no stored result", ErrInsufficientSystemState, batch.ID)
	}
	result.Replayed = true
	return &result, nil
}

func snapshotOf(w models.Wallet) WalletSnapshot {
	return WalletSnapshot{
		WalletID:          w.ID,
		DepositBalance:    w.DepositBalance,
		WinningBalance:    w.WinningBalance,
		BonusBalance:      w.BonusBalance,
		CommissionBalance: w.CommissionBalance,
		Version:           w.Version,
	}
}

// SegmentDrift is a segment whose stored balance differs from its ledger sum.
type SegmentDrift struct {
	Segment models.Segment  `json:"segment"`
	Stored  decimal.Decimal `json:"stored"`
	Ledger  decimal.Decimal `json:"ledger"`
}

type Reconciliation struct {
	WalletID uint           `json:"wallet_id"`
	Drift    []SegmentDrift `json:"drift"`
}

func (r Reconciliation) Balanced() bool {
	return len(r.Drift) == 0
}

// Reconcile rebuilds every segment of a wallet from its ledger entries and
// compares the result with the stored balances.
func (s *LedgerService) Reconcile(ctx context.Context, walletID uint) (*Reconciliation, error) {
	var wallet models.Wallet
	if err := s.DB.WithContext(ctx).First(&wallet, walletID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	type segmentSum struct {
		Segment models.Segment
		Total   decimal.Decimal
	}
	var sums []segmentSum
	err := s.DB.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("segment, COALESCE(SUM(amount), 0) AS total").
		Where("wallet_id = ?", walletID).
		Group("segment").
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	fromLedger := make(map[models.Segment]decimal.Decimal)
	for _, row := range sums {
		fromLedger[row.Segment] = row.Total
	}

	rec := &Reconciliation{WalletID: walletID}
	for _, seg := range models.Segments {
		stored := wallet.Balance(seg)
		rebuilt := fromLedger[seg]
		if !stored.Equal(rebuilt) {
			rec.Drift = append(rec.Drift, SegmentDrift{Segment: seg, Stored: stored, Ledger: rebuilt})
		}
	}
	if !rec.Balanced() {
		log.WithFields(log.Fields{"wallet_id": walletID, "drift": rec.Drift}).Error("Wallet balance drifted from ledger")
	}
	return rec, nil
}

// ReconcileAll walks every wallet and returns the ones that drifted.
func (s *LedgerService) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	var ids []uint
	if err := s.DB.WithContext(ctx).Model(&models.Wallet{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	var drifted []Reconciliation
	for _, id := range ids {
		rec, err := s.Reconcile(ctx, id)
		if err != nil {
			return drifted, err
		}
		if !rec.Balanced() {
			drifted = append(drifted, *rec)
		}
	}
	log.WithFields(log.Fields{"wallets": len(ids), "drifted": len(drifted)}).Info("Ledger reconciliation finished")
	return drifted, nil
}

// StartScheduler runs ReconcileAll on the given cron spec and logs every
// drifted wallet.
func (s *LedgerService) StartScheduler(spec string, loc *time.Location) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		drifted, err := s.ReconcileAll(context.Background())
		if err != nil {
			log.WithError(err).Error("Ledger reconciliation failed")
		}
		for _, rec := range drifted {
			log.WithFields(log.Fields{"wallet_id": rec.WalletID, "drift": rec.Drift}).Warn("Wallet balance drifted from ledger")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule ledger reconciliation: %w", err)
	}
	c.Start()
	log.WithField("spec", spec).Info("Ledger reconcile scheduler started")
	return c, nil
}

// ListEntries returns a wallet's ledger, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, walletID uint, page, limit int) ([]models.LedgerEntry, int64, error) {
	page, limit = common.NormalizePage(page, limit)
	q := s.DB.WithContext(ctx).Model(&models.LedgerEntry{}).Where("wallet_id = ?", walletID).Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.LedgerEntry
	err := q.Order("created_at DESC").Order("id").Scopes(common.Paginate(page, limit)).Find(&entries).Error
	return entries, total, err
}
