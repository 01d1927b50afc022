package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement-service/internal/database"
	"settlement-service/internal/models"
)

type WalletService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewWalletService(db *gorm.DB, ledger *LedgerService) *WalletService {
	return &WalletService{DB: db, Ledger: ledger}
}

type CreateWalletInput struct {
	UserId         int
	Username       string
	OpeningDeposit decimal.Decimal
}

// CreateWallet opens a wallet. An opening deposit is booked through the
// ledger like any other credit so the balance stays reconstructible.
func (s *WalletService) CreateWallet(ctx context.Context, in CreateWalletInput) (*models.Wallet, error) {
	if in.UserId <= 0 || in.Username == "" {
		return nil, fmt.Errorf("%w: user id and username are required", ErrInvalidAmount)
	}
	if in.OpeningDeposit.IsNegative() {
		return nil, fmt.Errorf("%w: opening deposit cannot be negative", ErrInvalidAmount)
	}
	if err := checkScale(in.OpeningDeposit, "opening deposit"); err != nil {
		return nil, err
	}

	wallet := models.Wallet{UserId: in.UserId, Username: in.Username}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&wallet).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrWalletExists
			}
			return err
		}
		if in.OpeningDeposit.IsPositive() {
			_, err := s.Ledger.ApplyEntriesTx(tx, openingRef(wallet.ID), []Entry{{
				WalletID: wallet.ID,
				Segment:  models.SegmentDeposit,
				Amount:   in.OpeningDeposit,
				Reason:   models.ReasonDepositCredit,
			}})
			if err != nil {
				return err
			}
		}
		return tx.First(&wallet, wallet.ID).Error
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"wallet_id": wallet.ID, "user_id": wallet.UserId}).Info("Wallet created")
	return &wallet, nil
}

func (s *WalletService) GetByUser(ctx context.Context, userID int) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// lockWallet reads a wallet row under FOR UPDATE so a debit plan made from it
// cannot be invalidated before the ledger applies it.
func lockWallet(tx *gorm.DB, walletID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&wallet, walletID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// checkScale rejects amounts finer than the two decimal places balances are
// stored with.
func checkScale(amount decimal.Decimal, name string) error {
	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: %s %s has more than 2 decimal places", ErrInvalidAmount, name, amount)
	}
	return nil
}

// planDebit splits amount across segments in the given order, draining each
// before moving to the next.
func planDebit(w models.Wallet, order []models.Segment, amount decimal.Decimal, reason models.LedgerReason) ([]Entry, error) {
	remaining := amount
	var entries []Entry
	for _, seg := range order {
		if !remaining.IsPositive() {
			break
		}
		available := w.Balance(seg)
		if !available.IsPositive() {
			continue
		}
		take := decimal.Min(available, remaining)
		entries = append(entries, Entry{WalletID: w.ID, Segment: seg, Amount: take.Neg(), Reason: reason})
		remaining = remaining.Sub(take)
	}
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: short by %s", ErrInsufficientFunds, remaining)
	}
	return entries, nil
}

// ParseSegments converts configured segment names, rejecting unknown ones.
func ParseSegments(names []string) ([]models.Segment, error) {
	out := make([]models.Segment, 0, len(names))
	for _, n := range names {
		seg := models.Segment(n)
		if seg.Column() == "" {
			return nil, fmt.Errorf("unknown wallet segment %q", n)
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one wallet segment is required")
	}
	return out, nil
}
