package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement-service/internal/models"
	"settlement-service/pkg/common"
)

// defaultStakeOrder is the segment order a stake is drawn from.
var defaultStakeOrder = []models.Segment{models.SegmentDeposit, models.SegmentWinning, models.SegmentBonus}

type BetStore struct {
	DB         *gorm.DB
	Ledger     *LedgerService
	Games      *GameService
	Matchers   *MatcherRegistry
	StakeOrder []models.Segment
	Now        func() time.Time
}

func NewBetStore(db *gorm.DB, ledger *LedgerService, games *GameService, matchers *MatcherRegistry) *BetStore {
	return &BetStore{
		DB:         db,
		Ledger:     ledger,
		Games:      games,
		Matchers:   matchers,
		StakeOrder: defaultStakeOrder,
		Now:        time.Now,
	}
}

type PlaceBetInput struct {
	UserId   int
	GameId   uint
	GameDate string
	BetType  models.BetType
	Number   string
	Position models.HarufPosition
	Stake    decimal.Decimal
}

type PlacedBet struct {
	Bet    models.Bet     `json:"bet"`
	Ledger *AppliedResult `json:"ledger"`
}

// PlaceBet records a bet and debits its stake in one transaction. Bets are
// only taken while the game-day window is open.
func (s *BetStore) PlaceBet(ctx context.Context, in PlaceBetInput) (*PlacedBet, error) {
	if !in.Stake.IsPositive() {
		return nil, fmt.Errorf("%w: stake must be positive", ErrInvalidAmount)
	}
	if err := checkScale(in.Stake, "stake"); err != nil {
		return nil, err
	}
	matcher, ok := s.Matchers.For(in.BetType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown bet type %q", ErrInvalidBet, in.BetType)
	}
	if err := matcher.ValidateBet(in.Number, in.Position); err != nil {
		return nil, err
	}
	if in.BetType != models.BetTypeHaruf {
		in.Position = ""
	}

	if in.GameDate == "" {
		in.GameDate = s.Now().In(s.Games.loc()).Format(dateLayout)
	} else if err := validDate(in.GameDate); err != nil {
		return nil, err
	}

	var placed PlacedBet
	err := inTx(ctx, s.DB, func(tx *gorm.DB) error {
		var game models.Game
		if err := tx.First(&game, in.GameId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGameNotFound
			}
			return err
		}
		if !game.Active || !game.Accepts(in.BetType) {
			return fmt.Errorf("%w: game %d does not take %s bets", ErrInvalidBet, game.ID, in.BetType)
		}
		if game.Type == models.GameTypeHaruf && in.Position != game.HarufPosition {
			return fmt.Errorf("%w: game %d only draws the %s digit", ErrInvalidBet, game.ID, game.HarufPosition)
		}

		// Held until commit; the clock is read only once the lock is ours.
		day, err := s.Games.lockDay(tx, game, in.GameDate)
		if err != nil {
			return err
		}
		now := s.Now()
		status := s.Games.statusOf(game, day, now)
		if status != models.GameStatusOpen {
			return fmt.Errorf("%w: game %d on %s is %s", ErrGameClosed, game.ID, in.GameDate, status)
		}

		var walletIDs []uint
		if err := tx.Model(&models.Wallet{}).Where("user_id = ?", in.UserId).Pluck("id", &walletIDs).Error; err != nil {
			return err
		}
		if len(walletIDs) == 0 {
			return ErrWalletNotFound
		}
		wallet, err := lockWallet(tx, walletIDs[0])
		if err != nil {
			return err
		}
		entries, err := planDebit(*wallet, s.StakeOrder, in.Stake, models.ReasonBetStake)
		if err != nil {
			return err
		}

		bet := models.Bet{
			UserId:   in.UserId,
			WalletId: wallet.ID,
			GameId:   game.ID,
			GameDate: in.GameDate,
			BetType:  in.BetType,
			Number:   in.Number,
			Position: in.Position,
			Stake:    in.Stake,
			Status:   models.BetStatusPending,
			PlacedAt: now,
		}
		if err := tx.Create(&bet).Error; err != nil {
			return err
		}
		applied, err := s.Ledger.ApplyEntriesTx(tx, BetRef(bet.ID), entries)
		if err != nil {
			return err
		}
		placed = PlacedBet{Bet: bet, Ledger: applied}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"bet_id":  placed.Bet.ID,
		"user_id": placed.Bet.UserId,
		"game_id": placed.Bet.GameId,
		"stake":   placed.Bet.Stake.String(),
	}).Info("Bet placed")
	return &placed, nil
}

// FindPendingBets loads the bets a declaration has to settle. The read locks
// the rows so it sees bets committed after the transaction began.
func (s *BetStore) FindPendingBets(tx *gorm.DB, gameID uint, date string) ([]models.Bet, error) {
	var bets []models.Bet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("game_id = ? AND game_date = ? AND status = ?", gameID, date, models.BetStatusPending).
		Order("id").
		Find(&bets).Error
	return bets, err
}

// Outcome is the settled state of one bet.
type Outcome struct {
	Status        models.BetStatus
	WinningAmount decimal.Decimal
}

// MarkSettled moves pending bets to their outcome. Bets already settled are
// left alone; the number of rows actually changed is returned.
func (s *BetStore) MarkSettled(tx *gorm.DB, outcomes map[uint]Outcome, at time.Time) (int, error) {
	changed := 0
	for betID, out := range outcomes {
		err := transitionOnce(tx, &models.Bet{}, betID, models.BetStatusPending, out.Status, map[string]interface{}{
			"winning_amount": out.WinningAmount,
			"settled_at":     at,
		})
		if errors.Is(err, errStaleTransition) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("settle bet %d: %w", betID, err)
		}
		changed++
	}
	return changed, nil
}

type BetFilter struct {
	UserId   int
	GameId   uint
	GameDate string
	Status   models.BetStatus
	Page     int
	Limit    int
}

func (s *BetStore) ListBets(ctx context.Context, f BetFilter) ([]models.Bet, int64, error) {
	f.Page, f.Limit = common.NormalizePage(f.Page, f.Limit)
	q := s.DB.WithContext(ctx).Model(&models.Bet{})
	if f.UserId > 0 {
		q = q.Where("user_id = ?", f.UserId)
	}
	if f.GameId > 0 {
		q = q.Where("game_id = ?", f.GameId)
	}
	if f.GameDate != "" {
		q = q.Where("game_date = ?", f.GameDate)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var bets []models.Bet
	err := q.Order("placed_at DESC").Order("id DESC").Scopes(common.Paginate(f.Page, f.Limit)).Find(&bets).Error
	return bets, total, err
}
