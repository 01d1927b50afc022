package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"settlement-service/internal/database"
	"settlement-service/internal/models"
	"settlement-service/pkg/common"
)

// SettlementService declares game results and pays the winning bets.
type SettlementService struct {
	DB         *gorm.DB
	Games      *GameService
	Bets       *BetStore
	Ledger     *LedgerService
	Matchers   *MatcherRegistry
	Commission CommissionPolicy
	Dispatcher Dispatcher
	Now        func() time.Time
}

func NewSettlementService(db *gorm.DB, games *GameService, bets *BetStore, ledger *LedgerService, matchers *MatcherRegistry, commission CommissionPolicy) *SettlementService {
	return &SettlementService{
		DB:         db,
		Games:      games,
		Bets:       bets,
		Ledger:     ledger,
		Matchers:   matchers,
		Commission: commission,
		Dispatcher: noopDispatcher{},
		Now:        time.Now,
	}
}

type DeclareResultInput struct {
	GameID      uint
	ResultDate  string
	ResultValue string
	DeclaredBy  string
}

type WinnerPayout struct {
	BetID    uint            `json:"bet_id"`
	UserId   int             `json:"user_id"`
	WalletId uint            `json:"wallet_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type SettlementReport struct {
	ResultID           uint            `json:"result_id"`
	GameID             uint            `json:"game_id"`
	ResultDate         string          `json:"result_date"`
	ResultValue        string          `json:"result_value"`
	TotalBets          int             `json:"total_bets"`
	WinnersCount       int             `json:"winners_count"`
	TotalBetAmount     decimal.Decimal `json:"total_bet_amount"`
	TotalWinningAmount decimal.Decimal `json:"total_winning_amount"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	NetProfit          decimal.Decimal `json:"net_profit"`
	DeclaredBy         string          `json:"declared_by"`
	DeclaredAt         time.Time       `json:"declared_at"`
	Winners            []WinnerPayout  `json:"winners"`
}

// DeclareResult records the result of a game for a date and settles every
// pending bet against it. All of it commits together or not at all; the
// unique (game, date) index on results decides concurrent declarations.
func (s *SettlementService) DeclareResult(ctx context.Context, in DeclareResultInput) (*SettlementReport, error) {
	in.DeclaredBy = strings.TrimSpace(in.DeclaredBy)
	if in.DeclaredBy == "" {
		return nil, ErrActorRequired
	}
	if err := validDate(in.ResultDate); err != nil {
		return nil, err
	}
	game, err := s.Games.GetGame(ctx, in.GameID)
	if err != nil {
		return nil, err
	}
	result, err := s.Matchers.ParseResult(*game, in.ResultValue)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	report := &SettlementReport{
		GameID:      game.ID,
		ResultDate:  in.ResultDate,
		ResultValue: result.Value,
		DeclaredBy:  in.DeclaredBy,
		DeclaredAt:  now,
	}

	err = inTx(ctx, s.DB, func(tx *gorm.DB) error {
		day, err := s.Games.closedDay(tx, *game, in.ResultDate, now)
		if err != nil {
			return err
		}

		row := models.GameResult{
			GameId:      game.ID,
			ResultDate:  in.ResultDate,
			ResultValue: result.Value,
			Status:      models.ResultStatusPending,
		}
		if err := tx.Create(&row).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrResultAlreadyDeclared
			}
			return fmt.Errorf("insert result: %w", err)
		}
		report.ResultID = row.ID

		bets, err := s.Bets.FindPendingBets(tx, game.ID, in.ResultDate)
		if err != nil {
			return fmt.Errorf("load pending bets: %w", err)
		}

		outcomes, err := s.evaluate(*game, result, bets, report)
		if err != nil {
			return err
		}

		settled, err := s.Bets.MarkSettled(tx, outcomes, now)
		if err != nil {
			return err
		}
		if settled != len(bets) {
			return fmt.Errorf("%w: settled %d of %d pending bets", ErrInsufficientSystemState, settled, len(bets))
		}

		for _, w := range report.Winners {
			applied, err := s.Ledger.ApplyEntriesTx(tx, BetRef(w.BetID), []Entry{{
				WalletID: w.WalletId,
				Segment:  models.SegmentWinning,
				Amount:   w.Amount,
				Reason:   models.ReasonBetWin,
			}})
			if err != nil {
				return err
			}
			if applied.Replayed {
				return fmt.Errorf("%w: bet %d was already paid", ErrInsufficientSystemState, w.BetID)
			}
		}

		report.PlatformCommission = s.Commission.Commission(report.TotalBetAmount, report.TotalWinningAmount)
		report.NetProfit = report.TotalBetAmount.Sub(report.TotalWinningAmount)

		err = transitionOnce(tx, &models.GameResult{}, row.ID, models.ResultStatusPending, models.ResultStatusDeclared, map[string]interface{}{
			"total_bets":           report.TotalBets,
			"winners_count":        report.WinnersCount,
			"total_bet_amount":     report.TotalBetAmount,
			"total_winning_amount": report.TotalWinningAmount,
			"platform_commission":  report.PlatformCommission,
			"net_profit":           report.NetProfit,
			"declared_by":          report.DeclaredBy,
			"declared_at":          now,
		})
		if errors.Is(err, errStaleTransition) {
			return fmt.Errorf("%w: result %d left pending", ErrInsufficientSystemState, row.ID)
		}
		if err != nil {
			return err
		}
		return s.Games.markDeclared(tx, *game, day, now)
	})
	if err != nil {
		log.WithFields(log.Fields{
			"game_id":     in.GameID,
			"result_date": in.ResultDate,
			"code":        CodeOf(err),
		}).WithError(err).Warn("Result declaration failed")
		return nil, err
	}

	log.WithFields(log.Fields{
		"result_id":            report.ResultID,
		"game_id":              report.GameID,
		"result_date":          report.ResultDate,
		"result":               report.ResultValue,
		"total_bets":           report.TotalBets,
		"winners":              report.WinnersCount,
		"total_winning_amount": report.TotalWinningAmount.String(),
		"net_profit":           report.NetProfit.String(),
		"declared_by":          report.DeclaredBy,
	}).Info("Result declared")

	s.afterCommit(ctx, report)
	return report, nil
}

// evaluate matches every bet against the result and fills the report's
// aggregates. A bet that could never have been accepted means the pool is
// corrupt and nothing is settled.
func (s *SettlementService) evaluate(game models.Game, result Result, bets []models.Bet, report *SettlementReport) (map[uint]Outcome, error) {
	outcomes := make(map[uint]Outcome, len(bets))
	report.TotalBets, report.WinnersCount, report.Winners = 0, 0, nil
	report.TotalBetAmount = decimal.Zero
	report.TotalWinningAmount = decimal.Zero

	for _, bet := range bets {
		matcher, ok := s.Matchers.For(bet.BetType)
		if !ok {
			return nil, fmt.Errorf("%w: bet %d has unknown type %q", ErrInsufficientSystemState, bet.ID, bet.BetType)
		}
		if err := matcher.ValidateBet(bet.Number, bet.Position); err != nil {
			return nil, fmt.Errorf("%w: bet %d: %v", ErrInsufficientSystemState, bet.ID, err)
		}
		if !bet.Stake.IsPositive() {
			return nil, fmt.Errorf("%w: bet %d has stake %s", ErrInsufficientSystemState, bet.ID, bet.Stake)
		}

		report.TotalBets++
		report.TotalBetAmount = report.TotalBetAmount.Add(bet.Stake)

		if !matcher.Match(bet, result) {
			outcomes[bet.ID] = Outcome{Status: models.BetStatusLost, WinningAmount: decimal.Zero}
			continue
		}
		win := bet.Stake.Mul(game.Multiplier(bet.BetType)).Round(2)
		outcomes[bet.ID] = Outcome{Status: models.BetStatusWon, WinningAmount: win}
		report.WinnersCount++
		report.TotalWinningAmount = report.TotalWinningAmount.Add(win)
		report.Winners = append(report.Winners, WinnerPayout{
			BetID:    bet.ID,
			UserId:   bet.UserId,
			WalletId: bet.WalletId,
			Amount:   win,
		})
	}
	sort.Slice(report.Winners, func(i, j int) bool { return report.Winners[i].BetID < report.Winners[j].BetID })
	return outcomes, nil
}

func (s *SettlementService) afterCommit(ctx context.Context, report *SettlementReport) {
	if s.Dispatcher == nil {
		return
	}
	if err := s.Dispatcher.ResultDeclared(ctx, report.ResultID); err != nil {
		log.WithError(err).WithField("result_id", report.ResultID).Error("Failed to enqueue result fan-out")
	}
	if len(report.Winners) == 0 {
		return
	}
	seen := make(map[uint]bool)
	var wallets []uint
	for _, w := range report.Winners {
		if !seen[w.WalletId] {
			seen[w.WalletId] = true
			wallets = append(wallets, w.WalletId)
		}
	}
	if err := s.Dispatcher.ReconcileWallets(ctx, wallets...); err != nil {
		log.WithError(err).WithField("result_id", report.ResultID).Error("Failed to enqueue wallet reconcile")
	}
}

type ResultFilter struct {
	GameId uint
	Date   string
	Page   int
	Limit  int
}

func (s *SettlementService) ListResults(ctx context.Context, f ResultFilter) ([]models.GameResult, int64, error) {
	f.Page, f.Limit = common.NormalizePage(f.Page, f.Limit)
	q := s.DB.WithContext(ctx).Model(&models.GameResult{}).Where("status = ?", models.ResultStatusDeclared)
	if f.GameId > 0 {
		q = q.Where("game_id = ?", f.GameId)
	}
	if f.Date != "" {
		q = q.Where("result_date = ?", f.Date)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var results []models.GameResult
	err := q.Order("result_date DESC").Order("id DESC").Scopes(common.Paginate(f.Page, f.Limit)).Find(&results).Error
	return results, total, err
}

func (s *SettlementService) GetResult(ctx context.Context, id uint) (*models.GameResult, error) {
	var result models.GameResult
	if err := s.DB.WithContext(ctx).First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return &result, nil
}

// WinnerWallets returns the wallets paid by a declared result.
func (s *SettlementService) WinnerWallets(ctx context.Context, resultID uint) ([]uint, error) {
	result, err := s.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	var ids []uint
	err = s.DB.WithContext(ctx).Model(&models.Bet{}).
		Where("game_id = ? AND game_date = ? AND status = ?", result.GameId, result.ResultDate, models.BetStatusWon).
		Distinct("wallet_id").
		Order("wallet_id").
		Pluck("wallet_id", &ids).Error
	return ids, err
}
