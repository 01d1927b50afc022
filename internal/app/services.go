package app

import (
	"gorm.io/gorm"

	"settlement-service/internal/config"
	"settlement-service/internal/services"
)

// Services is every domain service the HTTP, gRPC and worker processes share.
type Services struct {
	Ledger     *services.LedgerService
	Wallets    *services.WalletService
	Games      *services.GameService
	Bets       *services.BetStore
	Settlement *services.SettlementService
	Approvals  *services.ApprovalService
}

// NewServices builds the service graph from configuration. dispatcher may be
// nil, in which case post-commit follow-ups are dropped.
func NewServices(cfg *config.Config, db *gorm.DB, dispatcher services.Dispatcher) (*Services, error) {
	withdrawalOrder, err := services.ParseSegments(cfg.WithdrawalSegments)
	if err != nil {
		return nil, err
	}

	ledger := services.NewLedgerService(db)
	games := services.NewGameService(db, cfg.Location())
	matchers := services.NewMatcherRegistry(services.PairPermutations{IncludeDoubles: cfg.CrossingIncludeDoubles})
	bets := services.NewBetStore(db, ledger, games, matchers)
	settlement := services.NewSettlementService(db, games, bets, ledger, matchers, services.RateCommission{Rate: cfg.CommissionRate})
	approvals := services.NewApprovalService(db, ledger, withdrawalOrder, cfg.MinWithdrawal, cfg.MaxWithdrawal)
	if dispatcher != nil {
		settlement.Dispatcher = dispatcher
		approvals.Dispatcher = dispatcher
	}

	return &Services{
		Ledger:     ledger,
		Wallets:    services.NewWalletService(db, ledger),
		Games:      games,
		Bets:       bets,
		Settlement: settlement,
		Approvals:  approvals,
	}, nil
}
