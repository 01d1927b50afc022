package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"settlement-service/internal/services"
)

type Worker struct {
	Ledger     *services.LedgerService
	Settlement *services.SettlementService
	Dispatcher *Dispatcher
}

func NewWorker(ledger *services.LedgerService, settlement *services.SettlementService, dispatcher *Dispatcher) *Worker {
	return &Worker{
		Ledger:     ledger,
		Settlement: settlement,
		Dispatcher: dispatcher,
	}
}

// HandleReconcileWallets rebuilds each wallet from its ledger. Drift is
// logged, not repaired; fixing balances is an operator decision.
func (w *Worker) HandleReconcileWallets(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	for _, id := range p.WalletIDs {
		rec, err := w.Ledger.Reconcile(ctx, id)
		if err != nil {
			if services.KindOf(err) == services.KindNotFound {
				log.WithField("wallet_id", id).Warn("Skipping reconcile for missing wallet")
				continue
			}
			return err
		}
		if !rec.Balanced() {
			log.WithFields(log.Fields{"wallet_id": id, "drift": rec.Drift}).Error("Reconcile found drift")
		}
	}
	return nil
}

// HandleResultDeclared fans a declared result out to the wallets it paid.
func (w *Worker) HandleResultDeclared(ctx context.Context, t *asynq.Task) error {
	var p ResultDeclaredPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	result, err := w.Settlement.GetResult(ctx, p.ResultID)
	if err != nil {
		if services.KindOf(err) == services.KindNotFound {
			return fmt.Errorf("result %d: %v: %w", p.ResultID, err, asynq.SkipRetry)
		}
		return err
	}
	wallets, err := w.Settlement.WinnerWallets(ctx, p.ResultID)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"result_id":   result.ID,
		"game_id":     result.GameId,
		"result_date": result.ResultDate,
		"winners":     result.WinnersCount,
		"wallets":     len(wallets),
	}).Info("Result declared")
	if w.Dispatcher == nil {
		return nil
	}
	return w.Dispatcher.ReconcileWallets(ctx, wallets...)
}

// NewServeMux registers every task handler.
func (w *Worker) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReconcileWallets, w.HandleReconcileWallets)
	mux.HandleFunc(TypeResultDeclared, w.HandleResultDeclared)
	return mux
}

func StartWorker(redisOpt asynq.RedisClientOpt, worker *Worker) error {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)
	return srv.Run(worker.NewServeMux())
}
