package worker

import (
	"context"

	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher queues post-commit jobs on asynq.
type Dispatcher struct {
	Client Enqueuer
}

func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{Client: client}
}

func (d *Dispatcher) ReconcileWallets(ctx context.Context, walletIDs ...uint) error {
	if len(walletIDs) == 0 {
		return nil
	}
	task, err := NewReconcileWalletsTask(ReconcilePayload{WalletIDs: walletIDs})
	if err != nil {
		return err
	}
	_, err = d.Client.EnqueueContext(ctx, task)
	return err
}

func (d *Dispatcher) ResultDeclared(ctx context.Context, resultID uint) error {
	task, err := NewResultDeclaredTask(ResultDeclaredPayload{ResultID: resultID})
	if err != nil {
		return err
	}
	_, err = d.Client.EnqueueContext(ctx, task)
	return err
}
