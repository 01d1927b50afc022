package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task Types
const (
	TypeReconcileWallets = "ledger:reconcile"
	TypeResultDeclared   = "result:declared"
)

type ReconcilePayload struct {
	WalletIDs []uint `json:"wallet_ids"`
}

type ResultDeclaredPayload struct {
	ResultID uint `json:"result_id"`
}

// Task Creators

func NewReconcileWalletsTask(payload ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcileWallets, data, asynq.Queue("low"), asynq.MaxRetry(5)), nil
}

func NewResultDeclaredTask(payload ResultDeclaredPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeResultDeclared, data, asynq.Queue("default")), nil
}
