package services

import "context"

// Dispatcher hands committed work to background jobs. Failures to enqueue are
// logged by callers and never undo a commit.
type Dispatcher interface {
	ReconcileWallets(ctx context.Context, walletIDs ...uint) error
	ResultDeclared(ctx context.Context, resultID uint) error
}

type noopDispatcher struct{}

func (noopDispatcher) ReconcileWallets(context.Context, ...uint) error { return nil }
func (noopDispatcher) ResultDeclared(context.Context, uint) error      { return nil }
