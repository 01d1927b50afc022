package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type LedgerReason string

const (
	ReasonBetStake        LedgerReason = "bet_stake"
	ReasonBetWin          LedgerReason = "bet_win"
	ReasonWithdrawalDebit LedgerReason = "withdrawal_debit"
	ReasonDepositCredit   LedgerReason = "deposit_credit"
	ReasonCommission      LedgerReason = "commission"
)

// CounterColumn is the cumulative wallet counter a reason feeds, if any.
func (r LedgerReason) CounterColumn() string {
	switch r {
	case ReasonBetStake:
		return "total_bets"
	case ReasonBetWin:
		return "total_winnings"
	case ReasonWithdrawalDebit:
		return "total_withdrawals"
	case ReasonDepositCredit:
		return "total_deposits"
	}
	return ""
}

func (r LedgerReason) Valid() bool {
	switch r {
	case ReasonBetStake, ReasonBetWin, ReasonWithdrawalDebit, ReasonDepositCredit, ReasonCommission:
		return true
	}
	return false
}

// LedgerBatch claims a causal reference. The unique index makes a second
// application of the same reference impossible.
type LedgerBatch struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	CausalRef string         `gorm:"column:causal_ref;size:100;not null;uniqueIndex:idx_batch_ref" json:"causal_ref"`
	Reason    LedgerReason   `gorm:"column:reason;size:30;not null;uniqueIndex:idx_batch_ref" json:"reason"`
	Result    datatypes.JSON `gorm:"column:result" json:"result"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (LedgerBatch) TableName() string {
	return "ledger_batches"
}

// LedgerEntry rows are append-only.
type LedgerEntry struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	BatchId      string          `gorm:"column:batch_id;size:36;not null;index" json:"batch_id"`
	WalletId     uint            `gorm:"column:wallet_id;not null;index" json:"wallet_id"`
	Segment      Segment         `gorm:"column:segment;size:20;not null" json:"segment"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Reason       LedgerReason    `gorm:"column:reason;size:30;not null" json:"reason"`
	CausalRef    string          `gorm:"column:causal_ref;size:100;not null;index" json:"causal_ref"`
	BalanceAfter decimal.Decimal `gorm:"column:balance_after;type:decimal(20,2);not null" json:"balance_after"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
