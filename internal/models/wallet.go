package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Segment string

const (
	SegmentDeposit    Segment = "deposit"
	SegmentWinning    Segment = "winning"
	SegmentBonus      Segment = "bonus"
	SegmentCommission Segment = "commission"
)

var Segments = []Segment{SegmentDeposit, SegmentWinning, SegmentBonus, SegmentCommission}

// Column returns the wallets column holding the segment, or "" if unknown.
func (s Segment) Column() string {
	switch s {
	case SegmentDeposit:
		return "deposit_balance"
	case SegmentWinning:
		return "winning_balance"
	case SegmentBonus:
		return "bonus_balance"
	case SegmentCommission:
		return "commission_balance"
	}
	return ""
}

// Wallet balances only move through ledger batches.
type Wallet struct {
	ID                uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId            int             `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Username          string          `gorm:"column:username;size:255;not null" json:"username"`
	DepositBalance    decimal.Decimal `gorm:"column:deposit_balance;type:decimal(20,2);default:0" json:"deposit_balance"`
	WinningBalance    decimal.Decimal `gorm:"column:winning_balance;type:decimal(20,2);default:0" json:"winning_balance"`
	BonusBalance      decimal.Decimal `gorm:"column:bonus_balance;type:decimal(20,2);default:0" json:"bonus_balance"`
	CommissionBalance decimal.Decimal `gorm:"column:commission_balance;type:decimal(20,2);default:0" json:"commission_balance"`
	TotalDeposits     decimal.Decimal `gorm:"column:total_deposits;type:decimal(20,2);default:0" json:"total_deposits"`
	TotalWithdrawals  decimal.Decimal `gorm:"column:total_withdrawals;type:decimal(20,2);default:0" json:"total_withdrawals"`
	TotalWinnings     decimal.Decimal `gorm:"column:total_winnings;type:decimal(20,2);default:0" json:"total_winnings"`
	TotalBets         decimal.Decimal `gorm:"column:total_bets;type:decimal(20,2);default:0" json:"total_bets"`
	Version           int             `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

func (w Wallet) Balance(s Segment) decimal.Decimal {
	switch s {
	case SegmentDeposit:
		return w.DepositBalance
	case SegmentWinning:
		return w.WinningBalance
	case SegmentBonus:
		return w.BonusBalance
	case SegmentCommission:
		return w.CommissionBalance
	}
	return decimal.Zero
}

// Total is the spendable balance across all segments.
func (w Wallet) Total() decimal.Decimal {
	return w.DepositBalance.Add(w.WinningBalance).Add(w.BonusBalance).Add(w.CommissionBalance)
}
