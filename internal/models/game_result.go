package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ResultStatus string

const (
	ResultStatusPending  ResultStatus = "pending"
	ResultStatusDeclared ResultStatus = "declared"
)

// GameResult is unique per (game, result date). The index, not a prior read,
// decides which of two concurrent declarations wins.
type GameResult struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	GameId             uint            `gorm:"column:game_id;not null;uniqueIndex:idx_result_game_date" json:"game_id"`
	ResultDate         string          `gorm:"column:result_date;size:10;not null;uniqueIndex:idx_result_game_date" json:"result_date"`
	ResultValue        string          `gorm:"column:result_value;size:10;not null" json:"result_value"`
	TotalBets          int             `gorm:"column:total_bets;default:0" json:"total_bets"`
	WinnersCount       int             `gorm:"column:winners_count;default:0" json:"winners_count"`
	TotalBetAmount     decimal.Decimal `gorm:"column:total_bet_amount;type:decimal(20,2);default:0" json:"total_bet_amount"`
	TotalWinningAmount decimal.Decimal `gorm:"column:total_winning_amount;type:decimal(20,2);default:0" json:"total_winning_amount"`
	PlatformCommission decimal.Decimal `gorm:"column:platform_commission;type:decimal(20,2);default:0" json:"platform_commission"`
	NetProfit          decimal.Decimal `gorm:"column:net_profit;type:decimal(20,2);default:0" json:"net_profit"`
	Status             ResultStatus    `gorm:"column:status;size:10;not null" json:"status"`
	DeclaredBy         string          `gorm:"column:declared_by;size:150" json:"declared_by"`
	DeclaredAt         *time.Time      `gorm:"column:declared_at" json:"declared_at"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (GameResult) TableName() string {
	return "game_results"
}
