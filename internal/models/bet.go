package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BetType string

const (
	BetTypeJodi     BetType = "jodi"
	BetTypeHaruf    BetType = "haruf"
	BetTypeCrossing BetType = "crossing"
)

type BetStatus string

const (
	BetStatusPending BetStatus = "pending"
	BetStatusWon     BetStatus = "won"
	BetStatusLost    BetStatus = "lost"
)

type Bet struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId        int             `gorm:"column:user_id;not null;index" json:"user_id"`
	WalletId      uint            `gorm:"column:wallet_id;not null" json:"wallet_id"`
	GameId        uint            `gorm:"column:game_id;not null;index:idx_bet_game_date" json:"game_id"`
	GameDate      string          `gorm:"column:game_date;size:10;not null;index:idx_bet_game_date" json:"game_date"`
	BetType       BetType         `gorm:"column:bet_type;size:20;not null" json:"bet_type"`
	Number        string          `gorm:"column:number;size:10;not null" json:"number"`
	Position      HarufPosition   `gorm:"column:position;size:10" json:"position,omitempty"`
	Stake         decimal.Decimal `gorm:"column:stake;type:decimal(20,2);not null" json:"stake"`
	Status        BetStatus       `gorm:"column:status;size:10;not null;default:pending;index" json:"status"`
	WinningAmount decimal.Decimal `gorm:"column:winning_amount;type:decimal(20,2);default:0" json:"winning_amount"`
	PlacedAt      time.Time       `gorm:"column:placed_at;not null" json:"placed_at"`
	SettledAt     *time.Time      `gorm:"column:settled_at" json:"settled_at"`
}

func (Bet) TableName() string {
	return "bets"
}
