package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GameType string

const (
	GameTypeJodi     GameType = "jodi"
	GameTypeHaruf    GameType = "haruf"
	GameTypeCrossing GameType = "crossing"
)

type GameStatus string

const (
	GameStatusScheduled      GameStatus = "scheduled"
	GameStatusOpen           GameStatus = "open"
	GameStatusClosed         GameStatus = "closed"
	GameStatusResultDeclared GameStatus = "result_declared"
)

// HarufPosition is the digit of a result a haruf bet looks at.
type HarufPosition string

const (
	PositionFirst HarufPosition = "first"
	PositionLast  HarufPosition = "last"
)

type Game struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name               string          `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
	Type               GameType        `gorm:"column:type;size:20;not null" json:"type"`
	OpenTime           string          `gorm:"column:open_time;size:5;not null" json:"open_time"`
	CloseTime          string          `gorm:"column:close_time;size:5;not null" json:"close_time"`
	ResultTime         string          `gorm:"column:result_time;size:5;not null" json:"result_time"`
	JodiMultiplier     decimal.Decimal `gorm:"column:jodi_multiplier;type:decimal(10,2);not null" json:"jodi_multiplier"`
	HarufMultiplier    decimal.Decimal `gorm:"column:haruf_multiplier;type:decimal(10,2);not null" json:"haruf_multiplier"`
	CrossingMultiplier decimal.Decimal `gorm:"column:crossing_multiplier;type:decimal(10,2);not null" json:"crossing_multiplier"`
	HarufPosition      HarufPosition   `gorm:"column:haruf_position;size:10;default:last" json:"haruf_position"`
	Status             GameStatus      `gorm:"column:status;size:20;default:scheduled" json:"status"` // mirrors today's game day
	Active             bool            `gorm:"column:active;default:true" json:"active"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Game) TableName() string {
	return "games"
}

// Multiplier returns the payout multiplier configured for a bet type.
func (g Game) Multiplier(bt BetType) decimal.Decimal {
	switch bt {
	case BetTypeJodi:
		return g.JodiMultiplier
	case BetTypeHaruf:
		return g.HarufMultiplier
	case BetTypeCrossing:
		return g.CrossingMultiplier
	}
	return decimal.Zero
}

// Accepts reports whether bets of the given type can be placed on the game.
// A jodi draw produces two digits, so haruf and crossing bets ride on it too.
func (g Game) Accepts(bt BetType) bool {
	switch g.Type {
	case GameTypeJodi:
		return bt == BetTypeJodi || bt == BetTypeHaruf || bt == BetTypeCrossing
	case GameTypeHaruf:
		return bt == BetTypeHaruf
	case GameTypeCrossing:
		return bt == BetTypeCrossing
	}
	return false
}

// GameDay is the lifecycle of one game on one calendar date.
type GameDay struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	GameID    uint       `gorm:"column:game_id;not null;uniqueIndex:idx_game_day" json:"game_id"`
	GameDate  string     `gorm:"column:game_date;size:10;not null;uniqueIndex:idx_game_day" json:"game_date"`
	Status    GameStatus `gorm:"column:status;size:20;not null" json:"status"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (GameDay) TableName() string {
	return "game_days"
}
