package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type RequestKind string

const (
	RequestKindWithdrawal RequestKind = "withdrawal"
	RequestKindDeposit    RequestKind = "deposit"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// FinancialRequest covers both withdrawal and payment (deposit) requests.
type FinancialRequest struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Code       string          `gorm:"column:code;size:40;not null;uniqueIndex" json:"code"`
	Kind       RequestKind     `gorm:"column:kind;size:20;not null;index" json:"kind"`
	UserId     int             `gorm:"column:user_id;not null;index" json:"user_id"`
	WalletId   uint            `gorm:"column:wallet_id;not null" json:"wallet_id"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Status     RequestStatus   `gorm:"column:status;size:20;not null;default:pending;index" json:"status"`
	Evidence   datatypes.JSON  `gorm:"column:evidence" json:"evidence"` // bank details or payment proof reference
	ReviewedBy string          `gorm:"column:reviewed_by;size:150" json:"reviewed_by"`
	ReviewedAt *time.Time      `gorm:"column:reviewed_at" json:"reviewed_at"`
	AdminNotes string          `gorm:"column:admin_notes;type:text" json:"admin_notes"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (FinancialRequest) TableName() string {
	return "financial_requests"
}
