package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus представляет статус депозита
type DepositStatus string

const (
	DepositStatusWaitingApproval DepositStatus = "waiting_approval"
	DepositStatusActive          DepositStatus = "active"
	DepositStatusRejected        DepositStatus = "rejected"
	DepositStatusClosedEarly     DepositStatus = "closed_early"
	DepositStatusClosedByTerm    DepositStatus = "closed_by_term"
)

// Deposit представляет срочный депозит. После закрытия запись не меняется.
type Deposit struct {
	ID                            uint             `gorm:"primaryKey;autoIncrement"`
	UserID                        uint             `gorm:"column:user_id;not null;index"`
	Amount                        decimal.Decimal  `gorm:"column:amount;type:decimal(20,2);not null"`
	InterestRate                  decimal.Decimal  `gorm:"column:interest_rate;type:decimal(5,2);not null"`
	TermMonths                    int              `gorm:"column:term_months;not null"`
	EarlyWithdrawalPenaltyPercent decimal.Decimal  `gorm:"column:early_withdrawal_penalty_percent;type:decimal(5,2);not null"`
	Status                        DepositStatus    `gorm:"column:status;type:varchar(20);not null;default:'waiting_approval'"`
	ApprovedAt                    *time.Time       `gorm:"column:approved_at"`
	MaturityDate                  *time.Time       `gorm:"column:maturity_date"`
	ClosedAt                      *time.Time       `gorm:"column:closed_at"`
	AccruedInterest               *decimal.Decimal `gorm:"column:accrued_interest;type:decimal(20,2)"`
	TotalPayout                   *decimal.Decimal `gorm:"column:total_payout;type:decimal(20,2)"`
	CreatedAt                     time.Time        `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt                     time.Time        `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

// TableName возвращает имя таблицы для модели Deposit
func (Deposit) TableName() string {
	return "deposits"
}

// IsClosed сообщает, закрыт ли депозит
func (d Deposit) IsClosed() bool {
	return d.Status == DepositStatusClosedEarly || d.Status == DepositStatusClosedByTerm
}
