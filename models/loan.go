package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus представляет статус кредита
type LoanStatus string

const (
	LoanStatusWaiting  LoanStatus = "waiting"
	LoanStatusActive   LoanStatus = "active"
	LoanStatusUnpaid   LoanStatus = "unpaid" // Просрочен, начисляются штрафы
	LoanStatusClosed   LoanStatus = "closed"
	LoanStatusRejected LoanStatus = "rejected"
)

// Loan представляет аннуитетный кредит
type Loan struct {
	ID                         uint            `gorm:"primaryKey;autoIncrement"`
	UserID                     uint            `gorm:"column:user_id;not null;index"`
	Amount                     decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	InterestRate               decimal.Decimal `gorm:"column:interest_rate;type:decimal(5,2);not null"`
	TermMonths                 int             `gorm:"column:term_months;not null"`
	Status                     LoanStatus      `gorm:"column:status;type:varchar(20);not null;default:'waiting'"`
	MonthlyPayment             decimal.Decimal `gorm:"column:monthly_payment;type:decimal(20,2);not null;default:0"`
	OutstandingPrincipal       decimal.Decimal `gorm:"column:outstanding_principal;type:decimal(20,2);not null;default:0"`
	PaidAmount                 decimal.Decimal `gorm:"column:paid_amount;type:decimal(20,2);not null;default:0"`
	AccruedPenalty             decimal.Decimal `gorm:"column:accrued_penalty;type:decimal(20,2);not null;default:0"`
	LastPaymentDate            *time.Time      `gorm:"column:last_payment_date"`
	NextPaymentDueDate         *time.Time      `gorm:"column:next_payment_due_date"`
	LastPenaltyCalculationDate *time.Time      `gorm:"column:last_penalty_calculation_date"`
	ActivatedAt                *time.Time      `gorm:"column:activated_at"`
	Payments                   []LoanPayment   `gorm:"foreignKey:LoanID"`
	CreatedAt                  time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt                  time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

// TableName возвращает имя таблицы для модели Loan
func (Loan) TableName() string {
	return "loans"
}

// IsOpen сообщает, что кредит на рассмотрении или выдан; у пользователя может быть только один такой
func (l Loan) IsOpen() bool {
	return l.Status == LoanStatusWaiting || l.Status == LoanStatusActive
}
