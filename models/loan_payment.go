package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanPayment неизменяемая запись о платеже по кредиту или погашении штрафа
type LoanPayment struct {
	ID                        uint            `gorm:"primaryKey;autoIncrement"`
	LoanID                    uint            `gorm:"column:loan_id;not null;index"`
	PaymentDate               time.Time       `gorm:"column:payment_date;not null"`
	AmountPaid                decimal.Decimal `gorm:"column:amount_paid;type:decimal(20,2);not null"`
	PrincipalPaid             decimal.Decimal `gorm:"column:principal_paid;type:decimal(20,2);not null"`
	InterestPaid              decimal.Decimal `gorm:"column:interest_paid;type:decimal(20,2);not null"`
	OutstandingPrincipalAfter decimal.Decimal `gorm:"column:outstanding_principal_after;type:decimal(20,2);not null"`
	Note                      string          `gorm:"column:note;size:255"`
}

// TableName возвращает имя таблицы для модели LoanPayment
func (LoanPayment) TableName() string {
	return "loan_payments"
}
