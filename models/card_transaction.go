package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind описывает событие, вызвавшее движение средств
type TransactionKind string

const (
	TransactionKindTransfer         TransactionKind = "transfer"
	TransactionKindTopUp            TransactionKind = "top_up"
	TransactionKindLoanDisbursement TransactionKind = "loan_disbursement"
	TransactionKindLoanPayment      TransactionKind = "loan_payment"
	TransactionKindPenaltyPayment   TransactionKind = "penalty_payment"
	TransactionKindDepositOpening   TransactionKind = "deposit_opening"
	TransactionKindDepositPayout    TransactionKind = "deposit_payout"
)

// CardTransaction неизменяемая запись журнала движения средств.
// SenderCardID пуст для зачислений извне (пополнение, выдача кредита, выплата депозита),
// ReceiverCardID пуст для списаний в пользу банка.
type CardTransaction struct {
	ID             uint            `gorm:"primaryKey;autoIncrement"`
	Reference      string          `gorm:"column:reference;size:26;not null;uniqueIndex"`
	SenderCardID   *uint           `gorm:"column:sender_card_id;index"`
	ReceiverCardID *uint           `gorm:"column:receiver_card_id;index"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	Kind           TransactionKind `gorm:"column:kind;type:varchar(20);not null"`
	Description    string          `gorm:"column:description;size:255"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null"`
}

func (CardTransaction) TableName() string {
	return "card_transactions"
}
