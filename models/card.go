package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus представляет статус карты
type CardStatus string

const (
	CardStatusWaitingApproval CardStatus = "waiting_approval" // Ожидает подтверждения администратором
	CardStatusActive          CardStatus = "active"
	CardStatusExpired         CardStatus = "expired"
	CardStatusRenewalPending  CardStatus = "renewal_pending" // Ожидает подтверждения перевыпуска
	CardStatusBlocked         CardStatus = "blocked"
	CardStatusRejected        CardStatus = "rejected"
)

// Card представляет банковскую карту. У пользователя не более одной карты.
type Card struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	HolderID  uint            `gorm:"column:holder_id;not null;uniqueIndex"`
	Number    string          `gorm:"column:number;size:16;not null;uniqueIndex"`
	CVV       string          `gorm:"column:cvv;size:3;not null"`
	PIN       string          `gorm:"column:pin;size:4;not null"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(20,2);not null;default:0"`
	DueDate   string          `gorm:"column:due_date;size:7;not null"` // MM/YYYY
	Status    CardStatus      `gorm:"column:status;type:varchar(20);not null;default:'waiting_approval'"`
	CreatedAt time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

// TableName возвращает имя таблицы для модели Card
func (Card) TableName() string {
	return "cards"
}

// LastFour возвращает последние четыре цифры номера карты
func (c Card) LastFour() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}
