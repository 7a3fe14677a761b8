package services

import (
	"errors"
	"time"

	"bankcore/apperrors"
	"bankcore/database"
	"bankcore/models"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// MaxCardBalance максимальный баланс карты
var MaxCardBalance = decimal.NewFromInt(1_000_000_000)

// CreditCard зачисляет amount на карту внутри транзакции tx и возвращает новый баланс
func CreditCard(tx database.Tx, cardID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.Validation("сумма зачисления должна быть больше 0")
	}
	balance, err := tx.AdjustCardBalance(cardID, amount, MaxCardBalance)
	return balance, ledgerErr(err)
}

// DebitCard списывает amount с карты внутри транзакции tx и возвращает новый баланс
func DebitCard(tx database.Tx, cardID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.Validation("сумма списания должна быть больше 0")
	}
	balance, err := tx.AdjustCardBalance(cardID, amount.Neg(), MaxCardBalance)
	return balance, ledgerErr(err)
}

func ledgerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrInsufficientBalance):
		return apperrors.New(apperrors.KindInsufficient, "недостаточно средств на карте")
	case errors.Is(err, database.ErrBalanceCeiling):
		return apperrors.Newf(apperrors.KindCeilingExceeded,
			"баланс карты не может превышать %s", MaxCardBalance.StringFixed(2))
	default:
		return storeErr(err, "карта не найдена")
	}
}

// recordTransaction пишет запись журнала в той же транзакции, что и изменение баланса
func recordTransaction(tx database.Tx, kind models.TransactionKind, sender, receiver *uint,
	amount decimal.Decimal, description string, at time.Time) (*models.CardTransaction, error) {
	entry := &models.CardTransaction{
		Reference:      ulid.Make().String(),
		SenderCardID:   sender,
		ReceiverCardID: receiver,
		Amount:         amount,
		Kind:           kind,
		Description:    description,
		CreatedAt:      at,
	}
	if err := tx.CreateCardTransaction(entry); err != nil {
		return nil, storeErr(err, "карта не найдена")
	}
	return entry, nil
}

func uintPtr(v uint) *uint {
	return &v
}
