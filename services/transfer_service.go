package services

import (
	"context"
	"fmt"
	"time"

	"bankcore/apperrors"
	"bankcore/database"
	"bankcore/models"
	"bankcore/utils"

	"github.com/shopspring/decimal"
)

// TransferRequest данные перевода с карты вызывающего на карту по номеру
type TransferRequest struct {
	SenderUserID       uint
	ReceiverCardNumber string
	Amount             decimal.Decimal
	CVV                string
	PIN                string
}

// TransferResult результат перевода
type TransferResult struct {
	TransactionID uint
	Reference     string
	SenderBalance decimal.Decimal
	Description   string
	CreatedAt     time.Time
}

// TransferService выполняет переводы между картами
type TransferService struct {
	store database.Store
	cards *CardService
	now   func() time.Time
}

// NewTransferService создает новый экземпляр TransferService
func NewTransferService(store database.Store, cards *CardService) *TransferService {
	return &TransferService{store: store, cards: cards, now: time.Now}
}

func (r TransferRequest) validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if err := validateCVV(r.CVV); err != nil {
		return err
	}
	if err := validatePIN(r.PIN); err != nil {
		return err
	}
	if !numberPattern.MatchString(r.ReceiverCardNumber) {
		return apperrors.Validation("номер карты получателя должен состоять из 16 цифр")
	}
	return nil
}

// Transfer списывает сумму с карты отправителя и зачисляет получателю.
// Списание, зачисление и запись журнала выполняются в одной транзакции.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (result *TransferResult, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("transfer", start, err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := s.cards.RefreshCard(ctx, req.SenderUserID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		now := s.now()

		sender, err := tx.CardByHolder(req.SenderUserID)
		if err != nil {
			return storeErr(err, "карта отправителя не найдена")
		}
		*sender, _ = CheckAndHandleExpiry(*sender, now)
		if err := requireActiveCard(sender); err != nil {
			return err
		}
		if sender.PIN != req.PIN || sender.CVV != req.CVV {
			return apperrors.Forbidden("неверный PIN или CVV")
		}

		receiver, err := tx.CardByNumber(req.ReceiverCardNumber)
		if err != nil {
			return storeErr(err, "карта получателя не найдена")
		}
		if receiver.ID == sender.ID {
			return apperrors.Validation("нельзя перевести средства на ту же карту")
		}

		// Блокируем обе карты в порядке возрастания id и перепроверяем статусы
		locked, err := tx.LockCards(sender.ID, receiver.ID)
		if err != nil {
			return storeErr(err, "карта не найдена")
		}
		for i := range locked {
			if err := expireInTx(tx, &locked[i], now); err != nil {
				return err
			}
			switch locked[i].ID {
			case sender.ID:
				*sender = locked[i]
			case receiver.ID:
				*receiver = locked[i]
			}
		}
		if err := requireActiveCard(sender); err != nil {
			return err
		}
		if receiver.Status != models.CardStatusActive {
			return apperrors.InvalidState("карта получателя неактивна")
		}

		balance, err := DebitCard(tx, sender.ID, req.Amount)
		if err != nil {
			return err
		}
		if _, err := CreditCard(tx, receiver.ID, req.Amount); err != nil {
			return err
		}

		description := fmt.Sprintf("Перевод с карты ...%s на карту ...%s на сумму %s",
			sender.LastFour(), receiver.LastFour(), req.Amount.StringFixed(2))
		entry, err := recordTransaction(tx, models.TransactionKindTransfer,
			uintPtr(sender.ID), uintPtr(receiver.ID), req.Amount, description, now)
		if err != nil {
			return err
		}

		result = &TransferResult{
			TransactionID: entry.ID,
			Reference:     entry.Reference,
			SenderBalance: balance,
			Description:   description,
			CreatedAt:     entry.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.GetMetrics().RecordTransfer(req.Amount)
	return result, nil
}

// History возвращает записи журнала по карте вызывающего, новые первыми
func (s *TransferService) History(ctx context.Context, userID uint) ([]models.CardTransaction, error) {
	var list []models.CardTransaction
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		card, err := tx.CardByHolder(userID)
		if err != nil {
			return storeErr(err, "карта не найдена")
		}
		list, err = tx.CardTransactions(card.ID)
		if err != nil {
			return apperrors.Internal(err)
		}
		return nil
	})
	return list, err
}
