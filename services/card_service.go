package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bankcore/apperrors"
	"bankcore/database"
	"bankcore/models"
	"bankcore/utils"

	"github.com/shopspring/decimal"
)

const (
	// maxCardAttempts число попыток подобрать свободный номер карты
	maxCardAttempts = 10
)

// MaxTopUpAmount максимальная сумма одного пополнения
var MaxTopUpAmount = decimal.NewFromInt(100_000)

// CardService управляет жизненным циклом карты
type CardService struct {
	store database.Store
	now   func() time.Time
}

// NewCardService создает новый экземпляр CardService
func NewCardService(store database.Store) *CardService {
	return &CardService{store: store, now: time.Now}
}

// TopUpResult результат пополнения
type TopUpResult struct {
	Balance     decimal.Decimal
	Transaction models.CardTransaction
}

// CheckAndHandleExpiry переводит активную карту с истекшим сроком в expired.
// Функция чистая и идемпотентная; второй результат сообщает, изменилась ли карта.
func CheckAndHandleExpiry(card models.Card, now time.Time) (models.Card, bool) {
	if card.Status != models.CardStatusActive {
		return card, false
	}
	expiresAt, ok := ParseDueDate(card.DueDate)
	if !ok || expiresAt.After(now) {
		return card, false
	}
	card.Status = models.CardStatusExpired
	return card, true
}

// requireActiveCard возвращает INVALID_STATE с причиной, если карта не активна
func requireActiveCard(card *models.Card) error {
	switch card.Status {
	case models.CardStatusActive:
		return nil
	case models.CardStatusExpired:
		return apperrors.InvalidState("срок действия карты истек, запросите перевыпуск")
	case models.CardStatusRenewalPending:
		return apperrors.InvalidState("карта ожидает подтверждения перевыпуска")
	case models.CardStatusBlocked:
		return apperrors.InvalidState("карта заблокирована")
	case models.CardStatusWaitingApproval:
		return apperrors.InvalidState("карта еще не подтверждена администратором")
	default:
		return apperrors.InvalidState(fmt.Sprintf("карта неактивна (статус: %s)", card.Status))
	}
}

// expireInTx применяет ленивое истечение срока к карте, прочитанной внутри транзакции
func expireInTx(tx database.Tx, card *models.Card, now time.Time) error {
	updated, changed := CheckAndHandleExpiry(*card, now)
	if !changed {
		return nil
	}
	*card = updated
	if err := tx.SaveCard(card); err != nil {
		return storeErr(err, "карта не найдена")
	}
	return nil
}

// CreateCard выпускает карту в статусе waiting_approval с нулевым балансом
func (s *CardService) CreateCard(ctx context.Context, ownerID uint, pin string) (card *models.Card, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("card.create", start, err) }()

	if err := validatePIN(pin); err != nil {
		return nil, err
	}

	// Совпадение номера с уже выпущенной картой повторяется с новым номером
	for attempt := 0; attempt < maxCardAttempts; attempt++ {
		card, err = s.createCardOnce(ctx, ownerID, pin)
		if !errors.Is(err, database.ErrDuplicate) {
			break
		}
		utils.LogDebug("card number collision for user %d, attempt %d", ownerID, attempt+1)
	}
	if errors.Is(err, database.ErrDuplicate) {
		return nil, apperrors.Internal(err)
	}
	if err != nil {
		return nil, err
	}

	utils.GetMetrics().RecordCardEvent("create")
	return card, nil
}

func (s *CardService) createCardOnce(ctx context.Context, ownerID uint, pin string) (*models.Card, error) {
	var card *models.Card
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		if _, err := tx.LockUser(ownerID); err != nil {
			return storeErr(err, "пользователь не найден")
		}

		if _, err := tx.CardByHolder(ownerID); err == nil {
			return apperrors.InvalidState("у пользователя уже есть карта")
		} else if !errors.Is(err, database.ErrNotFound) {
			return apperrors.Internal(err)
		}

		number, err := uniqueCardNumber(tx)
		if err != nil {
			return err
		}
		cvv, err := GenerateCVV()
		if err != nil {
			return apperrors.Internal(err)
		}

		card = &models.Card{
			HolderID: ownerID,
			Number:   number,
			CVV:      cvv,
			PIN:      pin,
			Balance:  decimal.Zero,
			DueDate:  PendingDueDate,
			Status:   models.CardStatusWaitingApproval,
		}
		if err := tx.CreateCard(card); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return err
			}
			return apperrors.Internal(err)
		}
		return nil
	})
	return card, err
}

// uniqueCardNumber генерирует номер, которого еще нет в хранилище
func uniqueCardNumber(tx database.Tx) (string, error) {
	for attempt := 0; attempt < maxCardAttempts; attempt++ {
		number, err := GenerateCardNumber()
		if err != nil {
			return "", apperrors.Internal(err)
		}
		exists, err := tx.CardNumberExists(number)
		if err != nil {
			return "", apperrors.Internal(err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", database.ErrDuplicate
}

// RefreshCard возвращает карту пользователя с учетом истечения срока.
// Ошибка записи нового статуса только логируется: вызывающий получает вычисленную карту.
func (s *CardService) RefreshCard(ctx context.Context, userID uint) (*models.Card, error) {
	var (
		card    models.Card
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		stored, err := tx.CardByHolder(userID)
		if err != nil {
			return storeErr(err, "карта не найдена")
		}
		card, changed = CheckAndHandleExpiry(*stored, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &card, nil
	}

	// Переход повторяется под блокировкой: карта могла измениться между транзакциями
	var (
		current *models.Card
		expired bool
	)
	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		locked, err := tx.LockCards(card.ID)
		if err != nil {
			return err
		}
		updated, changed := CheckAndHandleExpiry(locked[0], s.now())
		current, expired = &updated, changed
		if !changed {
			return nil
		}
		return tx.SaveCard(current)
	})
	if err != nil {
		utils.LogError("failed to persist expiry of card %d: %v", card.ID, err)
		return &card, nil
	}
	if expired {
		utils.GetMetrics().RecordCardEvent("expire")
	}
	return current, nil
}

// GetCard возвращает карту вызывающего
func (s *CardService) GetCard(ctx context.Context, userID uint) (*models.Card, error) {
	return s.RefreshCard(ctx, userID)
}

// RequestRenewal перевыпускает карту с истекшим сроком: новый номер, CVV и PIN,
// срок на 10 лет, статус renewal_pending до подтверждения администратором
func (s *CardService) RequestRenewal(ctx context.Context, userID uint, newPin string) (card *models.Card, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("card.renewal", start, err) }()

	if err := validatePIN(newPin); err != nil {
		return nil, err
	}
	if _, err := s.RefreshCard(ctx, userID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCardAttempts; attempt++ {
		card, err = s.renewOnce(ctx, userID, newPin)
		if !errors.Is(err, database.ErrDuplicate) {
			break
		}
	}
	if errors.Is(err, database.ErrDuplicate) {
		return nil, apperrors.Internal(err)
	}
	if err != nil {
		return nil, err
	}

	utils.GetMetrics().RecordCardEvent("renew")
	return card, nil
}

func (s *CardService) renewOnce(ctx context.Context, userID uint, newPin string) (*models.Card, error) {
	var card *models.Card
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		stored, err := tx.CardByHolder(userID)
		if err != nil {
			return storeErr(err, "карта не найдена")
		}
		locked, err := tx.LockCards(stored.ID)
		if err != nil {
			return storeErr(err, "карта не найдена")
		}
		card = &locked[0]

		now := s.now()
		if err := expireInTx(tx, card, now); err != nil {
			return err
		}
		if card.Status != models.CardStatusExpired {
			return apperrors.InvalidState("перевыпуск возможен только для карты с истекшим сроком действия")
		}

		number, err := uniqueCardNumber(tx)
		if err != nil {
			return err
		}
		cvv, err := GenerateCVV()
		if err != nil {
			return apperrors.Internal(err)
		}

		card.Number = number
		card.CVV = cvv
		card.PIN = newPin
		card.DueDate = FutureDueDate(now, CardValidityYears)
		card.Status = models.CardStatusRenewalPending
		if err := tx.SaveCard(card); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return err
			}
			return apperrors.Internal(err)
		}
		return nil
	})
	return card, err
}

// TopUp пополняет активную карту пользователя
func (s *CardService) TopUp(ctx context.Context, userID uint, amount decimal.Decimal) (result *TopUpResult, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("card.top_up", start, err) }()

	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if amount.GreaterThan(MaxTopUpAmount) {
		return nil, apperrors.Validation("сумма пополнения не может превышать " + MaxTopUpAmount.StringFixed(2))
	}
	if _, err := s.RefreshCard(ctx, userID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		stored, err := tx.CardByHolder(userID)
		if err != nil {
			return storeErr(err, "карта не найдена")
		}
		locked, err := tx.LockCards(stored.ID)
		if err != nil {
			return storeErr(err, "карта не найдена")
		}
		card := &locked[0]

		now := s.now()
		if err := expireInTx(tx, card, now); err != nil {
			return err
		}
		if err := requireActiveCard(card); err != nil {
			return err
		}

		balance, err := CreditCard(tx, card.ID, amount)
		if err != nil {
			return err
		}
		entry, err := recordTransaction(tx, models.TransactionKindTopUp, nil, uintPtr(card.ID), amount,
			fmt.Sprintf("Пополнение карты ...%s на сумму %s", card.LastFour(), amount.StringFixed(2)), now)
		if err != nil {
			return err
		}

		result = &TopUpResult{Balance: balance, Transaction: *entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
