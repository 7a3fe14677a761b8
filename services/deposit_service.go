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

const (
	DepositMinTermMonths = 3
	DepositMaxTermMonths = 36
)

var (
	// DepositMinAmount депозит должен быть строго больше этой суммы
	DepositMinAmount = decimal.NewFromInt(100)
	// DepositInterestRate годовая ставка депозита, %
	DepositInterestRate = decimal.NewFromInt(10)
	// DepositEarlyWithdrawalPenalty доля процентов, удерживаемая при досрочном закрытии, %
	DepositEarlyWithdrawalPenalty = decimal.NewFromInt(50)
)

// DepositView депозит с текущими начисленными процентами
type DepositView struct {
	Deposit         models.Deposit
	AccruedInterest decimal.Decimal
	CurrentValue    decimal.Decimal
}

// WithdrawalResult расчет выплаты при закрытии депозита
type WithdrawalResult struct {
	Deposit         models.Deposit
	Principal       decimal.Decimal
	AccruedInterest decimal.Decimal
	Penalty         decimal.Decimal
	InterestPaid    decimal.Decimal
	TotalPayout     decimal.Decimal
	CardBalance     decimal.Decimal
}

// DepositService управляет срочными депозитами
type DepositService struct {
	store database.Store
	cards *CardService
	now   func() time.Time
}

// NewDepositService создает новый экземпляр DepositService
func NewDepositService(store database.Store, cards *CardService) *DepositService {
	return &DepositService{store: store, cards: cards, now: time.Now}
}

// lockActiveCard находит и блокирует карту пользователя, применяя истечение срока
func lockActiveCard(tx database.Tx, userID uint, now time.Time) (*models.Card, error) {
	stored, err := tx.CardByHolder(userID)
	if err != nil {
		return nil, storeErr(err, "у пользователя нет банковской карты")
	}
	locked, err := tx.LockCards(stored.ID)
	if err != nil {
		return nil, storeErr(err, "у пользователя нет банковской карты")
	}
	card := &locked[0]
	if err := expireInTx(tx, card, now); err != nil {
		return nil, err
	}
	if err := requireActiveCard(card); err != nil {
		return nil, err
	}
	return card, nil
}

// Apply создает заявку на депозит. Средства списываются только при одобрении.
func (s *DepositService) Apply(ctx context.Context, userID uint, amount decimal.Decimal, termMonths int) (deposit *models.Deposit, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("deposit.apply", start, err) }()

	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !amount.GreaterThan(DepositMinAmount) {
		return nil, apperrors.Validation("сумма депозита должна быть больше " + DepositMinAmount.String())
	}
	if termMonths < DepositMinTermMonths || termMonths > DepositMaxTermMonths {
		return nil, apperrors.Validation(fmt.Sprintf("срок депозита должен быть от %d до %d месяцев",
			DepositMinTermMonths, DepositMaxTermMonths))
	}
	if _, err := s.cards.RefreshCard(ctx, userID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		card, err := lockActiveCard(tx, userID, s.now())
		if err != nil {
			return err
		}
		if card.Balance.LessThan(amount) {
			return apperrors.New(apperrors.KindInsufficient, "недостаточно средств на карте для открытия депозита")
		}

		deposit = &models.Deposit{
			UserID:                        userID,
			Amount:                        amount,
			InterestRate:                  DepositInterestRate,
			TermMonths:                    termMonths,
			EarlyWithdrawalPenaltyPercent: DepositEarlyWithdrawalPenalty,
			Status:                        models.DepositStatusWaitingApproval,
		}
		if err := tx.CreateDeposit(deposit); err != nil {
			return apperrors.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// Decide одобряет или отклоняет заявку. При одобрении сумма депозита списывается с карты
// в той же транзакции, что и смена статуса.
func (s *DepositService) Decide(ctx context.Context, actor Identity, depositID uint, approve bool) (deposit *models.Deposit, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("deposit.decide", start, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		deposit, err = tx.LockDeposit(depositID)
		if err != nil {
			return storeErr(err, "депозит не найден")
		}
		if deposit.Status != models.DepositStatusWaitingApproval {
			return apperrors.InvalidState(fmt.Sprintf("заявка уже рассмотрена (статус: %s)", deposit.Status))
		}

		if !approve {
			deposit.Status = models.DepositStatusRejected
			return storeErr(tx.SaveDeposit(deposit), "депозит не найден")
		}

		now := s.now()
		card, err := lockActiveCard(tx, deposit.UserID, now)
		if err != nil {
			return err
		}
		if _, err := DebitCard(tx, card.ID, deposit.Amount); err != nil {
			return err
		}
		_, err = recordTransaction(tx, models.TransactionKindDepositOpening, uintPtr(card.ID), nil, deposit.Amount,
			fmt.Sprintf("Открытие депозита #%d на %d мес.", deposit.ID, deposit.TermMonths), now)
		if err != nil {
			return err
		}

		deposit.Status = models.DepositStatusActive
		deposit.ApprovedAt = timePtr(now)
		deposit.MaturityDate = timePtr(now.AddDate(0, deposit.TermMonths, 0))
		return storeErr(tx.SaveDeposit(deposit), "депозит не найден")
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// view рассчитывает текущие проценты: для активного депозита по сегодняшний день
// (не дальше даты окончания), для закрытого берется зафиксированный снимок
func (s *DepositService) view(d models.Deposit, now time.Time) DepositView {
	v := DepositView{Deposit: d, AccruedInterest: decimal.Zero, CurrentValue: d.Amount}

	switch {
	case d.Status == models.DepositStatusActive:
		until := now
		if d.MaturityDate != nil && d.MaturityDate.Before(now) {
			until = *d.MaturityDate
		}
		v.AccruedInterest = SimpleInterest(d.Amount, d.InterestRate, d.ApprovedAt, &until)
		v.CurrentValue = Round2(d.Amount.Add(v.AccruedInterest))
	case d.IsClosed():
		if d.AccruedInterest != nil {
			v.AccruedInterest = *d.AccruedInterest
		}
		if d.TotalPayout != nil {
			v.CurrentValue = *d.TotalPayout
		}
	}
	return v
}

// GetUserDeposits возвращает депозиты пользователя с текущими процентами
func (s *DepositService) GetUserDeposits(ctx context.Context, userID uint) ([]DepositView, error) {
	var deposits []models.Deposit
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		var err error
		deposits, err = tx.DepositsByUser(userID)
		return storeErr(err, "депозиты не найдены")
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]DepositView, 0, len(deposits))
	for _, d := range deposits {
		views = append(views, s.view(d, now))
	}
	return views, nil
}

// Pending возвращает заявки, ожидающие решения администратора
func (s *DepositService) Pending(ctx context.Context) ([]models.Deposit, error) {
	var deposits []models.Deposit
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		var err error
		deposits, err = tx.DepositsByStatus(models.DepositStatusWaitingApproval)
		return storeErr(err, "депозиты не найдены")
	})
	return deposits, err
}

// lockOwnedActive блокирует активный депозит, принадлежащий пользователю
func lockOwnedActive(tx database.Tx, userID, depositID uint) (*models.Deposit, error) {
	d, err := tx.LockDeposit(depositID)
	if err != nil {
		return nil, storeErr(err, "депозит не найден")
	}
	if d.UserID != userID {
		return nil, apperrors.NotFound("депозит не найден")
	}
	if d.Status != models.DepositStatusActive {
		return nil, apperrors.InvalidState(fmt.Sprintf("депозит не активен (статус: %s)", d.Status))
	}
	return d, nil
}

// RequestEarlyWithdrawal закрывает депозит до срока. Из начисленных процентов
// удерживается штраф, остаток вместе с суммой депозита зачисляется на карту.
func (s *DepositService) RequestEarlyWithdrawal(ctx context.Context, userID, depositID uint) (result *WithdrawalResult, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("deposit.early_withdrawal", start, err) }()

	if _, err := s.cards.RefreshCard(ctx, userID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		now := s.now()
		d, err := lockOwnedActive(tx, userID, depositID)
		if err != nil {
			return err
		}
		if d.MaturityDate != nil && !now.Before(*d.MaturityDate) {
			return apperrors.InvalidState("срок депозита уже истек, используйте выплату по окончании срока")
		}

		card, err := lockActiveCard(tx, userID, now)
		if err != nil {
			return err
		}

		calc := CalculateEarlyWithdrawal(d.Amount, d.InterestRate, d.EarlyWithdrawalPenaltyPercent, d.ApprovedAt, &now)
		balance, err := CreditCard(tx, card.ID, calc.Payout)
		if err != nil {
			return err
		}
		_, err = recordTransaction(tx, models.TransactionKindDepositPayout, nil, uintPtr(card.ID), calc.Payout,
			fmt.Sprintf("Досрочное закрытие депозита #%d, штраф %s", d.ID, calc.Penalty.StringFixed(2)), now)
		if err != nil {
			return err
		}

		d.Status = models.DepositStatusClosedEarly
		d.ClosedAt = timePtr(now)
		d.AccruedInterest = decimalPtr(calc.NetInterest)
		d.TotalPayout = decimalPtr(calc.Payout)
		if err := tx.SaveDeposit(d); err != nil {
			return apperrors.Internal(err)
		}

		result = &WithdrawalResult{
			Deposit:         *d,
			Principal:       d.Amount,
			AccruedInterest: calc.Accrued,
			Penalty:         calc.Penalty,
			InterestPaid:    calc.NetInterest,
			TotalPayout:     calc.Payout,
			CardBalance:     balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WithdrawMaturedDeposit выплачивает депозит после окончания срока без штрафа
func (s *DepositService) WithdrawMaturedDeposit(ctx context.Context, userID, depositID uint) (result *WithdrawalResult, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("deposit.matured_withdrawal", start, err) }()

	if _, err := s.cards.RefreshCard(ctx, userID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		now := s.now()
		d, err := lockOwnedActive(tx, userID, depositID)
		if err != nil {
			return err
		}
		if d.MaturityDate == nil || now.Before(*d.MaturityDate) {
			return apperrors.InvalidState("срок депозита еще не истек")
		}

		card, err := lockActiveCard(tx, userID, now)
		if err != nil {
			return err
		}

		interest := SimpleInterest(d.Amount, d.InterestRate, d.ApprovedAt, d.MaturityDate)
		payout := Round2(d.Amount.Add(interest))
		balance, err := CreditCard(tx, card.ID, payout)
		if err != nil {
			return err
		}
		_, err = recordTransaction(tx, models.TransactionKindDepositPayout, nil, uintPtr(card.ID), payout,
			fmt.Sprintf("Выплата депозита #%d по окончании срока", d.ID), now)
		if err != nil {
			return err
		}

		d.Status = models.DepositStatusClosedByTerm
		d.ClosedAt = timePtr(now)
		d.AccruedInterest = decimalPtr(interest)
		d.TotalPayout = decimalPtr(payout)
		if err := tx.SaveDeposit(d); err != nil {
			return apperrors.Internal(err)
		}

		result = &WithdrawalResult{
			Deposit:         *d,
			Principal:       d.Amount,
			AccruedInterest: interest,
			Penalty:         decimal.Zero,
			InterestPaid:    interest,
			TotalPayout:     payout,
			CardBalance:     balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
