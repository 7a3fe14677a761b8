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
	LoanMaxTermMonths = 120
	// penaltyGracePeriod срок следующего платежа после погашения штрафа
	penaltyGracePeriod = 3 * 24 * time.Hour
)

var (
	// LoanMaxAmount максимальная сумма кредита
	LoanMaxAmount = decimal.NewFromInt(1_000_000)
	// LoanDefaultInterestRate годовая ставка по умолчанию, %
	LoanDefaultInterestRate = decimal.NewFromInt(15)
)

// LoanDecision решение администратора по заявке.
// Ставка и срок необязательны: без них остаются значения из заявки.
type LoanDecision struct {
	Approve      bool
	InterestRate *decimal.Decimal
	TermMonths   *int
}

// LoanPaymentResult результат платежа по кредиту
type LoanPaymentResult struct {
	Loan        models.Loan
	Payment     models.LoanPayment
	Allocation  PaymentAllocation
	CardBalance decimal.Decimal
}

// PenaltyPaymentResult результат погашения штрафа
type PenaltyPaymentResult struct {
	Loan        models.Loan
	Payment     models.LoanPayment
	PenaltyPaid decimal.Decimal
	CardBalance decimal.Decimal
}

// LoanService управляет кредитами
type LoanService struct {
	store database.Store
	cards *CardService
	now   func() time.Time
}

// NewLoanService создает новый экземпляр LoanService
func NewLoanService(store database.Store, cards *CardService) *LoanService {
	return &LoanService{store: store, cards: cards, now: time.Now}
}

// Apply создает заявку на кредит. Нельзя подать заявку при наличии кредита
// в статусе waiting, active или unpaid.
func (s *LoanService) Apply(ctx context.Context, userID uint, amount decimal.Decimal, termMonths int) (loan *models.Loan, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("loan.apply", start, err) }()

	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if amount.GreaterThan(LoanMaxAmount) {
		return nil, apperrors.Validation("сумма кредита не может превышать " + LoanMaxAmount.StringFixed(2))
	}
	if termMonths <= 0 || termMonths > LoanMaxTermMonths {
		return nil, apperrors.Validation(fmt.Sprintf("срок кредита должен быть от 1 до %d месяцев", LoanMaxTermMonths))
	}
	if _, err := s.ApplyPenalties(ctx, userID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		// Блокировка пользователя сериализует параллельные заявки
		if _, err := tx.LockUser(userID); err != nil {
			return storeErr(err, "пользователь не найден")
		}

		existing, err := tx.LoansByUser(userID)
		if err != nil {
			return apperrors.Internal(err)
		}
		for _, l := range existing {
			if l.Status == models.LoanStatusUnpaid {
				return apperrors.InvalidState("у вас есть просроченный кредит, новая заявка невозможна")
			}
		}
		for _, l := range existing {
			if l.Status == models.LoanStatusWaiting || l.Status == models.LoanStatusActive {
				return apperrors.InvalidState("у вас уже есть активный кредит или заявка на рассмотрении")
			}
		}

		loan = &models.Loan{
			UserID:               userID,
			Amount:               amount,
			InterestRate:         LoanDefaultInterestRate,
			TermMonths:           termMonths,
			Status:               models.LoanStatusWaiting,
			MonthlyPayment:       decimal.Zero,
			OutstandingPrincipal: decimal.Zero,
			PaidAmount:           decimal.Zero,
			AccruedPenalty:       decimal.Zero,
		}
		if err := tx.CreateLoan(loan); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return apperrors.InvalidState("у вас уже есть активный кредит или заявка на рассмотрении")
			}
			return apperrors.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Decide одобряет или отклоняет заявку. При одобрении рассчитывается аннуитетный платеж,
// сумма кредита зачисляется на карту заемщика.
func (s *LoanService) Decide(ctx context.Context, actor Identity, loanID uint, decision LoanDecision) (loan *models.Loan, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("loan.decide", start, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if decision.InterestRate != nil && (decision.InterestRate.IsNegative() || decision.InterestRate.GreaterThan(hundred)) {
		return nil, apperrors.Validation("ставка должна быть от 0 до 100")
	}
	if decision.TermMonths != nil && (*decision.TermMonths <= 0 || *decision.TermMonths > LoanMaxTermMonths) {
		return nil, apperrors.Validation(fmt.Sprintf("срок кредита должен быть от 1 до %d месяцев", LoanMaxTermMonths))
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		l, err := tx.LockLoan(loanID)
		if err != nil {
			return storeErr(err, "кредит не найден")
		}
		if l.Status != models.LoanStatusWaiting {
			return apperrors.InvalidState(fmt.Sprintf("заявка уже рассмотрена (статус: %s)", l.Status))
		}
		loan = l

		if !decision.Approve {
			loan.Status = models.LoanStatusRejected
			return storeErr(tx.SaveLoan(loan), "кредит не найден")
		}

		if decision.InterestRate != nil {
			loan.InterestRate = *decision.InterestRate
		}
		if decision.TermMonths != nil {
			loan.TermMonths = *decision.TermMonths
		}

		now := s.now()
		card, err := lockActiveCard(tx, loan.UserID, now)
		if err != nil {
			return err
		}
		if _, err := CreditCard(tx, card.ID, loan.Amount); err != nil {
			return err
		}
		_, err = recordTransaction(tx, models.TransactionKindLoanDisbursement, nil, uintPtr(card.ID), loan.Amount,
			fmt.Sprintf("Выдача кредита #%d на сумму %s", loan.ID, loan.Amount.StringFixed(2)), now)
		if err != nil {
			return err
		}

		loan.Status = models.LoanStatusActive
		loan.MonthlyPayment = CalculateEMI(loan.Amount, loan.InterestRate, loan.TermMonths)
		loan.OutstandingPrincipal = loan.Amount
		loan.PaidAmount = decimal.Zero
		loan.ActivatedAt = timePtr(now)
		loan.NextPaymentDueDate = timePtr(now.AddDate(0, 1, 0))
		return storeErr(tx.SaveLoan(loan), "кредит не найден")
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// applyPenaltiesInTx применяет ленивое начисление штрафов к заблокированному кредиту
func applyPenaltiesInTx(tx database.Tx, loan *models.Loan, now time.Time) error {
	transition := ApplyPenaltyTransition(*loan, now)
	if !transition.Changed {
		return nil
	}
	*loan = transition.Loan
	if err := tx.SaveLoan(loan); err != nil {
		return storeErr(err, "кредит не найден")
	}
	return nil
}

// ApplyPenalties начисляет штрафы по всем кредитам пользователя.
// Ошибки записи по отдельному кредиту только логируются.
func (s *LoanService) ApplyPenalties(ctx context.Context, userID uint) ([]models.Loan, error) {
	var loans []models.Loan
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		var err error
		loans, err = tx.LoansByUser(userID)
		return storeErr(err, "кредиты не найдены")
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range loans {
		transition := ApplyPenaltyTransition(loans[i], now)
		if !transition.Changed {
			continue
		}
		payments := loans[i].Payments
		loans[i] = transition.Loan
		loans[i].Payments = payments

		if err := s.persistPenalty(ctx, loans[i].ID, now); err != nil {
			utils.LogError("failed to persist penalties of loan %d: %v", loans[i].ID, err)
		}
	}
	return loans, nil
}

// persistPenalty повторяет переход под блокировкой строки и сохраняет его
func (s *LoanService) persistPenalty(ctx context.Context, loanID uint, now time.Time) error {
	return s.store.Transaction(ctx, func(tx database.Tx) error {
		loan, err := tx.LockLoan(loanID)
		if err != nil {
			return err
		}
		return applyPenaltiesInTx(tx, loan, now)
	})
}

// GetUserLoans возвращает кредиты пользователя с историей платежей
func (s *LoanService) GetUserLoans(ctx context.Context, userID uint) ([]models.Loan, error) {
	return s.ApplyPenalties(ctx, userID)
}

// Pending возвращает заявки, ожидающие решения администратора
func (s *LoanService) Pending(ctx context.Context) ([]models.Loan, error) {
	var loans []models.Loan
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		var err error
		loans, err = tx.LoansByStatus(models.LoanStatusWaiting)
		return storeErr(err, "кредиты не найдены")
	})
	return loans, err
}

// lockOwnedLoan блокирует кредит пользователя и начисляет штрафы
func lockOwnedLoan(tx database.Tx, userID, loanID uint, now time.Time) (*models.Loan, error) {
	loan, err := tx.LockLoan(loanID)
	if err != nil {
		return nil, storeErr(err, "кредит не найден")
	}
	if loan.UserID != userID {
		return nil, apperrors.NotFound("кредит не найден")
	}
	if err := applyPenaltiesInTx(tx, loan, now); err != nil {
		return nil, err
	}
	return loan, nil
}

// MakePayment вносит платеж по активному кредиту: сначала проценты текущего периода,
// остаток в основной долг. Сумма сверх полного погашения не списывается.
func (s *LoanService) MakePayment(ctx context.Context, userID, loanID uint, amount decimal.Decimal) (result *LoanPaymentResult, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("loan.payment", start, err) }()

	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if _, err := s.ApplyPenalties(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.cards.RefreshCard(ctx, userID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		now := s.now()
		loan, err := lockOwnedLoan(tx, userID, loanID, now)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusActive {
			if loan.Status == models.LoanStatusUnpaid {
				return apperrors.InvalidState("кредит просрочен, сначала погасите штраф")
			}
			return apperrors.InvalidState(fmt.Sprintf("кредит не активен (статус: %s)", loan.Status))
		}
		if !loan.OutstandingPrincipal.IsPositive() {
			return apperrors.InvalidState("кредит уже погашен")
		}

		alloc := AllocatePayment(loan.OutstandingPrincipal, loan.InterestRate, amount)

		card, err := lockActiveCard(tx, userID, now)
		if err != nil {
			return err
		}
		balance, err := DebitCard(tx, card.ID, alloc.Effective)
		if err != nil {
			return err
		}
		_, err = recordTransaction(tx, models.TransactionKindLoanPayment, uintPtr(card.ID), nil, alloc.Effective,
			fmt.Sprintf("Платеж по кредиту #%d", loan.ID), now)
		if err != nil {
			return err
		}

		loan.OutstandingPrincipal = alloc.OutstandingAfter
		loan.PaidAmount = Round2(loan.PaidAmount.Add(alloc.Effective))
		loan.LastPaymentDate = timePtr(now)
		if alloc.Closes() {
			loan.OutstandingPrincipal = decimal.Zero
			loan.Status = models.LoanStatusClosed
			loan.NextPaymentDueDate = nil
		} else {
			base := now
			if loan.NextPaymentDueDate != nil {
				base = *loan.NextPaymentDueDate
			}
			loan.NextPaymentDueDate = timePtr(base.AddDate(0, 1, 0))
		}
		if err := tx.SaveLoan(loan); err != nil {
			return apperrors.Internal(err)
		}

		note := "Ежемесячный платеж"
		if alloc.Clamped() {
			note = fmt.Sprintf("Запрошено %s, списано %s (полное погашение)",
				alloc.Requested.StringFixed(2), alloc.Effective.StringFixed(2))
		}
		payment := &models.LoanPayment{
			LoanID:                    loan.ID,
			PaymentDate:               now,
			AmountPaid:                alloc.Effective,
			PrincipalPaid:             alloc.Principal,
			InterestPaid:              alloc.Interest,
			OutstandingPrincipalAfter: loan.OutstandingPrincipal,
			Note:                      note,
		}
		if err := tx.CreateLoanPayment(payment); err != nil {
			return apperrors.Internal(err)
		}

		result = &LoanPaymentResult{Loan: *loan, Payment: *payment, Allocation: alloc, CardBalance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PayPenalty погашает накопленный штраф целиком и возвращает кредит в active
// с льготным сроком следующего платежа
func (s *LoanService) PayPenalty(ctx context.Context, userID, loanID uint) (result *PenaltyPaymentResult, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("loan.penalty_payment", start, err) }()

	if _, err := s.ApplyPenalties(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.cards.RefreshCard(ctx, userID); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx database.Tx) error {
		now := s.now()
		loan, err := lockOwnedLoan(tx, userID, loanID, now)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusUnpaid {
			return apperrors.InvalidState(fmt.Sprintf("по кредиту нет просрочки (статус: %s)", loan.Status))
		}
		if !loan.AccruedPenalty.IsPositive() {
			return apperrors.InvalidState("штраф по кредиту не начислен")
		}

		card, err := lockActiveCard(tx, userID, now)
		if err != nil {
			return err
		}
		penalty := loan.AccruedPenalty
		balance, err := DebitCard(tx, card.ID, penalty)
		if err != nil {
			return err
		}
		_, err = recordTransaction(tx, models.TransactionKindPenaltyPayment, uintPtr(card.ID), nil, penalty,
			fmt.Sprintf("Погашение штрафа по кредиту #%d", loan.ID), now)
		if err != nil {
			return err
		}

		loan.AccruedPenalty = decimal.Zero
		loan.LastPenaltyCalculationDate = nil
		loan.NextPaymentDueDate = timePtr(now.Add(penaltyGracePeriod))
		loan.Status = models.LoanStatusActive
		if err := tx.SaveLoan(loan); err != nil {
			return apperrors.Internal(err)
		}

		payment := &models.LoanPayment{
			LoanID:                    loan.ID,
			PaymentDate:               now,
			AmountPaid:                penalty,
			PrincipalPaid:             decimal.Zero,
			InterestPaid:              decimal.Zero,
			OutstandingPrincipalAfter: loan.OutstandingPrincipal,
			Note:                      fmt.Sprintf("Погашение штрафа %s", penalty.StringFixed(2)),
		}
		if err := tx.CreateLoanPayment(payment); err != nil {
			return apperrors.Internal(err)
		}

		result = &PenaltyPaymentResult{Loan: *loan, Payment: *payment, PenaltyPaid: penalty, CardBalance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete удаляет закрытый или отклоненный кредит вместе с историей платежей
func (s *LoanService) Delete(ctx context.Context, userID, loanID uint) (err error) {
	start := time.Now()
	defer func() { utils.LogOperation("loan.delete", start, err) }()

	return s.store.Transaction(ctx, func(tx database.Tx) error {
		loan, err := tx.LockLoan(loanID)
		if err != nil {
			return storeErr(err, "кредит не найден")
		}
		if loan.UserID != userID {
			return apperrors.NotFound("кредит не найден")
		}
		if loan.Status != models.LoanStatusClosed && loan.Status != models.LoanStatusRejected {
			return apperrors.InvalidState("удалить можно только закрытый или отклоненный кредит")
		}
		return storeErr(tx.DeleteLoan(loanID), "кредит не найден")
	})
}
