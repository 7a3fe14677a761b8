package services

import (
	"context"
	"fmt"
	"time"

	"bankcore/apperrors"
	"bankcore/database"
	"bankcore/models"
	"bankcore/utils"
)

// AdminService решения администратора по картам, кредитам и депозитам.
// Каждый метод требует роль ADMIN.
type AdminService struct {
	store    database.Store
	loans    *LoanService
	deposits *DepositService
	now      func() time.Time
}

// NewAdminService создает новый экземпляр AdminService
func NewAdminService(store database.Store, loans *LoanService, deposits *DepositService) *AdminService {
	return &AdminService{store: store, loans: loans, deposits: deposits, now: time.Now}
}

// transitionCard меняет статус заблокированной карты, если текущий статус входит в from
func (s *AdminService) transitionCard(ctx context.Context, cardID uint, from []models.CardStatus,
	apply func(tx database.Tx, card *models.Card, now time.Time) error) (*models.Card, error) {
	var card *models.Card
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		locked, err := tx.LockCards(cardID)
		if err != nil {
			return storeErr(err, "карта не найдена")
		}
		card = &locked[0]

		now := s.now()
		if err := expireInTx(tx, card, now); err != nil {
			return err
		}

		allowed := false
		for _, status := range from {
			if card.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperrors.InvalidState(fmt.Sprintf("операция недоступна для карты в статусе %s", card.Status))
		}
		return apply(tx, card, now)
	})
	return card, err
}

// promoteHolder повышает роль владельца с NONE до CLIENT
func promoteHolder(tx database.Tx, holderID uint) error {
	owner, err := tx.UserByID(holderID)
	if err != nil {
		return storeErr(err, "владелец карты не найден")
	}
	if owner.Role != models.RoleNone {
		return nil
	}
	return storeErr(tx.UpdateUserRole(holderID, models.RoleClient), "владелец карты не найден")
}

// ConfirmCard активирует новую карту: срок действия на 10 лет от месяца подтверждения
func (s *AdminService) ConfirmCard(ctx context.Context, actor Identity, cardID uint) (card *models.Card, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("admin.confirm_card", start, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	card, err = s.transitionCard(ctx, cardID, []models.CardStatus{models.CardStatusWaitingApproval},
		func(tx database.Tx, card *models.Card, now time.Time) error {
			card.Status = models.CardStatusActive
			card.DueDate = FutureDueDate(now, CardValidityYears)
			if err := tx.SaveCard(card); err != nil {
				return apperrors.Internal(err)
			}
			return promoteHolder(tx, card.HolderID)
		})
	if err != nil {
		return nil, err
	}
	utils.GetMetrics().RecordCardEvent("confirm")
	return card, nil
}

// RejectCard отклоняет заявку на карту; карта удаляется
func (s *AdminService) RejectCard(ctx context.Context, actor Identity, cardID uint) (card *models.Card, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("admin.reject_card", start, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	card, err = s.transitionCard(ctx, cardID, []models.CardStatus{models.CardStatusWaitingApproval},
		func(tx database.Tx, card *models.Card, _ time.Time) error {
			card.Status = models.CardStatusRejected
			return storeErr(tx.DeleteCard(card.ID), "карта не найдена")
		})
	if err != nil {
		return nil, err
	}
	utils.GetMetrics().RecordCardEvent("reject")
	return card, nil
}

// ApproveRenewal активирует перевыпущенную карту
func (s *AdminService) ApproveRenewal(ctx context.Context, actor Identity, cardID uint) (card *models.Card, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("admin.approve_renewal", start, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	card, err = s.transitionCard(ctx, cardID, []models.CardStatus{models.CardStatusRenewalPending},
		func(tx database.Tx, card *models.Card, _ time.Time) error {
			card.Status = models.CardStatusActive
			if err := tx.SaveCard(card); err != nil {
				return apperrors.Internal(err)
			}
			return promoteHolder(tx, card.HolderID)
		})
	if err != nil {
		return nil, err
	}
	utils.GetMetrics().RecordCardEvent("renewal_approved")
	return card, nil
}

// BlockCard блокирует активную карту
func (s *AdminService) BlockCard(ctx context.Context, actor Identity, cardID uint) (card *models.Card, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("admin.block_card", start, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	card, err = s.transitionCard(ctx, cardID, []models.CardStatus{models.CardStatusActive},
		func(tx database.Tx, card *models.Card, _ time.Time) error {
			card.Status = models.CardStatusBlocked
			return storeErr(tx.SaveCard(card), "карта не найдена")
		})
	if err != nil {
		return nil, err
	}
	utils.GetMetrics().RecordCardEvent("block")
	return card, nil
}

// UnblockCard снимает блокировку; истекший за время блокировки срок применится при следующем обращении
func (s *AdminService) UnblockCard(ctx context.Context, actor Identity, cardID uint) (card *models.Card, err error) {
	start := time.Now()
	defer func() { utils.LogOperation("admin.unblock_card", start, err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	card, err = s.transitionCard(ctx, cardID, []models.CardStatus{models.CardStatusBlocked},
		func(tx database.Tx, card *models.Card, now time.Time) error {
			card.Status = models.CardStatusActive
			*card, _ = CheckAndHandleExpiry(*card, now)
			return storeErr(tx.SaveCard(card), "карта не найдена")
		})
	if err != nil {
		return nil, err
	}
	utils.GetMetrics().RecordCardEvent("unblock")
	return card, nil
}

// DecideLoan решение по заявке на кредит
func (s *AdminService) DecideLoan(ctx context.Context, actor Identity, loanID uint, decision LoanDecision) (*models.Loan, error) {
	return s.loans.Decide(ctx, actor, loanID, decision)
}

// DecideDeposit решение по заявке на депозит
func (s *AdminService) DecideDeposit(ctx context.Context, actor Identity, depositID uint, approve bool) (*models.Deposit, error) {
	return s.deposits.Decide(ctx, actor, depositID, approve)
}

// PendingCards карты, ожидающие подтверждения или перевыпуска
func (s *AdminService) PendingCards(ctx context.Context, actor Identity) ([]models.Card, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var cards []models.Card
	err := s.store.Transaction(ctx, func(tx database.Tx) error {
		var err error
		cards, err = tx.CardsByStatus(models.CardStatusWaitingApproval, models.CardStatusRenewalPending)
		return storeErr(err, "карты не найдены")
	})
	return cards, err
}

func (s *AdminService) PendingLoans(ctx context.Context, actor Identity) ([]models.Loan, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.loans.Pending(ctx)
}

func (s *AdminService) PendingDeposits(ctx context.Context, actor Identity) ([]models.Deposit, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.deposits.Pending(ctx)
}
