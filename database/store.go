package database

import (
	"context"
	"errors"
	"sort"

	"bankcore/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate нарушено ограничение уникальности
	ErrDuplicate = errors.New("duplicate key")
	// ErrInsufficientBalance списание сделало бы баланс отрицательным
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBalanceCeiling зачисление превысило бы максимальный баланс
	ErrBalanceCeiling = errors.New("balance ceiling exceeded")
)

// Store хранилище с поддержкой атомарных транзакций.
// Если fn возвращает ошибку, все изменения внутри транзакции откатываются.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx набор операций, доступных внутри одной транзакции.
// Методы Lock* блокируют строки до конца транзакции.
type Tx interface {
	UserByID(id uint) (*models.User, error)
	UserByEmail(email string) (*models.User, error)
	LockUser(id uint) (*models.User, error)
	CreateUser(user *models.User) error
	UpdateUserRole(id uint, role models.Role) error

	CardByID(id uint) (*models.Card, error)
	CardByHolder(userID uint) (*models.Card, error)
	CardByNumber(number string) (*models.Card, error)
	// LockCards блокирует карты в порядке возрастания id и возвращает их в том же порядке
	LockCards(ids ...uint) ([]models.Card, error)
	CardNumberExists(number string) (bool, error)
	CardsByStatus(statuses ...models.CardStatus) ([]models.Card, error)
	CreateCard(card *models.Card) error
	// SaveCard сохраняет все поля карты, кроме баланса
	SaveCard(card *models.Card) error
	DeleteCard(id uint) error
	// AdjustCardBalance атомарно меняет баланс на delta и возвращает новый баланс.
	// Возвращает ErrInsufficientBalance, если баланс стал бы отрицательным,
	// и ErrBalanceCeiling, если он превысил бы ceiling.
	AdjustCardBalance(id uint, delta, ceiling decimal.Decimal) (decimal.Decimal, error)

	CreateCardTransaction(t *models.CardTransaction) error
	CardTransactions(cardID uint) ([]models.CardTransaction, error)

	CreateDeposit(d *models.Deposit) error
	LockDeposit(id uint) (*models.Deposit, error)
	DepositsByUser(userID uint) ([]models.Deposit, error)
	DepositsByStatus(status models.DepositStatus) ([]models.Deposit, error)
	SaveDeposit(d *models.Deposit) error

	CreateLoan(l *models.Loan) error
	LockLoan(id uint) (*models.Loan, error)
	LoansByUser(userID uint) ([]models.Loan, error)
	LoansByStatus(status models.LoanStatus) ([]models.Loan, error)
	SaveLoan(l *models.Loan) error
	// DeleteLoan удаляет кредит вместе с историей платежей
	DeleteLoan(id uint) error
	CreateLoanPayment(p *models.LoanPayment) error
	LoanPayments(loanID uint) ([]models.LoanPayment, error)
}

// uniqueSorted возвращает id без повторов в порядке возрастания
func uniqueSorted(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
