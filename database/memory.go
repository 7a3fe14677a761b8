package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"bankcore/models"

	"github.com/shopspring/decimal"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)

// MemoryStore хранилище в памяти для разработки и тестов.
// Транзакции выполняются строго по очереди над копией состояния;
// копия заменяет состояние только при успешном завершении fn.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	users        map[uint]models.User
	cards        map[uint]models.Card
	transactions map[uint]models.CardTransaction
	deposits     map[uint]models.Deposit
	loans        map[uint]models.Loan
	payments     map[uint]models.LoanPayment
	seq          uint
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		users:        map[uint]models.User{},
		cards:        map[uint]models.Card{},
		transactions: map[uint]models.CardTransaction{},
		deposits:     map[uint]models.Deposit{},
		loans:        map[uint]models.Loan{},
		payments:     map[uint]models.LoanPayment{},
	}}
}

// Transaction выполняет fn над копией состояния
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (st *memState) clone() *memState {
	return &memState{
		users:        cloneMap(st.users),
		cards:        cloneMap(st.cards),
		transactions: cloneMap(st.transactions),
		deposits:     cloneMap(st.deposits),
		loans:        cloneMap(st.loans),
		payments:     cloneMap(st.payments),
		seq:          st.seq,
	}
}

// cloneMap копирует записи по значению. Поля-указатели сервисы не изменяют на месте,
// а заменяют целиком, поэтому поверхностной копии достаточно.
func cloneMap[T any](m map[uint]T) map[uint]T {
	out := make(map[uint]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *memState) nextID() uint {
	st.seq++
	return st.seq
}

// sortedValues возвращает записи, прошедшие фильтр, в порядке возрастания id
func sortedValues[T any](m map[uint]T, keep func(T) bool) []T {
	ids := make([]uint, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

type memTx struct {
	st *memState
}

// Методы для работы с пользователями

func (t *memTx) UserByID(id uint) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) UserByEmail(email string) (*models.User, error) {
	for _, u := range t.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) LockUser(id uint) (*models.User, error) {
	return t.UserByID(id)
}

func (t *memTx) CreateUser(user *models.User) error {
	if _, err := t.UserByEmail(user.Email); err == nil {
		return ErrDuplicate
	}
	if user.Role == "" {
		user.Role = models.RoleNone
	}
	now := time.Now()
	user.ID = t.st.nextID()
	user.CreatedAt, user.UpdatedAt = now, now
	t.st.users[user.ID] = *user
	return nil
}

func (t *memTx) UpdateUserRole(id uint, role models.Role) error {
	u, ok := t.st.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	t.st.users[id] = u
	return nil
}

// Методы для работы с картами

func (t *memTx) CardByID(id uint) (*models.Card, error) {
	c, ok := t.st.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (t *memTx) CardByHolder(userID uint) (*models.Card, error) {
	for _, c := range t.st.cards {
		if c.HolderID == userID {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) CardByNumber(number string) (*models.Card, error) {
	for _, c := range t.st.cards {
		if c.Number == number {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) LockCards(ids ...uint) ([]models.Card, error) {
	var cards []models.Card
	for _, id := range uniqueSorted(ids) {
		c, ok := t.st.cards[id]
		if !ok {
			return nil, ErrNotFound
		}
		cards = append(cards, c)
	}
	return cards, nil
}

func (t *memTx) CardNumberExists(number string) (bool, error) {
	_, err := t.CardByNumber(number)
	return err == nil, nil
}

func (t *memTx) CardsByStatus(statuses ...models.CardStatus) ([]models.Card, error) {
	return sortedValues(t.st.cards, func(c models.Card) bool {
		for _, s := range statuses {
			if c.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (t *memTx) CreateCard(card *models.Card) error {
	for _, c := range t.st.cards {
		if c.Number == card.Number || c.HolderID == card.HolderID {
			return ErrDuplicate
		}
	}
	now := time.Now()
	card.ID = t.st.nextID()
	card.CreatedAt, card.UpdatedAt = now, now
	t.st.cards[card.ID] = *card
	return nil
}

func (t *memTx) SaveCard(card *models.Card) error {
	stored, ok := t.st.cards[card.ID]
	if !ok {
		return ErrNotFound
	}
	for id, c := range t.st.cards {
		if id != card.ID && c.Number == card.Number {
			return ErrDuplicate
		}
	}
	stored.Number = card.Number
	stored.CVV = card.CVV
	stored.PIN = card.PIN
	stored.DueDate = card.DueDate
	stored.Status = card.Status
	stored.UpdatedAt = time.Now()
	t.st.cards[card.ID] = stored
	return nil
}

func (t *memTx) DeleteCard(id uint) error {
	if _, ok := t.st.cards[id]; !ok {
		return ErrNotFound
	}
	delete(t.st.cards, id)
	return nil
}

func (t *memTx) AdjustCardBalance(id uint, delta, ceiling decimal.Decimal) (decimal.Decimal, error) {
	c, ok := t.st.cards[id]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	next := c.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientBalance
	}
	if next.GreaterThan(ceiling) {
		return decimal.Zero, ErrBalanceCeiling
	}
	c.Balance = next
	c.UpdatedAt = time.Now()
	t.st.cards[id] = c
	return next, nil
}

func (t *memTx) CreateCardTransaction(ct *models.CardTransaction) error {
	for _, existing := range t.st.transactions {
		if existing.Reference == ct.Reference {
			return ErrDuplicate
		}
	}
	ct.ID = t.st.nextID()
	t.st.transactions[ct.ID] = *ct
	return nil
}

func (t *memTx) CardTransactions(cardID uint) ([]models.CardTransaction, error) {
	list := sortedValues(t.st.transactions, func(ct models.CardTransaction) bool {
		return (ct.SenderCardID != nil && *ct.SenderCardID == cardID) ||
			(ct.ReceiverCardID != nil && *ct.ReceiverCardID == cardID)
	})
	// Новые записи первыми
	sort.SliceStable(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

// Методы для работы с депозитами

func (t *memTx) CreateDeposit(d *models.Deposit) error {
	now := time.Now()
	d.ID = t.st.nextID()
	d.CreatedAt, d.UpdatedAt = now, now
	t.st.deposits[d.ID] = *d
	return nil
}

func (t *memTx) LockDeposit(id uint) (*models.Deposit, error) {
	d, ok := t.st.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (t *memTx) DepositsByUser(userID uint) ([]models.Deposit, error) {
	return sortedValues(t.st.deposits, func(d models.Deposit) bool { return d.UserID == userID }), nil
}

func (t *memTx) DepositsByStatus(status models.DepositStatus) ([]models.Deposit, error) {
	return sortedValues(t.st.deposits, func(d models.Deposit) bool { return d.Status == status }), nil
}

func (t *memTx) SaveDeposit(d *models.Deposit) error {
	if _, ok := t.st.deposits[d.ID]; !ok {
		return ErrNotFound
	}
	d.UpdatedAt = time.Now()
	t.st.deposits[d.ID] = *d
	return nil
}

// Методы для работы с кредитами

func (t *memTx) CreateLoan(l *models.Loan) error {
	if l.IsOpen() {
		for _, existing := range t.st.loans {
			if existing.UserID == l.UserID && existing.IsOpen() {
				return ErrDuplicate
			}
		}
	}
	now := time.Now()
	l.ID = t.st.nextID()
	l.CreatedAt, l.UpdatedAt = now, now
	stored := *l
	stored.Payments = nil
	t.st.loans[l.ID] = stored
	return nil
}

func (t *memTx) LockLoan(id uint) (*models.Loan, error) {
	l, ok := t.st.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (t *memTx) LoansByUser(userID uint) ([]models.Loan, error) {
	list := sortedValues(t.st.loans, func(l models.Loan) bool { return l.UserID == userID })
	for i := range list {
		payments, _ := t.LoanPayments(list[i].ID)
		list[i].Payments = payments
	}
	return list, nil
}

func (t *memTx) LoansByStatus(status models.LoanStatus) ([]models.Loan, error) {
	return sortedValues(t.st.loans, func(l models.Loan) bool { return l.Status == status }), nil
}

func (t *memTx) SaveLoan(l *models.Loan) error {
	if _, ok := t.st.loans[l.ID]; !ok {
		return ErrNotFound
	}
	l.UpdatedAt = time.Now()
	stored := *l
	stored.Payments = nil
	t.st.loans[l.ID] = stored
	return nil
}

func (t *memTx) DeleteLoan(id uint) error {
	if _, ok := t.st.loans[id]; !ok {
		return ErrNotFound
	}
	for pid, p := range t.st.payments {
		if p.LoanID == id {
			delete(t.st.payments, pid)
		}
	}
	delete(t.st.loans, id)
	return nil
}

func (t *memTx) CreateLoanPayment(p *models.LoanPayment) error {
	if _, ok := t.st.loans[p.LoanID]; !ok {
		return ErrNotFound
	}
	p.ID = t.st.nextID()
	t.st.payments[p.ID] = *p
	return nil
}

func (t *memTx) LoanPayments(loanID uint) ([]models.LoanPayment, error) {
	return sortedValues(t.st.payments, func(p models.LoanPayment) bool { return p.LoanID == loanID }), nil
}
