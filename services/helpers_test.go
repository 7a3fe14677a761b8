package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bankcore/apperrors"
	"bankcore/database"
	"bankcore/models"

	"github.com/shopspring/decimal"
)

var adminActor = Identity{UserID: 1_000_000, Role: models.RoleAdmin}

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	store     *database.MemoryStore
	clock     *testClock
	cards     *CardService
	transfers *TransferService
	deposits  *DepositService
	loans     *LoanService
	admin     *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := database.NewMemoryStore()
	clock := &testClock{t: time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)}

	cards := NewCardService(store)
	cards.now = clock.Now
	transfers := NewTransferService(store, cards)
	transfers.now = clock.Now
	deposits := NewDepositService(store, cards)
	deposits.now = clock.Now
	loans := NewLoanService(store, cards)
	loans.now = clock.Now
	admin := NewAdminService(store, loans, deposits)
	admin.now = clock.Now

	return &testEnv{
		store:     store,
		clock:     clock,
		cards:     cards,
		transfers: transfers,
		deposits:  deposits,
		loans:     loans,
		admin:     admin,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newUser создает пользователя напрямую в хранилище, минуя bcrypt
func (e *testEnv) newUser(t *testing.T, email string) uint {
	t.Helper()
	var id uint
	err := e.store.Transaction(context.Background(), func(tx database.Tx) error {
		u := &models.User{Name: "Test User", Email: email, PasswordHash: "hash"}
		if err := tx.CreateUser(u); err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

// activeClient создает пользователя с подтвержденной картой и заданным балансом
func (e *testEnv) activeClient(t *testing.T, email, balance string) (uint, *models.Card) {
	t.Helper()
	ctx := context.Background()
	userID := e.newUser(t, email)

	card, err := e.cards.CreateCard(ctx, userID, "1234")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	if _, err := e.admin.ConfirmCard(ctx, adminActor, card.ID); err != nil {
		t.Fatalf("confirm card: %v", err)
	}

	remaining := dec(balance)
	for remaining.IsPositive() {
		chunk := decimal.Min(remaining, MaxTopUpAmount)
		if _, err := e.cards.TopUp(ctx, userID, chunk); err != nil {
			t.Fatalf("top up: %v", err)
		}
		remaining = remaining.Sub(chunk)
	}

	return userID, e.card(t, card.ID)
}

func (e *testEnv) card(t *testing.T, id uint) *models.Card {
	t.Helper()
	var card *models.Card
	err := e.store.Transaction(context.Background(), func(tx database.Tx) error {
		var err error
		card, err = tx.CardByID(id)
		return err
	})
	if err != nil {
		t.Fatalf("load card %d: %v", id, err)
	}
	return card
}

func (e *testEnv) user(t *testing.T, id uint) *models.User {
	t.Helper()
	var user *models.User
	err := e.store.Transaction(context.Background(), func(tx database.Tx) error {
		var err error
		user, err = tx.UserByID(id)
		return err
	})
	if err != nil {
		t.Fatalf("load user %d: %v", id, err)
	}
	return user
}

func (e *testEnv) loan(t *testing.T, id uint) *models.Loan {
	t.Helper()
	var loan *models.Loan
	err := e.store.Transaction(context.Background(), func(tx database.Tx) error {
		var err error
		loan, err = tx.LockLoan(id)
		return err
	})
	if err != nil {
		t.Fatalf("load loan %d: %v", id, err)
	}
	return loan
}

func assertKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperrors.Error of kind %s, got %T: %v", kind, err, err)
	}
	if appErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%s)", kind, appErr.Kind, appErr.Message)
	}
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got.StringFixed(2), want)
	}
}
