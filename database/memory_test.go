package database

import (
	"context"
	"errors"
	"testing"

	"bankcore/models"

	"github.com/shopspring/decimal"
)

var ceiling = decimal.NewFromInt(1_000_000_000)

func seedCard(t *testing.T, s *MemoryStore, balance string) uint {
	t.Helper()
	var cardID uint
	err := s.Transaction(context.Background(), func(tx Tx) error {
		user := &models.User{Name: "Ivan", Email: "ivan@example.com", PasswordHash: "x"}
		if err := tx.CreateUser(user); err != nil {
			return err
		}
		card := &models.Card{
			HolderID: user.ID,
			Number:   "7679640000000000",
			Status:   models.CardStatusActive,
			Balance:  decimal.RequireFromString(balance),
		}
		if err := tx.CreateCard(card); err != nil {
			return err
		}
		cardID = card.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return cardID
}

func TestMemoryStoreRollback(t *testing.T) {
	s := NewMemoryStore()
	cardID := seedCard(t, s, "100")

	boom := errors.New("boom")
	err := s.Transaction(context.Background(), func(tx Tx) error {
		if _, err := tx.AdjustCardBalance(cardID, decimal.NewFromInt(-40), ceiling); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.Transaction(context.Background(), func(tx Tx) error {
		card, err := tx.CardByID(cardID)
		if err != nil {
			t.Fatal(err)
		}
		if !card.Balance.Equal(decimal.NewFromInt(100)) {
			t.Errorf("balance after rollback = %s, want 100", card.Balance)
		}
		return nil
	})
}

func TestMemoryStoreAdjustBalanceBounds(t *testing.T) {
	s := NewMemoryStore()
	cardID := seedCard(t, s, "100")

	err := s.Transaction(context.Background(), func(tx Tx) error {
		_, err := tx.AdjustCardBalance(cardID, decimal.NewFromInt(-101), ceiling)
		return err
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("debit: expected ErrInsufficientBalance, got %v", err)
	}

	err = s.Transaction(context.Background(), func(tx Tx) error {
		_, err := tx.AdjustCardBalance(cardID, ceiling, ceiling)
		return err
	})
	if !errors.Is(err, ErrBalanceCeiling) {
		t.Errorf("credit: expected ErrBalanceCeiling, got %v", err)
	}

	err = s.Transaction(context.Background(), func(tx Tx) error {
		_, err := tx.AdjustCardBalance(cardID+100, decimal.NewFromInt(1), ceiling)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing card: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUniqueConstraints(t *testing.T) {
	s := NewMemoryStore()
	seedCard(t, s, "0")

	err := s.Transaction(context.Background(), func(tx Tx) error {
		return tx.CreateUser(&models.User{Name: "Other", Email: "ivan@example.com"})
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate email: expected ErrDuplicate, got %v", err)
	}

	err = s.Transaction(context.Background(), func(tx Tx) error {
		user := &models.User{Name: "Petr", Email: "petr@example.com"}
		if err := tx.CreateUser(user); err != nil {
			return err
		}
		return tx.CreateCard(&models.Card{HolderID: user.ID, Number: "7679640000000000"})
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate number: expected ErrDuplicate, got %v", err)
	}
}

func TestMemoryStoreOneOpenLoanPerUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	create := func(userID uint, status models.LoanStatus) error {
		return s.Transaction(ctx, func(tx Tx) error {
			return tx.CreateLoan(&models.Loan{
				UserID:       userID,
				Amount:       decimal.NewFromInt(1000),
				InterestRate: decimal.NewFromInt(15),
				TermMonths:   6,
				Status:       status,
			})
		})
	}

	if err := create(1, models.LoanStatusWaiting); err != nil {
		t.Fatalf("first loan: %v", err)
	}
	if err := create(1, models.LoanStatusWaiting); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second open loan: expected ErrDuplicate, got %v", err)
	}
	if err := create(1, models.LoanStatusRejected); err != nil {
		t.Errorf("rejected loan must not conflict: %v", err)
	}
	if err := create(2, models.LoanStatusWaiting); err != nil {
		t.Errorf("other user: %v", err)
	}
}

func TestMemoryStoreSaveCardKeepsBalance(t *testing.T) {
	s := NewMemoryStore()
	cardID := seedCard(t, s, "250")

	err := s.Transaction(context.Background(), func(tx Tx) error {
		card, err := tx.CardByID(cardID)
		if err != nil {
			return err
		}
		card.Balance = decimal.Zero
		card.Status = models.CardStatusBlocked
		return tx.SaveCard(card)
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Transaction(context.Background(), func(tx Tx) error {
		card, _ := tx.CardByID(cardID)
		if card.Status != models.CardStatusBlocked {
			t.Errorf("status = %s, want blocked", card.Status)
		}
		if !card.Balance.Equal(decimal.NewFromInt(250)) {
			t.Errorf("balance = %s, want 250", card.Balance)
		}
		return nil
	})
}

func TestMemoryStoreDeleteLoanRemovesPayments(t *testing.T) {
	s := NewMemoryStore()
	var loanID uint
	err := s.Transaction(context.Background(), func(tx Tx) error {
		loan := &models.Loan{UserID: 1, Amount: decimal.NewFromInt(1000), Status: models.LoanStatusClosed}
		if err := tx.CreateLoan(loan); err != nil {
			return err
		}
		loanID = loan.ID
		return tx.CreateLoanPayment(&models.LoanPayment{LoanID: loan.ID, AmountPaid: decimal.NewFromInt(1000)})
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.Transaction(context.Background(), func(tx Tx) error {
		return tx.DeleteLoan(loanID)
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Transaction(context.Background(), func(tx Tx) error {
		payments, _ := tx.LoanPayments(loanID)
		if len(payments) != 0 {
			t.Errorf("payments left after delete: %d", len(payments))
		}
		if _, err := tx.LockLoan(loanID); !errors.Is(err, ErrNotFound) {
			t.Errorf("loan still present: %v", err)
		}
		return nil
	})
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Transaction(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected context.Canceled without running fn, got %v (called=%v)", err, called)
	}
}
