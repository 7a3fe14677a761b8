package services

import (
	"context"
	"testing"
	"time"

	"bankcore/apperrors"
	"bankcore/models"

	"github.com/shopspring/decimal"
)

// approvedLoan оформляет и одобряет кредит для клиента с заданным балансом
func (e *testEnv) approvedLoan(t *testing.T, email, balance, amount string, term int) (uint, *models.Card, *models.Loan) {
	t.Helper()
	ctx := context.Background()
	userID, card := e.activeClient(t, email, balance)

	loan, err := e.loans.Apply(ctx, userID, dec(amount), term)
	if err != nil {
		t.Fatalf("apply loan: %v", err)
	}
	loan, err = e.admin.DecideLoan(ctx, adminActor, loan.ID, LoanDecision{Approve: true})
	if err != nil {
		t.Fatalf("approve loan: %v", err)
	}
	return userID, card, loan
}

func TestLoanApplyValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, _ := env.activeClient(t, "val@example.com", "0")

	cases := []struct {
		name   string
		amount string
		term   int
	}{
		{"zero amount", "0", 12},
		{"fractional cents", "10.001", 12},
		{"above maximum", "1000000.01", 12},
		{"zero term", "1000", 0},
		{"term too long", "1000", 121},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.loans.Apply(ctx, userID, dec(tc.amount), tc.term)
			assertKind(t, err, apperrors.KindValidation)
		})
	}
}

func TestLoanSingleOpenLoan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, _ := env.activeClient(t, "single@example.com", "0")

	loan, err := env.loans.Apply(ctx, userID, dec("1000"), 6)
	if err != nil {
		t.Fatal(err)
	}
	if loan.Status != models.LoanStatusWaiting {
		t.Fatalf("status = %s", loan.Status)
	}
	assertDecimal(t, "default rate", loan.InterestRate, "15")

	_, err = env.loans.Apply(ctx, userID, dec("500"), 3)
	assertKind(t, err, apperrors.KindInvalidState)

	if _, err := env.admin.DecideLoan(ctx, adminActor, loan.ID, LoanDecision{Approve: true}); err != nil {
		t.Fatal(err)
	}
	_, err = env.loans.Apply(ctx, userID, dec("500"), 3)
	assertKind(t, err, apperrors.KindInvalidState)

	// Просроченный кредит также блокирует новую заявку
	env.clock.Advance(32 * 24 * time.Hour)
	_, err = env.loans.Apply(ctx, userID, dec("500"), 3)
	assertKind(t, err, apperrors.KindInvalidState)
	if got := env.loan(t, loan.ID).Status; got != models.LoanStatusUnpaid {
		t.Errorf("status = %s, want unpaid", got)
	}
}

func TestLoanRejectedAllowsNewApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, card := env.activeClient(t, "rej@example.com", "0")

	loan, err := env.loans.Apply(ctx, userID, dec("1000"), 6)
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.admin.DecideLoan(ctx, Identity{UserID: userID, Role: models.RoleClient}, loan.ID, LoanDecision{Approve: true})
	assertKind(t, err, apperrors.KindForbidden)

	rejected, err := env.admin.DecideLoan(ctx, adminActor, loan.ID, LoanDecision{Approve: false})
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != models.LoanStatusRejected {
		t.Errorf("status = %s", rejected.Status)
	}
	assertDecimal(t, "balance", env.card(t, card.ID).Balance, "0")

	_, err = env.admin.DecideLoan(ctx, adminActor, loan.ID, LoanDecision{Approve: true})
	assertKind(t, err, apperrors.KindInvalidState)

	if _, err := env.loans.Apply(ctx, userID, dec("200"), 2); err != nil {
		t.Fatalf("apply after rejection: %v", err)
	}
	if err := env.loans.Delete(ctx, userID, loan.ID); err != nil {
		t.Fatalf("delete rejected loan: %v", err)
	}
}

func TestLoanApprovalAndPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, card, loan := env.approvedLoan(t, "pay@example.com", "500", "1000", 6)

	if loan.Status != models.LoanStatusActive {
		t.Fatalf("status = %s", loan.Status)
	}
	assertDecimal(t, "emi", loan.MonthlyPayment, "174.03")
	assertDecimal(t, "outstanding", loan.OutstandingPrincipal, "1000")
	assertDecimal(t, "balance after disbursement", env.card(t, card.ID).Balance, "1500")
	firstDue := env.clock.Now().AddDate(0, 1, 0)
	if loan.NextPaymentDueDate == nil || !loan.NextPaymentDueDate.Equal(firstDue) {
		t.Fatalf("next due = %v, want %v", loan.NextPaymentDueDate, firstDue)
	}

	_, err := env.loans.MakePayment(ctx, userID+100, loan.ID, dec("174.03"))
	assertKind(t, err, apperrors.KindNotFound)

	res, err := env.loans.MakePayment(ctx, userID, loan.ID, dec("174.03"))
	if err != nil {
		t.Fatalf("MakePayment: %v", err)
	}
	assertDecimal(t, "interest", res.Payment.InterestPaid, "12.50")
	assertDecimal(t, "principal", res.Payment.PrincipalPaid, "161.53")
	assertDecimal(t, "outstanding", res.Loan.OutstandingPrincipal, "838.47")
	assertDecimal(t, "paid", res.Loan.PaidAmount, "174.03")
	assertDecimal(t, "card balance", res.CardBalance, "1325.97")
	if res.Allocation.Clamped() {
		t.Error("regular payment must not be clamped")
	}
	if want := firstDue.AddDate(0, 1, 0); !res.Loan.NextPaymentDueDate.Equal(want) {
		t.Errorf("next due = %v, want %v", res.Loan.NextPaymentDueDate, want)
	}

	loans, err := env.loans.GetUserLoans(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loans) != 1 || len(loans[0].Payments) != 1 {
		t.Fatalf("expected one loan with one payment, got %+v", loans)
	}
}

// Любой платеж, после которого остается долг, переносит срок на месяц, даже если он не покрывает проценты
func TestLoanPartialPaymentAdvancesDueDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, _, loan := env.approvedLoan(t, "cent@example.com", "0", "1000", 6)
	firstDue := *loan.NextPaymentDueDate

	res, err := env.loans.MakePayment(ctx, userID, loan.ID, dec("0.01"))
	if err != nil {
		t.Fatalf("MakePayment: %v", err)
	}
	assertDecimal(t, "interest", res.Payment.InterestPaid, "0.01")
	assertDecimal(t, "principal", res.Payment.PrincipalPaid, "0")
	assertDecimal(t, "outstanding", res.Loan.OutstandingPrincipal, "1000")
	if want := firstDue.AddDate(0, 1, 0); !res.Loan.NextPaymentDueDate.Equal(want) {
		t.Errorf("next due = %v, want %v", res.Loan.NextPaymentDueDate, want)
	}

	env.clock.Advance(40 * 24 * time.Hour)
	loans, err := env.loans.GetUserLoans(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if loans[0].Status != models.LoanStatusActive {
		t.Errorf("status = %s, want active before the moved due date", loans[0].Status)
	}
}

func TestLoanPaymentClampedToPayoff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, card, loan := env.approvedLoan(t, "clamp@example.com", "500", "1000", 6)

	err := env.loans.Delete(ctx, userID, loan.ID)
	assertKind(t, err, apperrors.KindInvalidState)

	res, err := env.loans.MakePayment(ctx, userID, loan.ID, dec("5000"))
	if err != nil {
		t.Fatalf("MakePayment: %v", err)
	}
	if !res.Allocation.Clamped() {
		t.Error("overpayment must be clamped")
	}
	assertDecimal(t, "effective", res.Payment.AmountPaid, "1012.50")
	assertDecimal(t, "card balance", env.card(t, card.ID).Balance, "487.50")
	if res.Loan.Status != models.LoanStatusClosed || !res.Loan.OutstandingPrincipal.IsZero() {
		t.Fatalf("loan not closed: %+v", res.Loan)
	}
	if res.Loan.NextPaymentDueDate != nil {
		t.Error("closed loan must have no next due date")
	}

	_, err = env.loans.MakePayment(ctx, userID, loan.ID, dec("10"))
	assertKind(t, err, apperrors.KindInvalidState)

	if err := env.loans.Delete(ctx, userID, loan.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loans, err := env.loans.GetUserLoans(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loans) != 0 {
		t.Errorf("loan still listed after delete: %+v", loans)
	}
}

func TestLoanInsufficientFundsLeavesLoanUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, card, loan := env.approvedLoan(t, "broke@example.com", "0", "1000", 6)

	_, err := env.loans.MakePayment(ctx, userID, loan.ID, dec("1000.01"))
	assertKind(t, err, apperrors.KindInsufficient)

	stored := env.loan(t, loan.ID)
	assertDecimal(t, "outstanding", stored.OutstandingPrincipal, "1000")
	assertDecimal(t, "paid", stored.PaidAmount, "0")
	assertDecimal(t, "card balance", env.card(t, card.ID).Balance, "1000")
}

func TestLoanPenaltyFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, card, loan := env.approvedLoan(t, "late@example.com", "500", "1000", 6)

	env.clock.Advance(32 * 24 * time.Hour)

	loans, err := env.loans.GetUserLoans(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if loans[0].Status != models.LoanStatusUnpaid {
		t.Fatalf("status = %s, want unpaid", loans[0].Status)
	}
	assertDecimal(t, "initial penalty", loans[0].AccruedPenalty, "60.91")

	_, err = env.loans.MakePayment(ctx, userID, loan.ID, dec("174.03"))
	assertKind(t, err, apperrors.KindInvalidState)

	env.clock.Advance(15 * 24 * time.Hour)

	res, err := env.loans.PayPenalty(ctx, userID, loan.ID)
	if err != nil {
		t.Fatalf("PayPenalty: %v", err)
	}
	assertDecimal(t, "penalty paid", res.PenaltyPaid, "182.73")
	assertDecimal(t, "card balance", env.card(t, card.ID).Balance, "1317.27")
	if res.Loan.Status != models.LoanStatusActive {
		t.Errorf("status = %s, want active", res.Loan.Status)
	}
	if !res.Loan.AccruedPenalty.IsZero() {
		t.Errorf("penalty = %s, want 0", res.Loan.AccruedPenalty)
	}
	if want := env.clock.Now().Add(3 * 24 * time.Hour); !res.Loan.NextPaymentDueDate.Equal(want) {
		t.Errorf("next due = %v, want %v", res.Loan.NextPaymentDueDate, want)
	}
	assertDecimal(t, "principal unchanged", res.Payment.OutstandingPrincipalAfter, "1000")

	_, err = env.loans.PayPenalty(ctx, userID, loan.ID)
	assertKind(t, err, apperrors.KindInvalidState)

	if _, err := env.loans.MakePayment(ctx, userID, loan.ID, dec("174.03")); err != nil {
		t.Fatalf("payment after penalty: %v", err)
	}
}

func TestLoanDecisionOverrides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, _ := env.activeClient(t, "override@example.com", "0")

	loan, err := env.loans.Apply(ctx, userID, dec("1000"), 6)
	if err != nil {
		t.Fatal(err)
	}

	badRate := dec("100.5")
	_, err = env.admin.DecideLoan(ctx, adminActor, loan.ID, LoanDecision{Approve: true, InterestRate: &badRate})
	assertKind(t, err, apperrors.KindValidation)

	rate := decimal.Zero
	term := 10
	approved, err := env.admin.DecideLoan(ctx, adminActor, loan.ID, LoanDecision{Approve: true, InterestRate: &rate, TermMonths: &term})
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "emi", approved.MonthlyPayment, "100")
	if approved.TermMonths != 10 {
		t.Errorf("term = %d", approved.TermMonths)
	}
}
