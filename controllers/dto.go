package controllers

import (
	"time"

	"bankcore/models"
	"bankcore/services"

	"github.com/shopspring/decimal"
)

// Суммы принимаются и отдаются как decimal: строкой ("100.50") или числом в запросе.

type SignUpRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expiresAt"`
	User      services.UserResponse `json:"user"`
}

// PinRequest тело запросов выпуска и перевыпуска карты
type PinRequest struct {
	PIN string `json:"pin" validate:"required,len=4,numeric"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	ReceiverCardNumber string          `json:"receiverCardNumber" validate:"required,len=16,numeric"`
	Amount             decimal.Decimal `json:"amount"`
	CVV                string          `json:"cvv" validate:"required,len=3,numeric"`
	PIN                string          `json:"pin" validate:"required,len=4,numeric"`
}

// ApplicationRequest заявка на депозит или кредит
type ApplicationRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	TermMonths int             `json:"termMonths" validate:"required,gt=0"`
}

// DecisionRequest решение администратора; ставка и срок учитываются только для кредитов
type DecisionRequest struct {
	Approve      *bool            `json:"approve" binding:"required"`
	InterestRate *decimal.Decimal `json:"interestRate"`
	TermMonths   *int             `json:"termMonths"`
}

type RoleRequest struct {
	Role models.Role `json:"role" binding:"required,oneof=NONE CLIENT ADMIN"`
}

type CardResponse struct {
	ID      uint              `json:"id"`
	Number  string            `json:"number"`
	CVV     string            `json:"cvv"`
	DueDate string            `json:"dueDate"`
	Balance decimal.Decimal   `json:"balance"`
	Status  models.CardStatus `json:"status"`
}

// AdminCardResponse карта без реквизитов для администратора
type AdminCardResponse struct {
	ID       uint              `json:"id"`
	HolderID uint              `json:"holderId"`
	LastFour string            `json:"lastFour"`
	DueDate  string            `json:"dueDate"`
	Status   models.CardStatus `json:"status"`
}

type TransactionResponse struct {
	ID             uint                   `json:"id"`
	Reference      string                 `json:"reference"`
	Kind           models.TransactionKind `json:"kind"`
	SenderCardID   *uint                  `json:"senderCardId,omitempty"`
	ReceiverCardID *uint                  `json:"receiverCardId,omitempty"`
	Amount         decimal.Decimal        `json:"amount"`
	Description    string                 `json:"description"`
	CreatedAt      time.Time              `json:"createdAt"`
}

type TopUpResponse struct {
	Balance     decimal.Decimal     `json:"balance"`
	Transaction TransactionResponse `json:"transaction"`
}

type TransferResponse struct {
	TransactionID uint            `json:"transactionId"`
	Reference     string          `json:"reference"`
	SenderBalance decimal.Decimal `json:"senderBalance"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type DepositResponse struct {
	ID                            uint                 `json:"id"`
	UserID                        uint                 `json:"userId"`
	Amount                        decimal.Decimal      `json:"amount"`
	InterestRate                  decimal.Decimal      `json:"interestRate"`
	TermMonths                    int                  `json:"termMonths"`
	EarlyWithdrawalPenaltyPercent decimal.Decimal      `json:"earlyWithdrawalPenaltyPercent"`
	Status                        models.DepositStatus `json:"status"`
	ApprovedAt                    *time.Time           `json:"approvedAt,omitempty"`
	MaturityDate                  *time.Time           `json:"maturityDate,omitempty"`
	ClosedAt                      *time.Time           `json:"closedAt,omitempty"`
	AccruedInterest               decimal.Decimal      `json:"accruedInterest"`
	CurrentValue                  decimal.Decimal      `json:"currentValue"`
}

type WithdrawalResponse struct {
	Deposit         DepositResponse `json:"deposit"`
	Principal       decimal.Decimal `json:"principal"`
	AccruedInterest decimal.Decimal `json:"accruedInterest"`
	Penalty         decimal.Decimal `json:"penalty"`
	InterestPaid    decimal.Decimal `json:"interestPaid"`
	TotalPayout     decimal.Decimal `json:"totalPayout"`
	CardBalance     decimal.Decimal `json:"cardBalance"`
}

type LoanPaymentResponse struct {
	ID                        uint            `json:"id"`
	PaymentDate               time.Time       `json:"paymentDate"`
	AmountPaid                decimal.Decimal `json:"amountPaid"`
	PrincipalPaid             decimal.Decimal `json:"principalPaid"`
	InterestPaid              decimal.Decimal `json:"interestPaid"`
	OutstandingPrincipalAfter decimal.Decimal `json:"outstandingPrincipalAfter"`
	Note                      string          `json:"note"`
}

type LoanResponse struct {
	ID                   uint                  `json:"id"`
	UserID               uint                  `json:"userId"`
	Amount               decimal.Decimal       `json:"amount"`
	InterestRate         decimal.Decimal       `json:"interestRate"`
	TermMonths           int                   `json:"termMonths"`
	Status               models.LoanStatus     `json:"status"`
	MonthlyPayment       decimal.Decimal       `json:"monthlyPayment"`
	OutstandingPrincipal decimal.Decimal       `json:"outstandingPrincipal"`
	PaidAmount           decimal.Decimal       `json:"paidAmount"`
	AccruedPenalty       decimal.Decimal       `json:"accruedPenalty"`
	LastPaymentDate      *time.Time            `json:"lastPaymentDate,omitempty"`
	NextPaymentDueDate   *time.Time            `json:"nextPaymentDueDate,omitempty"`
	ActivatedAt          *time.Time            `json:"activatedAt,omitempty"`
	Payments             []LoanPaymentResponse `json:"payments"`
}

type LoanPaymentResultResponse struct {
	Loan            LoanResponse        `json:"loan"`
	Payment         LoanPaymentResponse `json:"payment"`
	RequestedAmount decimal.Decimal     `json:"requestedAmount"`
	EffectiveAmount decimal.Decimal     `json:"effectiveAmount"`
	Clamped         bool                `json:"clamped"`
	CardBalance     decimal.Decimal     `json:"cardBalance"`
}

type PenaltyPaymentResponse struct {
	Loan        LoanResponse        `json:"loan"`
	Payment     LoanPaymentResponse `json:"payment"`
	PenaltyPaid decimal.Decimal     `json:"penaltyPaid"`
	CardBalance decimal.Decimal     `json:"cardBalance"`
}

func toCardResponse(c *models.Card) CardResponse {
	return CardResponse{
		ID:      c.ID,
		Number:  c.Number,
		CVV:     c.CVV,
		DueDate: c.DueDate,
		Balance: c.Balance,
		Status:  c.Status,
	}
}

func toAdminCardResponse(c *models.Card) AdminCardResponse {
	return AdminCardResponse{
		ID:       c.ID,
		HolderID: c.HolderID,
		LastFour: c.LastFour(),
		DueDate:  c.DueDate,
		Status:   c.Status,
	}
}

func toTransactionResponse(t models.CardTransaction) TransactionResponse {
	return TransactionResponse{
		ID:             t.ID,
		Reference:      t.Reference,
		Kind:           t.Kind,
		SenderCardID:   t.SenderCardID,
		ReceiverCardID: t.ReceiverCardID,
		Amount:         t.Amount,
		Description:    t.Description,
		CreatedAt:      t.CreatedAt,
	}
}

func toDepositResponse(v services.DepositView) DepositResponse {
	d := v.Deposit
	return DepositResponse{
		ID:                            d.ID,
		UserID:                        d.UserID,
		Amount:                        d.Amount,
		InterestRate:                  d.InterestRate,
		TermMonths:                    d.TermMonths,
		EarlyWithdrawalPenaltyPercent: d.EarlyWithdrawalPenaltyPercent,
		Status:                        d.Status,
		ApprovedAt:                    d.ApprovedAt,
		MaturityDate:                  d.MaturityDate,
		ClosedAt:                      d.ClosedAt,
		AccruedInterest:               v.AccruedInterest,
		CurrentValue:                  v.CurrentValue,
	}
}

// depositView представление депозита без пересчета процентов
func depositView(d models.Deposit) services.DepositView {
	v := services.DepositView{Deposit: d, AccruedInterest: decimal.Zero, CurrentValue: d.Amount}
	if d.AccruedInterest != nil {
		v.AccruedInterest = *d.AccruedInterest
	}
	if d.TotalPayout != nil {
		v.CurrentValue = *d.TotalPayout
	}
	return v
}

func toWithdrawalResponse(r *services.WithdrawalResult) WithdrawalResponse {
	return WithdrawalResponse{
		Deposit:         toDepositResponse(depositView(r.Deposit)),
		Principal:       r.Principal,
		AccruedInterest: r.AccruedInterest,
		Penalty:         r.Penalty,
		InterestPaid:    r.InterestPaid,
		TotalPayout:     r.TotalPayout,
		CardBalance:     r.CardBalance,
	}
}

func toLoanPaymentResponse(p models.LoanPayment) LoanPaymentResponse {
	return LoanPaymentResponse{
		ID:                        p.ID,
		PaymentDate:               p.PaymentDate,
		AmountPaid:                p.AmountPaid,
		PrincipalPaid:             p.PrincipalPaid,
		InterestPaid:              p.InterestPaid,
		OutstandingPrincipalAfter: p.OutstandingPrincipalAfter,
		Note:                      p.Note,
	}
}

func toLoanResponse(l models.Loan) LoanResponse {
	payments := make([]LoanPaymentResponse, 0, len(l.Payments))
	for _, p := range l.Payments {
		payments = append(payments, toLoanPaymentResponse(p))
	}
	return LoanResponse{
		ID:                   l.ID,
		UserID:               l.UserID,
		Amount:               l.Amount,
		InterestRate:         l.InterestRate,
		TermMonths:           l.TermMonths,
		Status:               l.Status,
		MonthlyPayment:       l.MonthlyPayment,
		OutstandingPrincipal: l.OutstandingPrincipal,
		PaidAmount:           l.PaidAmount,
		AccruedPenalty:       l.AccruedPenalty,
		LastPaymentDate:      l.LastPaymentDate,
		NextPaymentDueDate:   l.NextPaymentDueDate,
		ActivatedAt:          l.ActivatedAt,
		Payments:             payments,
	}
}
