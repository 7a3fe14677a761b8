package services

import (
	"time"

	"bankcore/models"

	"github.com/shopspring/decimal"
)

// Все денежные промежуточные значения округляются до копеек на каждом шаге.
// Это воспроизводит исходное поведение расчетов, хотя и теряет точность.

var (
	one          = decimal.NewFromInt(1)
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
	daysInYear   = decimal.NewFromInt(365)

	// PenaltyRate доля ежемесячного платежа, начисляемая штрафом за каждую неделю просрочки
	PenaltyRate = decimal.RequireFromString("0.35")
	// loanEpsilon остаток долга, который считается погашенным
	loanEpsilon = decimal.RequireFromString("0.001")
)

const (
	penaltyPeriod = 7 * 24 * time.Hour
	day           = 24 * time.Hour
)

// Round2 округляет сумму до двух знаков
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// monthlyRate месячная ставка в долях: годовая / 100 / 12
func monthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.Div(hundred.Mul(monthsInYear))
}

// powInt возводит base в натуральную степень n
func powInt(base decimal.Decimal, n int) decimal.Decimal {
	result := one
	for i := 0; i < n; i++ {
		result = result.Mul(base).Round(24)
	}
	return result
}

// CalculateEMI рассчитывает аннуитетный платеж P·r·(1+r)^n / ((1+r)^n − 1).
// При нулевой ставке платеж равен P/n.
func CalculateEMI(principal, annualRate decimal.Decimal, termMonths int) decimal.Decimal {
	if !principal.IsPositive() || annualRate.IsNegative() || termMonths <= 0 {
		return decimal.Zero
	}

	n := decimal.NewFromInt(int64(termMonths))
	r := monthlyRate(annualRate)
	if r.IsZero() {
		return Round2(principal.Div(n))
	}

	factor := powInt(one.Add(r), termMonths)
	return Round2(principal.Mul(r).Mul(factor).Div(factor.Sub(one)))
}

// MonthlyInterest проценты за один месяц на текущий остаток долга
func MonthlyInterest(outstanding, annualRate decimal.Decimal) decimal.Decimal {
	if !outstanding.IsPositive() || annualRate.IsNegative() {
		return decimal.Zero
	}
	return Round2(outstanding.Mul(monthlyRate(annualRate)))
}

// wholeDays число полных суток между from и to
func wholeDays(from, to time.Time) int64 {
	return int64(to.Sub(from) / day)
}

// SimpleInterest простые проценты principal × rate/100/365 × полные дни
func SimpleInterest(principal, annualRate decimal.Decimal, from, to *time.Time) decimal.Decimal {
	if from == nil || to == nil {
		return decimal.Zero
	}
	days := wholeDays(*from, *to)
	if days <= 0 {
		return decimal.Zero
	}
	return Round2(principal.Mul(annualRate).Mul(decimal.NewFromInt(days)).Div(hundred.Mul(daysInYear)))
}

// EarlyWithdrawal расчет досрочного закрытия депозита
type EarlyWithdrawal struct {
	Accrued     decimal.Decimal
	Penalty     decimal.Decimal
	NetInterest decimal.Decimal
	Payout      decimal.Decimal
}

// CalculateEarlyWithdrawal применяет штраф к начисленным процентам
func CalculateEarlyWithdrawal(principal, annualRate, penaltyPercent decimal.Decimal, from, to *time.Time) EarlyWithdrawal {
	accrued := SimpleInterest(principal, annualRate, from, to)
	penalty := Round2(accrued.Mul(penaltyPercent).Div(hundred))
	net := Round2(accrued.Sub(penalty))
	return EarlyWithdrawal{
		Accrued:     accrued,
		Penalty:     penalty,
		NetInterest: net,
		Payout:      Round2(principal.Add(net)),
	}
}

// PaymentAllocation разбиение платежа по кредиту
type PaymentAllocation struct {
	Requested        decimal.Decimal
	Effective        decimal.Decimal
	Payoff           decimal.Decimal
	Interest         decimal.Decimal
	Principal        decimal.Decimal
	OutstandingAfter decimal.Decimal
}

// Clamped сообщает, была ли запрошенная сумма уменьшена до суммы полного погашения
func (a PaymentAllocation) Clamped() bool {
	return !a.Requested.Equal(a.Effective)
}

// Closes сообщает, погашает ли платеж кредит полностью
func (a PaymentAllocation) Closes() bool {
	return a.OutstandingAfter.LessThanOrEqual(loanEpsilon)
}

// AllocatePayment делит платеж: сначала проценты текущего периода, остаток в основной долг.
// Сумма больше полного погашения (долг + проценты) уменьшается до него.
func AllocatePayment(outstanding, annualRate, requested decimal.Decimal) PaymentAllocation {
	interest := MonthlyInterest(outstanding, annualRate)
	payoff := Round2(outstanding.Add(interest))

	effective := decimal.Min(requested, payoff)
	interestPart := decimal.Min(effective, interest)
	principalPart := decimal.Min(Round2(effective.Sub(interestPart)), outstanding)
	after := decimal.Max(decimal.Zero, Round2(outstanding.Sub(principalPart)))

	return PaymentAllocation{
		Requested:        requested,
		Effective:        effective,
		Payoff:           payoff,
		Interest:         interestPart,
		Principal:        principalPart,
		OutstandingAfter: after,
	}
}

// PenaltyTransition результат ленивого начисления штрафов
type PenaltyTransition struct {
	Loan    models.Loan
	Changed bool
	// Charged сумма штрафов, начисленных этим переходом
	Charged decimal.Decimal
	// Weeks число недельных штрафов, без учета первичного
	Weeks int64
}

// ApplyPenaltyTransition вычисляет переход кредита по просрочке, не обращаясь к хранилищу.
// Активный кредит с прошедшей датой платежа становится unpaid с первичным штрафом EMI×0.35.
// Для unpaid начисляется EMI×0.35 за каждую полную неделю, дата расчета сдвигается
// только на целое число недель.
func ApplyPenaltyTransition(loan models.Loan, now time.Time) PenaltyTransition {
	step := Round2(loan.MonthlyPayment.Mul(PenaltyRate))
	result := PenaltyTransition{Loan: loan, Charged: decimal.Zero}

	switch loan.Status {
	case models.LoanStatusActive:
		if loan.NextPaymentDueDate == nil || !now.After(*loan.NextPaymentDueDate) {
			return result
		}
		result.Loan.Status = models.LoanStatusUnpaid
		result.Loan.AccruedPenalty = Round2(loan.AccruedPenalty.Add(step))
		result.Loan.LastPenaltyCalculationDate = timePtr(now)
		result.Charged = step
		result.Changed = true

	case models.LoanStatusUnpaid:
		if loan.LastPenaltyCalculationDate == nil {
			result.Loan.LastPenaltyCalculationDate = timePtr(now)
			result.Changed = true
			return result
		}
		weeks := int64(now.Sub(*loan.LastPenaltyCalculationDate) / penaltyPeriod)
		if weeks <= 0 {
			return result
		}
		accrued := loan.AccruedPenalty
		for i := int64(0); i < weeks; i++ {
			accrued = Round2(accrued.Add(step))
		}
		result.Loan.AccruedPenalty = accrued
		result.Loan.LastPenaltyCalculationDate = timePtr(loan.LastPenaltyCalculationDate.Add(time.Duration(weeks) * penaltyPeriod))
		result.Charged = Round2(accrued.Sub(loan.AccruedPenalty))
		result.Weeks = weeks
		result.Changed = true
	}

	return result
}
