package controllers

import (
	"net/http"

	"bankcore/apperrors"
	"bankcore/services"

	"github.com/go-playground/validator/v10"
)

// LoanController обрабатывает запросы по кредитам
type LoanController struct {
	loans     *services.LoanService
	validator *validator.Validate
}

func NewLoanController(loans *services.LoanService) *LoanController {
	return &LoanController{loans: loans, validator: apperrors.NewValidator()}
}

func (c *LoanController) Apply(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ApplicationRequest
	if err := decodeRequest(r, c.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	loan, err := c.loans.Apply(r.Context(), id.UserID, req.Amount, req.TermMonths)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanResponse(*loan))
}

// List возвращает кредиты клиента с начисленными на текущий момент штрафами
func (c *LoanController) List(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	loans, err := c.loans.GetUserLoans(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		response = append(response, toLoanResponse(l))
	}
	writeJSON(w, http.StatusOK, response)
}

func (c *LoanController) MakePayment(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req AmountRequest
	if err := decodeRequest(r, c.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := c.loans.MakePayment(r.Context(), id.UserID, loanID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoanPaymentResultResponse{
		Loan:            toLoanResponse(result.Loan),
		Payment:         toLoanPaymentResponse(result.Payment),
		RequestedAmount: result.Allocation.Requested,
		EffectiveAmount: result.Allocation.Effective,
		Clamped:         result.Allocation.Clamped(),
		CardBalance:     result.CardBalance,
	})
}

// PayPenalty погашает накопленный штраф по просроченному кредиту
func (c *LoanController) PayPenalty(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := c.loans.PayPenalty(r.Context(), id.UserID, loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PenaltyPaymentResponse{
		Loan:        toLoanResponse(result.Loan),
		Payment:     toLoanPaymentResponse(result.Payment),
		PenaltyPaid: result.PenaltyPaid,
		CardBalance: result.CardBalance,
	})
}

func (c *LoanController) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := c.loans.Delete(r.Context(), id.UserID, loanID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
