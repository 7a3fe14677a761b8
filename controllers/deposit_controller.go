package controllers

import (
	"context"
	"net/http"

	"bankcore/apperrors"
	"bankcore/services"

	"github.com/go-playground/validator/v10"
)

// DepositController обрабатывает запросы по срочным депозитам
type DepositController struct {
	deposits  *services.DepositService
	validator *validator.Validate
}

func NewDepositController(deposits *services.DepositService) *DepositController {
	return &DepositController{deposits: deposits, validator: apperrors.NewValidator()}
}

func (c *DepositController) Apply(w http.ResponseWriter, r *http.Request) {
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

	deposit, err := c.deposits.Apply(r.Context(), id.UserID, req.Amount, req.TermMonths)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepositResponse(depositView(*deposit)))
}

// List возвращает депозиты клиента с процентами на текущий момент
func (c *DepositController) List(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	views, err := c.deposits.GetUserDeposits(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := make([]DepositResponse, 0, len(views))
	for _, v := range views {
		response = append(response, toDepositResponse(v))
	}
	writeJSON(w, http.StatusOK, response)
}

func (c *DepositController) EarlyWithdrawal(w http.ResponseWriter, r *http.Request) {
	c.withdraw(w, r, c.deposits.RequestEarlyWithdrawal)
}

func (c *DepositController) WithdrawMatured(w http.ResponseWriter, r *http.Request) {
	c.withdraw(w, r, c.deposits.WithdrawMaturedDeposit)
}

func (c *DepositController) withdraw(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID, depositID uint) (*services.WithdrawalResult, error)) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	depositID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := op(r.Context(), id.UserID, depositID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalResponse(result))
}
