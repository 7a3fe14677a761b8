package controllers

import (
	"net/http"

	"bankcore/apperrors"
	"bankcore/services"

	"github.com/go-playground/validator/v10"
)

// CardController обрабатывает запросы по карте клиента и переводам
type CardController struct {
	cards     *services.CardService
	transfers *services.TransferService
	validator *validator.Validate
}

func NewCardController(cards *services.CardService, transfers *services.TransferService) *CardController {
	return &CardController{
		cards:     cards,
		transfers: transfers,
		validator: apperrors.NewValidator(),
	}
}

// CreateCard подает заявку на выпуск карты
func (c *CardController) CreateCard(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req PinRequest
	if err := decodeRequest(r, c.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	card, err := c.cards.CreateCard(r.Context(), id.UserID, req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardResponse(card))
}

// GetCard возвращает карту клиента с учетом истечения срока
func (c *CardController) GetCard(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	card, err := c.cards.GetCard(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

func (c *CardController) TopUp(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req AmountRequest
	if err := decodeRequest(r, c.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := c.cards.TopUp(r.Context(), id.UserID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TopUpResponse{
		Balance:     result.Balance,
		Transaction: toTransactionResponse(result.Transaction),
	})
}

// RequestRenewal перевыпускает истекшую карту с новым PIN
func (c *CardController) RequestRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req PinRequest
	if err := decodeRequest(r, c.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	card, err := c.cards.RequestRenewal(r.Context(), id.UserID, req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

func (c *CardController) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req TransferRequest
	if err := decodeRequest(r, c.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := c.transfers.Transfer(r.Context(), services.TransferRequest{
		SenderUserID:       id.UserID,
		ReceiverCardNumber: req.ReceiverCardNumber,
		Amount:             req.Amount,
		CVV:                req.CVV,
		PIN:                req.PIN,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TransferResponse{
		TransactionID: result.TransactionID,
		Reference:     result.Reference,
		SenderBalance: result.SenderBalance,
		Description:   result.Description,
		CreatedAt:     result.CreatedAt,
	})
}

// History возвращает журнал движения средств по карте, новые записи первыми
func (c *CardController) History(w http.ResponseWriter, r *http.Request) {
	id, err := currentIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := c.transfers.History(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		response = append(response, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, response)
}
