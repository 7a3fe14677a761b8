package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bankcore/config"
	"bankcore/database"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWT.SecretKey = "test-secret"
	cfg.JWT.ExpiresIn = 1
	cfg.RateLimit.Requests = 1000
	cfg.RateLimit.Window = time.Minute
	cfg.StorageDriver = config.StorageDriverMemory
	cfg.AdminEmail = "admin@bank.test"
	return cfg
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	return rr
}

// expect выполняет запрос, проверяет статус и декодирует ответ в out
func (c *client) expect(method, path string, body interface{}, status int, out interface{}) {
	c.t.Helper()
	rr := c.do(method, path, body)
	if rr.Code != status {
		c.t.Fatalf("%s %s: status = %d, want %d, body: %s", method, path, rr.Code, status, rr.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rr.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type authBody struct {
	Token string `json:"token"`
	User  struct {
		ID   uint   `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
}

type cardBody struct {
	ID      uint            `json:"id"`
	Number  string          `json:"number"`
	CVV     string          `json:"cvv"`
	Balance decimal.Decimal `json:"balance"`
	Status  string          `json:"status"`
}

func signUp(t *testing.T, handler http.Handler, name, email string) *client {
	t.Helper()
	anon := &client{t: t, handler: handler}
	var auth authBody
	anon.expect("POST", "/api/auth/signUp", map[string]string{
		"name": name, "email": email, "password": "password123",
	}, http.StatusCreated, &auth)
	if auth.Token == "" {
		t.Fatalf("no token issued for %s", email)
	}
	return &client{t: t, handler: handler, token: auth.Token}
}

func TestHealthHandler(t *testing.T) {
	router := newRouter(testConfig(), database.NewMemoryStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if rr.Body.String() != `{"status":"ok"}` {
		t.Errorf("handler returned unexpected body: got %v", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestAuthFlow(t *testing.T) {
	router := newRouter(testConfig(), database.NewMemoryStore())
	anon := &client{t: t, handler: router}

	var e errorBody
	anon.expect("GET", "/api/cards/me", nil, http.StatusUnauthorized, &e)
	if e.Error.Code != "UNAUTHENTICATED" {
		t.Errorf("code = %s", e.Error.Code)
	}

	anon.expect("POST", "/api/auth/signUp", map[string]string{
		"name": "A", "email": "not-an-email", "password": "short",
	}, http.StatusBadRequest, &e)
	if e.Error.Code != "VALIDATION_ERROR" || e.Error.Details["email"] == "" || e.Error.Details["password"] == "" {
		t.Errorf("unexpected validation error %+v", e.Error)
	}

	anon.expect("POST", "/api/auth/signUp", "{broken", http.StatusBadRequest, nil)

	signUp(t, router, "Alice", "alice@bank.test")
	anon.expect("POST", "/api/auth/signUp", map[string]string{
		"name": "Alice", "email": "ALICE@bank.test", "password": "password123",
	}, http.StatusConflict, nil)

	anon.expect("POST", "/api/auth/signIn", map[string]string{
		"email": "alice@bank.test", "password": "wrong-password",
	}, http.StatusUnauthorized, nil)

	var auth authBody
	anon.expect("POST", "/api/auth/signIn", map[string]string{
		"email": "alice@bank.test", "password": "password123",
	}, http.StatusOK, &auth)
	if auth.User.Role != "NONE" {
		t.Errorf("role = %s, want NONE", auth.User.Role)
	}

	admin := signUp(t, router, "Root", "admin@bank.test")
	var me struct {
		Role string `json:"role"`
	}
	admin.expect("GET", "/api/users/me", nil, http.StatusOK, &me)
	if me.Role != "ADMIN" {
		t.Errorf("bootstrap admin role = %s", me.Role)
	}
}

func TestEndToEndBanking(t *testing.T) {
	router := newRouter(testConfig(), database.NewMemoryStore())

	admin := signUp(t, router, "Root", "admin@bank.test")
	alice := signUp(t, router, "Alice", "alice@bank.test")
	bob := signUp(t, router, "Bob", "bob@bank.test")

	// Выпуск карт
	var aliceCard, bobCard cardBody
	alice.expect("POST", "/api/cards", map[string]string{"pin": "1234"}, http.StatusCreated, &aliceCard)
	bob.expect("POST", "/api/cards", map[string]string{"pin": "4321"}, http.StatusCreated, &bobCard)
	if aliceCard.Status != "waiting_approval" || len(aliceCard.Number) != 16 {
		t.Fatalf("unexpected card %+v", aliceCard)
	}
	alice.expect("POST", "/api/cards", map[string]string{"pin": "1234"}, http.StatusConflict, nil)
	alice.expect("POST", "/api/cards/me/top-up", map[string]string{"amount": "10"}, http.StatusConflict, nil)

	alice.expect("GET", "/api/admin/cards/pending", nil, http.StatusForbidden, nil)

	var pending []struct {
		ID uint `json:"id"`
	}
	admin.expect("GET", "/api/admin/cards/pending", nil, http.StatusOK, &pending)
	if len(pending) != 2 {
		t.Fatalf("pending cards = %d, want 2", len(pending))
	}
	for _, c := range pending {
		admin.expect("POST", fmt.Sprintf("/api/admin/cards/%d/confirm", c.ID), nil, http.StatusOK, nil)
	}

	var me struct {
		Role string `json:"role"`
	}
	alice.expect("GET", "/api/users/me", nil, http.StatusOK, &me)
	if me.Role != "CLIENT" {
		t.Errorf("role after confirmation = %s, want CLIENT", me.Role)
	}

	// Пополнение и перевод
	var topUp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	alice.expect("POST", "/api/cards/me/top-up", map[string]string{"amount": "1000"}, http.StatusOK, &topUp)
	if !topUp.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("balance after top-up = %s", topUp.Balance)
	}

	transfer := map[string]string{
		"receiverCardNumber": bobCard.Number,
		"amount":             "250.50",
		"cvv":                aliceCard.CVV,
		"pin":                "1234",
	}
	var transferred struct {
		Reference     string          `json:"reference"`
		SenderBalance decimal.Decimal `json:"senderBalance"`
	}
	alice.expect("POST", "/api/transfers", transfer, http.StatusOK, &transferred)
	if !transferred.SenderBalance.Equal(decimal.RequireFromString("749.50")) || transferred.Reference == "" {
		t.Errorf("unexpected transfer result %+v", transferred)
	}

	transfer["pin"] = "0000"
	var e errorBody
	alice.expect("POST", "/api/transfers", transfer, http.StatusForbidden, &e)
	if e.Error.Code != "FORBIDDEN" {
		t.Errorf("code = %s", e.Error.Code)
	}
	transfer["pin"] = "1234"
	transfer["amount"] = "5000"
	alice.expect("POST", "/api/transfers", transfer, http.StatusUnprocessableEntity, nil)

	var bobView cardBody
	bob.expect("GET", "/api/cards/me", nil, http.StatusOK, &bobView)
	if !bobView.Balance.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("bob balance = %s", bobView.Balance)
	}

	var history []struct {
		Kind string `json:"kind"`
	}
	alice.expect("GET", "/api/cards/me/transactions", nil, http.StatusOK, &history)
	if len(history) != 2 || history[0].Kind != "transfer" || history[1].Kind != "top_up" {
		t.Errorf("unexpected history %+v", history)
	}

	// Кредит
	var loan struct {
		ID                   uint            `json:"id"`
		Status               string          `json:"status"`
		MonthlyPayment       decimal.Decimal `json:"monthlyPayment"`
		OutstandingPrincipal decimal.Decimal `json:"outstandingPrincipal"`
	}
	alice.expect("POST", "/api/loans", map[string]interface{}{"amount": "1000", "termMonths": 6}, http.StatusCreated, &loan)
	alice.expect("POST", "/api/loans", map[string]interface{}{"amount": "1000", "termMonths": 6}, http.StatusConflict, nil)

	decision := fmt.Sprintf("/api/admin/loans/%d/decision", loan.ID)
	admin.expect("POST", decision, map[string]interface{}{}, http.StatusBadRequest, nil)
	admin.expect("POST", decision, map[string]interface{}{"approve": true}, http.StatusOK, &loan)
	if loan.Status != "active" || !loan.MonthlyPayment.Equal(decimal.RequireFromString("174.03")) {
		t.Fatalf("unexpected loan after approval %+v", loan)
	}

	var payment struct {
		Loan struct {
			OutstandingPrincipal decimal.Decimal `json:"outstandingPrincipal"`
		} `json:"loan"`
		CardBalance decimal.Decimal `json:"cardBalance"`
		Clamped     bool            `json:"clamped"`
	}
	alice.expect("POST", fmt.Sprintf("/api/loans/%d/payments", loan.ID), map[string]string{"amount": "174.03"}, http.StatusOK, &payment)
	if !payment.Loan.OutstandingPrincipal.Equal(decimal.RequireFromString("838.47")) || payment.Clamped {
		t.Errorf("unexpected payment %+v", payment)
	}
	if !payment.CardBalance.Equal(decimal.RequireFromString("1575.47")) {
		t.Errorf("card balance after payment = %s, want 1575.47", payment.CardBalance)
	}
	alice.expect("DELETE", fmt.Sprintf("/api/loans/%d", loan.ID), nil, http.StatusConflict, nil)
	bob.expect("POST", fmt.Sprintf("/api/loans/%d/payments", loan.ID), map[string]string{"amount": "10"}, http.StatusNotFound, nil)

	var loans []struct {
		Payments []struct {
			InterestPaid decimal.Decimal `json:"interestPaid"`
		} `json:"payments"`
	}
	alice.expect("GET", "/api/loans", nil, http.StatusOK, &loans)
	if len(loans) != 1 || len(loans[0].Payments) != 1 || !loans[0].Payments[0].InterestPaid.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("unexpected loans %+v", loans)
	}

	// Депозит
	var deposit struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	bob.expect("POST", "/api/deposits", map[string]interface{}{"amount": "200", "termMonths": 3}, http.StatusCreated, &deposit)
	bob.expect("POST", "/api/deposits", map[string]interface{}{"amount": "200", "termMonths": 40}, http.StatusBadRequest, nil)

	var pendingDeposits []struct {
		ID uint `json:"id"`
	}
	admin.expect("GET", "/api/admin/deposits/pending", nil, http.StatusOK, &pendingDeposits)
	if len(pendingDeposits) != 1 || pendingDeposits[0].ID != deposit.ID {
		t.Fatalf("unexpected pending deposits %+v", pendingDeposits)
	}
	admin.expect("POST", fmt.Sprintf("/api/admin/deposits/%d/decision", deposit.ID), map[string]bool{"approve": true}, http.StatusOK, &deposit)
	if deposit.Status != "active" {
		t.Errorf("deposit status = %s", deposit.Status)
	}
	bob.expect("GET", "/api/cards/me", nil, http.StatusOK, &bobView)
	if !bobView.Balance.Equal(decimal.RequireFromString("50.5")) {
		t.Errorf("bob balance after deposit = %s", bobView.Balance)
	}

	bob.expect("POST", fmt.Sprintf("/api/deposits/%d/withdraw", deposit.ID), nil, http.StatusConflict, nil)
	var withdrawal struct {
		TotalPayout decimal.Decimal `json:"totalPayout"`
		Deposit     struct {
			Status string `json:"status"`
		} `json:"deposit"`
	}
	bob.expect("POST", fmt.Sprintf("/api/deposits/%d/early-withdrawal", deposit.ID), nil, http.StatusOK, &withdrawal)
	if withdrawal.Deposit.Status != "closed_early" || !withdrawal.TotalPayout.Equal(decimal.NewFromInt(200)) {
		t.Errorf("unexpected withdrawal %+v", withdrawal)
	}

	// Блокировка карты администратором
	admin.expect("POST", fmt.Sprintf("/api/admin/cards/%d/block", bobCard.ID), nil, http.StatusOK, nil)
	bob.expect("POST", "/api/cards/me/top-up", map[string]string{"amount": "10"}, http.StatusConflict, nil)
	admin.expect("POST", fmt.Sprintf("/api/admin/cards/%d/unblock", bobCard.ID), nil, http.StatusOK, nil)
	admin.expect("POST", "/api/admin/cards/abc/block", nil, http.StatusBadRequest, nil)

	var metrics map[string]interface{}
	admin.expect("GET", "/api/admin/metrics", nil, http.StatusOK, &metrics)
	if _, ok := metrics["transfer_volume"]; !ok {
		t.Errorf("metrics snapshot missing transfer_volume: %v", metrics)
	}
}
