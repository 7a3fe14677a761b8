package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("transfer: %w", NotFound("карта получателя не найдена"))

	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is must match by kind")
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("errors.Is must not match another kind")
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf = %s", KindOf(err))
	}
	if KindOf(errors.New("db down")) != KindInternal {
		t.Error("untyped errors must be INTERNAL")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := Wrap(cause)
	if wrapped.Kind != KindInternal || !errors.Is(wrapped, cause) {
		t.Errorf("Wrap(untyped) = %v", wrapped)
	}

	typed := InvalidState("кредит не активен")
	if Wrap(typed) != typed {
		t.Error("Wrap must keep typed errors")
	}
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) must be nil")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindUnauthenticated: http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindInvalidState:    http.StatusConflict,
		KindInsufficient:    http.StatusUnprocessableEntity,
		KindCeilingExceeded: http.StatusUnprocessableEntity,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestParseValidationErrors(t *testing.T) {
	type request struct {
		PIN    string  `json:"pin" validate:"required,len=4,numeric"`
		CVV    string  `json:"cvv,omitempty" validate:"required"`
		Amount float64 `json:"amount" validate:"gt=0"`
	}

	err := NewValidator().Struct(request{PIN: "12a", Amount: 0})
	appErr := ParseValidationErrors(err)

	if appErr.Kind != KindValidation {
		t.Fatalf("Kind = %s", appErr.Kind)
	}
	if _, ok := appErr.Details["pin"]; !ok {
		t.Errorf("details must contain pin: %v", appErr.Details)
	}
	if _, ok := appErr.Details["amount"]; !ok {
		t.Errorf("details must contain amount: %v", appErr.Details)
	}
	if _, ok := appErr.Details["cvv"]; !ok {
		t.Errorf("details must contain cvv: %v", appErr.Details)
	}
}

func TestResponseHidesCause(t *testing.T) {
	status, body := Response(errors.New("pq: connection refused"))
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d", status)
	}
	if body.Error.Kind != KindInternal || body.Error.Message != "внутренняя ошибка сервера" {
		t.Errorf("unexpected body %+v", body.Error)
	}

	status, body = Response(New(KindRateLimited, "слишком много запросов"))
	if status != http.StatusTooManyRequests || body.Error.Kind != KindRateLimited {
		t.Errorf("rate limit response = %d %+v", status, body.Error)
	}
}
