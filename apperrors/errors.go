package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind классифицирует ошибку ядра
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindInvalidState    Kind = "INVALID_STATE"
	KindInsufficient    Kind = "INSUFFICIENT_FUNDS"
	KindCeilingExceeded Kind = "BALANCE_CEILING_EXCEEDED"
	KindConflict        Kind = "CONFLICT"
	KindInternal        Kind = "INTERNAL"
	// KindRateLimited выставляется только транспортом
	KindRateLimited     Kind = "RATE_LIMITED"
)

// Error типизированная ошибка операции. Сообщение предназначено для клиента,
// Err хранит исходную причину и наружу не отдается.
type Error struct {
	Kind    Kind              `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindString код ошибки для метрик
func (e *Error) KindString() string {
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по Kind, так что errors.Is(err, apperrors.ErrNotFound) работает
// для любой ошибки "не найдено".
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Эталонные значения для errors.Is
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrInsufficient    = &Error{Kind: KindInsufficient}
	ErrCeilingExceeded = &Error{Kind: KindCeilingExceeded}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInternal        = &Error{Kind: KindInternal}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func InvalidState(message string) *Error {
	return New(KindInvalidState, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, message)
}

// Internal оборачивает ошибку хранилища или транспорта
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "внутренняя ошибка сервера", Err: err}
}

// Wrap возвращает err как есть, если это уже *Error, иначе оборачивает в INTERNAL
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// KindOf возвращает Kind ошибки; для нетипизированных ошибок INTERNAL
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus сопоставляет Kind с кодом ответа HTTP
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindInsufficient, KindCeilingExceeded:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse тело ответа с ошибкой: {"error": {"code", "message", "details"}}
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// Response возвращает HTTP-статус и тело ответа для ошибки.
// Причина внутренних ошибок клиенту не отдается.
func Response(err error) (int, ErrorResponse) {
	appErr := Wrap(err)
	return HTTPStatus(appErr.Kind), ErrorResponse{Error: appErr}
}

// NewValidator создает валидатор, который называет поля по тегу json
func NewValidator() *validator.Validate {
	v := validator.New()
	UseJSONFieldNames(v)
	return v
}

// UseJSONFieldNames настраивает v так, чтобы в ошибках были имена полей из тега json
func UseJSONFieldNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ParseValidationErrors превращает ошибки validator/v10 в VALIDATION_ERROR с деталями по полям
func ParseValidationErrors(err error) *Error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Validation(err.Error())
	}

	details := make(map[string]string, len(validationErrors))
	var messages []string
	for _, e := range validationErrors {
		field := e.Field()
		var msg string
		switch e.Tag() {
		case "required":
			msg = "поле обязательно"
		case "gt":
			msg = "должно быть больше " + e.Param()
		case "gte":
			msg = "должно быть не меньше " + e.Param()
		case "lte":
			msg = "должно быть не больше " + e.Param()
		case "len":
			msg = "должно содержать ровно " + e.Param() + " символов"
		case "numeric":
			msg = "должно содержать только цифры"
		case "email":
			msg = "некорректный email"
		case "min":
			msg = "минимальная длина " + e.Param()
		case "max":
			msg = "максимальная длина " + e.Param()
		case "oneof":
			msg = "должно быть одним из: " + e.Param()
		default:
			msg = "некорректное значение"
		}
		details[field] = msg
		messages = append(messages, field+": "+msg)
	}

	return &Error{
		Kind:    KindValidation,
		Message: strings.Join(messages, "; "),
		Details: details,
		Err:     err,
	}
}
