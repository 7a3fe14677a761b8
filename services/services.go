package services

import (
	"errors"
	"regexp"
	"time"

	"bankcore/apperrors"
	"bankcore/database"
	"bankcore/models"

	"github.com/shopspring/decimal"
)

// Identity проверенная личность вызывающего: результат проверки токена
type Identity struct {
	UserID uint
	Role   models.Role
}

// IsAdmin сообщает, есть ли у вызывающего роль ADMIN
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

func requireAdmin(actor Identity) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden("операция доступна только администратору")
	}
	return nil
}

var (
	pinPattern    = regexp.MustCompile(`^\d{4}$`)
	cvvPattern    = regexp.MustCompile(`^\d{3}$`)
	numberPattern = regexp.MustCompile(`^\d{16}$`)
)

func validatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return apperrors.Validation("PIN должен состоять ровно из 4 цифр")
	}
	return nil
}

func validateCVV(cvv string) error {
	if !cvvPattern.MatchString(cvv) {
		return apperrors.Validation("CVV должен состоять ровно из 3 цифр")
	}
	return nil
}

// validateAmount проверяет, что сумма положительна и содержит не больше двух знаков после запятой
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Validation("сумма должна быть больше 0")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.Validation("сумма должна содержать не более двух знаков после запятой")
	}
	return nil
}

// storeErr переводит ошибки хранилища в типизированные ошибки
func storeErr(err error, notFoundMsg string) error {
	var appErr *apperrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, database.ErrNotFound):
		return apperrors.NotFound(notFoundMsg)
	default:
		return apperrors.Internal(err)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
