package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// CardNumberPrefix фиксированный префикс номеров карт банка
	CardNumberPrefix = "767964"
	// PendingDueDate срок действия новой карты до подтверждения
	PendingDueDate = "00/0000"
	// CardValidityYears срок действия карты после подтверждения или перевыпуска
	CardValidityYears = 10

	cardRandomDigits = 9
)

var dueDatePattern = regexp.MustCompile(`^\d{2}/\d{4}$`)

// randomDigits возвращает n случайных цифр
func randomDigits(n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

// luhnCheckDigit вычисляет контрольную цифру для номера без нее
func luhnCheckDigit(number string) int {
	sum := 0
	double := true
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return (10 - sum%10) % 10
}

// ValidLuhn проверяет номер по алгоритму Луна
func ValidLuhn(number string) bool {
	if len(number) < 2 {
		return false
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return false
		}
	}
	last := int(number[len(number)-1] - '0')
	return luhnCheckDigit(number[:len(number)-1]) == last
}

// GenerateCardNumber префикс + 9 случайных цифр + контрольная цифра Луна
func GenerateCardNumber() (string, error) {
	body, err := randomDigits(cardRandomDigits)
	if err != nil {
		return "", err
	}
	partial := CardNumberPrefix + body
	return partial + strconv.Itoa(luhnCheckDigit(partial)), nil
}

// GenerateCVV случайный трехзначный код от 100 до 999
func GenerateCVV() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100, 10), nil
}

// ParseDueDate разбирает срок "MM/YYYY". Карта действует до конца указанного месяца,
// поэтому возвращается первое число следующего месяца (UTC).
func ParseDueDate(s string) (time.Time, bool) {
	if !dueDatePattern.MatchString(s) {
		return time.Time{}, false
	}
	month, _ := strconv.Atoi(s[:2])
	year, _ := strconv.Atoi(s[3:])
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC), true
}

// FutureDueDate срок "MM/YYYY": текущий месяц через years лет
func FutureDueDate(now time.Time, years int) string {
	return fmt.Sprintf("%02d/%04d", int(now.Month()), now.Year()+years)
}
