package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateEmail performs a lightweight syntactic check and returns the
// normalized (lower-cased, trimmed) address.
func ValidateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return "", fmt.Errorf("invalid email address format")
	}
	return email, nil
}

var nonDigits = regexp.MustCompile(`[^\d+]`)

// ValidatePhoneNumber checks and normalizes a West/Central African
// mobile-money number. Accepts international format (+22377001122,
// +237699001122) or a bare national number of 8-10 digits.
func ValidatePhoneNumber(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	digits := nonDigits.ReplaceAllString(phone, "")

	if strings.HasPrefix(digits, "+") {
		body := digits[1:]
		if len(body) < 10 || len(body) > 14 {
			return "", fmt.Errorf("international number must have 10 to 14 digits after +")
		}
		return digits, nil
	}
	if len(digits) >= 8 && len(digits) <= 10 {
		return digits, nil
	}
	return "", fmt.Errorf("phone number must be 8-10 digits or international +XXX format")
}
