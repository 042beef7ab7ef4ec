package utils

import (
	"errors"
	"html"
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptTagRegex = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nonDigitRegex  = regexp.MustCompile(`\D`)
)

// SanitizeInput strips script tags and control characters, then HTML escapes
func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = scriptTagRegex.ReplaceAllString(input, "")

	input = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)

	return html.EscapeString(input)
}

// SanitizeEmail lowercases and validates an email address
func SanitizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return "", errors.New("invalid email format")
	}
	return email, nil
}

// NormalizeKenyanPhone turns 07XXXXXXXX, 01XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX
// and similar into the 2547XXXXXXXX form M-Pesa expects.
func NormalizeKenyanPhone(phone string) (string, error) {
	digits := nonDigitRegex.ReplaceAllString(phone, "")

	switch {
	case strings.HasPrefix(digits, "254") && len(digits) == 12:
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = "254" + digits[1:]
	case len(digits) == 9:
		digits = "254" + digits
	default:
		return "", errors.New("invalid Kenyan phone number")
	}

	// Safaricom and Airtel mobile prefixes start with 7 or 1
	if digits[3] != '7' && digits[3] != '1' {
		return "", errors.New("invalid Kenyan mobile number")
	}
	return digits, nil
}

// SanitizeStringArray sanitizes every element
func SanitizeStringArray(inputs []string) []string {
	sanitized := make([]string, len(inputs))
	for i, input := range inputs {
		sanitized[i] = SanitizeInput(input)
	}
	return sanitized
}
