package utils

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts a shilling amount such as "1,500.50" to a float64.
// An empty string is zero. Negative and non-finite values are rejected.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(strings.TrimPrefix(strings.ToUpper(s), "KES"), ",", "")

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, errors.New("amount must be a non-negative number")
	}
	return value, nil
}
