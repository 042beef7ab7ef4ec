package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKenyanPhone(t *testing.T) {
	valid := map[string]string{
		"0712345678":       "254712345678",
		"712345678":        "254712345678",
		"+254712345678":    "254712345678",
		"254712345678":     "254712345678",
		"+254 712 345 678": "254712345678",
		"0110123456":       "254110123456",
	}
	for in, want := range valid {
		got, err := NormalizeKenyanPhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "12345", "+1 415 555 0100", "0212345678", "2547123456789"} {
		_, err := NormalizeKenyanPhone(in)
		assert.Error(t, err, in)
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello", SanitizeInput("  hello\x00 "))
	assert.Equal(t, "a  b", SanitizeInput("a <script>alert(1)</script> b"))
	assert.Equal(t, "&lt;b&gt;", SanitizeInput("<b>"))
}

func TestSanitizeEmail(t *testing.T) {
	email, err := SanitizeEmail("  Jane@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", email)

	_, err = SanitizeEmail("not-an-email")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	valid := map[string]float64{
		"":           0,
		"1500":       1500,
		" 1,500.50 ": 1500.5,
		"KES 2,000":  2000,
	}
	for in, want := range valid {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"abc", "-5", "NaN", "Inf"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}
