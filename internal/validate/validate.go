// Package validate holds the syntactic and checksum checks applied to
// user-entered identity fields before they are stored on an order.
package validate

import "strings"

// Digits strips everything but ASCII digits from raw input.
func Digits(raw string) string {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteByte(byte(r))
		}
	}
	return sb.String()
}

// Text trims surrounding whitespace from free-text input.
func Text(raw string) string {
	return strings.TrimSpace(raw)
}

// CPF checks the Brazilian national ID checksum. The input is stripped
// of non-digits first; it must then be exactly 11 digits, not all the
// same digit, and both check digits must match the weighted sums
// defined by the Receita Federal algorithm.
func CPF(raw string) bool {
	clean := Digits(raw)
	if len(clean) != 11 {
		return false
	}
	if allSame(clean) {
		return false
	}
	// First check digit: weights 10..2 over digits 1..9.
	if checkDigit(clean, 9) != int(clean[9]-'0') {
		return false
	}
	// Second check digit: weights 11..2 over digits 1..10.
	return checkDigit(clean, 10) == int(clean[10]-'0')
}

// checkDigit computes the verification digit over the first n digits,
// with weights n+1 down to 2. A remainder of 10 or 11 folds to 0.
func checkDigit(digits string, n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(digits[i]-'0') * (n + 1 - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 || rem == 11 {
		rem = 0
	}
	return rem
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// CEP accepts exactly 8 digits after stripping non-digits.
func CEP(raw string) bool {
	return len(Digits(raw)) == 8
}

// Phone accepts 10 or 11 digits after stripping non-digits
// (landline with area code, or mobile with the extra 9).
func Phone(raw string) bool {
	n := len(Digits(raw))
	return n == 10 || n == 11
}
