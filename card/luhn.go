/*
Package card validates payment card numbers before they are stored.

TWO CHECKS:
  Luhn:           pure mod-10 checksum over the digits of a string
  ValidateNumber: outer format check (exactly 16 ASCII digits) followed
                  by Luhn

Luhn alone accepts the empty string: no digits sum to 0, which is
divisible by 10. That is why callers go through ValidateNumber.
*/
package card

import (
	"errors"
	"strings"
)

// Length is the number of digits a stored card number must have.
const Length = 16

var (
	// ErrFormat is returned when the number is not exactly Length digits.
	ErrFormat = errors.New("card number must be 16 digits")

	// ErrChecksum is returned when the Luhn checksum fails.
	ErrChecksum = errors.New("card number checksum mismatch")
)

// Luhn reports whether the digits of s pass the mod-10 checksum.
// Non-digit characters are ignored. Counting from 0 at the rightmost
// digit, odd positions are doubled and reduced by 9 when above 9.
func Luhn(s string) bool {
	sum := 0
	pos := 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if pos%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		pos++
	}
	return sum%10 == 0
}

// ValidateNumber returns the trimmed number if it is 16 digits and passes Luhn.
func ValidateNumber(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != Length {
		return "", ErrFormat
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", ErrFormat
		}
	}
	if !Luhn(s) {
		return "", ErrChecksum
	}
	return s, nil
}
