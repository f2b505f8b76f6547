// Package validators holds the checksum and structural validators used to
// reject pattern matches that are syntactically plausible but structurally
// invalid. All functions are pure and safe for concurrent use.
package validators

import (
	"regexp"
	"strconv"
	"strings"
)

// stripSeparators removes spaces, tabs and hyphens from a candidate value.
func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, s)
}

// allDigits reports whether s is non-empty and contains only ASCII digits.
func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Luhn validates a number with the mod-10 checksum used by payment card
// schemes. Separators are stripped; the number must be 13-19 digits.
func Luhn(number string) bool {
	digits := stripSeparators(number)
	if !allDigits(digits) || len(digits) < 13 || len(digits) > 19 {
		return false
	}

	total := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[len(digits)-1-i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		total += d
	}
	return total%10 == 0
}

// SSN validates US Social Security Number structure beyond the digit
// format: area must not be 0, 666 or >= 900; group and serial must not
// be all zeros.
func SSN(ssn string) bool {
	digits := stripSeparators(ssn)
	if !allDigits(digits) || len(digits) != 9 {
		return false
	}
	area, _ := strconv.Atoi(digits[:3])
	group, _ := strconv.Atoi(digits[3:5])
	serial, _ := strconv.Atoi(digits[5:])

	if area == 0 || area == 666 || area >= 900 {
		return false
	}
	if group == 0 || serial == 0 {
		return false
	}
	return true
}

var ifscRe = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)

// IFSC validates Indian IFSC code structure: 4 letters, a literal zero,
// then 6 alphanumerics.
func IFSC(code string) bool {
	return ifscRe.MatchString(code)
}

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// Email validates local@domain structure. It does not touch the network.
func Email(email string) bool {
	return emailRe.MatchString(email)
}

// IPv4 validates that an address has exactly four dot-separated octets,
// each in [0, 255].
func IPv4(ip string) bool {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v > 255 {
			return false
		}
	}
	return true
}

// CardPrefix checks that a card number starts with a known IIN/BIN:
// Visa (4), Amex (34, 37), Mastercard (51-55, 2221-2720),
// Discover (6011, 65), Diners (300-305, 36, 38).
func CardPrefix(number string) bool {
	d := stripSeparators(number)
	if !allDigits(d) || len(d) < 13 {
		return false
	}

	if d[0] == '4' {
		return true
	}
	two, _ := strconv.Atoi(d[:2])
	if two == 34 || two == 37 {
		return true
	}
	if two >= 51 && two <= 55 {
		return true
	}
	four, _ := strconv.Atoi(d[:4])
	if four >= 2221 && four <= 2720 {
		return true
	}
	if d[:4] == "6011" || two == 65 {
		return true
	}
	if two == 36 || two == 38 {
		return true
	}
	three, _ := strconv.Atoi(d[:3])
	return three >= 300 && three <= 305
}
