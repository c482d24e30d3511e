package orders

import (
	"strconv"
	"strings"
)

// CardDigits strips the separators people type into card numbers.
func CardDigits(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
}

// Last4 is safe to log and show.
func (m PaymentMethod) Last4() string {
	d := CardDigits(m.CardNumber)
	if len(d) < 4 {
		return d
	}
	return d[len(d)-4:]
}

// Expiry parses ExpiryDate as MM/YY into a month and four-digit year.
func (m PaymentMethod) Expiry() (month, year int, ok bool) {
	mm, yy, found := strings.Cut(strings.TrimSpace(m.ExpiryDate), "/")
	if !found || len(mm) != 2 || len(yy) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	y, err := strconv.Atoi(yy)
	if err != nil || y < 0 {
		return 0, 0, false
	}
	return month, 2000 + y, true
}
