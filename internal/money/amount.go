// Package money parses operator-typed amounts and formats them for display.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var thousand = decimal.NewFromInt(1000)

var noise = strings.NewReplacer("$", "", "cop", "", " ", "", "\u00a0", "", "'", "")

// ParseAmount reads amounts such as "15k", "$1,234", "45.000" or "12.5".
// Commas always group thousands. A dot groups thousands when it repeats, or when it is
// the only dot, exactly three digits follow it and no k suffix is present.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := noise.Replace(strings.ToLower(strings.TrimSpace(raw)))

	kilo := strings.HasSuffix(s, "k")
	if kilo {
		s = strings.TrimSuffix(s, "k")
	}
	s = strings.ReplaceAll(s, ",", "")

	switch strings.Count(s, ".") {
	case 0:
	case 1:
		if i := strings.IndexByte(s, '.'); !kilo && len(s)-i-1 == 3 {
			s = s[:i] + s[i+1:]
		}
	default:
		s = strings.ReplaceAll(s, ".", "")
	}

	if !numeric(s) {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if kilo {
		d = d.Mul(thousand)
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func numeric(s string) bool {
	if s == "" || s == "." {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// Format renders an amount as "$1,234" or "$1,234.50".
func Format(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	d = d.Round(2)
	whole := d.Truncate(0)
	out := sign + "$" + group(whole.String())
	if frac := d.Sub(whole); !frac.IsZero() {
		out += "." + frac.StringFixed(2)[2:]
	}
	return out
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
