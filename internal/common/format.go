package common

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultWidth is the separator width used by report commands
const DefaultWidth = 80

// PrintHeader writes a title between two separator lines
func PrintHeader(w io.Writer, title string, width int) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", width))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", width))
}

// PrintFooter writes a closing message between two separator lines
func PrintFooter(w io.Writer, message string, width int) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", width))
	fmt.Fprintln(w, message)
	fmt.Fprintln(w, strings.Repeat("=", width)+"\n")
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// FormatCredits renders an amount with thousands separators and an explicit
// sign for debits, e.g. 1,250 or -40.
func FormatCredits(amount int64) string {
	sign := ""
	u := amount
	if amount < 0 {
		sign = "-"
		u = -amount
	}

	digits := strconv.FormatInt(u, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + b.String()
}

// FormatExpiry describes when an entry expires relative to now.
func FormatExpiry(expiration *time.Time, now time.Time) string {
	if expiration == nil {
		return "never expires"
	}
	if !expiration.After(now) {
		return "expired " + expiration.Format(time.DateOnly)
	}
	return "expires " + expiration.Format(time.DateOnly)
}
