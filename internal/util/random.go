// Package util provides small helpers shared across ShopAssist components.
package util

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	hexChars    = "0123456789abcdef"
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRandomID returns "{prefix}{hex}" with hexLength random hex digits.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Not suitable for secrets.
func GenerateRandomHex(length int) string {
	return randomFrom(hexChars, length)
}

// GenerateRandomBase36 generates a random lowercase base-36 string.
func GenerateRandomBase36(length int) string {
	return randomFrom(base36Chars, length)
}

func randomFrom(alphabet string, length int) string {
	if length <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return builder.String()
}

// GenerateRequestID returns an identifier of the form req_<unix-ms>_<9 base-36 chars>.
func GenerateRequestID(now time.Time) string {
	return "req_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + GenerateRandomBase36(9)
}

// GenerateTicketReference returns a short human-friendly reference used in
// support emails, e.g. "SA-3F9A1C".
func GenerateTicketReference() string {
	return "SA-" + strings.ToUpper(GenerateRandomHex(6))
}
