// Package codes issues the identifiers clients share with each other: short
// transfer codes for staged batches and grouped connection ids for direct
// signaling.
package codes

import (
	"crypto/rand"
	"math/big"
	"strings"

	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
)

const (
	Alphabet         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	TransferCodeLen  = 6
	connectionGroups = 3
	connectionGroup  = 3
)

// Generator returns a candidate identifier. It performs no uniqueness check.
type Generator func() string

var alphabetSize = big.NewInt(int64(len(Alphabet)))

func randomSymbols(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic("codes: entropy source failed: " + err.Error())
		}
		b.WriteByte(Alphabet[idx.Int64()])
	}
	return b.String()
}

func NewTransferCode() string {
	return randomSymbols(TransferCodeLen)
}

// NewConnectionID returns an id shaped like "K3F-9QA-Z01".
func NewConnectionID() string {
	groups := make([]string, connectionGroups)
	for i := range groups {
		groups[i] = randomSymbols(connectionGroup)
	}
	return strings.Join(groups, "-")
}

// Issue draws from gen until taken reports a free value, giving up after
// attempts draws.
func Issue(gen Generator, taken func(string) bool, attempts int) (string, error) {
	for i := 0; i < attempts; i++ {
		candidate := gen()
		if !taken(candidate) {
			return candidate, nil
		}
	}
	return "", cerr.ErrCodeSpaceExhausted
}

func NormalizeTransferCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsTransferCode(code string) bool {
	return len(code) == TransferCodeLen && inAlphabet(code)
}

func IsConnectionID(id string) bool {
	parts := strings.Split(id, "-")
	if len(parts) != connectionGroups {
		return false
	}
	for _, p := range parts {
		if len(p) != connectionGroup || !inAlphabet(p) {
			return false
		}
	}
	return true
}

func inAlphabet(s string) bool {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
