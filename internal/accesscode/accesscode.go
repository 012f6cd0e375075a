// Package accesscode generates the short codes students type to join a live session.
package accesscode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Alphabet leaves out 0/O and 1/I so codes survive being read aloud or typed on a phone.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Length is the number of characters in a code.
const Length = 6

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a fresh random code. Codes are not globally unique;
// callers rely on the storage layer to reject a live duplicate.
func Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is gone.
			panic("accesscode: read random: " + err.Error())
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String()
}

// Regenerate returns a new code for a teacher who wants a different one
// before committing the session.
func Regenerate() string {
	return Generate()
}

// Normalize trims and upper-cases user input before lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is a well-formed, already-normalized access code.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
