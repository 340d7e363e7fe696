package pkg

import (
	"bytes"
	"unicode"
)

// Must panics if err is not nil. For startup-time wiring that cannot fail.
func Must(err error) {
	if err != nil {
		panic(err)
	}
}

// Must2 is Must for two-value returns whose value is not needed.
func Must2(_ any, err error) {
	if err != nil {
		panic(err)
	}
}

// Printable strips non-printable runes, for logging raw bus traffic.
func Printable(str []byte) []byte {
	return bytes.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, str)
}
