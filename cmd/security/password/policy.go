package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks pw against the policy. It does not mutate input.
func (p Policy) Validate(pw string) error {
	// Count characters (runes), not bytes.
	n := utf8.RuneCountInString(pw)

	if n < p.MinLength {
		return ErrPasswordTooShort
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return ErrPasswordTooLong
	}

	if p.RequireMixed && !hasLetterAndDigit(pw) {
		return ErrMissingClass
	}

	if p.RejectVeryWeak && looksVeryWeak(pw) {
		return ErrWeakPassword
	}

	return nil
}

func hasLetterAndDigit(pw string) bool {
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
		if letter && digit {
			return true
		}
	}
	return false
}

// looksVeryWeak is minimal; it is not an entropy estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password1", "password123", "12345678", "123456789",
		"qwerty123", "affitto123", "affittochiaro1":
		return true
	}

	return false
}
