// Package security checks free text that enters the tracker from outside.
package security

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInputTooLarge     = errors.New("input exceeds maximum size")
	ErrNullByteDetected  = errors.New("null byte detected in input")
	ErrInvalidEncoding   = errors.New("input is not valid UTF-8")
	ErrControlCharacter  = errors.New("control character in input")
	ErrRepetitiveContent = errors.New("excessive repetition detected")
)

// InputValidator rejects text that no medication field should hold.
type InputValidator struct {
	MaxSize       int
	MaxRepetition int
	// AllowNewlines permits \n, \r and \t, which multi-line fields such as
	// notes need.
	AllowNewlines bool
}

// Limits for the text fields of a medication.
var (
	NameValidator   = &InputValidator{MaxSize: 200, MaxRepetition: 50}
	DosageValidator = &InputValidator{MaxSize: 100, MaxRepetition: 50}
	NotesValidator  = &InputValidator{MaxSize: 4 * 1024, MaxRepetition: 100, AllowNewlines: true}
)

func (v *InputValidator) Validate(input string) error {
	if v.MaxSize > 0 && len(input) > v.MaxSize {
		return ErrInputTooLarge
	}
	if !utf8.ValidString(input) {
		return ErrInvalidEncoding
	}

	for _, r := range input {
		if r == 0 {
			return ErrNullByteDetected
		}
		if unicode.IsControl(r) {
			if v.AllowNewlines && (r == '\n' || r == '\r' || r == '\t') {
				continue
			}
			return ErrControlCharacter
		}
	}

	if v.MaxRepetition > 0 && hasExcessiveRepetition(input, v.MaxRepetition) {
		return ErrRepetitiveContent
	}
	return nil
}

func hasExcessiveRepetition(input string, maxLen int) bool {
	if len(input) <= maxLen {
		return false
	}

	runes := []rune(input)
	consecutiveCount := 1

	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			consecutiveCount++
			if consecutiveCount > maxLen {
				return true
			}
		} else {
			consecutiveCount = 1
		}
	}

	return false
}

// ValidateFields checks the named text fields of a medication and reports
// the first offending field.
func ValidateFields(name, dosage, notes *string) error {
	checks := []struct {
		field string
		value *string
		v     *InputValidator
	}{
		{"name", name, NameValidator},
		{"dosage", dosage, DosageValidator},
		{"notes", notes, NotesValidator},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		if err := c.v.Validate(*c.value); err != nil {
			return fmt.Errorf("%s: %w", c.field, err)
		}
	}
	return nil
}
