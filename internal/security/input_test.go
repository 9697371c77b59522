package security

import (
	"errors"
	"strings"
	"testing"
)

func TestInputValidator_ValidInput(t *testing.T) {
	validInputs := []string{
		"Blood Pressure Medication",
		"Vitamin D3 (cholecalciferol)",
		"Ibuprofeno 400 mg",
		"アムロジピン",
		strings.Repeat("ab", 90),
	}

	for _, input := range validInputs {
		if err := NameValidator.Validate(input); err != nil {
			t.Errorf("Valid input rejected: %q (error: %v)", input, err)
		}
	}
}

func TestInputValidator_TooLarge(t *testing.T) {
	err := DosageValidator.Validate(strings.Repeat("5mg ", 30))
	if err != ErrInputTooLarge {
		t.Errorf("Large input not rejected, got: %v", err)
	}
}

func TestInputValidator_NullByte(t *testing.T) {
	inputsWithNull := []string{
		"hello\x00world",
		"\x00",
		"5mg\x00",
	}

	for _, input := range inputsWithNull {
		if err := NameValidator.Validate(input); err != ErrNullByteDetected {
			t.Errorf("Null byte not detected in: %q", input)
		}
	}
}

func TestInputValidator_ControlCharacters(t *testing.T) {
	if err := NameValidator.Validate("Aspirin\x1b[31m"); err != ErrControlCharacter {
		t.Errorf("Escape sequence not rejected, got: %v", err)
	}
	if err := NameValidator.Validate("Aspirin\nMorning"); err != ErrControlCharacter {
		t.Errorf("Newline in name not rejected, got: %v", err)
	}
	if err := NotesValidator.Validate("Take with food.\n\tAvoid grapefruit."); err != nil {
		t.Errorf("Multi-line notes rejected: %v", err)
	}
}

func TestInputValidator_InvalidEncoding(t *testing.T) {
	if err := NotesValidator.Validate("caf\xe9"); err != ErrInvalidEncoding {
		t.Errorf("Invalid UTF-8 not rejected, got: %v", err)
	}
}

func TestInputValidator_Repetition(t *testing.T) {
	if err := NameValidator.Validate(strings.Repeat("a", 60)); err != ErrRepetitiveContent {
		t.Errorf("Repetitive content not detected, got: %v", err)
	}
	if err := NotesValidator.Validate(strings.Repeat("-", 80)); err != nil {
		t.Errorf("Short separator line rejected: %v", err)
	}
}

func TestValidateFields(t *testing.T) {
	name, dosage := "Metformin", "500mg"
	if err := ValidateFields(&name, &dosage, nil); err != nil {
		t.Errorf("Valid fields rejected: %v", err)
	}

	notes := "ok\x00"
	err := ValidateFields(nil, nil, &notes)
	if !errors.Is(err, ErrNullByteDetected) {
		t.Fatalf("Expected null byte error, got: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "notes: ") {
		t.Errorf("Error does not name the field: %v", err)
	}
}
