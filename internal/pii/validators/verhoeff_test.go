package validators

import "testing"

// validAadhaar is a 12-digit number whose Verhoeff check digit is correct.
const validAadhaar = "123456789010"

func TestVerhoeff_Valid(t *testing.T) {
	tests := []struct {
		name   string
		number string
	}{
		{"plain", validAadhaar},
		{"with spaces", "1234 5678 9010"},
		{"with dashes", "1234-5678-9010"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !Verhoeff(tt.number) {
				t.Errorf("Verhoeff(%q) = false, want true", tt.number)
			}
		})
	}
}

func TestVerhoeff_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		number string
	}{
		{"wrong check digit", "123456789011"},
		{"too short", "12345678901"},
		{"too long", "1234567890101"},
		{"non-digit", "12345678901x"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Verhoeff(tt.number) {
				t.Errorf("Verhoeff(%q) = true, want false", tt.number)
			}
		})
	}
}

// The Verhoeff scheme guarantees every single-digit substitution changes
// the checksum. Exercise all 12 positions.
func TestVerhoeff_DetectsSingleDigitSubstitution(t *testing.T) {
	for pos := 0; pos < len(validAadhaar); pos++ {
		original := validAadhaar[pos] - '0'
		substituted := (original + 1) % 10

		mutated := []byte(validAadhaar)
		mutated[pos] = byte('0' + substituted)

		if Verhoeff(string(mutated)) {
			t.Errorf("substitution at position %d (%d -> %d) not detected", pos, original, substituted)
		}
	}
}

func BenchmarkVerhoeff(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Verhoeff("1234 5678 9010")
	}
}
