package pii

import "testing"

func TestPolicyConfig_EffectiveMode(t *testing.T) {
	redact := "redact"
	bogus := "shred"

	tests := []struct {
		name string
		pol  *PolicyConfig
		want Mode
	}{
		{"nil policy", nil, ModeMask},
		{"nil mode field", &PolicyConfig{}, ModeMask},
		{"explicit mode", &PolicyConfig{Mode: &redact}, ModeRedact},
		{"unparseable mode falls back", &PolicyConfig{Mode: &bogus}, ModeMask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pol.EffectiveMode(ModeMask); got != tt.want {
				t.Errorf("EffectiveMode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPolicyConfig_EffectiveBlockThreshold(t *testing.T) {
	ninety := 90

	tests := []struct {
		name string
		pol  *PolicyConfig
		want int
	}{
		{"nil policy", nil, 80},
		{"nil threshold field", &PolicyConfig{}, 80},
		{"explicit threshold", &PolicyConfig{BlockThreshold: &ninety}, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pol.EffectiveBlockThreshold(80); got != tt.want {
				t.Errorf("EffectiveBlockThreshold = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPolicyConfig_DisabledSet(t *testing.T) {
	var nilPol *PolicyConfig
	if nilPol.disabledSet() != nil {
		t.Error("nil policy should yield nil set")
	}
	if (&PolicyConfig{}).disabledSet() != nil {
		t.Error("empty list should yield nil set")
	}

	set := (&PolicyConfig{DisabledTypes: []string{"EMAIL", "PHONE"}}).disabledSet()
	if len(set) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(set))
	}
	if _, ok := set["EMAIL"]; !ok {
		t.Error("EMAIL missing from set")
	}
	if _, ok := set["SSN"]; ok {
		t.Error("SSN should not be in set")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in     string
		want   Mode
		wantOK bool
	}{
		{"detect_only", ModeDetectOnly, true},
		{"mask", ModeMask, true},
		{"redact", ModeRedact, true},
		{"", 0, false},
		{"shred", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("ParseMode(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
