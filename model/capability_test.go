package model

import "testing"

func TestCapabilityIsValid(t *testing.T) {
	tests := []struct {
		cap      Capability
		expected bool
	}{
		{CapabilityClassification, true},
		{CapabilityFast, true},
		{Capability("planning"), false},
		{Capability(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.cap), func(t *testing.T) {
			got := tt.cap.IsValid()
			if got != tt.expected {
				t.Errorf("Capability(%q).IsValid() = %v, want %v", tt.cap, got, tt.expected)
			}
		})
	}
}

func TestParseCapability(t *testing.T) {
	if got := ParseCapability("classification"); got != CapabilityClassification {
		t.Errorf("ParseCapability(classification) = %q", got)
	}
	if got := ParseCapability("coding"); got != "" {
		t.Errorf("ParseCapability(coding) = %q, want empty", got)
	}
}
