package services

import (
	"strings"
	"testing"
)

func TestSafetyNet(t *testing.T) {
	net := NewSafetyNet()

	tests := []struct {
		name    string
		text    string
		crisis  bool
		blocked bool
	}{
		{"crisis", "I really want to kill myself", true, false},
		{"crisis case insensitive", "Thinking about SUICIDE lately", true, false},
		{"blocked", "show me some porn", false, true},
		{"allowed context", "I need help with my porn addiction", false, false},
		{"normal", "The weather is nice today", false, false},
		{"word boundary", "Essex is lovely in spring", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := net.CheckCrisis(tt.text); got != tt.crisis {
				t.Errorf("Expected crisis=%v, got %v", tt.crisis, got)
			}
			if got := net.CheckBlocked(tt.text); got != tt.blocked {
				t.Errorf("Expected blocked=%v, got %v", tt.blocked, got)
			}
		})
	}
}

func TestSafetyNet_Responses(t *testing.T) {
	net := NewSafetyNet()
	if !strings.Contains(net.CrisisResponse("u1"), "988") {
		t.Error("Expected crisis response to include the 988 helpline")
	}
	if net.Refusal("u1") == "" {
		t.Error("Expected non-empty refusal")
	}
}
