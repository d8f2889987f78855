package auth

import (
	"errors"
	"testing"
	"time"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def", "abc.def", false},
		{"bearer abc", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer   ", "", true},
	}

	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, expected %q", tt.header, got, tt.want)
		}
	}
}

func TestLocalJWTAuth_RoundTrip(t *testing.T) {
	a, err := NewLocalJWTAuth("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("NewLocalJWTAuth failed: %v", err)
	}

	token, err := a.GenerateAccessToken("user-42", "sam@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	user, err := a.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if user.ID != "user-42" || user.Email != "sam@example.com" {
		t.Errorf("Expected user-42, got %+v", user)
	}
}

func TestLocalJWTAuth_Rejects(t *testing.T) {
	a, _ := NewLocalJWTAuth("0123456789abcdef0123456789abcdef", time.Hour)
	other, _ := NewLocalJWTAuth("fedcba9876543210fedcba9876543210", time.Hour)
	expired, _ := NewLocalJWTAuth("0123456789abcdef0123456789abcdef", time.Hour)
	expired.AccessTokenExpiry = -time.Minute

	foreign, _ := other.GenerateAccessToken("user-42", "")
	if _, err := a.VerifyAccessToken(foreign); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}

	stale, _ := expired.GenerateAccessToken("user-42", "")
	if _, err := a.VerifyAccessToken(stale); err == nil {
		t.Error("Expected expired token to be rejected")
	}

	if _, err := a.VerifyAccessToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}

	if _, err := a.GenerateAccessToken("", ""); err == nil {
		t.Error("Expected empty user id to be rejected")
	}

	if _, err := NewLocalJWTAuth("", 0); err == nil {
		t.Error("Expected empty secret to be rejected")
	}
}
