package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenParser_RoundTrip(t *testing.T) {
	parser := NewTokenParser("test-secret")
	want := Actor{UserID: "user-1", Role: RoleModerator, Verification: VerificationVerified}

	token, err := parser.Sign(want, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	got, err := parser.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got != want {
		t.Errorf("Parse() = %+v, want %+v", got, want)
	}
}

func TestTokenParser_WrongSecret(t *testing.T) {
	token, err := NewTokenParser("secret-a").Sign(Actor{UserID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := NewTokenParser("secret-b").Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenParser_Expired(t *testing.T) {
	parser := NewTokenParser("test-secret")
	token, err := parser.Sign(Actor{UserID: "user-1"}, -2*DefaultLeeway)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := parser.Parse(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Parse() error = %v, want ErrExpiredToken", err)
	}
}

func TestTokenParser_LeewayToleratesSkew(t *testing.T) {
	parser := NewTokenParser("test-secret")

	// Expired by less than the leeway still validates.
	token, err := parser.Sign(Actor{UserID: "user-1"}, -DefaultLeeway/2)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := parser.Parse(token); err != nil {
		t.Errorf("Parse() within leeway error = %v", err)
	}
}

func TestTokenParser_Rotation(t *testing.T) {
	old := NewTokenParser("old-secret")
	token, err := old.Sign(Actor{UserID: "user-1", Role: RoleVoter}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	rotated := NewTokenParserWithRotation("new-secret", "old-secret")
	if _, err := rotated.Parse(token); err != nil {
		t.Errorf("Parse() with previous secret error = %v", err)
	}

	// Without the previous secret the old token is rejected.
	if _, err := NewTokenParser("new-secret").Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() without rotation error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenParser_MissingSubject(t *testing.T) {
	parser := NewTokenParser("test-secret")
	token, err := parser.Sign(Actor{}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := parser.Parse(token); !errors.Is(err, ErrMissingSubject) {
		t.Errorf("Parse() error = %v, want ErrMissingSubject", err)
	}
}

func TestTokenParser_DefaultsUnknownClaims(t *testing.T) {
	parser := NewTokenParser("test-secret")
	token, err := parser.Sign(Actor{UserID: "user-1", Role: Role("superuser")}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	actor, err := parser.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if actor.Role != RoleVoter {
		t.Errorf("unknown role mapped to %s, want voter", actor.Role)
	}
	if actor.Verification != VerificationNone {
		t.Errorf("missing verification mapped to %s, want unverified", actor.Verification)
	}
}

func TestActor_IsModerator(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleVoter, false},
		{RoleCandidate, false},
		{RoleModerator, true},
		{RoleAdmin, true},
	}
	for _, tt := range tests {
		if got := (Actor{Role: tt.role}).IsModerator(); got != tt.want {
			t.Errorf("IsModerator() with role %s = %v, want %v", tt.role, got, tt.want)
		}
	}
}
