package webhook

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"reelmint/internal/domain"
)

func TestVerifyValidSignature(t *testing.T) {
	v := NewVerifier("secret", 5*time.Minute)
	ts := time.Now().Unix()
	sig := v.Sign("task-1", ts)
	if err := v.Verify("task-1", fmt.Sprintf("%d", ts), sig); err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	v := NewVerifier("secret", 5*time.Minute)
	ts := time.Now().Unix()
	sig := v.Sign("task-1", ts)
	err := v.Verify("task-2", fmt.Sprintf("%d", ts), sig)
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("Verify() = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	a := NewVerifier("secret-a", 5*time.Minute)
	b := NewVerifier("secret-b", 5*time.Minute)
	ts := time.Now().Unix()
	sig := a.Sign("task-1", ts)
	if err := b.Verify("task-1", fmt.Sprintf("%d", ts), sig); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("Verify() = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v := NewVerifier("secret", 5*time.Minute)
	ts := time.Now().Add(-10 * time.Minute).Unix()
	// structurally valid signature, but outside the skew window
	sig := v.Sign("task-1", ts)
	err := v.Verify("task-1", fmt.Sprintf("%d", ts), sig)
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("Verify() = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyFutureTimestamp(t *testing.T) {
	v := NewVerifier("secret", 5*time.Minute)
	ts := time.Now().Add(time.Hour).Unix()
	sig := v.Sign("task-1", ts)
	if err := v.Verify("task-1", fmt.Sprintf("%d", ts), sig); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("Verify() = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyMissingParameters(t *testing.T) {
	v := NewVerifier("secret", 5*time.Minute)
	if err := v.Verify("", "123", "abc"); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("Verify() = %v, want ErrSignatureInvalid", err)
	}
	if err := v.Verify("task-1", "not-a-number", "abc"); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("Verify() = %v, want ErrSignatureInvalid", err)
	}
}
