package security

import (
	"strings"
	"testing"
	"time"
)

func TestSealedBoxRoundTrip(t *testing.T) {
	box, err := NewSealedBox("a-secret-of-sufficient-length")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	sealed, err := box.Seal("token-value")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.HasPrefix(sealed, "sealed:") {
		t.Fatalf("expected sealed prefix, got %q", sealed)
	}
	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "token-value" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestSealedBoxNilPassesThrough(t *testing.T) {
	var box *SealedBox
	sealed, err := box.Seal("plain")
	if err != nil || sealed != "plain" {
		t.Fatalf("nil box should pass through, got %q err=%v", sealed, err)
	}
	opened, err := box.Open("plain")
	if err != nil || opened != "plain" {
		t.Fatalf("nil box should pass through on open, got %q err=%v", opened, err)
	}
}

func TestSealedBoxAcceptsLegacyPlaintext(t *testing.T) {
	box, err := NewSealedBox("a-secret-of-sufficient-length")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	opened, err := box.Open("legacy-plain-value")
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	if opened != "legacy-plain-value" {
		t.Fatalf("legacy value mangled: %q", opened)
	}
}

func TestSealedBoxRejectsTampering(t *testing.T) {
	box, err := NewSealedBox("a-secret-of-sufficient-length")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	if _, err := box.Open("sealed:%%%not-base64%%%"); err == nil {
		t.Fatal("expected corrupt value error")
	}
	if _, err := box.Open("sealed:QUJD"); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}

func TestFingerprintStableAndShort(t *testing.T) {
	a := Fingerprint("some-token")
	b := Fingerprint("some-token")
	if a != b || len(a) != 12 {
		t.Fatalf("unexpected fingerprint %q / %q", a, b)
	}
	if Fingerprint("") != "" {
		t.Fatal("empty token should have empty fingerprint")
	}
}

func TestTokenExpiry(t *testing.T) {
	mgr := NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456", "abcdefghijklmnopqrstuvwxyz654321")
	raw, err := mgr.SignAccessToken(1, "a@b.c", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	exp := TokenExpiry(raw)
	if exp.IsZero() {
		t.Fatal("expected expiry from JWT")
	}
	until := time.Until(exp)
	if until < 59*time.Minute || until > 61*time.Minute {
		t.Fatalf("expiry off: %v", until)
	}
	if !TokenExpiry("not-a-jwt").IsZero() {
		t.Fatal("non-JWT should yield zero expiry")
	}
}
