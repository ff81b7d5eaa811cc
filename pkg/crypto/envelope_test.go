package crypto

import "testing"

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	plaintext := []byte("a packet's worth of bytes")
	sealed := env.Seal(plaintext)
	got, err := env.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("got %q want %q", got, plaintext)
	}
}

func TestEnvelopeWrongKeyFails(t *testing.T) {
	sender, _ := NewEnvelope("secret-a")
	receiver, _ := NewEnvelope("secret-b")

	sealed := sender.Seal([]byte("hello"))
	if _, err := receiver.Open(sealed); err != ErrAuthenticationFailed {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestEnvelopeTamperedCiphertextFails(t *testing.T) {
	env, _ := NewEnvelope("shared-secret")
	sealed := env.Seal([]byte("untampered"))
	sealed[0] ^= 0xFF

	if _, err := env.Open(sealed); err != ErrAuthenticationFailed {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey("same secret")
	b := DeriveKey("same secret")
	if a != b {
		t.Fatal("DeriveKey is not deterministic for the same secret")
	}

	c := DeriveKey("different secret")
	if a == c {
		t.Fatal("DeriveKey produced the same key for different secrets")
	}
}
