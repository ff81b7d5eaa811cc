package registry

import (
	"net"
	"testing"
	"time"
)

func TestRegisterAssignsDescendingFromHighEnd(t *testing.T) {
	r := New()
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 9527}

	first, err := r.Register(1, addr)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if first != 253 {
		t.Fatalf("first assigned id = %d, want 253", first)
	}

	second, err := r.Register(2, addr)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if second != 252 {
		t.Fatalf("second assigned id = %d, want 252", second)
	}
}

func TestRegisterUniqueUntilExhausted(t *testing.T) {
	r := New()
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 9527}
	seen := make(map[Id]bool)

	for i := 0; i < 252; i++ {
		id, err := r.Register(Token(i), addr)
		if err != nil {
			t.Fatalf("Register #%d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}

	if _, err := r.Register(9999, addr); err != ErrPoolExhausted {
		t.Fatalf("expected ErrPoolExhausted on the 253rd registration, got %v", err)
	}
}

func TestPruneReclaimsExpiredEntries(t *testing.T) {
	r := New()
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 9527}
	start := time.Unix(0, 0)

	id, err := r.RegisterAt(start, 1, addr)
	if err != nil {
		t.Fatalf("RegisterAt: %v", err)
	}

	if expired := r.Prune(start.Add(59 * time.Second)); len(expired) != 0 {
		t.Fatalf("expected no expiry before TTL, got %v", expired)
	}
	if _, ok := r.Lookup(id); !ok {
		t.Fatal("entry pruned before its TTL elapsed")
	}

	expired := r.Prune(start.Add(TTL))
	if len(expired) != 1 || expired[0] != id {
		t.Fatalf("expected id %d to expire, got %v", id, expired)
	}
	if _, ok := r.Lookup(id); ok {
		t.Fatal("expired entry still present after Prune")
	}

	reissued, err := r.RegisterAt(start.Add(TTL), 2, addr)
	if err != nil {
		t.Fatalf("RegisterAt after prune: %v", err)
	}
	if reissued != id {
		t.Fatalf("expected reclaimed id %d to be reissued, got %d", id, reissued)
	}
}

func TestAuthenticate(t *testing.T) {
	r := New()
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 9527}

	id, _ := r.Register(42, addr)
	if !r.Authenticate(id, 42) {
		t.Fatal("expected authentication to succeed with the correct token")
	}
	if r.Authenticate(id, 43) {
		t.Fatal("expected authentication to fail with the wrong token")
	}
	if r.Authenticate(Id(200), 42) {
		t.Fatal("expected authentication to fail for an unregistered id")
	}
}
