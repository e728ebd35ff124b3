package auth

import "testing"

func TestCredentialCacheRoundTrip(t *testing.T) {
	c := NewCredentialCache()
	if err := c.Store("alice@example.com", []byte("hunter2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Verify("alice@example.com", []byte("hunter2")); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := c.Verify("alice@example.com", []byte("wrong")); err != ErrCredentialMismatch {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := c.Verify("unknown@example.com", []byte("hunter2")); err != ErrCredentialMismatch {
		t.Fatalf("expected mismatch for unknown identity, got %v", err)
	}
}

func TestCredentialCacheForget(t *testing.T) {
	c := NewCredentialCache()
	_ = c.Store("bob@example.com", []byte("s3cret"))
	c.Forget("bob@example.com")
	if err := c.Verify("bob@example.com", []byte("s3cret")); err != ErrCredentialMismatch {
		t.Fatalf("expected mismatch after forget, got %v", err)
	}
}
