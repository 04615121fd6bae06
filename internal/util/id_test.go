package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	plain := NewID("")
	if !IsUUID(plain) {
		t.Fatalf("NewID(\"\") = %q, want a UUID", plain)
	}
	prefixed := NewID("req")
	if !strings.HasPrefix(prefixed, "req_") || !IsUUID(strings.TrimPrefix(prefixed, "req_")) {
		t.Fatalf("NewID(\"req\") = %q", prefixed)
	}
}

func TestIsUUID(t *testing.T) {
	if IsUUID("not-a-uuid") {
		t.Fatal("IsUUID accepted garbage")
	}
	if !IsUUID("3f1c9a52-6b7e-4d2a-9c1f-0a8b7c6d5e4f") {
		t.Fatal("IsUUID rejected a valid id")
	}
}
