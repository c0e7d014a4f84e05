package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsCredentialsAndHashesIdentity(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core), true)

	l.Info("login",
		"username", "ann",
		"password", "Secret123",
		"user_id", int64(42),
		"note", "eyJhbGciOiJIUzI1NiJ9.eyJ1aWQiOjQyLCJyb2xlIjoidXNlciJ9.sig",
	)
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["username"] != "ann" {
		t.Fatalf("username should pass through, got %v", fields["username"])
	}
	if fields["password"] != "[REDACTED]" || fields["note"] != "[REDACTED]" {
		t.Fatalf("secrets leaked: %v", fields)
	}
	uid, _ := fields["user_id"].(string)
	if !strings.HasPrefix(uid, "hash:") || len(uid) != len("hash:")+12 {
		t.Fatalf("user_id not hashed: %v", fields["user_id"])
	}
}

func TestRedactionDisabled(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core), false).With("user_id", 7)

	l.Warn("plain", "password", "x", "dangling")
	fields := logs.All()[0].ContextMap()
	if fields["password"] != "x" {
		t.Fatalf("expected raw value with redaction off, got %v", fields["password"])
	}
	if fields["user_id"] != int64(7) {
		t.Fatalf("user_id = %#v", fields["user_id"])
	}
}
