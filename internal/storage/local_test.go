package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/uploads/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	first, err := s.Save(ctx, "1758096000000_report.pdf", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first != "/uploads/1758096000000_report.pdf" {
		t.Fatalf("path = %q", first)
	}
	second, err := s.Save(ctx, "1758096000000_report.pdf", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if second == first || !strings.HasSuffix(second, ".pdf") {
		t.Fatalf("collision path = %q", second)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "1758096000000_report.pdf"))
	if string(b) != "one" {
		t.Fatalf("first blob overwritten: %q", b)
	}
}

func TestSaveStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewLocalStore(dir, "uploads")
	p, err := s.Save(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if p != "/uploads/passwd" {
		t.Fatalf("path = %q", p)
	}
	if _, err := os.Stat(filepath.Join(dir, "passwd")); err != nil {
		t.Fatalf("blob not inside upload dir: %v", err)
	}
}

func TestSaveHonoursCancelledContext(t *testing.T) {
	s, _ := NewLocalStore(t.TempDir(), "/uploads")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, "a.png", strings.NewReader("data")); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestHandlerServesBlobs(t *testing.T) {
	s, _ := NewLocalStore(t.TempDir(), "/uploads")
	p, err := s.Save(context.Background(), "note.pdf", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, p, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if string(body) != "hello" {
		t.Fatalf("body = %q", body)
	}
}
