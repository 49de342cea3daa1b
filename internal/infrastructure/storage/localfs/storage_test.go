package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	locator, err := store.Save(context.Background(), "uploads/doc-1/extracted.txt", "text/plain", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(locator, "file://") || !strings.HasSuffix(locator, "uploads/doc-1/extracted.txt") {
		t.Fatalf("unexpected locator %q", locator)
	}

	rc, err := store.Open(context.Background(), "uploads/doc-1/extracted.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	store, _ := New(t.TempDir())
	_, err := store.Open(context.Background(), "uploads/missing.txt")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store, _ := New(t.TempDir())
	for _, key := range []string{"../outside.txt", "uploads/../../outside.txt", ""} {
		if _, err := store.Save(context.Background(), key, "text/plain", strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected invalid input, got %v", key, err)
		}
	}
}
