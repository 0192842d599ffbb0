package govern

import (
	"context"
	"testing"
)

func TestNewAppliesDefaultsWhenNilOverrides(t *testing.T) {
	g := New(nil, nil, nil)
	if g.MemoryPages != DefaultMemoryPages {
		t.Fatalf("MemoryPages = %d, want %d", g.MemoryPages, DefaultMemoryPages)
	}
	if g.FileSizeBytes != DefaultFileSizeBytes {
		t.Fatalf("FileSizeBytes = %d, want %d", g.FileSizeBytes, DefaultFileSizeBytes)
	}
	if g.Timeout() != DefaultTimeout {
		t.Fatalf("Timeout() = %v, want %v", g.Timeout(), DefaultTimeout)
	}
}

func TestNewRoundsMemoryUpToWholePages(t *testing.T) {
	one := int64(70000) // just over one 64KB page
	g := New(&one, nil, nil)
	if g.MemoryPages != 2 {
		t.Fatalf("MemoryPages = %d, want 2", g.MemoryPages)
	}
}

func TestWithDeadlineExpires(t *testing.T) {
	ms := int64(5)
	g := New(nil, &ms, nil)
	ctx, cancel := g.WithDeadline(context.Background())
	defer cancel()

	<-ctx.Done()
	if !IsDeadlineExceeded(ctx.Err()) {
		t.Fatalf("expected deadline exceeded, got %v", ctx.Err())
	}
}
