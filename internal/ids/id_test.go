package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDProviderIssuesVersionSeven(t *testing.T) {
	provider := NewUUIDProvider()
	value, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		t.Fatalf("expected uuid, got %q: %v", value, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestSequenceIsDeterministic(t *testing.T) {
	sequence := &Sequence{Prefix: "c-"}
	for _, want := range []string{"c-1", "c-2", "c-3"} {
		got, _ := sequence.NewID()
		if got != want {
			t.Fatalf("want %q got %q", want, got)
		}
	}
}
