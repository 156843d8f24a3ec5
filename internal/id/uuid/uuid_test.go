package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewRawID ensures generated run ids are unique v7 UUIDs.
func TestGeneratorNewRawID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewRawID()
	if err != nil {
		t.Fatalf("NewRawID() error = %v", err)
	}
	id2, err := gen.NewRawID()
	if err != nil {
		t.Fatalf("NewRawID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	if id1.Version() != 7 {
		t.Fatalf("expected version 7, got %d", id1.Version())
	}
	if id1.String() >= id2.String() {
		t.Fatalf("expected %s to sort before %s", id1, id2)
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()

	want := goUUID.MustParse("00000000-0000-0000-0000-00000000002a")
	got, err := Static(want).NewRawID()
	if err != nil || got != want {
		t.Fatalf("Static.NewRawID() = %v, %v", got, err)
	}
}
