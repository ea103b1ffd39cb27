package address

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chazu/bcc/opcode"
)

func TestResolveIsMemoized(t *testing.T) {
	a := New()
	first, err := a.Resolve("main")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := a.Resolve("other"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	again, err := a.Resolve("main")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !first.Equal(again) {
		t.Errorf("second Resolve(main) = %s, want %s", again, first)
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d, want 2", a.Len())
	}
}

func TestFirstAddressAboveTags(t *testing.T) {
	a := New()
	addr, err := a.Resolve("x")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if addr.Value() != opcode.ReservedRange+1 {
		t.Errorf("first address value = %d, want %d", addr.Value(), opcode.ReservedRange+1)
	}
	for _, tag := range opcode.All() {
		if addr.Value() <= int(tag) {
			t.Errorf("first address %d collides with %s", addr.Value(), tag)
		}
	}
}

func TestAddressesAreUnique(t *testing.T) {
	a := New()
	seen := make(map[string]string)
	for i := 0; i < 600; i++ {
		name := fmt.Sprintf("v%d", i)
		addr, err := a.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%s) failed: %v", name, err)
		}
		if prev, ok := seen[string(addr)]; ok {
			t.Fatalf("%s and %s share address %s", prev, name, addr)
		}
		seen[string(addr)] = name
	}
}

func TestEncodeValuePreserving(t *testing.T) {
	tests := []struct {
		value int
		want  []byte
	}{
		{65, []byte{65}},
		{254, []byte{254}},
		{255, []byte{255}},
		{256, []byte{255, 1}},
		{510, []byte{255, 255}},
		{600, []byte{255, 255, 90}},
		{MaxValue, []byte{255, 255, 255, 255, 255, 255, 255, 255}},
	}
	for _, tt := range tests {
		got, err := Encode(tt.value)
		if err != nil {
			t.Fatalf("Encode(%d) failed: %v", tt.value, err)
		}
		if string(got) != string(tt.want) {
			t.Errorf("Encode(%d) = % x, want % x", tt.value, got, tt.want)
		}
		if got.Value() != tt.value {
			t.Errorf("Encode(%d).Value() = %d", tt.value, got.Value())
		}
	}
}

func TestEncodeRejectsOverflow(t *testing.T) {
	if _, err := Encode(MaxValue + 1); !errors.Is(err, ErrAddressSpaceExhausted) {
		t.Errorf("Encode(MaxValue+1) error = %v, want ErrAddressSpaceExhausted", err)
	}
	if _, err := Encode(0); !errors.Is(err, ErrMalformedAddress) {
		t.Errorf("Encode(0) error = %v, want ErrMalformedAddress", err)
	}
}

func TestOverflowAtEightBytes(t *testing.T) {
	a := New()
	names := MaxValue - opcode.ReservedRange
	if a.Capacity() != names {
		t.Fatalf("Capacity() = %d, want %d", a.Capacity(), names)
	}

	var last Address
	for i := 0; i < names; i++ {
		addr, err := a.Resolve(fmt.Sprintf("n%d", i))
		if err != nil {
			t.Fatalf("Resolve #%d failed: %v", i, err)
		}
		last = addr
	}
	if len(last) != MaxBytes {
		t.Errorf("last address is %d bytes, want %d", len(last), MaxBytes)
	}
	if a.Capacity() != 0 {
		t.Errorf("Capacity() = %d, want 0", a.Capacity())
	}

	_, err := a.Resolve("one-too-many")
	if !errors.Is(err, ErrAddressSpaceExhausted) {
		t.Fatalf("Resolve past the boundary: error = %v, want ErrAddressSpaceExhausted", err)
	}
	if _, ok := a.Lookup("one-too-many"); ok {
		t.Error("failed name was cached")
	}
	if a.Len() != names {
		t.Errorf("Len() = %d after failure, want %d", a.Len(), names)
	}

	// Known names still resolve after exhaustion.
	if _, err := a.Resolve("n0"); err != nil {
		t.Errorf("Resolve(n0) after exhaustion failed: %v", err)
	}
}

func TestDecode(t *testing.T) {
	addr, err := Decode([]byte{255, 255, 90, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if addr.Value() != 600 {
		t.Errorf("Value() = %d, want 600", addr.Value())
	}

	bad := [][]byte{
		{0, 0, 0, 0, 0, 0, 0, 0},
		{12, 255, 0, 0, 0, 0, 0, 0},
		{70, 0, 3, 0, 0, 0, 0, 0},
	}
	for _, w := range bad {
		if _, err := Decode(w); !errors.Is(err, ErrMalformedAddress) {
			t.Errorf("Decode(% x) error = %v, want ErrMalformedAddress", w, err)
		}
	}
}

func TestEntriesInLookupOrder(t *testing.T) {
	a := New()
	for _, name := range []string{"main", "x", "main", "y"} {
		if _, err := a.Resolve(name); err != nil {
			t.Fatal(err)
		}
	}
	entries := a.Entries()
	want := []string{"main", "x", "y"}
	if len(entries) != len(want) {
		t.Fatalf("Entries() returned %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Name != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Name, want[i])
		}
		if e.Address.Value() != opcode.ReservedRange+1+i {
			t.Errorf("entry %d value = %d, want %d", i, e.Address.Value(), opcode.ReservedRange+1+i)
		}
	}
}

func TestWordPadding(t *testing.T) {
	addr := Address{255, 3}
	w := addr.Word()
	want := [opcode.WordSize]byte{255, 3}
	if w != want {
		t.Errorf("Word() = % x, want % x", w, want)
	}
	if addr.String() != "ff03" {
		t.Errorf("String() = %q, want ff03", addr.String())
	}
}
