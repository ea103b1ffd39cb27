// Package address assigns operand addresses to symbol names.
//
// An address is a run of one to eight bytes whose sum is the symbol's slot
// number. Slots start above opcode.ReservedRange so that a one-byte address
// never shares a value with a tag.
package address

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/chazu/bcc/opcode"
)

// MaxBytes is the longest encoded address. It fills exactly one word.
const MaxBytes = opcode.WordSize

// chunk is the value carried by every byte of an address except the last.
const chunk = 255

// MaxValue is the largest slot number an address can hold.
const MaxValue = MaxBytes * chunk

// ErrAddressSpaceExhausted is returned when a new slot would need more than
// MaxBytes bytes.
var ErrAddressSpaceExhausted = errors.New("address space exhausted")

// ErrMalformedAddress is returned by Decode for byte runs that could not
// have been produced by Encode.
var ErrMalformedAddress = errors.New("malformed address")

// ---------------------------------------------------------------------------
// Address
// ---------------------------------------------------------------------------

// Address is the encoded form of a slot number.
type Address []byte

// Value returns the slot number, the sum of the address bytes.
func (a Address) Value() int {
	v := 0
	for _, b := range a {
		v += int(b)
	}
	return v
}

// Word returns the address padded with zeros to a full cell.
func (a Address) Word() [opcode.WordSize]byte {
	var w [opcode.WordSize]byte
	copy(w[:], a)
	return w
}

// Equal reports whether a and b hold the same bytes.
func (a Address) Equal(b Address) bool {
	return string(a) == string(b)
}

// String renders the address as hex.
func (a Address) String() string {
	return hex.EncodeToString(a)
}

// Encode converts a slot number to its address: a 255 byte for every full
// chunk, then the nonzero remainder if any.
func Encode(value int) (Address, error) {
	if value <= 0 {
		return nil, fmt.Errorf("%w: slot %d", ErrMalformedAddress, value)
	}
	if value > MaxValue {
		return nil, fmt.Errorf("%w: slot %d needs more than %d bytes", ErrAddressSpaceExhausted, value, MaxBytes)
	}

	addr := make(Address, 0, value/chunk+1)
	rest := value
	for rest >= chunk {
		addr = append(addr, chunk)
		rest -= chunk
	}
	if rest != 0 {
		addr = append(addr, byte(rest))
	}
	return addr, nil
}

// Decode reads an address from a cell, ignoring zero padding. Only 255
// bytes may precede the last nonzero byte.
func Decode(word []byte) (Address, error) {
	n := 0
	for n < len(word) && word[n] != 0 {
		n++
	}
	if n == 0 || n > MaxBytes {
		return nil, fmt.Errorf("%w: % x", ErrMalformedAddress, word)
	}
	for _, b := range word[n:] {
		if b != 0 {
			return nil, fmt.Errorf("%w: data after padding in % x", ErrMalformedAddress, word)
		}
	}
	for _, b := range word[:n-1] {
		if b != chunk {
			return nil, fmt.Errorf("%w: short chunk in % x", ErrMalformedAddress, word)
		}
	}
	addr := make(Address, n)
	copy(addr, word[:n])
	return addr, nil
}

// ---------------------------------------------------------------------------
// Allocator: memoized name -> address table
// ---------------------------------------------------------------------------

// Entry is one assigned address.
type Entry struct {
	Name    string
	Address Address
}

// Allocator hands out addresses in first-lookup order. One allocator is
// shared by every function of a build so that a name resolves to the same
// address wherever it appears.
//
// An Allocator is not safe for concurrent use. Output depends on lookup
// order, so callers must resolve names in a fixed order.
type Allocator struct {
	counter int
	byName  map[string]Address
	order   []string
}

// New creates an allocator whose first address is opcode.ReservedRange+1.
func New() *Allocator {
	return &Allocator{
		counter: opcode.ReservedRange,
		byName:  make(map[string]Address),
	}
}

// Resolve returns the address for name, assigning the next slot the first
// time name is seen. On failure the table is left unchanged.
func (a *Allocator) Resolve(name string) (Address, error) {
	if addr, ok := a.byName[name]; ok {
		return addr, nil
	}

	addr, err := Encode(a.counter + 1)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", name, err)
	}
	a.counter++
	a.byName[name] = addr
	a.order = append(a.order, name)
	return addr, nil
}

// Lookup returns the address already assigned to name.
func (a *Allocator) Lookup(name string) (Address, bool) {
	addr, ok := a.byName[name]
	return addr, ok
}

// Len returns the number of assigned names.
func (a *Allocator) Len() int {
	return len(a.order)
}

// Capacity returns how many more names can be assigned.
func (a *Allocator) Capacity() int {
	return MaxValue - a.counter
}

// Entries returns every assignment in first-lookup order.
func (a *Allocator) Entries() []Entry {
	entries := make([]Entry, len(a.order))
	for i, name := range a.order {
		entries[i] = Entry{Name: name, Address: a.byName[name]}
	}
	return entries
}
