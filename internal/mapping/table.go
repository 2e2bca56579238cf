// Package mapping holds the static key remap table.
package mapping

import (
	"errors"
	"fmt"

	"github.com/jetkvm/remapd/internal/keys"
)

// ErrDuplicateKey is returned by New when a key is defined more than once.
var ErrDuplicateKey = errors.New("duplicate mapping key")

// Entry maps one key to its remap target.
type Entry struct {
	From keys.Identity
	To   Target
}

func (e Entry) String() string {
	return e.From.String() + " -> " + e.To.String()
}

// Table is an immutable lookup from key identity to remap target. Lookups are
// total: keys without an entry resolve to Passthrough.
type Table struct {
	targets map[keys.Identity]Target
	entries []Entry
}

// New builds a table from an association list. Every duplicate key and every
// malformed entry is reported; a table is only returned when there are none.
func New(entries []Entry) (*Table, error) {
	t := &Table{
		targets: make(map[keys.Identity]Target, len(entries)),
		entries: make([]Entry, 0, len(entries)),
	}
	var errs []error
	for i, e := range entries {
		if e.From.IsZero() {
			errs = append(errs, fmt.Errorf("entry %d: missing source key", i))
			continue
		}
		if err := e.To.validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i, e.From, err))
			continue
		}
		if prev, ok := t.targets[e.From]; ok {
			errs = append(errs, fmt.Errorf("%w: %s (entry %d maps to %s, already mapped to %s)", ErrDuplicateKey, e.From, i, e.To, prev))
			continue
		}
		t.targets[e.From] = e.To
		t.entries = append(t.entries, e)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNew is New for static tables; it panics on a malformed table.
func MustNew(entries []Entry) *Table {
	t, err := New(entries)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the target for id, Passthrough when id is not mapped.
func (t *Table) Lookup(id keys.Identity) Target {
	if t == nil {
		return Passthrough()
	}
	if target, ok := t.targets[id]; ok {
		return target
	}
	return Passthrough()
}

// Entries returns the table contents in definition order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return append([]Entry(nil), t.entries...)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
