// Package keys models physical key identities shared by every input source.
//
// A key is identified either by its Linux key code (global input hook) or by
// its row/column in a scanned key matrix. Both forms live in one comparable
// Identity value so mapping tables and runtime state are keyed uniformly.
package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the two identity forms.
type Kind uint8

const (
	KindNone Kind = iota
	KindCode
	KindMatrix
)

func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindMatrix:
		return "matrix"
	default:
		return "none"
	}
}

// Identity is an immutable key identity, compared by value.
type Identity struct {
	kind Kind
	code Code
	row  uint8
	col  uint8
}

// Key returns the identity of a key reported by key code.
func Key(c Code) Identity {
	return Identity{kind: KindCode, code: c}
}

// At returns the identity of a matrix position.
func At(row, col uint8) Identity {
	return Identity{kind: KindMatrix, row: row, col: col}
}

func (id Identity) Kind() Kind { return id.kind }

// IsZero reports whether id is the zero Identity.
func (id Identity) IsZero() bool { return id.kind == KindNone }

// Code returns the key code of a code identity.
func (id Identity) Code() (Code, bool) {
	return id.code, id.kind == KindCode
}

// Position returns the row and column of a matrix identity.
func (id Identity) Position() (row, col uint8, ok bool) {
	return id.row, id.col, id.kind == KindMatrix
}

func (id Identity) String() string {
	switch id.kind {
	case KindCode:
		return id.code.String()
	case KindMatrix:
		return fmt.Sprintf("matrix(%d,%d)", id.row, id.col)
	default:
		return "none"
	}
}

// Parse reads an identity in the form produced by String: a key name such as
// "KEY_W" (see ParseCode) or a matrix position "matrix(1,2)".
func Parse(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "matrix(") && strings.HasSuffix(lower, ")") {
		inner := s[len("matrix(") : len(s)-1]
		parts := strings.Split(inner, ",")
		if len(parts) != 2 {
			return Identity{}, fmt.Errorf("%w: %q: want matrix(row,col)", ErrUnknownKey, s)
		}
		row, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 8)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %q: bad row: %v", ErrUnknownKey, s, err)
		}
		col, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 8)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %q: bad column: %v", ErrUnknownKey, s, err)
		}
		return At(uint8(row), uint8(col)), nil
	}
	code, err := ParseCode(s)
	if err != nil {
		return Identity{}, err
	}
	return Key(code), nil
}

func (id Identity) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: zero identity", ErrUnknownKey)
	}
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Event is one raw key transition from an input source. Auto-repeat
// signals arrive as additional Pressed events.
type Event struct {
	Key     Identity
	Pressed bool
}

func Press(id Identity) Event { return Event{Key: id, Pressed: true} }
func Release(id Identity) Event { return Event{Key: id, Pressed: false} }

func (e Event) String() string {
	if e.Pressed {
		return "press " + e.Key.String()
	}
	return "release " + e.Key.String()
}
