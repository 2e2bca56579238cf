package keys

// Layout resolves matrix positions to the key codes printed on the keycaps.
// Cells holding KEY_RESERVED are not wired.
type Layout struct {
	rows [][]Code
}

// NewLayout copies rows into a Layout.
func NewLayout(rows [][]Code) *Layout {
	l := &Layout{rows: make([][]Code, len(rows))}
	for i, row := range rows {
		l.rows[i] = append([]Code(nil), row...)
	}
	return l
}

// DefaultLayout is the 4x12 alpha block followed by the 4x5 numpad block.
func DefaultLayout() *Layout {
	return NewLayout([][]Code{
		{KEY_ESC, KEY_1, KEY_2, KEY_3, KEY_4, KEY_5, KEY_6, KEY_7, KEY_8, KEY_9, KEY_0, KEY_BACKSPACE},
		{KEY_TAB, KEY_Q, KEY_W, KEY_E, KEY_R, KEY_T, KEY_Y, KEY_U, KEY_I, KEY_O, KEY_P, KEY_ENTER},
		{KEY_LEFTCTRL, KEY_A, KEY_S, KEY_D, KEY_F, KEY_G, KEY_H, KEY_J, KEY_K, KEY_L, KEY_SEMICOLON, KEY_APOSTROPHE},
		{KEY_LEFTSHIFT, KEY_Z, KEY_X, KEY_C, KEY_V, KEY_B, KEY_N, KEY_M, KEY_COMMA, KEY_DOT, KEY_SLASH, KEY_RIGHTSHIFT},

		{KEY_NUMLOCK, KEY_KP7, KEY_KP8, KEY_KP9, KEY_KPMINUS},
		{KEY_KPSLASH, KEY_KP4, KEY_KP5, KEY_KP6, KEY_KPPLUS},
		{KEY_KPASTERISK, KEY_KP1, KEY_KP2, KEY_KP3, KEY_KPENTER},
		{KEY_KP0, KEY_KPDOT, KEY_RESERVED, KEY_RESERVED, KEY_RESERVED},
	})
}

// Resolve returns the key code an identity stands for. Code identities
// resolve to themselves; matrix identities resolve through the grid.
func (l *Layout) Resolve(id Identity) (Code, bool) {
	if code, ok := id.Code(); ok {
		return code, true
	}
	row, col, ok := id.Position()
	if !ok || l == nil {
		return KEY_RESERVED, false
	}
	if int(row) >= len(l.rows) || int(col) >= len(l.rows[row]) {
		return KEY_RESERVED, false
	}
	code := l.rows[row][col]
	return code, code != KEY_RESERVED
}

// Find returns the first matrix position wired to code.
func (l *Layout) Find(code Code) (Identity, bool) {
	if l == nil || code == KEY_RESERVED {
		return Identity{}, false
	}
	for r, row := range l.rows {
		for c, cell := range row {
			if cell == code {
				return At(uint8(r), uint8(c)), true
			}
		}
	}
	return Identity{}, false
}

// Rows returns the number of matrix rows.
func (l *Layout) Rows() int { return len(l.rows) }
