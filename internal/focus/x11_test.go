package focus

import (
	"context"
	"testing"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWindow(t *testing.T) {
	win, err := decodeWindow(32, []byte{0x01, 0x00, 0x40, 0x03})
	require.NoError(t, err)
	assert.Equal(t, xproto.Window(0x03400001), win)
}

func TestDecodeWindowErrors(t *testing.T) {
	_, err := decodeWindow(32, []byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrNoActiveWindow)

	_, err = decodeWindow(32, nil)
	assert.ErrorIs(t, err, ErrMalformedProperty)

	_, err = decodeWindow(8, []byte{1, 0, 0, 0})
	assert.ErrorIs(t, err, ErrMalformedProperty)
}

func TestParseWMClass(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"xterm\x00XTerm\x00", "xterm XTerm"},
		{"gnome-terminal-server\x00Gnome-terminal\x00", "gnome-terminal-server Gnome-terminal"},
		{"single", "single"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := parseWMClass([]byte(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestDecodeTextRejectsInvalidUTF8(t *testing.T) {
	_, err := decodeText([]byte{0xff, 0xfe, 'a'})
	assert.ErrorIs(t, err, ErrMalformedProperty)

	_, err = parseWMClass([]byte("ok\x00\xc3\x28\x00"))
	assert.ErrorIs(t, err, ErrMalformedProperty)
}

func TestDecodeTextTrimsTrailingNUL(t *testing.T) {
	got, err := decodeText([]byte("VS Code - file.rs\x00"))
	require.NoError(t, err)
	assert.Equal(t, "VS Code - file.rs", got)
}

func TestX11CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewX11(":does-not-matter", nil).ActiveWindow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
