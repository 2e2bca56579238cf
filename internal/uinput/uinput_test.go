package uinput

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetkvm/remapd/internal/keys"
)

func fileKeyboard(t *testing.T) (*Keyboard, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events")
	f, err := os.Create(path)
	require.NoError(t, err)
	logger := zerolog.Nop()
	return newKeyboard(f, DefaultName, &logger), path
}

func readEvents(t *testing.T, path string) []inputEvent {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []inputEvent
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var ev inputEvent
		require.NoError(t, binary.Read(r, binary.LittleEndian, &ev))
		out = append(out, ev)
	}
	return out
}

func TestKeyWritesEventAndSync(t *testing.T) {
	k, path := fileKeyboard(t)

	require.NoError(t, k.Key(keys.KEY_UP, Press))
	require.NoError(t, k.Key(keys.KEY_UP, Repeat))
	require.NoError(t, k.Key(keys.KEY_UP, Release))

	events := readEvents(t, path)
	require.Len(t, events, 6)
	want := []struct {
		typ, code uint16
		value     int32
	}{
		{EV_KEY, uint16(keys.KEY_UP), Press},
		{EV_SYN, SYN_REPORT, 0},
		{EV_KEY, uint16(keys.KEY_UP), Repeat},
		{EV_SYN, SYN_REPORT, 0},
		{EV_KEY, uint16(keys.KEY_UP), Release},
		{EV_SYN, SYN_REPORT, 0},
	}
	for i, w := range want {
		assert.Equal(t, w.typ, events[i].Type, "event %d", i)
		assert.Equal(t, w.code, events[i].Code, "event %d", i)
		assert.Equal(t, w.value, events[i].Value, "event %d", i)
	}
	assert.False(t, k.LastWrite().IsZero())
}

func TestDownTracksHeldKeys(t *testing.T) {
	k, _ := fileKeyboard(t)

	require.NoError(t, k.Key(keys.KEY_W, Press))
	require.NoError(t, k.Key(keys.KEY_A, Press))
	require.NoError(t, k.Key(keys.KEY_W, Release))
	assert.Equal(t, []keys.Code{keys.KEY_A}, k.Down())
}

func TestCloseReleasesHeldKeys(t *testing.T) {
	k, path := fileKeyboard(t)

	require.NoError(t, k.Key(keys.KEY_LEFT, Press))
	require.NoError(t, k.Close())

	events := readEvents(t, path)
	require.Len(t, events, 4)
	assert.Equal(t, uint16(keys.KEY_LEFT), events[2].Code)
	assert.Equal(t, Release, events[2].Value)
	assert.Empty(t, k.Down())

	assert.Error(t, k.Key(keys.KEY_LEFT, Press))
}

func TestUserDevLayout(t *testing.T) {
	assert.Equal(t, 80+8+4+4*64*4, binary.Size(userDev{}))
	assert.Equal(t, 24, binary.Size(inputEvent{}))
}

type ioctlCall struct {
	Request uint
	Arg     int
}

func TestRegisterLeavesKernelRepeatOff(t *testing.T) {
	k, _ := fileKeyboard(t)
	var calls []ioctlCall
	k.ioctl = func(request uint, arg int) error {
		calls = append(calls, ioctlCall{request, arg})
		return nil
	}

	n, err := k.register([]keys.Code{keys.KEY_UP, keys.KEY_MUTE})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []ioctlCall{
		{UI_SET_EVBIT, EV_KEY},
		{UI_SET_KEYBIT, int(keys.KEY_UP)},
		{UI_SET_KEYBIT, int(keys.KEY_MUTE)},
	}, calls)
	assert.NotContains(t, calls, ioctlCall{UI_SET_EVBIT, EV_REP})
}
