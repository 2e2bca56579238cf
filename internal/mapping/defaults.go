package mapping

import "github.com/jetkvm/remapd/internal/keys"

// DefaultKeycodeEntries is the built-in table for keycode input sources:
// WASD become arrows and the numpad operators drive the mixer.
func DefaultKeycodeEntries() []Entry {
	return []Entry{
		{From: keys.Key(keys.KEY_W), To: EmitKey(keys.Key(keys.KEY_UP))},
		{From: keys.Key(keys.KEY_A), To: EmitKey(keys.Key(keys.KEY_LEFT))},
		{From: keys.Key(keys.KEY_S), To: EmitKey(keys.Key(keys.KEY_DOWN))},
		{From: keys.Key(keys.KEY_D), To: EmitKey(keys.Key(keys.KEY_RIGHT))},
		{From: keys.Key(keys.KEY_KPPLUS), To: Media(CommandVolumeUp)},
		{From: keys.Key(keys.KEY_KPMINUS), To: Media(CommandVolumeDown)},
		{From: keys.Key(keys.KEY_KPSLASH), To: Media(CommandToggleMute)},
		{From: keys.Key(keys.KEY_KPASTERISK), To: Media(CommandPlayPause)},
	}
}

// DefaultMatrixEntries is the same remap for the positions of the default
// matrix layout.
func DefaultMatrixEntries() []Entry {
	return []Entry{
		{From: keys.At(1, 2), To: EmitKey(keys.Key(keys.KEY_UP))},
		{From: keys.At(2, 1), To: EmitKey(keys.Key(keys.KEY_LEFT))},
		{From: keys.At(2, 2), To: EmitKey(keys.Key(keys.KEY_DOWN))},
		{From: keys.At(2, 3), To: EmitKey(keys.Key(keys.KEY_RIGHT))},
		{From: keys.At(5, 4), To: Media(CommandVolumeUp)},
		{From: keys.At(4, 4), To: Media(CommandVolumeDown)},
		{From: keys.At(5, 0), To: Media(CommandToggleMute)},
	}
}

func DefaultKeycodeTable() *Table { return MustNew(DefaultKeycodeEntries()) }
func DefaultMatrixTable() *Table { return MustNew(DefaultMatrixEntries()) }
