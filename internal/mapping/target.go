package mapping

import (
	"fmt"
	"strings"

	"github.com/jetkvm/remapd/internal/keys"
)

// Command is a media control command.
type Command uint8

const (
	CommandNone Command = iota
	CommandVolumeUp
	CommandVolumeDown
	CommandToggleMute
	CommandPlayPause
)

var commandNames = map[Command]string{
	CommandVolumeUp:   "volume_up",
	CommandVolumeDown: "volume_down",
	CommandToggleMute: "toggle_mute",
	CommandPlayPause:  "play_pause",
}

// Commands lists every media command.
func Commands() []Command {
	return []Command{CommandVolumeUp, CommandVolumeDown, CommandToggleMute, CommandPlayPause}
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// ParseCommand accepts the snake_case names ("volume_up") and their
// hyphenated forms.
func ParseCommand(s string) (Command, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for c, name := range commandNames {
		if name == n {
			return c, nil
		}
	}
	return CommandNone, fmt.Errorf("unknown media command %q", s)
}

func (c Command) MarshalText() ([]byte, error) {
	name, ok := commandNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown media command %d", uint8(c))
	}
	return []byte(name), nil
}

func (c *Command) UnmarshalText(b []byte) error {
	parsed, err := ParseCommand(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TargetKind is what a key is remapped to.
type TargetKind uint8

const (
	TargetPassthrough TargetKind = iota
	TargetEmitKey
	TargetMedia
)

func (k TargetKind) String() string {
	switch k {
	case TargetEmitKey:
		return "emit"
	case TargetMedia:
		return "media"
	default:
		return "passthrough"
	}
}

// Target is the remap decision for one key. The zero Target is Passthrough.
type Target struct {
	Kind    TargetKind
	Key     keys.Identity
	Command Command
}

func Passthrough() Target { return Target{Kind: TargetPassthrough} }
func EmitKey(id keys.Identity) Target { return Target{Kind: TargetEmitKey, Key: id} }
func Media(c Command) Target { return Target{Kind: TargetMedia, Command: c} }
func (t Target) IsPassthrough() bool { return t.Kind == TargetPassthrough }

func (t Target) String() string {
	switch t.Kind {
	case TargetEmitKey:
		return "emit " + t.Key.String()
	case TargetMedia:
		return "media " + t.Command.String()
	default:
		return "passthrough"
	}
}

func (t Target) validate() error {
	switch t.Kind {
	case TargetPassthrough:
		return nil
	case TargetEmitKey:
		if t.Key.IsZero() {
			return fmt.Errorf("emit target has no key")
		}
		return nil
	case TargetMedia:
		if _, ok := commandNames[t.Command]; !ok {
			return fmt.Errorf("media target has unknown command %d", uint8(t.Command))
		}
		return nil
	default:
		return fmt.Errorf("unknown target kind %d", uint8(t.Kind))
	}
}
