package remapd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/jetkvm/remapd/internal/dispatch"
	"github.com/jetkvm/remapd/internal/focus"
	"github.com/jetkvm/remapd/internal/keys"
	"github.com/jetkvm/remapd/internal/mapping"
	"github.com/jetkvm/remapd/internal/mediactl"
	"github.com/jetkvm/remapd/internal/policy"
)

const DefaultConfigPath = "/etc/remapd/remapd.toml"

// input sources
const (
	SourceAuto   = "auto"
	SourceEvdev  = "evdev"
	SourceSerial = "serial"
)

// media backends
const (
	MediaExec = "exec"
	MediaKeys = "keys"
)

type Config struct {
	LogLevel string          `toml:"log_level" json:"log_level"`
	Input    InputConfig     `toml:"input" json:"input"`
	Focus    FocusConfig     `toml:"focus" json:"focus"`
	Policy   policy.Rules    `toml:"policy" json:"policy"`
	Mapping  []MappingConfig `toml:"mapping" json:"mapping"`
	Media    MediaConfig     `toml:"media" json:"media"`
	HTTP     HTTPConfig      `toml:"http" json:"http"`
	Cron     CronConfig      `toml:"cron" json:"cron"`
}

type InputConfig struct {
	Source     string        `toml:"source" json:"source"`
	Device     string        `toml:"device" json:"device"`
	GrabDelay  time.Duration `toml:"grab_delay" json:"grab_delay"`
	SerialPort string        `toml:"serial_port" json:"serial_port"`
	BaudRate   int           `toml:"baud_rate" json:"baud_rate"`
}

type FocusConfig struct {
	RefreshInterval time.Duration `toml:"refresh_interval" json:"refresh_interval"`
	Display         string        `toml:"display" json:"display"`
}

// MappingConfig is one [[mapping]] entry. Exactly one of To and Media is set.
type MappingConfig struct {
	From  string `toml:"from" json:"from"`
	To    string `toml:"to,omitempty" json:"to,omitempty"`
	Media string `toml:"media,omitempty" json:"media,omitempty"`
}

type MediaConfig struct {
	Backend     string        `toml:"backend" json:"backend"`
	QueueSize   int           `toml:"queue_size" json:"queue_size"`
	Timeout     time.Duration `toml:"timeout" json:"timeout"`
	SettleDelay time.Duration `toml:"settle_delay" json:"settle_delay"`
	VolumeUp    []string      `toml:"volume_up" json:"volume_up"`
	VolumeDown  []string      `toml:"volume_down" json:"volume_down"`
	ToggleMute  []string      `toml:"toggle_mute" json:"toggle_mute"`
	PlayPause   []string      `toml:"play_pause" json:"play_pause"`
}

type HTTPConfig struct {
	Listen string `toml:"listen" json:"listen"`
}

type CronConfig struct {
	StatsInterval time.Duration `toml:"stats_interval" json:"stats_interval"`
}

func Defaults() Config {
	cmds := mediactl.DefaultCommands()
	return Config{
		LogLevel: "info",
		Input: InputConfig{
			Source:     SourceAuto,
			GrabDelay:  500 * time.Millisecond,
			SerialPort: "/dev/ttyACM0",
			BaudRate:   115200,
		},
		Focus: FocusConfig{
			RefreshInterval: focus.DefaultRefreshInterval,
		},
		Policy: policy.DefaultRules(),
		Media: MediaConfig{
			Backend:     MediaExec,
			QueueSize:   dispatch.DefaultQueueSize,
			Timeout:     dispatch.DefaultTimeout,
			SettleDelay: dispatch.DefaultSettleDelay,
			VolumeUp:    cmds[mapping.CommandVolumeUp],
			VolumeDown:  cmds[mapping.CommandVolumeDown],
			ToggleMute:  cmds[mapping.CommandToggleMute],
			PlayPause:   cmds[mapping.CommandPlayPause],
		},
		HTTP: HTTPConfig{Listen: "127.0.0.1:9371"},
		Cron: CronConfig{StatsInterval: time.Minute},
	}
}

// LoadConfig reads the TOML file at path over Defaults. An empty path means
// DefaultConfigPath, which may be absent. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	optional := false
	if path == "" {
		path = DefaultConfigPath
		optional = true
	}

	cfg := Defaults()
	if optional {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return finishConfig(&cfg, meta)
}

// ParseConfig decodes TOML text over Defaults.
func ParseConfig(data string) (*Config, error) {
	cfg := Defaults()
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return finishConfig(&cfg, meta)
}

func finishConfig(cfg *Config, meta toml.MetaData) (*Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		names := make([]string, len(undecoded))
		for i, k := range undecoded {
			names[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys: %s", strings.Join(names, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate returns every issue found, joined.
func (c *Config) Validate() error {
	var errs []error

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		errs = append(errs, fmt.Errorf("log_level %q is not a valid level", c.LogLevel))
	}

	switch c.Input.Source {
	case SourceAuto, SourceEvdev, SourceSerial:
	default:
		errs = append(errs, fmt.Errorf("input.source must be one of auto, evdev, serial"))
	}
	if c.Input.GrabDelay < 0 {
		errs = append(errs, fmt.Errorf("input.grab_delay must be >= 0"))
	}
	if c.Input.Source == SourceSerial && c.Input.SerialPort == "" {
		errs = append(errs, fmt.Errorf("input.serial_port must be set for the serial source"))
	}
	if c.Input.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("input.baud_rate must be > 0"))
	}

	if c.Focus.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("focus.refresh_interval must be > 0"))
	}

	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.MappingEntries(); err != nil {
		errs = append(errs, err)
	}

	switch c.Media.Backend {
	case MediaExec:
		if err := c.MediaCommands().Validate(); err != nil {
			errs = append(errs, err)
		}
	case MediaKeys:
	default:
		errs = append(errs, fmt.Errorf("media.backend must be one of exec, keys"))
	}
	if c.Media.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("media.queue_size must be > 0"))
	}
	if c.Media.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("media.timeout must be > 0"))
	}
	if c.Media.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("media.settle_delay must be >= 0"))
	}

	if c.HTTP.Listen != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Listen); err != nil {
			errs = append(errs, fmt.Errorf("http.listen: %w", err))
		}
	}

	if c.Cron.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("cron.stats_interval must be >= 0 (0 = disabled)"))
	}

	return errors.Join(errs...)
}

// MappingEntries parses the [[mapping]] list.
func (c *Config) MappingEntries() ([]mapping.Entry, error) {
	var errs []error
	entries := make([]mapping.Entry, 0, len(c.Mapping))
	for i, m := range c.Mapping {
		e, err := m.entry()
		if err != nil {
			errs = append(errs, fmt.Errorf("mapping[%d]: %w", i, err))
			continue
		}
		entries = append(entries, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if _, err := mapping.New(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (m MappingConfig) entry() (mapping.Entry, error) {
	from, err := keys.Parse(m.From)
	if err != nil {
		return mapping.Entry{}, fmt.Errorf("from: %w", err)
	}
	switch {
	case m.To != "" && m.Media != "":
		return mapping.Entry{}, fmt.Errorf("%s: set either to or media, not both", from)
	case m.To != "":
		to, err := keys.Parse(m.To)
		if err != nil {
			return mapping.Entry{}, fmt.Errorf("%s: to: %w", from, err)
		}
		return mapping.Entry{From: from, To: mapping.EmitKey(to)}, nil
	case m.Media != "":
		cmd, err := mapping.ParseCommand(m.Media)
		if err != nil {
			return mapping.Entry{}, fmt.Errorf("%s: media: %w", from, err)
		}
		return mapping.Entry{From: from, To: mapping.Media(cmd)}, nil
	default:
		return mapping.Entry{}, fmt.Errorf("%s: one of to or media is required", from)
	}
}

// Table builds the mapping table for source. Without [[mapping]] entries
// the built-in table of the source is used.
func (c *Config) Table(source string) (*mapping.Table, error) {
	if len(c.Mapping) == 0 {
		if source == SourceSerial {
			return mapping.DefaultMatrixTable(), nil
		}
		return mapping.DefaultKeycodeTable(), nil
	}
	entries, err := c.MappingEntries()
	if err != nil {
		return nil, err
	}
	return mapping.New(entries)
}

func (c *Config) SuppressionPolicy() (*policy.Policy, error) {
	if err := c.Policy.Validate(); err != nil {
		return nil, err
	}
	return policy.New(c.Policy), nil
}

func (c *Config) MediaCommands() mediactl.Commands {
	cmds := mediactl.Commands{}
	set := func(cmd mapping.Command, argv []string) {
		if argv != nil {
			cmds[cmd] = argv
		}
	}
	set(mapping.CommandVolumeUp, c.Media.VolumeUp)
	set(mapping.CommandVolumeDown, c.Media.VolumeDown)
	set(mapping.CommandToggleMute, c.Media.ToggleMute)
	set(mapping.CommandPlayPause, c.Media.PlayPause)
	return cmds.Merge(mediactl.DefaultCommands())
}

// mappingSummary renders the table one entry per line, sorted by key.
func mappingSummary(t *mapping.Table) []string {
	entries := t.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	sort.Strings(lines)
	return lines
}
