// Package evdev reads key events from a Linux input device.
package evdev

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/jetkvm/remapd/internal/keys"
)

// EVIOCGRAB is _IOW('E', 0x90, int).
const EVIOCGRAB = 0x40044590

// evdev event types
const (
	EV_KEY = 1
)

// evdev key states
const (
	KEY_RELEASED = 0
	KEY_PRESSED  = 1
	KEY_REPEAT   = 2
)

// eventSize is sizeof(struct input_event) on 64-bit platforms.
const eventSize = 24

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "evdev").Logger()

// Device is an open keyboard event device.
type Device struct {
	path    string
	f       *os.File
	log     *zerolog.Logger
	grabbed bool

	closeOnce sync.Once
	closeErr  error
}

// Open opens the event device at path.
func Open(path string, logger *zerolog.Logger) (*Device, error) {
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyboard device %s: %w (try running as root or add user to 'input' group)", path, err)
	}
	scoped := logger.With().Str("device", path).Logger()
	return &Device{path: path, f: f, log: &scoped}, nil
}

func (d *Device) Path() string { return d.path }

// Grab takes exclusive access so the device's events reach only remapd.
// delay lets keys held at startup (typically Enter) be released to the OS
// first; a release swallowed by the grab would leave the key stuck.
func (d *Device) Grab(ctx context.Context, delay time.Duration) error {
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := unix.IoctlSetInt(int(d.f.Fd()), EVIOCGRAB, 1); err != nil {
		return fmt.Errorf("EVIOCGRAB %s: %w", d.path, err)
	}
	d.grabbed = true
	d.log.Info().Msg("keyboard grabbed")
	return nil
}

// Close releases the grab and closes the device, unblocking Events.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		if d.grabbed {
			_ = unix.IoctlSetInt(int(d.f.Fd()), EVIOCGRAB, 0)
		}
		d.closeErr = d.f.Close()
	})
	return d.closeErr
}

// Events streams key events until ctx is canceled or the device fails. The
// channel is closed when reading stops.
func (d *Device) Events(ctx context.Context) <-chan keys.Event {
	out := make(chan keys.Event, 100)
	go func() {
		<-ctx.Done()
		_ = d.Close()
	}()
	go func() {
		defer close(out)
		if err := readEvents(ctx, d.f, out); err != nil && ctx.Err() == nil {
			d.log.Error().Err(err).Msg("keyboard device read failed")
		}
	}()
	return out
}

func readEvents(ctx context.Context, r io.Reader, out chan<- keys.Event) error {
	buf := make([]byte, eventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		ev, ok := Decode(buf)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

// Decode converts one raw input_event into a key event. Non-key events
// are skipped; auto-repeat is reported as another press.
func Decode(buf []byte) (keys.Event, bool) {
	if len(buf) < eventSize {
		return keys.Event{}, false
	}
	typ := binary.LittleEndian.Uint16(buf[16:18])
	code := binary.LittleEndian.Uint16(buf[18:20])
	value := int32(binary.LittleEndian.Uint32(buf[20:24]))

	if typ != EV_KEY {
		return keys.Event{}, false
	}
	id := keys.Key(keys.Code(code))
	switch value {
	case KEY_PRESSED, KEY_REPEAT:
		return keys.Press(id), true
	case KEY_RELEASED:
		return keys.Release(id), true
	default:
		return keys.Event{}, false
	}
}

// FindKeyboard finds the first keyboard device, skipping any device named
// exclude (our own virtual keyboard).
func FindKeyboard(exclude string) (string, error) {
	byIdPath := "/dev/input/by-id"
	entries, err := os.ReadDir(byIdPath)
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasSuffix(name, "-event-kbd") {
				return filepath.Join(byIdPath, name), nil
			}
		}
	}

	devicesFile, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return "", err
	}
	defer devicesFile.Close()

	if handler, ok := parseDevices(devicesFile, exclude); ok {
		return "/dev/input/" + handler, nil
	}
	return "", fmt.Errorf("no keyboard device found")
}

// parseDevices scans /proc/bus/input/devices for a keyboard and returns its
// eventN handler.
func parseDevices(r io.Reader, exclude string) (string, bool) {
	scanner := bufio.NewScanner(r)
	isKeyboard := false

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "N: Name=") {
			raw := strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
			name := strings.ToLower(raw)
			isKeyboard = raw != exclude && (strings.Contains(name, "keyboard") || strings.Contains(name, "kbd"))
		}

		if strings.HasPrefix(line, "H: Handlers=") && isKeyboard {
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					return part, true
				}
			}
		}

		if line == "" {
			isKeyboard = false
		}
	}
	return "", false
}
