// Package uinput creates a virtual keyboard through /dev/uinput and injects
// key events into the kernel input subsystem.
package uinput

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/jetkvm/remapd/internal/keys"
)

const DevicePath = "/dev/uinput"

// DefaultName is the device name shown in /proc/bus/input/devices. Input
// discovery skips devices with this name so remapd never reads its own
// output.
const DefaultName = "remapd virtual keyboard"

// evdev/uinput constants
const (
	UI_DEV_CREATE  = 0x5501
	UI_DEV_DESTROY = 0x5502
	UI_SET_EVBIT   = 0x40045564
	UI_SET_KEYBIT  = 0x40045565

	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REP = 0x14

	SYN_REPORT = 0

	BUS_VIRTUAL = 0x06
)

// EV_KEY values
const (
	Release int32 = 0
	Press   int32 = 1
	Repeat  int32 = 2
)

const (
	maxNameSize = 80
	absCnt      = 64
)

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// userDev is struct uinput_user_dev, written before UI_DEV_CREATE.
type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absCnt]int32
	Absmin     [absCnt]int32
	Absfuzz    [absCnt]int32
	Absflat    [absCnt]int32
}

var injectErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "remapd",
	Subsystem: "uinput",
	Name:      "write_errors_total",
	Help:      "Key events the kernel rejected.",
})

var defaultLogger = zerolog.New(os.Stdout).With().Str("subsystem", "uinput").Logger()

// Keyboard is a virtual keyboard device.
type Keyboard struct {
	fd    *os.File
	name  string
	log   *zerolog.Logger
	ioctl func(request uint, arg int) error

	stateLock sync.Mutex
	down      map[keys.Code]struct{}
	lastWrite time.Time
}

// NewKeyboard creates and registers a virtual keyboard able to emit codes.
func NewKeyboard(name string, codes []keys.Code, logger *zerolog.Logger) (*Keyboard, error) {
	if logger == nil {
		l := defaultLogger
		logger = &l
	}
	if name == "" {
		name = DefaultName
	}

	f, err := os.OpenFile(DevicePath, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s failed: %w. Ensure 'modprobe uinput' and permissions", DevicePath, err)
	}
	k := newKeyboard(f, name, logger)

	registered, err := k.register(codes)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	dev := userDev{ID: inputID{Bustype: BUS_VIRTUAL, Vendor: 0x1d6b, Product: 0x0104, Version: 1}}
	copy(dev.Name[:maxNameSize-1], name)
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &dev); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("encode uinput_user_dev: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write uinput_user_dev: %w", err)
	}

	if err := k.ioctl(UI_DEV_CREATE, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ioctl UI_DEV_CREATE failed: %w", err)
	}

	logger.Info().Str("name", name).Int("keys", registered).Msg("virtual keyboard created")
	return k, nil
}

func newKeyboard(f *os.File, name string, logger *zerolog.Logger) *Keyboard {
	return &Keyboard{
		fd:    f,
		name:  name,
		log:   logger,
		ioctl: ioctlSetInt(f),
		down:  make(map[keys.Code]struct{}),
	}
}

func ioctlSetInt(f *os.File) func(request uint, arg int) error {
	return func(request uint, arg int) error {
		return unix.IoctlSetInt(int(f.Fd()), request, arg)
	}
}

// register enables EV_KEY and a key bit per code. EV_REP is left unset: the
// kernel would otherwise run its own repeat timer on top of the repeats
// forwarded from the physical keyboard.
func (k *Keyboard) register(codes []keys.Code) (int, error) {
	if err := k.ioctl(UI_SET_EVBIT, EV_KEY); err != nil {
		return 0, fmt.Errorf("ioctl UI_SET_EVBIT EV_KEY failed: %w", err)
	}
	registered := 0
	for _, code := range codes {
		if err := k.ioctl(UI_SET_KEYBIT, int(code)); err != nil {
			k.log.Warn().Err(err).Stringer("key", code).Msg("ioctl UI_SET_KEYBIT failed")
			continue
		}
		registered++
	}
	return registered, nil
}

func (k *Keyboard) Name() string { return k.name }

// Close releases every key still down, then destroys the device.
func (k *Keyboard) Close() error {
	for _, code := range k.Down() {
		_ = k.Key(code, Release)
	}

	k.stateLock.Lock()
	defer k.stateLock.Unlock()
	if k.fd != nil {
		_ = k.ioctl(UI_DEV_DESTROY, 0)
		_ = k.fd.Close()
		k.fd = nil
	}
	return nil
}

func (k *Keyboard) writeEvent(typ, code uint16, val int32) error {
	ev := inputEvent{
		Type:  typ,
		Code:  code,
		Value: val,
	}
	return binary.Write(k.fd, binary.LittleEndian, &ev)
}

// Key injects one key transition followed by SYN_REPORT. value is Release,
// Press or Repeat.
func (k *Keyboard) Key(code keys.Code, value int32) error {
	k.stateLock.Lock()
	defer k.stateLock.Unlock()

	if k.fd == nil {
		return fmt.Errorf("virtual keyboard closed")
	}
	if err := k.writeEvent(EV_KEY, uint16(code), value); err != nil {
		injectErrors.Inc()
		return fmt.Errorf("write %s=%d: %w", code, value, err)
	}
	if err := k.writeEvent(EV_SYN, SYN_REPORT, 0); err != nil {
		injectErrors.Inc()
		return fmt.Errorf("write SYN_REPORT: %w", err)
	}

	switch value {
	case Release:
		delete(k.down, code)
	default:
		k.down[code] = struct{}{}
	}
	k.lastWrite = time.Now()
	return nil
}

// Down returns the keys this device currently holds down.
func (k *Keyboard) Down() []keys.Code {
	k.stateLock.Lock()
	defer k.stateLock.Unlock()
	out := make([]keys.Code, 0, len(k.down))
	for code := range k.down {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (k *Keyboard) LastWrite() time.Time {
	k.stateLock.Lock()
	defer k.stateLock.Unlock()
	return k.lastWrite
}
