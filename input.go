package remapd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jetkvm/remapd/internal/evdev"
	"github.com/jetkvm/remapd/internal/keys"
	"github.com/jetkvm/remapd/internal/uinput"
)

// inputSource produces physical key events.
type inputSource interface {
	Events(ctx context.Context) <-chan keys.Event
	Name() string
	// Kind is SourceEvdev or SourceSerial; it selects the built-in table.
	Kind() string
	Close() error
}

type evdevSource struct {
	*evdev.Device
}

func (s evdevSource) Name() string { return SourceEvdev + ":" + s.Path() }

func (s evdevSource) Kind() string { return SourceEvdev }

func openEvdevSource(ctx context.Context, cfg InputConfig) (*evdevSource, error) {
	path := cfg.Device
	if path == "" {
		found, err := evdev.FindKeyboard(uinput.DefaultName)
		if err != nil {
			return nil, fmt.Errorf("discover keyboard: %w", err)
		}
		path = found
	}
	dev, err := evdev.Open(path, evdevLogger)
	if err != nil {
		return nil, err
	}
	if err := dev.Grab(ctx, cfg.GrabDelay); err != nil {
		_ = dev.Close()
		return nil, err
	}
	return &evdevSource{dev}, nil
}

// openInput initializes the input source: with source "auto" the evdev
// keyboard is preferred and the serial matrix is the fallback.
func openInput(ctx context.Context, cfg InputConfig) (inputSource, error) {
	var errs []error

	if cfg.Source == SourceEvdev || cfg.Source == SourceAuto {
		evdevLogger.Info().Msg("Initializing evdev input")
		src, err := openEvdevSource(ctx, cfg)
		if err == nil {
			return src, nil
		}
		if cfg.Source == SourceEvdev {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		evdevLogger.Warn().Err(err).Msg("evdev input unavailable, falling back to serial matrix")
		errs = append(errs, err)
	}

	serialLogger.Info().Str("path", cfg.SerialPort).Msg("Initializing serial matrix input")
	src, err := openMatrixSource(cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		errs = append(errs, err)
		return nil, fmt.Errorf("no input backend available: %w", errors.Join(errs...))
	}
	return src, nil
}
