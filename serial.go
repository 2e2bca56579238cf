package remapd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/jetkvm/remapd/internal/keys"
)

var errMatrixLine = errors.New("invalid matrix line")

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// matrixSource reads key matrix transitions from the keyboard controller's
// serial port. Each line is "P <row> <col>" for a press or "R <row> <col>"
// for a release.
type matrixSource struct {
	path string
	port io.ReadCloser
	log  *zerolog.Logger

	closeOnce sync.Once
}

func openMatrixSource(path string, baud int) (*matrixSource, error) {
	mode := serialMode(baud)
	port, err := serial.Open(path, mode)
	if err != nil {
		serialLogger.Error().
			Err(err).
			Str("path", path).
			Interface("mode", mode).
			Msg("Error opening serial port")
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	scoped := serialLogger.With().Str("path", path).Logger()
	return &matrixSource{path: path, port: port, log: &scoped}, nil
}

func (m *matrixSource) Name() string { return SourceSerial + ":" + m.path }

func (m *matrixSource) Kind() string { return SourceSerial }

func (m *matrixSource) Close() error {
	var err error
	m.closeOnce.Do(func() { err = m.port.Close() })
	return err
}

func (m *matrixSource) Events(ctx context.Context) <-chan keys.Event {
	out := make(chan keys.Event, 100)
	go func() {
		<-ctx.Done()
		_ = m.Close()
	}()
	go func() {
		defer close(out)
		if err := readMatrixEvents(ctx, m.port, out, m.log); err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("Error reading from serial port")
		}
	}()
	return out
}

func readMatrixEvents(ctx context.Context, r io.Reader, out chan<- keys.Event, log *zerolog.Logger) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			ev, perr := parseMatrixLine(line)
			switch {
			case perr == nil:
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			case strings.TrimSpace(line) != "":
				log.Warn().Err(perr).Str("line", strings.TrimSpace(line)).Msg("Invalid matrix line")
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// parseMatrixLine parses one "P r c" or "R r c" line.
func parseMatrixLine(line string) (keys.Event, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return keys.Event{}, fmt.Errorf("%w: %q", errMatrixLine, line)
	}

	var pressed bool
	switch fields[0] {
	case "P", "p":
		pressed = true
	case "R", "r":
		pressed = false
	default:
		return keys.Event{}, fmt.Errorf("%w: unknown transition %q", errMatrixLine, fields[0])
	}

	row, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return keys.Event{}, fmt.Errorf("%w: row: %w", errMatrixLine, err)
	}
	col, err := strconv.ParseUint(fields[2], 10, 8)
	if err != nil {
		return keys.Event{}, fmt.Errorf("%w: col: %w", errMatrixLine, err)
	}

	return keys.Event{Key: keys.At(uint8(row), uint8(col)), Pressed: pressed}, nil
}
