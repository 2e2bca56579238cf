package remapd

import (
	"os"

	"github.com/rs/zerolog"
)

var (
	rootLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	engineLogger   = subsystemLogger("engine")
	focusLogger    = subsystemLogger("focus")
	dispatchLogger = subsystemLogger("dispatch")
	mediaLogger    = subsystemLogger("media")
	uinputLogger   = subsystemLogger("uinput")
	evdevLogger    = subsystemLogger("evdev")
	serialLogger   = subsystemLogger("serial")
	configLogger   = subsystemLogger("config")
	webLogger      = subsystemLogger("web")
	cronLogger     = subsystemLogger("cron")
)

func subsystemLogger(name string) *zerolog.Logger {
	l := rootLogger.With().Str("subsystem", name).Logger()
	return &l
}

// SetLogLevel sets the level of every subsystem logger.
func SetLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Logger returns the root logger, for use by the CLI.
func Logger() *zerolog.Logger {
	return &rootLogger
}
