package log

import (
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/xeptore/soundgate/config"
	"github.com/xeptore/soundgate/constant"
)

func FromConfig(conf config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(conf.Level)
	if nil != err {
		panic("invalid logging level: " + conf.Level)
	}

	switch strings.ToLower(conf.Format) {
	case "json":
		return newJSON().Level(level)
	case "pretty":
		return newPretty().Level(level)
	default:
		panic("invalid logging format: " + conf.Format)
	}
}

// NewDefault is used before the config is loaded. It writes pretty output
// when stderr is a terminal and JSON otherwise.
func NewDefault() zerolog.Logger {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return newPretty().Level(zerolog.InfoLevel)
	}

	return newJSON().Level(zerolog.InfoLevel)
}

func newJSON() zerolog.Logger {
	return zerolog.
		New(os.Stderr).
		Hook(&stackHook{}).
		With().
		Timestamp().
		Str("version", constant.Version).
		Str("compile_time", constant.CompileTime).
		Logger()
}

func newPretty() zerolog.Logger {
	return zerolog.
		New(zerolog.ConsoleWriter{ //nolint:exhaustruct
			Out:          os.Stderr,
			TimeFormat:   time.RFC3339,
			TimeLocation: time.UTC,
		}).
		Hook(&stackHook{}).
		With().
		Timestamp().
		Str("version", constant.Version).
		Str("compile_time", constant.CompileTime).
		Logger()
}
