package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Format selects the log line encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	Out     io.Writer
	Debug   bool
	Format  Format
	NoColor bool
}

// New returns the application logger. Logs go to opts.Out (stderr in the CLI) so they never mix with
// the printer's stdout output.
func New(opts Options) (logrus.FieldLogger, error) {
	l := logrus.New()
	l.Out = opts.Out
	if l.Out == nil {
		l.Out = io.Discard
	}
	if opts.Debug {
		l.SetLevel(logrus.DebugLevel)
	}

	switch Format(strings.ToLower(string(opts.Format))) {
	case "", FormatText:
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors: opts.NoColor,
			FullTimestamp: true,
		})
	case FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	entry := logrus.NewEntry(l)
	entry.Debugf("Debug level is enabled")
	return entry, nil
}

// Noop returns a logger that drops everything.
func Noop() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

// OrNoop returns logger, or a Noop logger when logger is nil.
func OrNoop(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger == nil {
		return Noop()
	}
	return logger
}
