package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Configure sets up the standard logrus logger. An empty level keeps info.
func Configure(level, format string) error {
	return ConfigureOutput(os.Stdout, level, format)
}

func ConfigureOutput(out io.Writer, level, format string) error {
	lvl := log.InfoLevel
	if level != "" {
		var err error
		lvl, err = log.ParseLevel(level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", level)
		}
	}

	switch strings.ToLower(format) {
	case "", FormatText:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("invalid log format %q", format)
	}

	log.SetOutput(out)
	log.SetLevel(lvl)
	return nil
}

// Thread returns a logger carrying the name of a long-lived goroutine.
func Thread(name string) *log.Entry {
	return log.WithField("thread", name)
}
