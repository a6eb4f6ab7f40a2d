// Package logutil builds the process logger and dumps structured payloads
// line by line at a chosen level.
package logutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
)

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to w at the named level ("trace" through
// "panic") in the given format.
func New(w io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)

	switch format {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("logutil: unknown log format %q", format)
	}
	return logger, nil
}

// Dump pretty-prints v as JSON and logs each line under tag. Nothing is
// marshalled when level is disabled.
func Dump(log logrus.FieldLogger, level logrus.Level, tag string, v any) {
	entry := log.WithField("dump", tag)
	if !entry.Logger.IsLevelEnabled(level) {
		return
	}
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		entry.WithError(err).Log(level, "payload is not serializable")
		return
	}
	logLines(entry, level, string(b))
}

// DumpRaw logs a response body under tag, pretty-printed when it is JSON and
// verbatim otherwise.
func DumpRaw(log logrus.FieldLogger, level logrus.Level, tag string, data []byte) {
	entry := log.WithField("dump", tag)
	if !entry.Logger.IsLevelEnabled(level) {
		return
	}
	var v any
	if err := sonic.ConfigStd.Unmarshal(data, &v); err != nil {
		logLines(entry, level, string(data))
		return
	}
	Dump(log, level, tag, v)
}

func logLines(entry *logrus.Entry, level logrus.Level, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		entry.Log(level, line)
	}
}
