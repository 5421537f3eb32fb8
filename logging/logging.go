// Package logging provides the structured logging used across the VoltageEMS
// core: a package-level logrus logger with output routed to stderr for error
// entries and stdout for everything else, so container log collectors can
// treat the two streams differently.
package logging

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stderr when they carry
// level=error (or "level":"error") and to stdout otherwise. It operates on the already-formatted
// bytes, so it works with both the text and JSON formatters.
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-level logger every component should use. Channel,
// rule, dispatcher and routing code attach component-specific fields
// (channel_id, rule_id, request_id) via WithFields rather than creating
// their own logger instances.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}

// StaticFieldHook stamps the same fields onto every log entry, for process-
// wide tags (e.g. "service") that WithField call sites shouldn't have to
// repeat.
type StaticFieldHook logrus.Fields

func (h StaticFieldHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h StaticFieldHook) Fire(entry *logrus.Entry) error {
	for k, v := range h {
		if _, exists := entry.Data[k]; !exists {
			entry.Data[k] = v
		}
	}
	return nil
}
