package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the default time format string for log appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender writes tab separated log lines to a writer.
type ConsoleAppender struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdoutAppender creates a new appender that outputs to stdout.
func NewStdoutAppender() *ConsoleAppender {
	return &ConsoleAppender{writer: os.Stdout}
}

// NewWriterAppender creates a new appender that outputs to the input writer.
func NewWriterAppender(writer io.Writer) *ConsoleAppender {
	return &ConsoleAppender{writer: writer}
}

// Write outputs the log entry to the underlying writer.
func (appender *ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := formatEntry(entry, fields)

	appender.mu.Lock()
	defer appender.mu.Unlock()
	if _, writeErr := fmt.Fprintln(appender.writer, line); writeErr != nil {
		return writeErr
	}
	return err
}

// Sync is a no-op unless the writer is a file.
func (appender *ConsoleAppender) Sync() error {
	if f, ok := appender.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Sync()
	}
	return nil
}

// formatEntry renders `time level name caller message [fields]` separated by tabs. The fields are
// json encoded in order.
func formatEntry(entry zapcore.Entry, fields []zapcore.Field) (string, error) {
	const maxLength = 10
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr))
	toPrint = append(toPrint, strings.ToUpper(entry.Level.String()))
	toPrint = append(toPrint, entry.LoggerName)
	if entry.Caller.Defined {
		toPrint = append(toPrint, callerToString(&entry.Caller))
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		return strings.Join(toPrint, "\t"), nil
	}

	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(toPrint, "\t"), err
	}
	toPrint = append(toPrint, string(buf.Bytes()))
	return strings.Join(toPrint, "\t"), nil
}

// callerToString returns `<directory>/<file>:<line>`, e.g: `calibrate/mono.go:87`.
func callerToString(caller *zapcore.EntryCaller) string {
	return caller.TrimmedPath()
}
