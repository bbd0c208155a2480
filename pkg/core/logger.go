package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// Logger is the logging API used across workpool.
type Logger interface {
	Error(args ...interface{})
	Info(args ...interface{})
	Debug(args ...interface{})

	// WithFields returns a logger that attaches fields to every entry.
	// Later keys override earlier ones.
	WithFields(fields map[string]interface{}) Logger

	// WithContext attaches the request id carried by ctx, if any.
	WithContext(ctx context.Context) Logger
}

// LoggerConfig configures a Logger.
type LoggerConfig struct {
	// JSONOutput writes one JSON object per entry
	JSONOutput bool
	// Level is DEBUG, INFO or ERROR, case-insensitive. Unknown values mean DEBUG.
	Level string
	// Output receives every level. When nil, ERROR goes to stderr and the
	// rest to stdout.
	Output io.Writer
}

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelError:
		return "ERROR"
	default:
		return "DEBUG"
	}
}

// ParseLevel maps a level name to a Level; ok is false for unknown names.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "ERROR":
		return LevelError, true
	}
	return LevelDebug, false
}

// sink is shared by a logger and everything derived from it.
type sink struct {
	min  Level
	json bool
	out  [LevelError + 1]*log.Logger
}

type stdLogger struct {
	sink   *sink
	fields map[string]interface{}
}

// NewDefaultLogger returns a text logger at DEBUG level.
func NewDefaultLogger() Logger {
	return NewLogger(LoggerConfig{Level: "DEBUG"})
}

// NewLogger builds a Logger on top of the standard log package.
func NewLogger(config LoggerConfig) Logger {
	threshold, _ := ParseLevel(config.Level)

	var errOut, stdOut io.Writer = os.Stderr, os.Stdout
	if config.Output != nil {
		errOut, stdOut = config.Output, config.Output
	}

	// JSON entries carry their own timestamp
	flags := log.LstdFlags | log.Lshortfile
	if config.JSONOutput {
		flags = 0
	}

	s := &sink{min: threshold, json: config.JSONOutput}
	for lvl := LevelDebug; lvl <= LevelError; lvl++ {
		w := stdOut
		if lvl == LevelError {
			w = errOut
		}
		s.out[lvl] = log.New(w, "["+lvl.String()+"] ", flags)
	}
	return &stdLogger{sink: s}
}

type jsonEntry struct {
	Time    string                 `json:"time"`
	Level   string                 `json:"level"`
	Message string                 `json:"msg"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

func (l *stdLogger) write(lvl Level, args []interface{}) {
	if lvl < l.sink.min {
		return
	}
	msg := fmt.Sprint(args...)

	line := msg
	if l.sink.json {
		data, err := json.Marshal(jsonEntry{
			Time:    time.Now().UTC().Format(time.RFC3339Nano),
			Level:   lvl.String(),
			Message: msg,
			Fields:  l.fields,
		})
		if err == nil {
			line = string(data)
		} else if len(l.fields) > 0 {
			line = msg + " " + formatFields(l.fields)
		}
	} else if len(l.fields) > 0 {
		line = msg + " " + formatFields(l.fields)
	}

	// caller depth: write, the level method, then the call site
	_ = l.sink.out[lvl].Output(3, line)
}

// formatFields renders fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(pairs, " ")
}

func (l *stdLogger) Error(args ...interface{}) { l.write(LevelError, args) }
func (l *stdLogger) Info(args ...interface{})  { l.write(LevelInfo, args) }
func (l *stdLogger) Debug(args ...interface{}) { l.write(LevelDebug, args) }

func (l *stdLogger) WithFields(fields map[string]interface{}) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &stdLogger{sink: l.sink, fields: merged}
}

func (l *stdLogger) WithContext(ctx context.Context) Logger {
	id := GetRequestID(ctx)
	if id == "" {
		return l
	}
	return l.WithFields(map[string]interface{}{"request_id": id})
}
