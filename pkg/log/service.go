package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	config "github.com/mwantia/manifest/internal/config/server"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerService interface {
	Debug(msg string, args ...any)

	Info(msg string, args ...any)

	Warn(msg string, args ...any)

	Error(msg string, args ...any)

	Fatal(msg string, args ...any)

	Named(name string) LoggerService

	// With returns a logger that appends the given key/value pairs to every entry.
	With(keyvals ...any) LoggerService
}

type LoggerServiceImpl struct {
	LoggerService

	cfg    config.LogServerConfig
	name   string
	level  LogLevel
	fields []field
	mutex  *sync.Mutex
	writer io.Writer
}

type field struct {
	key   string
	value any
}

type logEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Service   string         `json:"service,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

func NewLoggerService(name string, cfg config.LogServerConfig) LoggerService {
	level := Parse(cfg.Level)

	impl := &LoggerServiceImpl{
		cfg:   cfg,
		name:  name,
		level: level,
		mutex: &sync.Mutex{},
	}

	impl.setupWriter()
	return impl
}

// NewDiscardLogger returns a logger that drops every entry.
func NewDiscardLogger() LoggerService {
	return &LoggerServiceImpl{
		cfg:    config.LogServerConfig{NoColor: true, NoTerminal: true},
		level:  Fatal + 1,
		mutex:  &sync.Mutex{},
		writer: io.Discard,
	}
}

func (impl *LoggerServiceImpl) setupWriter() {
	var writers []io.Writer

	if !impl.cfg.NoTerminal {
		writers = append(writers, os.Stdout)
	}

	if impl.cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   impl.cfg.File,
			MaxSize:    impl.cfg.Rotation.MaxSize,
			MaxBackups: impl.cfg.Rotation.MaxBackups,
			MaxAge:     impl.cfg.Rotation.MaxAge,
			Compress:   impl.cfg.Rotation.Compress,
		}
		writers = append(writers, fileWriter)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	impl.writer = io.MultiWriter(writers...)
}

func (impl *LoggerServiceImpl) log(level LogLevel, msg string, args ...any) {
	if level < impl.level {
		return
	}

	timestamp := time.Now().Format(impl.cfg.TimeFormat)
	formattedMsg := msg
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(msg, args...)
	}

	var line string
	if impl.cfg.JSON {
		entry := logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Service:   impl.name,
			Message:   formattedMsg,
		}
		if len(impl.fields) > 0 {
			entry.Fields = make(map[string]any, len(impl.fields))
			for _, f := range impl.fields {
				entry.Fields[f.key] = f.value
			}
		}

		jsonBytes, _ := json.Marshal(entry)
		line = string(jsonBytes)
	} else {
		prefix := fmt.Sprintf("[%s] %-5s", timestamp, level)
		if impl.name != "" {
			prefix = fmt.Sprintf("%s [%s]", prefix, impl.name)
		}

		var sb strings.Builder
		sb.WriteString(prefix)
		sb.WriteString(" ")
		sb.WriteString(formattedMsg)
		for _, f := range impl.fields {
			fmt.Fprintf(&sb, " %s=%v", f.key, f.value)
		}
		line = sb.String()

		if !impl.cfg.NoTerminal && !impl.cfg.NoColor {
			line = Color(level) + line + "\033[0m"
		}
	}

	impl.mutex.Lock()
	fmt.Fprintln(impl.writer, line)
	impl.mutex.Unlock()

	if level == Fatal {
		os.Exit(1)
	}
}

func (impl *LoggerServiceImpl) Debug(msg string, args ...any) {
	impl.log(Debug, msg, args...)
}

func (impl *LoggerServiceImpl) Info(msg string, args ...any) {
	impl.log(Info, msg, args...)
}

func (impl *LoggerServiceImpl) Warn(msg string, args ...any) {
	impl.log(Warn, msg, args...)
}

func (impl *LoggerServiceImpl) Error(msg string, args ...any) {
	impl.log(Error, msg, args...)
}

func (impl *LoggerServiceImpl) Fatal(msg string, args ...any) {
	impl.log(Fatal, msg, args...)
}

func (impl *LoggerServiceImpl) Named(name string) LoggerService {
	child := impl.clone()
	if impl.name == "" {
		child.name = name
	} else {
		child.name = fmt.Sprintf("%s/%s", impl.name, name)
	}
	return child
}

func (impl *LoggerServiceImpl) With(keyvals ...any) LoggerService {
	child := impl.clone()
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		var value any = "(missing)"
		if i+1 < len(keyvals) {
			value = keyvals[i+1]
		}
		child.fields = append(child.fields, field{key: key, value: value})
	}
	return child
}

// clone shares the writer and its mutex with the parent.
func (impl *LoggerServiceImpl) clone() *LoggerServiceImpl {
	fields := make([]field, len(impl.fields))
	copy(fields, impl.fields)

	return &LoggerServiceImpl{
		cfg:    impl.cfg,
		name:   impl.name,
		level:  impl.level,
		fields: fields,
		mutex:  impl.mutex,
		writer: impl.writer,
	}
}
