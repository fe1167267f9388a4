/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level defines a log level for logging messages.
type Level int

// Log levels.
const (
	DEBUG   = Level(zapcore.DebugLevel)
	INFO    = Level(zapcore.InfoLevel)
	WARNING = Level(zapcore.WarnLevel)
	ERROR   = Level(zapcore.ErrorLevel)
	PANIC   = Level(zapcore.PanicLevel)
	FATAL   = Level(zapcore.FatalLevel)

	minLogLevel = DEBUG
)

// String returns the string representation of the given log level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARN"
	case ERROR:
		return "ERROR"
	case PANIC:
		return "PANIC"
	case FATAL:
		return "FATAL"
	default:
		return fmt.Sprintf("Level(%d)", l)
	}
}

// ParseLevel returns the level from the given string.
func ParseLevel(level string) (Level, error) {
	switch level {
	case "DEBUG", "debug":
		return DEBUG, nil
	case "INFO", "info":
		return INFO, nil
	case "WARN", "warn", "WARNING", "warning":
		return WARNING, nil
	case "ERROR", "error":
		return ERROR, nil
	case "PANIC", "panic":
		return PANIC, nil
	case "FATAL", "fatal":
		return FATAL, nil
	default:
		return ERROR, errors.New("logger: invalid log level")
	}
}

const (
	defaultLevel = INFO
	callerSkip   = 1
)

var levels = newModuleLevels() //nolint:gochecknoglobals

// Log is a module-scoped structured logger.
type Log struct {
	instance *zap.Logger
	module   string
	stdOut   zapcore.WriteSyncer
	stdErr   zapcore.WriteSyncer
	fields   []zap.Field
}

// Option is a logger option.
type Option func(l *Log)

// WithStdOut sets the output for logs of type DEBUG, INFO, and WARN.
func WithStdOut(stdOut zapcore.WriteSyncer) Option {
	return func(l *Log) {
		l.stdOut = stdOut
	}
}

// WithStdErr sets the output for logs of type ERROR, PANIC, and FATAL.
func WithStdErr(stdErr zapcore.WriteSyncer) Option {
	return func(l *Log) {
		l.stdErr = stdErr
	}
}

// WithFields sets fields that are added to every log record produced by the logger.
func WithFields(fields ...zap.Field) Option {
	return func(l *Log) {
		l.fields = fields
	}
}

// New returns a logger for the given module.
func New(module string, opts ...Option) *Log {
	l := &Log{
		module: module,
		stdOut: os.Stdout,
		stdErr: os.Stderr,
	}

	for _, opt := range opts {
		opt(l)
	}

	l.initialize()

	return l
}

func (l *Log) initialize() {
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName: func(moduleName string, encoder zapcore.PrimitiveArrayEncoder) {
			encoder.AppendString(fmt.Sprintf("[%s]", moduleName))
		},
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(l.stdErr),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel && levels.isEnabled(l.module, Level(lvl))
			}),
		),
		zapcore.NewCore(encoder, zapcore.Lock(l.stdOut),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl < zapcore.ErrorLevel && levels.isEnabled(l.module, Level(lvl))
			}),
		),
	)

	l.instance = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(callerSkip)).
		Named(l.module).With(l.fields...)
}

// Debug logs a message at DEBUG level.
func (l *Log) Debug(msg string, fields ...zap.Field) {
	l.instance.Debug(msg, fields...)
}

// Info logs a message at INFO level.
func (l *Log) Info(msg string, fields ...zap.Field) {
	l.instance.Info(msg, fields...)
}

// Warn logs a message at WARN level.
func (l *Log) Warn(msg string, fields ...zap.Field) {
	l.instance.Warn(msg, fields...)
}

// Error logs a message at ERROR level.
func (l *Log) Error(msg string, fields ...zap.Field) {
	l.instance.Error(msg, fields...)
}

// Panic logs a message at PANIC level and then panics.
func (l *Log) Panic(msg string, fields ...zap.Field) {
	l.instance.Panic(msg, fields...)
}

// Fatal logs a message at FATAL level and then calls os.Exit.
func (l *Log) Fatal(msg string, fields ...zap.Field) {
	l.instance.Fatal(msg, fields...)
}

// IsEnabled returns true if the given log level is enabled for the logger's module.
func (l *Log) IsEnabled(level Level) bool {
	return levels.isEnabled(l.module, level)
}

// SetLevel sets the log level for the given module.
func SetLevel(module string, level Level) {
	levels.Set(module, level)
}

// SetDefaultLevel sets the default log level.
func SetDefaultLevel(level Level) {
	levels.SetDefault(level)
}

// GetLevel returns the log level for the given module.
func GetLevel(module string) Level {
	return levels.Get(module)
}

// GetSpec returns the log spec in the format:
//
//	module1=level1:module2=level2:module3=level3:defaultLevel
func GetSpec() string {
	return levels.Spec()
}

// SetSpec sets the log levels for individual modules as well as the default log level.
// The format of the spec is as follows:
//
//	module1=level1:module2=level2:module3=level3:defaultLevel
//
// Example:
//
//	inbox=error:outbox=debug:warning
func SetSpec(spec string) error {
	defaultLogLevel := minLogLevel - 1

	type moduleLevelPair struct {
		module string
		level  Level
	}

	var pairs []moduleLevelPair

	for _, part := range strings.Split(spec, ":") {
		if strings.Contains(part, "=") {
			moduleAndLevel := strings.Split(part, "=")

			level, err := ParseLevel(moduleAndLevel[1])
			if err != nil {
				return err
			}

			pairs = append(pairs, moduleLevelPair{moduleAndLevel[0], level})
		} else {
			if defaultLogLevel >= minLogLevel {
				return errors.New("multiple default values found")
			}

			level, err := ParseLevel(part)
			if err != nil {
				return err
			}

			defaultLogLevel = level
		}
	}

	if defaultLogLevel >= minLogLevel {
		levels.SetDefault(defaultLogLevel)
	} else {
		levels.SetDefault(INFO)
	}

	for _, pair := range pairs {
		levels.Set(pair.module, pair.level)
	}

	return nil
}

type moduleLevels struct {
	mutex        sync.RWMutex
	levels       map[string]Level
	defaultLevel Level
}

// Spec returns the module levels and the default level as a log spec string.
func (l *moduleLevels) Spec() string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	parts := make([]string, 0, len(l.levels)+1)

	for module, level := range l.levels {
		parts = append(parts, module+"="+level.String())
	}

	sort.Strings(parts)

	parts = append(parts, l.defaultLevel.String())

	return strings.Join(parts, ":")
}

func newModuleLevels() *moduleLevels {
	return &moduleLevels{
		levels:       make(map[string]Level),
		defaultLevel: defaultLevel,
	}
}

func (l *moduleLevels) Get(module string) Level {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	level, ok := l.levels[module]
	if !ok {
		return l.defaultLevel
	}

	return level
}

func (l *moduleLevels) Set(module string, level Level) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.levels[module] = level
}

func (l *moduleLevels) SetDefault(level Level) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.defaultLevel = level
}

func (l *moduleLevels) isEnabled(module string, level Level) bool {
	return level >= l.Get(module)
}
