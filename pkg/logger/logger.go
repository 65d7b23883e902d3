package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// Logger is a small leveled console logger. The zero value is not usable;
// construct one with New or use the package-level default.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	level    Level
	colorize bool
	showTime bool
}

type Config struct {
	Level    Level
	Colorize bool
	ShowTime bool
	Output   io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:    INFO,
		Colorize: true,
		ShowTime: true,
		Output:   os.Stdout,
	}
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	return &Logger{
		out:      cfg.Output,
		level:    cfg.Level,
		colorize: cfg.Colorize,
		showTime: cfg.ShowTime,
	}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the process-wide default logger. The level can be
// overridden with the LOG_LEVEL environment variable.
func GetLogger() *Logger {
	once.Do(func() {
		cfg := DefaultConfig()
		switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
		case "DEBUG":
			cfg.Level = DEBUG
		case "INFO":
			cfg.Level = INFO
		case "WARN":
			cfg.Level = WARN
		case "FATAL":
			cfg.Level = FATAL
		}
		defaultLogger = New(cfg)
	})
	return defaultLogger
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var b strings.Builder
	if l.showTime {
		b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}

	tag := fmt.Sprintf("[%s]", level)
	if l.colorize {
		switch level {
		case DEBUG:
			tag = colorGray + tag + colorReset
		case INFO:
			tag = colorBlue + tag + colorReset
		case WARN:
			tag = colorYellow + tag + colorReset
		case FATAL:
			tag = colorRed + tag + colorReset
		}
	}
	b.WriteString(tag)
	b.WriteByte(' ')

	if len(args) > 0 {
		b.WriteString(fmt.Sprintf(format, args...))
	} else {
		b.WriteString(format)
	}

	fmt.Fprintln(l.out, b.String())

	if level == FATAL {
		os.Exit(1)
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(WARN, format, args...) }

// Errorf is an alias for Warnf; the level set has no separate error tier.
func (l *Logger) Errorf(format string, args ...any) { l.log(WARN, format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.log(FATAL, format, args...) }

// Package-level helpers using the default logger.

func Debugf(format string, args ...any) { GetLogger().Debugf(format, args...) }
func Infof(format string, args ...any)  { GetLogger().Infof(format, args...) }
func Warnf(format string, args ...any)  { GetLogger().Warnf(format, args...) }
func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }
func Fatalf(format string, args ...any) { GetLogger().Fatalf(format, args...) }
