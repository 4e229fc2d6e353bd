// Package logging is a small leveled printf-style logger. Lines go to a file,
// to stdout, or both; level tags are colored when stdout is a terminal.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
	off
)

func (l Level) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

var levelStyles = map[Level]lipgloss.Style{
	TRACE:    lipgloss.NewStyle().Foreground(lipgloss.Color("#666688")),
	DEBUG:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff")),
	INFO:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88")),
	WARN:     lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaa00")).Bold(true),
	ERROR:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444")).Bold(true),
	CRITICAL: lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#ff0000")).Bold(true),
}

// ParseLevel maps a config or flag value to a level; unknown names give INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "critical":
		return CRITICAL
	default:
		return INFO
	}
}

type Logger struct {
	mu       sync.Mutex
	minLevel Level
	file     *os.File
	out      io.Writer
	color    bool
	now      func() time.Time
}

// New writes to w. Tags are colored only when w is a terminal.
func New(w io.Writer, minLevel Level) *Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	return &Logger{minLevel: minLevel, out: w, color: color, now: time.Now}
}

// NewFileLogger appends to filePath and optionally mirrors to stdout.
func NewFileLogger(filePath string, minLevel Level, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := &Logger{minLevel: minLevel, file: f, now: time.Now}
	if alsoStdout {
		l.out = os.Stdout
		l.color = isatty.IsTerminal(os.Stdout.Fd())
	}
	return l, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{minLevel: off, now: time.Now}
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) SetMinLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minLevel
}

func (l *Logger) log(level Level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	ts := l.now().Format(time.RFC3339Nano)
	body := fmt.Sprintf(msg, args...)

	if l.file != nil {
		_, _ = fmt.Fprintf(l.file, "%s [%s] %s\n", ts, level, body)
	}
	if l.out != nil {
		tag := "[" + level.String() + "]"
		if l.color {
			tag = levelStyles[level].Render(tag)
		}
		_, _ = fmt.Fprintf(l.out, "%s %s %s\n", ts, tag, body)
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }
