// Package logx is the topical logger spec.md treats logging
// infrastructure as out of scope of the transfer protocol itself, but
// still expects as an ambient concern (§1, §9). It follows the teacher's
// internal/debug pattern of a small gated-verbosity writer, and the
// original implementation's idea of a colon-delimited topic prefix
// ("TX: Welcomed", "RX: Get Updates") — without that implementation's
// broken rotation (it computed its log filename from a name, `time`,
// that was never defined, and never actually enforced MAX_TO_KEEP).
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Level is the logger's severity, ordered least to most severe.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
}

var levelColor = map[Level]string{
	Debug: "36", // cyan
	Info:  "32", // green
	Warn:  "33", // yellow
	Error: "31", // red
}

// Logger writes topic-prefixed, leveled lines to stderr (colorized) and,
// optionally, to a file sink. A new log file is opened per New call and
// rotation is by file count only; a file's size is not bounded.
type Logger struct {
	mu     sync.Mutex
	min    Level
	stderr io.Writer
	file   *rotatingFile
}

// New creates a Logger at minimum severity min, writing to stderr and,
// if dir is non-empty, to a rotating file under dir.
func New(min Level, dir string, keep int) (*Logger, error) {
	l := &Logger{min: min, stderr: os.Stderr}
	if dir != "" {
		rf, err := newRotatingFile(dir, keep)
		if err != nil {
			return nil, err
		}
		l.file = rf
	}
	return l, nil
}

// Topic returns a logger view that prefixes every message with topic
// (e.g. "TX", "RX", "MANAGER"), mirroring the original's "TOPIC: message"
// convention.
func (l *Logger) Topic(topic string) *Topic {
	return &Topic{l: l, topic: topic}
}

func (l *Logger) log(level Level, topic, msg string) {
	if level < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	plain := fmt.Sprintf("[%-5s] %-10s %s", levelNames[level], topic, msg)
	fmt.Fprintf(l.stderr, "\x1b[1;%sm[%-5s]\x1b[0m %-10s %s\n", levelColor[level], levelNames[level], topic, msg)
	if l.file != nil {
		l.file.writeLine(ts + " " + plain)
	}
}

// Topic is a logger bound to a fixed topic prefix.
type Topic struct {
	l     *Logger
	topic string
}

func (t *Topic) Debugf(format string, args ...interface{}) { t.l.log(Debug, t.topic, fmt.Sprintf(format, args...)) }
func (t *Topic) Infof(format string, args ...interface{})  { t.l.log(Info, t.topic, fmt.Sprintf(format, args...)) }
func (t *Topic) Warnf(format string, args ...interface{})  { t.l.log(Warn, t.topic, fmt.Sprintf(format, args...)) }
func (t *Topic) Errorf(format string, args ...interface{}) { t.l.log(Error, t.topic, fmt.Sprintf(format, args...)) }

// rotatingFile keeps at most `keep` log files under dir, removing the
// oldest by name (names are timestamp-prefixed, so lexical order is
// chronological) before opening a new one.
type rotatingFile struct {
	mu sync.Mutex
	f  *os.File
}

func newRotatingFile(dir string, keep int) (*rotatingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if keep > 0 {
		entries, err := os.ReadDir(dir)
		if err == nil {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if !e.IsDir() {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			for len(names) >= keep {
				_ = os.Remove(filepath.Join(dir, names[0]))
				names = names[1:]
			}
		}
	}
	name := fmt.Sprintf("SEND_%s.log", time.Now().Format("20060102_150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &rotatingFile{f: f}, nil
}

func (r *rotatingFile) writeLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.f, line)
}
