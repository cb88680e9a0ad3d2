// Package logbook keeps the human-readable journal under .linaje/: one
// tab-separated line per detection pass, ritual transition or removal.
package logbook

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a journal entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one journal line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

func (e Entry) String() string {
	return e.Time.UTC().Format(time.RFC3339) + "\t" + string(e.Level) + "\t" + e.Message
}

// ParseEntry reads a line written by Append. Lines in any other shape come
// back as an INFO entry carrying the raw text, with ok false.
func ParseEntry(line string) (Entry, bool) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) == 3 {
		if ts, err := time.Parse(time.RFC3339, parts[0]); err == nil {
			return Entry{Time: ts, Level: Level(parts[1]), Message: parts[2]}, true
		}
	}
	return Entry{Level: LevelInfo, Message: line}, false
}

// Logbook appends entries to a single file. Writes are serialized; readers
// see whole lines only.
type Logbook struct {
	path  string
	clock func() time.Time
	mu    sync.Mutex
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New opens the journal at path, creating its directory.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	l := &Logbook{path: path, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the journal file.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one entry. Whitespace runs, newlines included, collapse to a
// single space so every entry stays on one line.
func (l *Logbook) Append(level Level, message string) error {
	if l == nil {
		return nil
	}
	entry := Entry{
		Time:    l.clock(),
		Level:   level,
		Message: strings.Join(strings.Fields(message), " "),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logbook: %w", err)
	}
	if _, err := f.WriteString(entry.String() + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("logbook: %w", err)
	}
	return f.Close()
}

// Recent returns the last n entries, oldest first, and how many entries the
// journal holds. A missing journal is empty. n <= 0 only counts.
func (l *Logbook) Recent(n int) ([]Entry, int, error) {
	if l == nil {
		return nil, 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("logbook: %w", err)
	}
	defer f.Close()

	var ring []Entry
	total := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		total++
		if n <= 0 {
			continue
		}
		entry, _ := ParseEntry(line)
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, total, fmt.Errorf("logbook: %w", err)
	}
	return ring, total, nil
}

// Info appends an informational entry. Write failures are dropped; the
// journal never blocks the operation it describes.
func (l *Logbook) Info(format string, args ...any) {
	_ = l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	_ = l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	_ = l.Append(LevelError, fmt.Sprintf(format, args...))
}
