// Package accesslog appends notification events to a local JSON-lines file.
package accesslog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
)

// Logger is a notification backend that writes one event payload per line.
type Logger struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func New(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}
	return &Logger{path: path, file: f}, nil
}

func (l *Logger) Name() string { return "file" }

// Publish appends payload followed by a newline. Payloads containing
// newlines are rejected so every line stays one event.
func (l *Logger) Publish(_ context.Context, payload []byte) error {
	if bytes.IndexByte(payload, '\n') >= 0 {
		return fmt.Errorf("access log %s: payload spans lines", l.path)
	}
	line := make([]byte, 0, len(payload)+1)
	line = append(append(line, payload...), '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("write access log: %w", err)
	}
	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
