package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{"Timestamp", "Block", "Type", "Price", "Tick", "Details"}

// CSVSink appends events to a CSV file, flushed synchronously per row.
type CSVSink struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewCSVSink opens (or creates) the log file, writing the header row for
// a new file.
func NewCSVSink(path string) (*CSVSink, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	info, statErr := os.Stat(path)
	isNew := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	sink := &CSVSink{path: path, file: file}
	if isNew {
		if err := sink.writeLine(csvHeader); err != nil {
			file.Close()
			return nil, err
		}
	}
	return sink, nil
}

// Record appends one row and flushes it to disk.
func (s *CSVSink) Record(_ context.Context, event Event) error {
	ts := event.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return s.writeLine([]string{
		ts.UTC().Format(time.RFC3339),
		strconv.FormatUint(event.Block, 10),
		string(event.Type),
		strconv.FormatFloat(event.Price, 'f', -1, 64),
		strconv.FormatInt(int64(event.Tick), 10),
		SanitizeDetails(event.Details),
	})
}

func (s *CSVSink) writeLine(fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := ""
	for i, field := range fields {
		if i > 0 {
			line += ","
		}
		line += field
	}
	line += "\n"

	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("write audit row: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("flush audit row: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
