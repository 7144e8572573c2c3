// Package wal provides a write-ahead audit log for reconciliation runs.
// Every observation, plan, and operation outcome is appended before the
// run report is produced, so failures are never silently dropped.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// EntryType defines the type of WAL entry
type EntryType string

const (
	EntryObserved EntryType = "observed"
	EntryPlanned  EntryType = "planned"
	EntryApplying EntryType = "applying"
	EntryApplied  EntryType = "applied"
	EntryFailed   EntryType = "failed"
	EntrySkipped  EntryType = "skipped"
)

// Entry represents a single WAL entry
type Entry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
	Type       EntryType       `json:"type"`
	RunID      string          `json:"run_id,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// WAL appends JSON-lines audit entries to a timestamped file
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
	runID    string
}

// Open creates or opens a WAL in the specified directory
func Open(dir, runID string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	filename := fmt.Sprintf("suoja-%s.wal", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) // #nosec G304 -- path built from caller-chosen dir
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	return &WAL{
		file:   file,
		writer: bufio.NewWriter(file),
		dir:    dir,
		runID:  runID,
	}, nil
}

// Close flushes and closes the WAL
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append adds an entry to the WAL
func (w *WAL) Append(entryType EntryType, resourceID string, data any) error {
	return w.append(entryType, resourceID, data, nil)
}

// AppendError adds an entry carrying a failure
func (w *WAL) AppendError(entryType EntryType, resourceID string, data any, cause error) error {
	return w.append(entryType, resourceID, data, cause)
}

func (w *WAL) append(entryType EntryType, resourceID string, data any, cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sequence++

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	entry := Entry{
		Timestamp:  time.Now(),
		Sequence:   w.sequence,
		Type:       entryType,
		RunID:      w.runID,
		ResourceID: resourceID,
		Data:       jsonData,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	return w.writeEntry(entry)
}

func (w *WAL) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := w.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush per entry: audit entries must hit disk before the provider
	// call they describe
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return w.file.Sync()
}

// Reader replays entries from one WAL file
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a WAL reader for the specified file
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry, returning io.EOF at the end
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll replays every entry from every WAL file in a directory,
// oldest file first
func ReadAll(dir string) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "suoja-*.wal"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var entries []Entry
	for _, path := range paths {
		fileEntries, err := readFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}
	return entries, nil
}

func readFile(path string) ([]Entry, error) {
	reader, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	var entries []Entry
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}
