// Package output appends labeled records to the CSV artifact.
//
// A Writer is owned by the dispatcher goroutine. Workers never touch the file;
// they return records which the dispatcher writes and syncs before marking the
// item done.
package output

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"fable/internal/schema"
)

var (
	// ErrHeaderMismatch is returned when an existing artifact was produced with
	// different columns.
	ErrHeaderMismatch = errors.New("csv header does not match configured accessories")
	// ErrWrite marks failures appending or syncing rows.
	ErrWrite = errors.New("output write failed")
)

// Writer appends rows to a CSV file.
type Writer struct {
	path   string
	file   *os.File
	offset int64
	labels int
	rows   int
}

// Open opens path for appending. A header is written when the file is new or
// empty. An existing header must match the schema's columns exactly. A torn
// final row left by an interrupted write is truncated.
func Open(path string, s *schema.Schema) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	columns := s.Columns()
	size, err := prepare(file, columns)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if _, err := file.Seek(size, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("seek output: %w", err)
	}

	w := &Writer{path: path, file: file, offset: size, labels: len(s.Fields)}
	if size == 0 {
		if err := w.append([][]string{columns}); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("header: %w", err)
		}
	}
	return w, nil
}

// prepare validates an existing header and returns the offset to append at.
func prepare(file *os.File, columns []string) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat output: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	header, err := csv.NewReader(io.NewSectionReader(file, 0, size)).Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: %v", ErrHeaderMismatch, err)
	}
	if !slices.Equal(header, columns) {
		return 0, fmt.Errorf("%w: have %s, want %s",
			ErrHeaderMismatch, strings.Join(header, ","), strings.Join(columns, ","))
	}

	end, err := lastLineEnd(file, size)
	if err != nil {
		return 0, err
	}
	if end != size {
		// A header without its newline truncates to zero and is rewritten.
		if err := file.Truncate(end); err != nil {
			return 0, fmt.Errorf("truncate torn row: %w", err)
		}
	}
	return end, nil
}

// lastLineEnd returns the offset just past the final newline, scanning
// backwards from size.
func lastLineEnd(file *os.File, size int64) (int64, error) {
	const chunk = 4096
	buf := make([]byte, chunk)
	for end := size; end > 0; {
		start := max(end-chunk, 0)
		n, err := file.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read output: %w", err)
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// Path returns the artifact location.
func (w *Writer) Path() string { return w.path }

// Rows returns how many records this Writer appended.
func (w *Writer) Rows() int { return w.rows }

// Write appends records for one item and hands them to the operating system.
// Either every row lands or the file is rolled back to where it was, so a
// failed item leaves nothing behind and later writes start clean.
func (w *Writer) Write(records []Record) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		if len(rec.Labels) != w.labels {
			return fmt.Errorf("%w: %s has %d labels, want %d", ErrWrite, rec.Filename, len(rec.Labels), w.labels)
		}
		rows = append(rows, rec.row())
	}
	if err := w.append(rows); err != nil {
		return err
	}
	w.rows += len(records)
	return nil
}

// append encodes rows in memory and writes them with a single call at the
// current offset.
func (w *Writer) append(rows [][]string) error {
	if w.file == nil {
		return fmt.Errorf("%w: writer is closed", ErrWrite)
	}
	var buf bytes.Buffer
	enc := csv.NewWriter(&buf)
	if err := enc.WriteAll(rows); err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWrite, err)
	}
	n, err := w.file.WriteAt(buf.Bytes(), w.offset)
	if err != nil {
		return w.rollback(err)
	}
	w.offset += int64(n)
	return nil
}

// rollback truncates a partial write back to the last committed offset.
func (w *Writer) rollback(cause error) error {
	if err := w.file.Truncate(w.offset); err != nil {
		return fmt.Errorf("%w: %v (truncate after failure: %v)", ErrWrite, cause, err)
	}
	return fmt.Errorf("%w: %v", ErrWrite, cause)
}

// Sync commits written rows to stable storage.
func (w *Writer) Sync() error {
	if w.file == nil {
		return fmt.Errorf("%w: writer is closed", ErrWrite)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrWrite, err)
	}
	return nil
}

// Close closes the file. Safe to call more than once.
func (w *Writer) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
