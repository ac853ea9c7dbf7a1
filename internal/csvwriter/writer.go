// Package csvwriter appends rows to a CSV file, writing the header once.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Writer is a simple append-only CSV writer.
type Writer struct {
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
}

// NewWriter opens filePath for appending. header is written only when the
// file is new or empty.
func NewWriter(filePath string, header []string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat CSV file: %w", err)
	}

	w := &Writer{
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger,
	}
	if info.Size() == 0 && len(header) > 0 {
		if err := w.Write(header); err != nil {
			file.Close()
			return nil, err
		}
		w.Flush()
	}
	return w, nil
}

// Write writes a record to the CSV file.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	return nil
}

// Flush flushes any buffered data to the underlying file.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.logger.Error("failed to flush CSV", zap.String("file", w.file.Name()), zap.Error(err))
	}
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.Flush()
	return w.file.Close()
}
