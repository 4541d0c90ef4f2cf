package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LineCapWriter wraps a log file and keeps it from growing past a fixed
// number of lines. It remembers the most recent lines and periodically
// rewrites the file with only those, so long-lived workers never fill the
// disk with a single log.
type LineCapWriter struct {
	writer   io.Writer
	filePath string
	maxLines int

	mutex sync.Mutex
	lines []string
	seen  int
}

// NewLineCapWriter creates a writer keeping at most maxLines lines in the
// file at filePath.
func NewLineCapWriter(writer io.Writer, maxLines int, filePath string) *LineCapWriter {
	return &LineCapWriter{
		writer:   writer,
		filePath: filePath,
		maxLines: maxLines,
	}
}

// Write appends to the underlying file and tracks the recent lines,
// shrinking the file once twice the cap has been written.
func (w *LineCapWriter) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		w.lines = append(w.lines, line)
		if len(w.lines) > w.maxLines {
			w.lines = w.lines[1:]
		}

		w.seen++
		if w.seen >= w.maxLines*2 {
			if err := w.shrink(); err != nil {
				return n, err
			}

			w.seen = len(w.lines)
		}
	}

	return n, nil
}

// shrink rewrites the file with only the retained lines and swaps it in
// place of the old one.
func (w *LineCapWriter) shrink() error {
	if len(w.lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if _, err := temp.WriteString(strings.Join(w.lines, "\n") + "\n"); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	temp.Close()

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	os.Remove(w.filePath)

	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.writer = newFile

	return nil
}
