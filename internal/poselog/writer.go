// Package poselog persists per-scan pose records: a CSV result log in
// the fixed `id,x,y,z,yaw,pitch,roll` format, and an optional SQLite
// store for querying past runs.
package poselog

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/banshee-data/mapalign/internal/localizer"
)

// Header is the first line of every result log.
const Header = "id,x,y,z,yaw,pitch,roll"

// Writer appends pose records to a CSV file. It is safe for use from a
// single goroutine; the engine delivers records sequentially.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	bw   *bufio.Writer
	rows int
}

// NewWriter creates (truncating) the result file and writes the header.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create result log: %v", err)
	}
	bw := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(bw, Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write result log header: %v", err)
	}
	return &Writer{f: f, bw: bw}, nil
}

// Append writes one record as a CSV row.
func (w *Writer) Append(rec localizer.PoseRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("result log already closed")
	}
	_, err := fmt.Fprintf(w.bw, "%d,%g,%g,%g,%g,%g,%g\n",
		rec.FrameIndex, rec.X, rec.Y, rec.Z, rec.Yaw, rec.Pitch, rec.Roll)
	if err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of records appended so far.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	flushErr := w.bw.Flush()
	closeErr := w.f.Close()
	w.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
