// Package audit appends one CSV row per successful publish.
//
// The log is for operators: the coordinator only ever appends to it. Rows are
// written as timestamp, filename, caption with a header on the first line of
// a new file.
package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/reelbot/internal/reelerr"
)

// Header is the first row of every audit log file.
var Header = []string{"timestamp", "filename", "caption"}

// Row is one published item.
type Row struct {
	Timestamp time.Time
	Filename  string
	Caption   string
}

// Log is an append-only CSV file.
type Log struct {
	path string
}

// New returns an audit log at path. The file is created on first Append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes row at the end of the file, adding the header first when the
// file is new or empty. Existing rows are never rewritten.
func (l *Log) Append(row Row) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "create audit log directory", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "open audit log", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "stat audit log", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return reelerr.Wrap(reelerr.ErrIO, "write audit header", err)
		}
	}
	record := []string{row.Timestamp.Format(time.RFC3339), row.Filename, row.Caption}
	if err := w.Write(record); err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "write audit row", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "flush audit log", err)
	}
	if err := f.Close(); err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "close audit log", err)
	}
	return nil
}

// Rows reads back every row after the header. A missing file yields no rows.
func (l *Log) Rows() ([]Row, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, reelerr.Wrap(reelerr.ErrIO, "open audit log", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)

	var rows []Row
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, reelerr.Wrap(reelerr.ErrIO, "read audit log", err)
		}
		if line == 1 && rec[0] == Header[0] {
			continue
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, reelerr.Wrap(reelerr.ErrIO, fmt.Sprintf("audit log line %d", line), err)
		}
		rows = append(rows, Row{Timestamp: ts, Filename: rec[1], Caption: rec[2]})
	}
	return rows, nil
}
