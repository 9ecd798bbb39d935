package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppend_WritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload_log.csv")
	l := New(path)
	ts := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

	if err := l.Append(Row{Timestamp: ts, Filename: "a.mp4", Caption: "a\n\n#x"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(Row{Timestamp: ts.Add(time.Hour), Filename: "b.mp4", Caption: "b, with comma"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "timestamp,filename,caption\n") {
		t.Errorf("missing header:\n%s", data)
	}
	if strings.Count(string(data), "timestamp,filename,caption") != 1 {
		t.Errorf("header written more than once:\n%s", data)
	}
}

func TestAppend_NeverRewritesPriorRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload_log.csv")
	l := New(path)
	ts := time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)

	if err := l.Append(Row{Timestamp: ts, Filename: "first.mp4", Caption: "first"}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	if err := l.Append(Row{Timestamp: ts, Filename: "second.mp4", Caption: "second"}); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(path)

	if !strings.HasPrefix(string(after), string(before)) {
		t.Errorf("existing content changed:\nbefore=%q\nafter=%q", before, after)
	}

	rows, err := l.Rows()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Filename != "first.mp4" || rows[1].Filename != "second.mp4" {
		t.Errorf("unexpected rows: %#v", rows)
	}
	if rows[0].Caption != "first" || !rows[0].Timestamp.Equal(ts) {
		t.Errorf("unexpected first row: %#v", rows[0])
	}
}

func TestRows_MissingFile(t *testing.T) {
	rows, err := New(filepath.Join(t.TempDir(), "none.csv")).Rows()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
