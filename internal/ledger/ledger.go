// Package ledger keeps the CSV record of every fetch attempt. A ledger is
// loaded once per run, appended to in memory, and written back in full after
// each attempt.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/cbcr-finder/internal/storage"
)

// StatusOK marks a row whose payload was stored.
const StatusOK = "OK"

// Header is the column order written by Encode.
var Header = []string{"target", "period", "url", "filename", "scope", "query", "status"}

// legacyColumns maps header names written by older versions of the tool.
var legacyColumns = map[string]string{
	"company": "target",
	"year":    "period",
	"folder":  "scope",
}

// Row is a single fetch attempt.
type Row struct {
	Target   string `json:"target"`
	Period   string `json:"period"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Scope    string `json:"scope"`
	Query    string `json:"query"`
	Status   string `json:"status"`
}

// OK reports whether the attempt stored a payload.
func (r Row) OK() bool { return r.Status == StatusOK }

func (r Row) record() []string {
	return []string{r.Target, r.Period, r.URL, r.Filename, r.Scope, r.Query, r.Status}
}

type urlState struct {
	ok bool
}

// Ledger is an in-memory, append-only list of rows indexed by URL.
// It is not safe for concurrent use.
type Ledger struct {
	rows []Row
	urls map[string]urlState
}

// New returns a ledger holding rows.
func New(rows ...Row) *Ledger {
	l := &Ledger{urls: make(map[string]urlState, len(rows))}
	for _, r := range rows {
		l.Append(r)
	}
	return l
}

// Append adds a row.
func (l *Ledger) Append(r Row) {
	l.rows = append(l.rows, r)
	st := l.urls[r.URL]
	st.ok = st.ok || r.OK()
	l.urls[r.URL] = st
}

// Contains reports whether url has been attempted. With retryFailed set only
// successful attempts count.
func (l *Ledger) Contains(url string, retryFailed bool) bool {
	st, seen := l.urls[url]
	if !seen {
		return false
	}
	return !retryFailed || st.ok
}

// Len returns the number of rows.
func (l *Ledger) Len() int { return len(l.rows) }

// Rows returns a copy of the rows in insertion order.
func (l *Ledger) Rows() []Row {
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

// Encode renders the ledger as CSV with the current header.
func (l *Ledger) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range l.rows {
		if err := w.Write(r.record()); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes CSV written by Encode or by the first version of the tool.
// Columns are matched by header name; unknown columns are dropped.
func Parse(data []byte) (*Ledger, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if mapped, ok := legacyColumns[name]; ok {
			name = mapped
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	if _, ok := index["url"]; !ok {
		return nil, fmt.Errorf("ledger header %v has no url column", header)
	}

	field := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	l := New()
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		l.Append(Row{
			Target:   field(rec, "target"),
			Period:   field(rec, "period"),
			URL:      field(rec, "url"),
			Filename: field(rec, "filename"),
			Scope:    field(rec, "scope"),
			Query:    field(rec, "query"),
			Status:   field(rec, "status"),
		})
	}
	return l, nil
}

// Load reads the ledger at path. A missing object yields an empty ledger.
func Load(ctx context.Context, store storage.Store, path string) (*Ledger, error) {
	data, err := store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return New(), nil
		}
		return nil, fmt.Errorf("load ledger %s: %w", path, err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}
	return l, nil
}

// Save overwrites the object at path with the full ledger.
func Save(ctx context.Context, store storage.Store, path string, l *Ledger) error {
	data, err := l.Encode()
	if err != nil {
		return err
	}
	if err := store.Put(ctx, path, data); err != nil {
		return fmt.Errorf("save ledger %s: %w", path, err)
	}
	return nil
}
