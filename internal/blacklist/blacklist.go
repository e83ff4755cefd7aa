// Package blacklist holds URL substrings that must never be downloaded.
package blacklist

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

// Column is the header of the single blacklist column.
const Column = "url"

// Blacklist is an ordered set of URL substrings.
type Blacklist struct {
	entries []string
}

// New builds a blacklist, dropping blank and duplicate entries.
func New(entries ...string) *Blacklist {
	b := &Blacklist{}
	for _, e := range entries {
		b.Add(e)
	}
	return b
}

// Entries returns a copy of the entries.
func (b *Blacklist) Entries() []string {
	out := make([]string, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of entries.
func (b *Blacklist) Len() int { return len(b.entries) }

// Add inserts entry unless it is blank or already present. It reports whether
// the blacklist changed.
func (b *Blacklist) Add(entry string) bool {
	entry = strings.TrimSpace(entry)
	if entry == "" || b.index(entry) >= 0 {
		return false
	}
	b.entries = append(b.entries, entry)
	return true
}

// Remove deletes entry (case-insensitive) and reports whether it was present.
func (b *Blacklist) Remove(entry string) bool {
	i := b.index(strings.TrimSpace(entry))
	if i < 0 {
		return false
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return true
}

func (b *Blacklist) index(entry string) int {
	for i, e := range b.entries {
		if strings.EqualFold(e, entry) {
			return i
		}
	}
	return -1
}

// Match returns the first entry contained in url, compared case-insensitively.
func (b *Blacklist) Match(url string) (string, bool) {
	lower := strings.ToLower(url)
	for _, e := range b.entries {
		if strings.Contains(lower, strings.ToLower(e)) {
			return e, true
		}
	}
	return "", false
}

// Blocks reports whether url contains any entry.
func (b *Blacklist) Blocks(url string) bool {
	_, ok := b.Match(url)
	return ok
}

// Encode renders the blacklist as a single-column CSV.
func (b *Blacklist) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{Column}); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, e := range b.entries {
		if err := w.Write([]string{e}); err != nil {
			return nil, fmt.Errorf("write entry: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse reads a blacklist CSV. The first row is a header; entries come from
// the url column, or the first column when no header is named url.
func Parse(data []byte) (*Blacklist, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := 0
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), Column) {
			col = i
			break
		}
	}

	b := New()
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read entry: %w", err)
		}
		if col < len(rec) {
			b.Add(rec[col])
		}
	}
	return b, nil
}

// Load reads the blacklist at path. A missing object yields an empty list.
func Load(ctx context.Context, store storage.Store, path string) (*Blacklist, error) {
	data, err := store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return New(), nil
		}
		return nil, fmt.Errorf("load blacklist %s: %w", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse blacklist %s: %w", path, err)
	}
	return b, nil
}

// Save overwrites the object at path.
func Save(ctx context.Context, store storage.Store, path string, b *Blacklist) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}
	if err := store.Put(ctx, path, data); err != nil {
		return fmt.Errorf("save blacklist %s: %w", path, err)
	}
	return nil
}
