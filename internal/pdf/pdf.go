// Package pdf wraps pdfcpu for payload validation and page selection.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNotPDF is returned when a payload does not parse as a PDF document.
var ErrNotPDF = errors.New("payload is not a PDF")

var configOnce sync.Once

func configuration() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount parses data and returns its number of pages.
func PageCount(data []byte) (int, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return 0, ErrNotPDF
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), configuration())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	return ctx.PageCount, nil
}

// Validate reports whether data is a readable PDF with at least one page.
func Validate(data []byte) error {
	n, err := PageCount(data)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: no pages", ErrNotPDF)
	}
	return nil
}

// ParsePages turns a selection such as "1,3-4" into pdfcpu page selectors.
func ParsePages(selection string) ([]string, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return nil, fmt.Errorf("page selection is empty")
	}
	pages, err := api.ParsePageSelection(selection)
	if err != nil {
		return nil, fmt.Errorf("parse page selection %q: %w", selection, err)
	}
	return pages, nil
}

// SelectPages returns a new document that keeps only the selected pages.
func SelectPages(data []byte, pages []string) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages selected")
	}
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, pages, configuration()); err != nil {
		return nil, fmt.Errorf("select pages %v: %w", pages, err)
	}
	return out.Bytes(), nil
}
