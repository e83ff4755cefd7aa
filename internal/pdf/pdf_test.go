package pdf_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cbcr-finder/internal/pdf"
)

// buildPDF assembles a minimal document with n blank pages.
func buildPDF(n int) []byte {
	var objects []string
	kids := ""
	for i := 0; i < n; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n),
	)
	for i := 0; i < n; i++ {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	n, err := pdf.PageCount(buildPDF(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, pdf.Validate(buildPDF(1)))
	assert.ErrorIs(t, pdf.Validate([]byte("<html>not a pdf</html>")), pdf.ErrNotPDF)
	assert.ErrorIs(t, pdf.Validate([]byte("%PDF-1.4 truncated")), pdf.ErrNotPDF)
}

func TestParsePages(t *testing.T) {
	pages, err := pdf.ParsePages("1,3-4")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3-4"}, pages)

	_, err = pdf.ParsePages("  ")
	assert.Error(t, err)
}

func TestSelectPages(t *testing.T) {
	out, err := pdf.SelectPages(buildPDF(4), []string{"1", "3-4"})
	require.NoError(t, err)

	n, err := pdf.PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = pdf.SelectPages(buildPDF(2), nil)
	assert.Error(t, err)
}
