package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal single-font PDF with one page per entry in pages.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	n := len(pages)
	fontObj := 3 + 2*n
	objects := make([]string, fontObj)

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objects[0] = "<< /Type /Catalog /Pages 2 0 R >>"
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n)

	for i, text := range pages {
		pageObj, contentObj := 3+2*i, 4+2*i
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects[pageObj-1] = fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>",
			contentObj, fontObj)
		objects[contentObj-1] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream)
	}
	objects[fontObj-1] = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"

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

func TestExtractPDF(t *testing.T) {
	data := buildPDF(t, "Tenant shall pay rent monthly", "Security deposit is refundable")

	var calls [][2]int
	result, err := ExtractPDF(context.Background(), data, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.PageCount)
	assert.Contains(t, result.Text, "Tenant shall pay rent monthly")
	assert.Contains(t, result.Text, "Security deposit is refundable")
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, calls)
	assert.Empty(t, result.SkippedPages)
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	_, err := ExtractPDF(context.Background(), []byte("definitely not a pdf"), nil)
	assert.Error(t, err)
}

func TestExtractPDFNoText(t *testing.T) {
	data := buildPDF(t, "")

	_, err := ExtractPDF(context.Background(), data, nil)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractPDFCancelled(t *testing.T) {
	data := buildPDF(t, "one", "two")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExtractPDF(ctx, data, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractTXT(t *testing.T) {
	t.Run("utf8 with bom keeps paragraph breaks", func(t *testing.T) {
		data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("1. Rent\r\n  Rs. 25,000 per month  \r\n\r\n\r\n2. Deposit\n")...)
		text, err := ExtractTXT(data)
		require.NoError(t, err)
		assert.Equal(t, "1. Rent\nRs. 25,000 per month\n\n2. Deposit", text)
	})

	t.Run("windows-1252", func(t *testing.T) {
		text, err := ExtractTXT([]byte("Fee \x80500"))
		require.NoError(t, err)
		assert.Equal(t, "Fee €500", text)
	})

	t.Run("utf-16le", func(t *testing.T) {
		data := []byte{0xFF, 0xFE, 'O', 0, 'k', 0}
		text, err := ExtractTXT(data)
		require.NoError(t, err)
		assert.Equal(t, "Ok", text)
	})

	t.Run("whitespace only", func(t *testing.T) {
		_, err := ExtractTXT([]byte(" \n\t\n"))
		assert.ErrorIs(t, err, ErrNoText)
	})
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		declared string
		data     []byte
		want     string
	}{
		{"pdf extension", "Lease.PDF", "application/octet-stream", nil, ContentTypePDF},
		{"txt extension", "notes.txt", "", nil, ContentTypeText},
		{"declared pdf with params", "upload", "application/pdf; name=x", nil, ContentTypePDF},
		{"sniffed pdf", "blob", "", []byte("%PDF-1.7\n"), ContentTypePDF},
		{"docx stays unsupported", "offer.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK"), "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"unknown", "blob", "", []byte{0x01}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.filename, tt.declared, tt.data))
		})
	}
}

func TestValidateUpload(t *testing.T) {
	pdf := buildPDF(t, "Clause")

	assert.NoError(t, ValidateUpload(ContentTypePDF, pdf, 1<<20))
	assert.NoError(t, ValidateUpload(ContentTypeText, []byte("plain agreement text"), 1<<20))

	assert.ErrorIs(t, ValidateUpload(ContentTypePDF, nil, 1<<20), ErrEmptyFile)
	assert.ErrorIs(t, ValidateUpload(ContentTypePDF, pdf, 10), ErrFileTooLarge)
	assert.ErrorIs(t, ValidateUpload(ContentTypePDF, []byte("hello"), 1<<20), ErrNotPDF)
	assert.ErrorIs(t, ValidateUpload("application/msword", []byte("x"), 1<<20), ErrUnsupportedType)
	assert.ErrorIs(t, ValidateUpload(ContentTypeText, bytes.Repeat([]byte{0x00, 0x01, 0x02}, 100), 1<<20), ErrUnsupportedType)

	err := ValidateUpload(ContentTypePDF, pdf, 10)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Contains(t, err.Error(), "10 Bytes")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 Bytes", FormatSize(0))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "10 MB", FormatSize(10*1024*1024))
}
