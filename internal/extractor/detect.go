package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"
)

var (
	ErrEmptyFile       = errors.New("uploaded file is empty")
	ErrFileTooLarge    = errors.New("file exceeds the size limit")
	ErrUnsupportedType = errors.New("only PDF and plain text files are allowed")
	ErrNotPDF          = errors.New("file does not look like a PDF document")
	ErrNoText          = errors.New("no text could be extracted from the document")
)

var pdfMagic = []byte("%PDF-")

// DetectContentType resolves the content type of an upload from its extension,
// then the declared MIME type, then the leading bytes.
func DetectContentType(filename, declared string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return ContentTypePDF
	case ".txt", ".text":
		return ContentTypeText
	}

	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		switch mediaType {
		case "application/pdf", "application/x-pdf":
			return ContentTypePDF
		case "text/plain", "text/txt", "application/txt", "application/x-txt":
			return ContentTypeText
		}
	}

	if bytes.HasPrefix(data, pdfMagic) {
		return ContentTypePDF
	}

	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}

// ValidateUpload applies the file type, size and emptiness rules to an upload
// whose content type was resolved by DetectContentType.
func ValidateUpload(contentType string, data []byte, maxSize int64) error {
	if len(data) == 0 {
		return ErrEmptyFile
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return fmt.Errorf("%w of %s", ErrFileTooLarge, FormatSize(maxSize))
	}

	switch contentType {
	case ContentTypePDF:
		if !bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), pdfMagic) {
			return ErrNotPDF
		}
	case ContentTypeText:
		if err := ValidateTXT(data); err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
	default:
		return ErrUnsupportedType
	}

	return nil
}

// FormatSize renders a byte count the way the upload form shows it (e.g. "10 MB").
func FormatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d Bytes", n)
	}
	units := []string{"KB", "MB", "GB"}
	value := float64(n) / 1024
	unit := 0
	for value >= 1024 && unit < len(units)-1 {
		value /= 1024
		unit++
	}
	s := strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", value), "0"), ".")
	return s + " " + units[unit]
}
