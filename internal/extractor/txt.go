package extractor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func ExtractTXT(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty text file")
	}

	text, err := decodeText(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode text file: %w", err)
	}

	text = CleanText(text)

	if text == "" {
		return "", ErrNoText
	}

	return text, nil
}

func decodeText(data []byte) (string, error) {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return string(data[3:]), nil
	}

	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		decoded, _, err := transform.Bytes(decoder, data)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}

	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		decoder := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		decoded, _, err := transform.Bytes(decoder, data)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	// Legacy exports from word processors are usually cp1252.
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err == nil {
		return string(decoded), nil
	}

	decoded, _, err = transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err == nil {
		return string(decoded), nil
	}

	return string(data), nil
}

// CleanText normalises line endings, strips NULs and blank lines but keeps
// paragraph breaks, which the analysis service uses to split clauses.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	lines := strings.Split(text, "\n")

	cleaned := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = len(cleaned) > 0
			continue
		}
		if blank {
			cleaned = append(cleaned, "")
			blank = false
		}
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// ValidateTXT checks if the data appears to be valid text
func ValidateTXT(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty file")
	}

	// UTF-16 files are mostly NUL bytes in the ASCII range, let the decoder handle them.
	if len(data) >= 2 && (data[0] == 0xFF && data[1] == 0xFE || data[0] == 0xFE && data[1] == 0xFF) {
		return nil
	}
	if utf8.Valid(data) && !strings.ContainsRune(string(data), 0) {
		return nil
	}

	printableCount := 0
	sampleSize := 512
	if len(data) < sampleSize {
		sampleSize = len(data)
	}

	for i := 0; i < sampleSize; i++ {
		b := data[i]
		if (b >= 32 && b <= 126) || b >= 0x80 || b == '\t' || b == '\n' || b == '\r' {
			printableCount++
		}
	}

	if float64(printableCount)/float64(sampleSize) < 0.8 {
		return fmt.Errorf("file does not appear to be valid text")
	}

	return nil
}
