package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageProgress is called after every page with the pages processed so far and the page total.
type PageProgress func(done, total int)

type Extraction struct {
	Text      string
	PageCount int
	// SkippedPages lists 1-based pages whose text could not be read.
	SkippedPages []int
}

func ExtractPDF(ctx context.Context, data []byte, onPage PageProgress) (*Extraction, error) {
	reader := bytes.NewReader(data)

	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()
	result := &Extraction{PageCount: numPages}

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := pdfReader.Page(i)
		if !page.V.IsNull() {
			text, err := page.GetPlainText(nil)
			if err != nil {
				result.SkippedPages = append(result.SkippedPages, i)
			} else {
				textBuilder.WriteString(text)
				textBuilder.WriteString("\n")
			}
		}

		if onPage != nil {
			onPage(i, numPages)
		}
	}

	result.Text = strings.TrimSpace(textBuilder.String())
	if result.Text == "" {
		return nil, ErrNoText
	}

	return result, nil
}
