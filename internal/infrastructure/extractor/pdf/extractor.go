package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

// Extractor pulls the text layer out of PDF manuals page by page.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open pdf "+path, err)
	}
	defer f.Close()

	pages := make([]string, 0, reader.NumPage())
	for num := 1; num <= reader.NumPage(); num++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("pdf_page_skipped", "file", path, "page", num, "error", err)
			continue
		}
		if text = collapseWhitespace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf "+path, fmt.Errorf("no text layer"))
	}
	return strings.Join(pages, "\n\n"), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
