// Package extractor picks a text extractor by file extension.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
	"github.com/kirillkom/support-assistant/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/support-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/support-assistant/internal/infrastructure/extractor/spreadsheet"
)

type Registry struct {
	byExt map[string]ports.TextExtractor
}

func NewRegistry() *Registry {
	text := plaintext.NewExtractor()
	return &Registry{byExt: map[string]ports.TextExtractor{
		".txt":  text,
		".md":   text,
		".pdf":  pdf.NewExtractor(),
		".xlsx": spreadsheet.NewExtractor(),
	}}
}

func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extractor, ok := r.byExt[ext]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("unsupported file type %q", ext))
	}
	return extractor.Extract(ctx, path)
}
