package plaintext

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

var errBinaryContent = errors.New("file is not valid utf-8 text")

// Extractor reads .txt and .md knowledge files as-is.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract "+path, errBinaryContent)
	}
	return strings.TrimSpace(string(raw)), nil
}
