package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Unsupported is handed to the model when a filetype has no extractor.
const Unsupported = "File content could not be extracted."

// ImageReader turns image bytes into text (OCR).
type ImageReader interface {
	ReadImage(ctx context.Context, data []byte) (string, error)
}

// Extractor dispatches on the stored filetype. OCR may be nil, in which case images
// are treated as unsupported.
type Extractor struct {
	OCR ImageReader
}

func New(ocr ImageReader) *Extractor {
	return &Extractor{OCR: ocr}
}

func (e *Extractor) Extract(ctx context.Context, filetype string, data []byte) (string, error) {
	switch strings.ToLower(filetype) {
	case "txt", "md":
		return plainText(data), nil
	case "pdf":
		return pdfText(data)
	case "jpg", "jpeg", "png":
		if e.OCR == nil {
			return Unsupported, nil
		}
		return e.OCR.ReadImage(ctx, data)
	default:
		return Unsupported, nil
	}
}

func plainText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rd); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
