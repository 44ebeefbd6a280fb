package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// minHeight below which scans are upscaled before OCR.
const minHeight = 1300

// Reader runs Tesseract over photos of site diaries and checklists.
type Reader struct {
	Language string
}

func New(language string) *Reader {
	if language == "" {
		language = "eng"
	}
	return &Reader{Language: language}
}

// ReadImage grayscales, sharpens and upscales the image, then OCRs it.
func (r *Reader) ReadImage(ctx context.Context, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < minHeight {
		gray = imaging.Resize(gray, 0, minHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(r.languages()...); err != nil {
		return "", fmt.Errorf("set language %q: %w", r.Language, err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", fmt.Errorf("set page mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// languages splits a Tesseract language spec such as "eng+deu".
func (r *Reader) languages() []string {
	var langs []string
	for _, l := range strings.Split(r.Language, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}
