package extract

import (
	"context"
	"errors"
	"testing"
)

type fakeOCR struct {
	text string
	err  error
	got  []byte
}

func (f *fakeOCR) ReadImage(_ context.Context, data []byte) (string, error) {
	f.got = data
	return f.text, f.err
}

func TestExtractPlainText(t *testing.T) {
	e := New(nil)
	for _, ft := range []string{"txt", "MD"} {
		got, err := e.Extract(context.Background(), ft, []byte("\xef\xbb\xbfScaffold inspected."))
		if err != nil {
			t.Fatalf("%s: %v", ft, err)
		}
		if got != "Scaffold inspected." {
			t.Fatalf("%s: unexpected text %q", ft, got)
		}
	}
}

func TestExtractInvalidUTF8IsReplaced(t *testing.T) {
	got, err := New(nil).Extract(context.Background(), "txt", []byte{'o', 'k', 0xff})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok�" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestExtractImagesUseOCR(t *testing.T) {
	ocr := &fakeOCR{text: "Fire exit blocked"}
	e := New(ocr)
	got, err := e.Extract(context.Background(), "jpeg", []byte("img"))
	if err != nil || got != "Fire exit blocked" {
		t.Fatalf("unexpected %q %v", got, err)
	}
	if string(ocr.got) != "img" {
		t.Fatalf("OCR did not receive the bytes")
	}

	ocr.err = errors.New("tesseract missing")
	if _, err := e.Extract(context.Background(), "png", []byte("img")); err == nil {
		t.Fatalf("expected OCR error to surface")
	}
}

func TestExtractUnsupported(t *testing.T) {
	e := New(nil)
	for _, ft := range []string{"docx", "png"} {
		got, err := e.Extract(context.Background(), ft, []byte("x"))
		if err != nil || got != Unsupported {
			t.Fatalf("%s: got %q %v", ft, got, err)
		}
	}
}

func TestExtractBrokenPDF(t *testing.T) {
	if _, err := New(nil).Extract(context.Background(), "pdf", []byte("not a pdf")); err == nil {
		t.Fatalf("expected error for malformed pdf")
	}
}
