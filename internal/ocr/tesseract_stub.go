//go:build !ocr

package ocr

import "errors"

// TesseractAvailable reports whether Tesseract support was compiled in.
const TesseractAvailable = false

// ErrTesseractNotEnabled is returned for images when the binary was built
// without the "ocr" tag.
var ErrTesseractNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")

func recognizeImage([]byte, string) (string, error) {
	return "", ErrTesseractNotEnabled
}
