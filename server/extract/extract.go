// Package extract converts uploaded report files into plain text.
// Plain text files pass through verbatim; PDF files go through a
// text-extraction pass. Every other media type is rejected before any
// parsing is attempted.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Sentinel errors returned by Extract. Handlers map these onto the
// client-facing error taxonomy.
var (
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrExtractionFailed     = fmt.Errorf("extraction failed")
)

// Format identifies the detected document format of an upload.
type Format string

const (
	FormatPlainText Format = "text"
	FormatPDF       Format = "pdf"
	FormatUnknown   Format = "unknown"
)

// DetectFormat classifies an upload by declared media type first and
// filename extension second.
func DetectFormat(contentType, filename string) Format {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch {
	case mediaType == "application/pdf":
		return FormatPDF
	case mediaType == "text/plain":
		return FormatPlainText
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".txt", ".text", ".md":
		return FormatPlainText
	}

	return FormatUnknown
}

// Extract returns the plain text content of an uploaded document.
//
// The declared media type wins over the filename extension. Plain text is
// decoded verbatim; PDFs go through text extraction with line endings
// normalized to LF. Unsupported types fail with ErrUnsupportedMediaType
// without touching the payload; unparseable PDFs fail with
// ErrExtractionFailed and never return partial text.
//
// Input size is bounded by the upload handler, not here.
func Extract(data []byte, contentType, filename string) (string, Format, error) {
	format := DetectFormat(contentType, filename)

	switch format {
	case FormatPlainText:
		return string(data), format, nil
	case FormatPDF:
		text, err := extractPDF(data)
		if err != nil {
			return "", format, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return text, format, nil
	default:
		return "", format, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}
}

// extractPDF runs a text-extraction pass over the PDF structure and
// concatenates the page text.
func extractPDF(data []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables; a panic
	// here must surface as ErrExtractionFailed, not take down the request.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return normalizeLineEndings(buf.String()), nil
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
