package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		expected    Format
	}{
		{"plain text by media type", "text/plain", "report.bin", FormatPlainText},
		{"plain text with charset parameter", "text/plain; charset=utf-8", "report", FormatPlainText},
		{"pdf by media type", "application/pdf", "scan", FormatPDF},
		{"txt by extension", "application/octet-stream", "report.txt", FormatPlainText},
		{"markdown by extension", "", "notes.md", FormatPlainText},
		{"pdf by extension", "", "scan.PDF", FormatPDF},
		{"json rejected", "application/json", "report.json", FormatUnknown},
		{"image rejected", "image/png", "scan.png", FormatUnknown},
		{"no hints", "", "", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat(tt.contentType, tt.filename))
		})
	}
}

func TestExtractPlainTextVerbatim(t *testing.T) {
	content := "Hemoglobin: 10.2 g/dL (Low)\r\nWBC: 7.1\näöü 漢字"
	text, format, err := Extract([]byte(content), "text/plain", "labs.txt")
	require.NoError(t, err)
	assert.Equal(t, FormatPlainText, format)
	// Plain text passes through byte-for-byte, CRLF included.
	assert.Equal(t, content, text)
}

func TestExtractUnsupportedMediaTypeFailsFast(t *testing.T) {
	// Payload is a valid PDF header, but the declared type and extension do
	// not match any supported format, so it is never parsed.
	text, format, err := Extract([]byte("%PDF-1.4 ..."), "application/json", "report.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.Equal(t, FormatUnknown, format)
	assert.Empty(t, text)
}

func TestExtractMalformedPDF(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"garbage bytes", []byte("this is not a pdf at all")},
		{"truncated header", []byte("%PDF-1.7")},
		{"empty payload", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, format, err := Extract(tt.data, "application/pdf", "scan.pdf")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExtractionFailed)
			assert.Equal(t, FormatPDF, format)
			// Never partial output on parse failure.
			assert.Empty(t, text)
		})
	}
}

func TestNormalizeLineEndings(t *testing.T) {
	assert.Equal(t, "a\nb\nc", normalizeLineEndings("a\r\nb\nc"))
	assert.False(t, strings.Contains(normalizeLineEndings("x\r\ny\r\n"), "\r"))
}
