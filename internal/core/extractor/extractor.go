// Package extractor converts uploaded source files into plain text.
package extractor

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/supportpilot/supportpilot/internal/core/textutil"
)

// Extractor picks a conversion strategy from the file extension.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract converts data into cleaned plain text. The file name decides the
// strategy; unknown extensions are rejected with a validation error so the
// caller does not retry.
func (e *Extractor) Extract(fileName string, data []byte) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))

	switch ext {
	case "pdf":
		return e.convert(data, "application/pdf")
	case "docx":
		return e.convert(data, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	case "csv":
		return extractCSV(data)
	case "txt", "md":
		return textutil.Clean(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", ext)
	}
}

func (e *Extractor) convert(data []byte, contentType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return "", fmt.Errorf("document conversion failed: %w", err)
	}
	return textutil.Clean(res.Body), nil
}

// extractCSV renders each row as "header: value" lines separated by blank
// lines, which chunks better than raw comma-separated text.
func extractCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("csv parse failed: %w", err)
	}

	var b strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("csv parse failed: %w", err)
		}
		for i, value := range record {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				b.WriteString(strings.TrimSpace(header[i]))
				b.WriteString(": ")
			}
			b.WriteString(value)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return textutil.Clean(b.String()), nil
}
