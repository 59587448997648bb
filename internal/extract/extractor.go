// Package extract converts document files into plain text for ingestion.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// extractFunc converts raw file bytes into plain text.
type extractFunc func(content []byte) (string, error)

// byExtension maps a lowercase file extension to its extractor.
var byExtension = map[string]extractFunc{
	".pdf":  extractPDF,
	".docx": extractDOCX,
	".xlsx": extractExcel,
	".txt":  extractPlain,
	".md":   extractPlain,
	".rst":  extractPlain,
}

// contentTypes maps extensions to the content-type tag stored on the document.
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".md":   "text/markdown",
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether the extension (with leading dot) has a dedicated
// extractor. Unknown extensions still extract, treated as plain text.
func (e *Extractor) Supported(ext string) bool {
	_, ok := byExtension[strings.ToLower(ext)]
	return ok
}

// ContentType returns the content-type tag for a file path.
func (e *Extractor) ContentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "text/plain"
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := byExtension[strings.ToLower(ext)]
	if !ok {
		fn = extractPlain
	}
	return fn(content)
}
