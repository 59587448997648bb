package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DOCX is a zip of OOXML parts; the body text lives in <w:t> runs inside the
// main document part, usually word/document.xml.
const docxDefaultBody = "word/document.xml"

const docxBodyContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// textRun matches a <w:t> element with any attributes (xml:space etc).
var textRun = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// bodyOverride matches the [Content_Types].xml Override naming the main
// document part, in either attribute order.
var bodyOverride = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxBodyContentType) + `"[^>]+PartName="([^"]+)"`),
}

// extractDOCX pulls every <w:t> text run from the main document part and
// joins them with spaces, so content is found regardless of paragraph or run
// attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open DOCX: not a zip: %w", err)
	}

	bodyPath := docxBodyPath(zr)
	bodyXML, err := readZipFile(zr, bodyPath)
	if err != nil {
		return "", fmt.Errorf("open DOCX: %w", err)
	}

	runs := textRun.FindAllSubmatch(bodyXML, -1)
	var b strings.Builder
	for _, run := range runs {
		text := strings.TrimSpace(string(run[1]))
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// docxBodyPath resolves the main document part from [Content_Types].xml,
// falling back to the conventional path.
func docxBodyPath(zr *zip.Reader) string {
	types, err := readZipFile(zr, "[Content_Types].xml")
	if err != nil {
		return docxDefaultBody
	}
	for _, re := range bodyOverride {
		if m := re.FindSubmatch(types); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultBody
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}
