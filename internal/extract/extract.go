// Package extract turns uploaded file bytes into clean plain text.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv/v2"
	"golang.org/x/text/encoding/charmap"

	"docqa/internal/domain"
)

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
}

var (
	pageLineRe   = regexp.MustCompile(`(?im)^[ \t]*(?:page[ \t]+)?\d+(?:[ \t]+of[ \t]+\d+)?[ \t]*(?:\n|$)`)
	spacesRe     = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesRe = regexp.MustCompile(`\n[ \t]*(?:\n[ \t]*)+`)
)

// Extractor implements domain.TextExtractor. Kinds are file extensions
// such as ".pdf"; a bare filename is accepted as well.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func kindOf(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if !strings.HasPrefix(kind, ".") || strings.Count(kind, ".") > 1 {
		kind = strings.ToLower(filepath.Ext(kind))
	}
	return kind
}

func (e *Extractor) Supports(kind string) bool {
	switch k := kindOf(kind); k {
	case ".txt", ".md":
		return true
	default:
		_, ok := mimeTypes[k]
		return ok
	}
}

func (e *Extractor) Extract(data []byte, kind string) (string, error) {
	k := kindOf(kind)
	var text string
	switch k {
	case ".txt", ".md":
		text = decodeText(data)
	default:
		mime, ok := mimeTypes[k]
		if !ok {
			return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedType, kind)
		}
		res, err := docconv.Convert(bytes.NewReader(data), mime, false)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrUnreadableFile, k, err)
		}
		text = res.Body
	}
	return Clean(text), nil
}

// decodeText reads data as UTF-8 and falls back to Latin-1.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(out)
}

// Clean normalises line endings, drops page-number lines and collapses
// runs of spaces and blank lines.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = pageLineRe.ReplaceAllString(text, "")
	text = spacesRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
