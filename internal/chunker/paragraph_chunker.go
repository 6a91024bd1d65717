package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of trailing bytes carried into the next chunk.
const DefaultOverlap = 200

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// ParagraphChunker packs paragraphs into chunks of at most chunkSize bytes.
// Each chunk after the first starts with up to overlap trailing bytes of its
// predecessor, beginning on a word. Paragraphs that do not fit are cut after
// a sentence or between words.
type ParagraphChunker struct {
	chunkSize int
	overlap   int
}

func NewParagraphChunker(chunkSize, overlap int) *ParagraphChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &ParagraphChunker{chunkSize: chunkSize, overlap: overlap}
}

func (c *ParagraphChunker) Chunk(document domain.Document) []domain.Chunk {
	texts := c.Split(document.Content)
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{DocumentID: document.ID, Index: i, Text: t}
	}
	return chunks
}

const sep = "\n\n"

// Split returns the chunk texts for text. Blank input yields nil.
func (c *ParagraphChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	carried := 0 // bytes of cur copied from the previous chunk
	flush := func() {
		done := cur.String()
		out = append(out, done)
		cur.Reset()
		tail := tailOf(done, c.overlap)
		cur.WriteString(tail)
		carried = len(tail)
	}
	for _, para := range paragraphRe.Split(text, -1) {
		rest := strings.TrimSpace(para)
		for rest != "" {
			room := c.chunkSize - cur.Len()
			if cur.Len() > 0 {
				room -= len(sep)
			}
			if len(rest) <= room {
				if cur.Len() > 0 {
					cur.WriteString(sep)
				}
				cur.WriteString(rest)
				break
			}
			if cur.Len() > carried {
				flush()
				continue
			}
			if room < c.chunkSize/4 {
				cur.Reset()
				carried = 0
				room = c.chunkSize
			}
			at := cutPoint(rest, room)
			if cur.Len() > 0 {
				cur.WriteString(sep)
			}
			cur.WriteString(strings.TrimSpace(rest[:at]))
			rest = strings.TrimSpace(rest[at:])
			flush()
		}
	}
	if cur.Len() > carried {
		out = append(out, cur.String())
	}
	return out
}

// cutPoint returns where to split s so that s[:at] fits in room bytes:
// after the last sentence end in the second half of the window, else at
// the last space, else on a rune boundary.
func cutPoint(s string, room int) int {
	room = max(room, 1)
	for i := room - 1; i >= room/2; i-- {
		if strings.IndexByte(".!?", s[i]) >= 0 && isSpace(s[i+1]) {
			return i + 1
		}
	}
	for i := room; i > 0; i-- {
		if isSpace(s[i]) {
			return i
		}
	}
	end := room
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	if end == 0 {
		_, end = utf8.DecodeRuneInString(s)
	}
	return end
}

// tailOf returns at most n trailing bytes of s starting at a word. A last
// word longer than n yields "".
func tailOf(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	start := len(s) - n
	if !isSpace(s[start-1]) {
		for start < len(s) && !isSpace(s[start]) {
			start++
		}
	}
	return strings.TrimSpace(s[start:])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
