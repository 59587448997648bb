package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oshigiri/kensaku/internal/models"
)

// maxLookback bounds how far the boundary search walks back from the window end.
const maxLookback = 120

// Piece is a positioned slice of the original content: Text == content[Start:End].
type Piece struct {
	Text  string
	Start int
	End   int
}

// Chunker splits text into overlapping, positioned chunks. Splitting is
// deterministic: identical (content, size, overlap) always produces identical
// boundaries, so re-ingestion of the same content reproduces the same chunk
// digests.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given target size and overlap, both in bytes.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split cuts content into pieces. Content no longer than the target size is a
// single piece. Otherwise each window of size bytes is pulled back to the
// nearest natural break (paragraph, then sentence end, then whitespace) within
// the lookback distance, or hard-cut at the window end. The next window starts
// overlap bytes before the previous end, clamped so the start strictly
// increases. The union of [Start,End) ranges covers the content with no gaps.
func (c *Chunker) Split(content string) []Piece {
	n := len(content)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []Piece{{Text: content, Start: 0, End: n}}
	}
	pieces := make([]Piece, 0, n/c.size+1)
	start := 0
	for start < n {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.breakPoint(content, start, end)
		}
		pieces = append(pieces, Piece{Text: content[start:end], Start: start, End: end})
		if end >= n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// breakPoint returns the cut position in (start, limit], preferring a paragraph
// break, then a sentence terminator, then whitespace, searching backward from
// limit within the lookback distance. Falls back to a hard cut at limit,
// adjusted onto a rune boundary.
func (c *Chunker) breakPoint(s string, start, limit int) int {
	lookback := (limit - start) / 4
	if lookback > maxLookback {
		lookback = maxLookback
	}
	floor := limit - lookback
	if floor <= start {
		floor = start + 1
	}

	if i := strings.LastIndex(s[start:limit], "\n\n"); i >= 0 && start+i+2 >= floor {
		return start + i + 2
	}
	for j := limit - 1; j >= floor; j-- {
		if !isSentenceEnd(s[j]) {
			continue
		}
		if j+1 == len(s) || isSpace(s[j+1]) {
			return j + 1
		}
	}
	for j := limit - 1; j >= floor; j-- {
		if isSpace(s[j]) {
			return j + 1
		}
	}
	// Hard cut; never split a multi-byte rune.
	cut := limit
	for cut > start+1 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return cut
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Chunk splits content into models.Chunk records for the given document.
// Chunk indexes are 0-based and gapless; each chunk carries its own digest
// and a token-count estimate.
func (c *Chunker) Chunk(docID, content string) []*models.Chunk {
	pieces := c.Split(content)
	if len(pieces) == 0 {
		return nil
	}
	chunks := make([]*models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &models.Chunk{
			ID:            docID + "_" + uuid.New().String()[:8],
			DocumentID:    docID,
			Index:         i,
			Content:       p.Text,
			StartOffset:   p.Start,
			EndOffset:     p.End,
			TokenCount:    EstimateTokens(p.Text),
			ContentDigest: DigestString(p.Text),
		}
	}
	return chunks
}
