package document

import (
	"fmt"
	"strings"
)

// separators are the boundary candidates tried in priority order when
// snapping a chunk end to a sentence boundary. The first separator with
// any match in the window wins.
var separators = []string{". ", ".\n", "? ", "!\n", "\n\n"}

// Chunker splits text into overlapping chunks of bounded size.
// Sizes and positions are measured in runes so multi-byte text is never
// split inside a code point.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a Chunker with the given chunk size and overlap.
// size must be > 0 and overlap must be in [0, size).
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split splits text into an ordered sequence of non-empty trimmed chunks.
// Consecutive chunks overlap by the configured amount. When a chunk does
// not end the text, its end is snapped back to the last sentence boundary
// in the window, provided the boundary sits beyond the window midpoint
// (avoids degenerate tiny chunks). Returns nil for empty input.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start := 0
	for start < n {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			for _, sep := range separators {
				idx := lastIndexRunes(runes[start:end], sep)
				if idx != -1 && idx > c.size/2 {
					end = start + idx + len([]rune(sep))
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			// With overlap close to size, a boundary snap can shrink the
			// window so far that the cursor would stall; force progress.
			next = start + 1
		}
		start = next
	}

	return chunks
}

// lastIndexRunes returns the rune index of the last occurrence of sep in
// window, or -1 if sep does not occur. sep is ASCII so a direct rune
// comparison is sufficient.
func lastIndexRunes(window []rune, sep string) int {
	sepRunes := []rune(sep)
	for i := len(window) - len(sepRunes); i >= 0; i-- {
		match := true
		for j, r := range sepRunes {
			if window[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
