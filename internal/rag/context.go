package rag

import (
	"fmt"
	"strings"

	"github.com/koopa0/granary/internal/store"
)

// noContextFallback is handed to the model when retrieval returns
// nothing, so it can answer from general knowledge while acknowledging
// the gap.
const noContextFallback = "No relevant documents found in the knowledge base."

// BuildContext renders search matches into the context block embedded in
// the model's system prompt. Each match becomes a source-labeled block;
// blocks are separated so the model can attribute content per source.
func BuildContext(matches []store.Match) string {
	if len(matches) == 0 {
		return noContextFallback
	}

	blocks := make([]string, len(matches))
	for i, m := range matches {
		blocks[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, m.DocumentName, m.Content)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}
