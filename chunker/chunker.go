// Package chunker splits extracted document text into retrieval units using
// a fixed-size sliding window with overlap, preserving page provenance per
// chunk.
package chunker

import (
    "crypto/sha256"
    "encoding/hex"
    "fmt"
    "strings"
    "time"
    "unicode"

    "github.com/amsaid/docpilot/agent_type"
)

// boundarySlack is how far back from a hard window boundary we look for
// whitespace before accepting a mid-word cut.
const boundarySlack = 40

type Chunker struct {
    window  int
    overlap int
}

func New(window, overlap int) *Chunker {
    if window <= 0 {
        window = 800
    }
    if overlap < 0 {
        overlap = 0
    }
    if overlap >= window {
        overlap = window / 4
    }
    return &Chunker{window: window, overlap: overlap}
}

// Chunk windows the document's extracted pages into chunks tagged with the
// given version. Chunk identifiers are derived from content, so chunking the
// same pages under the same version always yields the same IDs and repeating
// an embedding pass is safe.
func (c *Chunker) Chunk(doc *agent_type.Document, version string) []agent_type.Chunk {
    text, pageStarts := flattenPages(doc.Pages)
    runes := []rune(text)
    if len(runes) == 0 {
        return nil
    }

    now := time.Now()
    var chunks []agent_type.Chunk
    start := 0
    for start < len(runes) {
        end := start + c.window
        if end >= len(runes) {
            end = len(runes)
        } else {
            end = softBoundary(runes, start, end)
        }

        span := strings.TrimSpace(string(runes[start:end]))
        if span != "" {
            first, last := pageRange(pageStarts, doc.Pages, start, end)
            chunks = append(chunks, agent_type.Chunk{
                ID:         ChunkID(doc.ID, version, len(chunks), span),
                DocumentID: doc.ID,
                Version:    version,
                Text:       span,
                FirstPage:  first,
                LastPage:   last,
                CreatedAt:  now,
            })
        }

        if end == len(runes) {
            break
        }
        // The walk must always advance. A soft boundary can land inside the
        // overlap region when whitespace is sparse; stepping back from it
        // would re-read the same span, so step past it instead.
        next := end - c.overlap
        if next <= start {
            next = end
        }
        start = next
    }
    return chunks
}

// ChunkID derives a stable identifier from the chunk's content and position.
// The version is part of the identity so two versions of the same document
// can be staged side by side without key collisions.
func ChunkID(docID, version string, index int, text string) string {
    sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", docID, version, index, text)))
    return hex.EncodeToString(sum[:])[:32]
}

// softBoundary walks back from the hard window edge to the nearest
// whitespace so semantic units are not severed mid-word. If no whitespace is
// found within the slack, the hard edge stands.
func softBoundary(runes []rune, start, end int) int {
    limit := end - boundarySlack
    if limit < start+1 {
        limit = start + 1
    }
    for i := end; i > limit; i-- {
        if unicode.IsSpace(runes[i-1]) {
            return i
        }
    }
    return end
}

// flattenPages joins page texts with newlines and records the rune offset at
// which each page begins.
func flattenPages(pages []agent_type.Page) (string, []int) {
    var b strings.Builder
    starts := make([]int, 0, len(pages))
    offset := 0
    for i, p := range pages {
        if i > 0 {
            b.WriteString("\n")
            offset++
        }
        starts = append(starts, offset)
        b.WriteString(p.Text)
        offset += len([]rune(p.Text))
    }
    return b.String(), starts
}

func pageRange(pageStarts []int, pages []agent_type.Page, start, end int) (int, int) {
    first, last := 1, 1
    for i, ps := range pageStarts {
        if ps <= start {
            first = pages[i].Number
        }
        if ps < end {
            last = pages[i].Number
        }
    }
    return first, last
}
