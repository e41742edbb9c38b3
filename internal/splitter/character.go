package splitter

import (
	"strings"

	"github.com/dshills/semindex-mcp/pkg/types"
)

// CharacterSplitter splits text into chunks of roughly chunkSize
// characters with chunkOverlap characters of trailing context carried
// into the next chunk. Splits happen at line boundaries.
type CharacterSplitter struct {
	chunkSize int
	overlap   int
}

// NewCharacterSplitter creates a character splitter. A non-positive
// chunk size falls back to the default; a negative overlap, or one not
// smaller than the chunk size, falls back to the default overlap (or a
// fifth of the chunk size when the default does not fit). Zero overlap
// is kept.
func NewCharacterSplitter(chunkSize, overlap int) *CharacterSplitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 5
		}
	}
	return &CharacterSplitter{chunkSize: chunkSize, overlap: overlap}
}

// Split implements Splitter. Empty input yields no chunks; otherwise
// every line of the input is covered by at least one chunk and line
// ranges are 1-indexed inclusive.
func (s *CharacterSplitter) Split(content, extension string) []types.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	var chunks []types.Chunk
	start := 0

	for start < len(lines) {
		end := start
		size := 0
		for end < len(lines) {
			lineLen := len(lines[end]) + 1
			if size > 0 && size+lineLen > s.chunkSize {
				break
			}
			size += lineLen
			end++
		}
		// A single oversized line still becomes its own chunk.
		if end == start {
			end = start + 1
		}

		text := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, types.Chunk{
				Content:   text,
				StartLine: start + 1,
				EndLine:   end,
			})
		}

		if end >= len(lines) {
			break
		}
		start = s.nextStart(lines, start, end)
	}

	return chunks
}

// nextStart backs up enough whole lines to carry ~overlap characters
// into the next chunk while always making forward progress.
func (s *CharacterSplitter) nextStart(lines []string, start, end int) int {
	if s.overlap == 0 {
		return end
	}
	carried := 0
	next := end
	for next > start+1 && carried < s.overlap {
		carried += len(lines[next-1]) + 1
		next--
	}
	if next <= start {
		next = start + 1
	}
	return next
}
