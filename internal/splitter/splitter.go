// Package splitter turns file text into ordered chunks with line
// ranges. The character splitter works on any text; the code splitter
// uses go/parser for Go sources and falls back to the character
// splitter for other languages or on parse errors.
package splitter

import (
	"fmt"

	"github.com/dshills/semindex-mcp/internal/hasher"
	"github.com/dshills/semindex-mcp/pkg/types"
)

const (
	// DefaultChunkSize is the target chunk size in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the overlap carried between adjacent chunks.
	DefaultChunkOverlap = 200
)

// Splitter produces ordered, non-empty chunks from file text.
type Splitter interface {
	Split(content, extension string) []types.Chunk
}

// ChunkID derives the content-addressed id for a chunk. It is a pure
// function of its inputs, so re-indexing unchanged content produces
// the same id and upserts stay idempotent.
func ChunkID(relPath, content string, startLine, endLine int) string {
	key := fmt.Sprintf("%s:%s:%d:%d", relPath, content, startLine, endLine)
	return "chunk_" + hasher.Hash(key)
}

// Finalize stamps path-dependent fields onto chunks produced by a
// splitter: relative path, extension, content-addressed id, and the
// originating codebase root in metadata.
func Finalize(chunks []types.Chunk, relPath, extension, codebasePath string) []types.Chunk {
	for i := range chunks {
		chunks[i].RelativePath = relPath
		chunks[i].FileExtension = extension
		chunks[i].ID = ChunkID(relPath, chunks[i].Content, chunks[i].StartLine, chunks[i].EndLine)
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]any)
		}
		chunks[i].Metadata[types.MetaCodebasePath] = codebasePath
	}
	return chunks
}
