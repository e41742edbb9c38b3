package splitter

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/semindex-mcp/pkg/types"
)

// CodeSplitter splits at declaration boundaries for languages it can
// parse (currently Go via go/parser) and falls back to the character
// splitter everywhere else, including on parse errors.
type CodeSplitter struct {
	fallback *CharacterSplitter
	log      *logrus.Entry
}

// NewCodeSplitter creates a syntax-aware splitter with a character
// fallback configured from the same size/overlap settings.
func NewCodeSplitter(chunkSize, overlap int) *CodeSplitter {
	return &CodeSplitter{
		fallback: NewCharacterSplitter(chunkSize, overlap),
		log:      logrus.WithField("component", "splitter"),
	}
}

// Split implements Splitter.
func (s *CodeSplitter) Split(content, extension string) []types.Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if extension != ".go" {
		return s.fallback.Split(content, extension)
	}

	chunks, err := s.splitGo(content)
	if err != nil || len(chunks) == 0 {
		if err != nil {
			s.log.WithError(err).Debug("parse failed, falling back to character split")
		}
		return s.fallback.Split(content, extension)
	}
	return chunks
}

// splitGo produces one chunk per top-level declaration, with the
// file header (package clause and imports) folded into the region
// before the first declaration.
func (s *CodeSplitter) splitGo(content string) ([]types.Chunk, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", content, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(content, "\n")
	var chunks []types.Chunk
	covered := 0 // last line (1-indexed) already emitted

	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok == token.IMPORT {
			continue
		}

		start := fset.Position(decl.Pos()).Line
		if doc := declDoc(decl); doc != nil {
			if docStart := fset.Position(doc.Pos()).Line; docStart < start {
				start = docStart
			}
		}
		end := fset.Position(decl.End()).Line
		if end > len(lines) {
			end = len(lines)
		}

		// Fold any uncovered prefix (header, imports, stray comments)
		// into this chunk so every line stays reachable.
		if covered < start-1 {
			start = covered + 1
		}
		if start <= covered {
			start = covered + 1
		}
		if start > end {
			continue
		}

		text := strings.Join(lines[start-1:end], "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, types.Chunk{
			Content:   text,
			StartLine: start,
			EndLine:   end,
		})
		covered = end
	}

	// Oversized declaration bodies get re-split by the fallback while
	// keeping absolute line numbers.
	var out []types.Chunk
	for _, c := range chunks {
		if len(c.Content) <= s.fallback.chunkSize*2 {
			out = append(out, c)
			continue
		}
		for _, sub := range s.fallback.Split(c.Content, ".go") {
			sub.StartLine += c.StartLine - 1
			sub.EndLine += c.StartLine - 1
			out = append(out, sub)
		}
	}
	return out, nil
}

func declDoc(decl ast.Decl) *ast.CommentGroup {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		return d.Doc
	case *ast.GenDecl:
		return d.Doc
	}
	return nil
}
