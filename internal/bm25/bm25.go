// Package bm25 implements the sparse vectorizer for hybrid search.
// A model learns vocabulary and IDF from a corpus, then generates
// strictly-positive sparse vectors for query and document texts.
package bm25

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/semindex-mcp/pkg/types"
)

const (
	// DefaultK1 is the term-frequency saturation parameter.
	DefaultK1 = 1.2
	// DefaultB is the length-normalization parameter.
	DefaultB = 0.75
	// DefaultMinTermLength drops tokens shorter than this.
	DefaultMinTermLength = 2

	// positivityEpsilon keeps shifted values strictly positive.
	positivityEpsilon = 1e-6
)

// DefaultStopWords is the baseline English stop list applied during
// tokenization.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
	"to", "was", "were", "will", "with",
}

var nonWord = regexp.MustCompile(`\W+`)

// Options configures a Model. Zero values take defaults.
type Options struct {
	K1            float64
	B             float64
	MinTermLength int
	StopWords     []string
	MinScore      float64 // drop terms below this generated weight (0 = off)
	MaxTerms      int     // keep only the top-N terms by weight (0 = off)
	Normalize     bool    // L2-normalize generated vectors
}

// Model holds the learned vocabulary and IDF table.
type Model struct {
	opts         Options
	stopWords    map[string]struct{}
	vocabulary   map[string]uint32
	idf          map[string]float64
	avgDocLength float64
	trained      bool
}

// New creates an untrained model.
func New(opts Options) *Model {
	if opts.K1 == 0 {
		opts.K1 = DefaultK1
	}
	if opts.B == 0 {
		opts.B = DefaultB
	}
	if opts.MinTermLength == 0 {
		opts.MinTermLength = DefaultMinTermLength
	}
	if opts.StopWords == nil {
		opts.StopWords = DefaultStopWords
	}

	stop := make(map[string]struct{}, len(opts.StopWords))
	for _, w := range opts.StopWords {
		stop[w] = struct{}{}
	}

	return &Model{
		opts:       opts,
		stopWords:  stop,
		vocabulary: make(map[string]uint32),
		idf:        make(map[string]float64),
	}
}

// Trained reports whether Learn has completed.
func (m *Model) Trained() bool { return m.trained }

// VocabularySize returns the number of learned terms.
func (m *Model) VocabularySize() int { return len(m.vocabulary) }

// Tokenize lowercases, replaces non-word characters with whitespace,
// splits, and drops short tokens and stop words.
func (m *Model) Tokenize(text string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len(tok) < m.opts.MinTermLength {
			continue
		}
		if _, stop := m.stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Learn trains the model over a document corpus: average document
// length, per-term document frequency, IDF, and a stable term-id
// assignment. IDF can be negative for very common terms; Generate
// compensates before emitting.
func (m *Model) Learn(corpus []string) error {
	if len(corpus) == 0 {
		return types.ErrEmptyCorpus
	}

	df := make(map[string]int)
	totalLength := 0
	for _, doc := range corpus {
		tokens := m.Tokenize(doc)
		totalLength += len(tokens)
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	n := float64(len(corpus))
	m.avgDocLength = float64(totalLength) / n

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	m.vocabulary = make(map[string]uint32, len(terms))
	m.idf = make(map[string]float64, len(terms))
	for i, term := range terms {
		m.vocabulary[term] = uint32(i)
		d := float64(df[term])
		m.idf[term] = math.Log((n - d + 0.5) / (d + 0.5))
	}

	m.trained = true
	return nil
}

// Generate produces the sparse BM25 vector for text. Terms outside
// the vocabulary are dropped silently. All emitted values are
// strictly positive: when any raw weight is non-positive, every value
// is shifted by (-min + epsilon) first.
func (m *Model) Generate(text string) (types.SparseVector, error) {
	if !m.trained {
		return types.SparseVector{}, types.ErrNotTrained
	}

	tokens := m.Tokenize(text)
	if len(tokens) == 0 {
		return types.SparseVector{}, nil
	}

	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}

	docLen := float64(len(tokens))
	k1, b := m.opts.K1, m.opts.B

	type termWeight struct {
		id     uint32
		weight float64
	}
	weights := make([]termWeight, 0, len(tf))
	for term, freq := range tf {
		id, known := m.vocabulary[term]
		if !known {
			continue
		}
		denom := freq + k1*(1-b+b*docLen/m.avgDocLength)
		w := m.idf[term] * (freq * (k1 + 1)) / denom
		weights = append(weights, termWeight{id: id, weight: w})
	}
	if len(weights) == 0 {
		return types.SparseVector{}, nil
	}

	minWeight := weights[0].weight
	for _, tw := range weights[1:] {
		if tw.weight < minWeight {
			minWeight = tw.weight
		}
	}
	if minWeight <= 0 {
		shift := -minWeight + positivityEpsilon
		for i := range weights {
			weights[i].weight += shift
		}
	}

	if m.opts.MinScore > 0 {
		kept := weights[:0]
		for _, tw := range weights {
			if tw.weight >= m.opts.MinScore {
				kept = append(kept, tw)
			}
		}
		weights = kept
	}

	if m.opts.MaxTerms > 0 && len(weights) > m.opts.MaxTerms {
		sort.Slice(weights, func(i, j int) bool { return weights[i].weight > weights[j].weight })
		weights = weights[:m.opts.MaxTerms]
	}

	sort.Slice(weights, func(i, j int) bool { return weights[i].id < weights[j].id })

	vec := types.SparseVector{
		Indices: make([]uint32, len(weights)),
		Values:  make([]float32, len(weights)),
	}
	for i, tw := range weights {
		vec.Indices[i] = tw.id
		vec.Values[i] = float32(tw.weight)
	}

	if m.opts.Normalize {
		vec.L2Normalize()
	}
	return vec, nil
}
