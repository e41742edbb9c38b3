package bm25

import (
	"encoding/json"
	"fmt"
	"sort"
)

// modelFile is the on-disk JSON layout. Vocabulary and IDF serialize
// as arrays of [key, value] pairs to keep the format portable.
type modelFile struct {
	K1            float64           `json:"k1"`
	B             float64           `json:"b"`
	MinTermLength int               `json:"minTermLength"`
	StopWords     []string          `json:"stopWords"`
	Vocabulary    [][2]any          `json:"vocabulary"`
	IDF           [][2]any          `json:"idf"`
	AvgDocLength  float64           `json:"avgDocLength"`
	Trained       bool              `json:"trained"`
}

// Serialize encodes the model, trained or not, as JSON.
func (m *Model) Serialize() ([]byte, error) {
	terms := make([]string, 0, len(m.vocabulary))
	for term := range m.vocabulary {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	file := modelFile{
		K1:            m.opts.K1,
		B:             m.opts.B,
		MinTermLength: m.opts.MinTermLength,
		StopWords:     append([]string(nil), m.opts.StopWords...),
		Vocabulary:    make([][2]any, 0, len(terms)),
		IDF:           make([][2]any, 0, len(terms)),
		AvgDocLength:  m.avgDocLength,
		Trained:       m.trained,
	}
	for _, term := range terms {
		file.Vocabulary = append(file.Vocabulary, [2]any{term, m.vocabulary[term]})
		file.IDF = append(file.IDF, [2]any{term, m.idf[term]})
	}

	data, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize bm25 model: %w", err)
	}
	return data, nil
}

// Deserialize restores a model from Serialize output.
func Deserialize(data []byte) (*Model, error) {
	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to deserialize bm25 model: %w", err)
	}

	m := New(Options{
		K1:            file.K1,
		B:             file.B,
		MinTermLength: file.MinTermLength,
		StopWords:     file.StopWords,
	})
	m.avgDocLength = file.AvgDocLength
	m.trained = file.Trained

	for _, pair := range file.Vocabulary {
		term, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid vocabulary entry: %v", pair)
		}
		id, ok := pair[1].(float64)
		if !ok {
			return nil, fmt.Errorf("invalid vocabulary id for term %q: %v", term, pair[1])
		}
		m.vocabulary[term] = uint32(id)
	}
	for _, pair := range file.IDF {
		term, ok := pair[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid idf entry: %v", pair)
		}
		val, ok := pair[1].(float64)
		if !ok {
			return nil, fmt.Errorf("invalid idf value for term %q: %v", term, pair[1])
		}
		m.idf[term] = val
	}
	return m, nil
}
