package vectorstore

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/dshills/semindex-mcp/pkg/types"
)

// serializeVector converts a float32 slice to a little-endian blob.
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a blob back to a float32 slice.
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sparseDot computes Σ w_doc · w_query over shared term ids.
func sparseDot(doc, query types.SparseVector) float64 {
	docWeights := make(map[uint32]float64, len(doc.Indices))
	for i, idx := range doc.Indices {
		docWeights[idx] = float64(doc.Values[i])
	}
	var sum float64
	for i, idx := range query.Indices {
		if w, ok := docWeights[idx]; ok {
			sum += w * float64(query.Values[i])
		}
	}
	return sum
}

// rankedID pairs a chunk id with its score in one ranking.
type rankedID struct {
	id    string
	score float64
}

// sortRanked orders by score descending with stable id tiebreak.
func sortRanked(list []rankedID) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].id < list[j].id
	})
}

// rrfFuse combines two rankings with Reciprocal Rank Fusion:
// RRF(id) = Σ 1/(k + rank) over the lists the id appears in, ranks
// 1-indexed. Ties break on id order for determinism.
func rrfFuse(denseRanked, sparseRanked []rankedID, k int, limit int) []rankedID {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]float64)
	for rank, r := range denseRanked {
		scores[r.id] += 1.0 / float64(k+rank+1)
	}
	for rank, r := range sparseRanked {
		scores[r.id] += 1.0 / float64(k+rank+1)
	}

	fused := make([]rankedID, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, rankedID{id: id, score: score})
	}
	sortRanked(fused)

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
