package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

const defaultRRFK = 60

// FusionWeights scale each retriever's reciprocal-rank contribution.
type FusionWeights struct {
	Dense  float64
	Sparse float64
}

func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Dense: 0.7, Sparse: 0.3}
}

type fusedCandidate struct {
	passage domain.RetrievedPassage
	score   float64
}

// fuseWeightedRRF merges two ranked lists into one ordering. A chunk found by both
// retrievers scores the weighted sum of its reciprocal ranks. Equal scores are
// ordered by dense rank (present before absent, lower first), then by chunk id.
func fuseWeightedRRF(dense, sparse []domain.RetrievedPassage, weights FusionWeights, rrfK int) []domain.RetrievedPassage {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))
	add := func(list []domain.RetrievedPassage, weight float64, source domain.RetrievalSource) {
		for i, passage := range list {
			rank := i + 1
			key := passageKey(passage)
			candidate, ok := acc[key]
			if !ok {
				candidate = &fusedCandidate{passage: passage}
				candidate.passage.DenseRank = 0
				candidate.passage.SparseRank = 0
				candidate.passage.Source = source
				acc[key] = candidate
				order = append(order, key)
			} else {
				candidate.passage.Chunk = preferRicherChunk(candidate.passage.Chunk, passage.Chunk)
			}
			switch source {
			case domain.SourceDense:
				if candidate.passage.DenseRank != 0 {
					continue
				}
				candidate.passage.DenseRank = rank
			case domain.SourceSparse:
				if candidate.passage.SparseRank != 0 {
					continue
				}
				candidate.passage.SparseRank = rank
			}
			candidate.score += weight / float64(rrfK+rank)
		}
	}

	add(dense, weights.Dense, domain.SourceDense)
	add(sparse, weights.Sparse, domain.SourceSparse)

	out := make([]domain.RetrievedPassage, 0, len(acc))
	for _, key := range order {
		c := acc[key]
		passage := c.passage
		passage.Score = c.score
		out = append(out, passage)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		di, dj := out[i].DenseRank, out[j].DenseRank
		if (di == 0) != (dj == 0) {
			return di != 0
		}
		if di != dj {
			return di < dj
		}
		return passageKey(out[i]) < passageKey(out[j])
	})

	return out
}

func trimPassages(passages []domain.RetrievedPassage, limit int) []domain.RetrievedPassage {
	if limit <= 0 || len(passages) <= limit {
		return passages
	}
	return passages[:limit]
}

func passageKey(passage domain.RetrievedPassage) string {
	if passage.Chunk.ID != "" {
		return passage.Chunk.ID
	}
	return fmt.Sprintf("%s#%d|%s", passage.Chunk.SourceDocument, passage.Chunk.Offset, passage.Chunk.Text)
}

func preferRicherChunk(current, candidate domain.TextChunk) domain.TextChunk {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.SourceDocument == "" && candidate.SourceDocument != "" {
		current.SourceDocument = candidate.SourceDocument
		current.Offset = candidate.Offset
	}
	return current
}
