// Package lexical is the in-memory keyword index used next to the dense index.
package lexical

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"github.com/kirillkom/support-assistant/internal/core/domain"
)

const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

type document struct {
	chunk  domain.TextChunk
	terms  map[string]int
	length int
}

type snapshot struct {
	docs      []document
	docFreq   map[string]int
	avgLength float64
}

// BM25Index scores chunks with Okapi BM25. Rebuild swaps in a new snapshot so
// searches never block on ingestion.
type BM25Index struct {
	k1 float64
	b  float64

	current atomic.Pointer[snapshot]
}

func NewBM25Index() *BM25Index {
	idx := &BM25Index{k1: defaultK1, b: defaultB}
	idx.current.Store(&snapshot{docFreq: map[string]int{}})
	return idx
}

func (i *BM25Index) Rebuild(chunks []domain.TextChunk) {
	snap := &snapshot{
		docs:    make([]document, 0, len(chunks)),
		docFreq: make(map[string]int),
	}
	total := 0
	for _, chunk := range chunks {
		tokens := tokenize(chunk.Text)
		terms := make(map[string]int, len(tokens))
		for _, token := range tokens {
			terms[token]++
		}
		for term := range terms {
			snap.docFreq[term]++
		}
		snap.docs = append(snap.docs, document{chunk: chunk, terms: terms, length: len(tokens)})
		total += len(tokens)
	}
	if len(snap.docs) > 0 {
		snap.avgLength = float64(total) / float64(len(snap.docs))
	}
	i.current.Store(snap)
}

func (i *BM25Index) Len() int {
	return len(i.current.Load().docs)
}

// Search returns at most limit chunks with a positive score, best first.
func (i *BM25Index) Search(_ context.Context, query string, limit int) ([]domain.RetrievedPassage, error) {
	snap := i.current.Load()
	queryTerms := uniqueTerms(tokenize(query))
	if limit <= 0 || len(snap.docs) == 0 || len(queryTerms) == 0 {
		return []domain.RetrievedPassage{}, nil
	}

	n := float64(len(snap.docs))
	out := make([]domain.RetrievedPassage, 0, limit)
	for _, doc := range snap.docs {
		score := 0.0
		for _, term := range queryTerms {
			tf := float64(doc.terms[term])
			if tf == 0 {
				continue
			}
			df := float64(snap.docFreq[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			norm := 1 - i.b
			if snap.avgLength > 0 {
				norm += i.b * float64(doc.length) / snap.avgLength
			}
			score += idf * tf * (i.k1 + 1) / (tf + i.k1*norm)
		}
		if score <= 0 {
			continue
		}
		out = append(out, domain.RetrievedPassage{Chunk: doc.chunk, Score: score, Source: domain.SourceSparse})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Chunk.ID < out[b].Chunk.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
