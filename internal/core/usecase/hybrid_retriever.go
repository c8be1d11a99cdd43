package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
)

type RetrievalOptions struct {
	DenseTopK  int
	SparseTopK int
	TopK       int
	RRFK       int
	Weights    FusionWeights
}

func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{
		DenseTopK:  3,
		SparseTopK: 3,
		TopK:       4,
		RRFK:       defaultRRFK,
		Weights:    DefaultFusionWeights(),
	}
}

func (o RetrievalOptions) normalize() RetrievalOptions {
	out := o
	def := DefaultRetrievalOptions()
	if out.DenseTopK <= 0 {
		out.DenseTopK = def.DenseTopK
	}
	if out.SparseTopK <= 0 {
		out.SparseTopK = def.SparseTopK
	}
	if out.TopK <= 0 {
		out.TopK = def.TopK
	}
	if out.RRFK <= 0 {
		out.RRFK = def.RRFK
	}
	if out.Weights.Dense <= 0 && out.Weights.Sparse <= 0 {
		out.Weights = def.Weights
	}
	return out
}

// HybridRetriever runs dense and lexical search over the same corpus and fuses
// the two rankings.
type HybridRetriever struct {
	embedder ports.Embedder
	dense    ports.DenseIndex
	lexical  ports.LexicalIndex
	opts     RetrievalOptions
}

func NewHybridRetriever(
	embedder ports.Embedder,
	dense ports.DenseIndex,
	lexical ports.LexicalIndex,
	opts RetrievalOptions,
) *HybridRetriever {
	return &HybridRetriever{
		embedder: embedder,
		dense:    dense,
		lexical:  lexical,
		opts:     opts.normalize(),
	}
}

// Retrieve returns at most k fused passages. An empty result is not an error.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedPassage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errEmptyQuery)
	}
	if k <= 0 {
		k = r.opts.TopK
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "embed query", err)
	}
	dense, err := r.dense.Search(ctx, queryVector, r.opts.DenseTopK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "dense search", err)
	}

	var sparse []domain.RetrievedPassage
	if r.lexical != nil {
		sparse, err = r.lexical.Search(ctx, query, r.opts.SparseTopK)
		if err != nil {
			slog.Warn("lexical_search_failed", "error", err)
			sparse = nil
		}
	}

	if len(dense) == 0 && len(sparse) == 0 {
		return []domain.RetrievedPassage{}, nil
	}
	fused := fuseWeightedRRF(dense, sparse, r.opts.Weights, r.opts.RRFK)
	return trimPassages(fused, k), nil
}
