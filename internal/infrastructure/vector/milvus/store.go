// Package milvus is the alternative dense index for deployments that already
// run a Milvus cluster.
package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
)

const (
	fieldChunkID   = "chunk_id"
	fieldSource    = "source"
	fieldOffset    = "offset"
	fieldText      = "text"
	fieldEmbedding = "embedding"
)

var errInvalidDimension = errors.New("invalid vector dimension")

type Config struct {
	Address        string
	CollectionName string
	Dimension      int
	M              int
	EfConstruction int
	EfSearch       int
}

func (c Config) normalize() Config {
	out := c
	if out.Address == "" {
		out.Address = "localhost:19530"
	}
	if out.CollectionName == "" {
		out.CollectionName = "knowledge_chunks"
	}
	if out.M <= 0 {
		out.M = 16
	}
	if out.EfConstruction <= 0 {
		out.EfConstruction = 256
	}
	if out.EfSearch <= 0 {
		out.EfSearch = 64
	}
	return out
}

type Store struct {
	client client.Client
	cfg    Config
	exec   *resilience.Executor
}

// New connects to Milvus and creates the chunk collection on first use.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.normalize()
	if cfg.Dimension <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "milvus config", errInvalidDimension)
	}

	c, err := client.NewGrpcClient(ctx, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	store := &Store{
		client: c,
		cfg:    cfg,
		exec:   resilience.NewExecutor(resilience.RetrievalConfig(10 * time.Second)),
	}
	if err := store.ensureCollection(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) WithExecutor(exec *resilience.Executor) *Store {
	if exec != nil {
		s.exec = exec
	}
	return s
}

func (s *Store) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.cfg.CollectionName)
	if err != nil {
		return fmt.Errorf("check milvus collection: %w", err)
	}
	if has {
		return s.client.LoadCollection(ctx, s.cfg.CollectionName, false)
	}

	if err := s.client.CreateCollection(ctx, chunkSchema(s.cfg), entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("create milvus collection: %w", err)
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, s.cfg.M, s.cfg.EfConstruction)
	if err != nil {
		return fmt.Errorf("milvus index config: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.cfg.CollectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("create milvus index: %w", err)
	}
	if err := s.client.LoadCollection(ctx, s.cfg.CollectionName, false); err != nil {
		return fmt.Errorf("load milvus collection: %w", err)
	}
	return nil
}

func chunkSchema(cfg Config) *entity.Schema {
	return &entity.Schema{
		CollectionName: cfg.CollectionName,
		AutoID:         false,
		Fields: []*entity.Field{
			{
				Name:       fieldChunkID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       fieldSource,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:     fieldOffset,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       fieldText,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(cfg.Dimension)},
			},
		},
	}
}

// IndexChunks replaces any previous rows of the same chunk ids.
func (s *Store) IndexChunks(ctx context.Context, chunks []domain.TextChunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}

	ids := make([]string, len(chunks))
	sources := make([]string, len(chunks))
	offsets := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) != s.cfg.Dimension {
			return domain.WrapError(domain.ErrInvalidInput, "milvus index",
				fmt.Errorf("%w: expected %d, got %d", errInvalidDimension, s.cfg.Dimension, len(vectors[i])))
		}
		ids[i] = chunk.ID
		sources[i] = chunk.SourceDocument
		offsets[i] = int64(chunk.Offset)
		texts[i] = chunk.Text
	}

	return s.exec.Execute(ctx, "milvus.insert", func(attemptCtx context.Context) error {
		if err := s.client.Delete(attemptCtx, s.cfg.CollectionName, "", idFilter(ids)); err != nil {
			return fmt.Errorf("delete previous chunks: %w", err)
		}
		columns := []entity.Column{
			entity.NewColumnVarChar(fieldChunkID, ids),
			entity.NewColumnVarChar(fieldSource, sources),
			entity.NewColumnInt64(fieldOffset, offsets),
			entity.NewColumnVarChar(fieldText, texts),
			entity.NewColumnFloatVector(fieldEmbedding, s.cfg.Dimension, vectors),
		}
		if _, err := s.client.Insert(attemptCtx, s.cfg.CollectionName, "", columns...); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		if err := s.client.Flush(attemptCtx, s.cfg.CollectionName, false); err != nil {
			return fmt.Errorf("flush chunks: %w", err)
		}
		return nil
	}, nil)
}

// DeleteSource removes every row of one source document.
func (s *Store) DeleteSource(ctx context.Context, source string) error {
	return s.exec.Execute(ctx, "milvus.delete", func(attemptCtx context.Context) error {
		if err := s.client.Delete(attemptCtx, s.cfg.CollectionName, "", sourceFilter(source)); err != nil {
			return fmt.Errorf("delete chunks of %s: %w", source, err)
		}
		return nil
	}, nil)
}

func (s *Store) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedPassage, error) {
	if limit <= 0 {
		return []domain.RetrievedPassage{}, nil
	}
	if len(queryVector) != s.cfg.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", errInvalidDimension, s.cfg.Dimension, len(queryVector))
	}
	sp, err := entity.NewIndexHNSWSearchParam(s.cfg.EfSearch)
	if err != nil {
		return nil, fmt.Errorf("milvus search params: %w", err)
	}

	results, err := resilience.Call(ctx, s.exec, "milvus.search", func(attemptCtx context.Context) ([]client.SearchResult, error) {
		return s.client.Search(
			attemptCtx,
			s.cfg.CollectionName,
			nil,
			"",
			[]string{fieldChunkID, fieldSource, fieldOffset, fieldText},
			[]entity.Vector{entity.FloatVector(queryVector)},
			fieldEmbedding,
			entity.COSINE,
			limit,
			sp,
		)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}
	if len(results) == 0 {
		return []domain.RetrievedPassage{}, nil
	}
	return passagesFromResult(results[0]), nil
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func passagesFromResult(result client.SearchResult) []domain.RetrievedPassage {
	out := make([]domain.RetrievedPassage, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		out[i].Source = domain.SourceDense
		if i < len(result.Scores) {
			out[i].Score = float64(result.Scores[i])
		}
	}
	for _, field := range result.Fields {
		switch col := field.(type) {
		case *entity.ColumnVarChar:
			data := col.Data()
			for i := 0; i < result.ResultCount && i < len(data); i++ {
				switch col.Name() {
				case fieldChunkID:
					out[i].Chunk.ID = data[i]
				case fieldSource:
					out[i].Chunk.SourceDocument = data[i]
				case fieldText:
					out[i].Chunk.Text = data[i]
				}
			}
		case *entity.ColumnInt64:
			if col.Name() != fieldOffset {
				continue
			}
			data := col.Data()
			for i := 0; i < result.ResultCount && i < len(data); i++ {
				out[i].Chunk.Offset = int(data[i])
			}
		}
	}
	return out
}

func idFilter(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("%s in [%s]", fieldChunkID, strings.Join(quoted, ","))
}

func sourceFilter(source string) string {
	return fmt.Sprintf("%s == %s", fieldSource, strconv.Quote(source))
}
