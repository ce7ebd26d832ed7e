package vector

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig configures the embedded provider.
type ChromemConfig struct {
	// Path is the persistence directory.
	Path string

	// EmbedModel and EmbedURL point at an Ollama-compatible embedding
	// endpoint. Embedding never runs in-process.
	EmbedModel string
	EmbedURL   string
}

// ChromemBackend stores vectors in an embedded chromem-go database. chromem
// reports cosine similarity in [-1, 1]; Query converts it back to the
// package's cosine-distance convention so fusion math is provider-agnostic.
type ChromemBackend struct {
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	logger *zap.Logger
}

// NewChromemBackend opens (or creates) the persistent database.
func NewChromemBackend(cfg ChromemConfig, logger *zap.Logger) (*ChromemBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: chromem path is required", ErrInvalidConfig)
	}
	if cfg.EmbedModel == "" {
		return nil, fmt.Errorf("%w: embed model is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating chromem directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(cfg.Path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db: %w", err)
	}
	logger.Info("chromem backend opened",
		zap.String("path", cfg.Path), zap.String("embed_model", cfg.EmbedModel))
	return &ChromemBackend{
		db:     db,
		embed:  chromem.NewEmbeddingFuncOllama(cfg.EmbedModel, cfg.EmbedURL),
		logger: logger,
	}, nil
}

func (b *ChromemBackend) collection(name string) (*chromem.Collection, error) {
	col, err := b.db.GetOrCreateCollection(name, nil, b.embed)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %v", ErrUnavailable, name, err)
	}
	return col, nil
}

func (b *ChromemBackend) EnsureCollection(ctx context.Context, name string) error {
	_, err := b.collection(name)
	return err
}

func (b *ChromemBackend) Upsert(ctx context.Context, name string, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	col, err := b.collection(name)
	if err != nil {
		return err
	}
	docs := make([]chromem.Document, len(items))
	for i, item := range items {
		docs[i] = chromem.Document{
			ID:       item.ID,
			Content:  item.Text,
			Metadata: item.Metadata,
		}
	}
	if err := col.AddDocuments(ctx, docs, 4); err != nil {
		return fmt.Errorf("%w: upsert into %s: %v", ErrUnavailable, name, err)
	}
	return nil
}

func (b *ChromemBackend) Query(ctx context.Context, name, text string, k int, where map[string]string) (*QueryResult, error) {
	col, err := b.collection(name)
	if err != nil {
		return nil, err
	}
	// chromem rejects k greater than the collection size.
	if count := col.Count(); k > count {
		k = count
	}
	if k == 0 {
		return &QueryResult{}, nil
	}
	results, err := col.Query(ctx, text, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrUnavailable, name, err)
	}
	out := &QueryResult{
		IDs:       make([]string, len(results)),
		Documents: make([]string, len(results)),
		Metadatas: make([]map[string]string, len(results)),
		Distances: make([]float64, len(results)),
	}
	for i, r := range results {
		out.IDs[i] = r.ID
		out.Documents[i] = r.Content
		out.Metadatas[i] = r.Metadata
		// cosine distance = 1 - cosine similarity
		out.Distances[i] = 1 - float64(r.Similarity)
	}
	return out, nil
}

func (b *ChromemBackend) CollectionStats(ctx context.Context, name string) (*Stats, error) {
	col, err := b.collection(name)
	if err != nil {
		return nil, err
	}
	return &Stats{Count: col.Count()}, nil
}

func (b *ChromemBackend) DeleteCollection(ctx context.Context, name string) error {
	if err := b.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("%w: deleting %s: %v", ErrUnavailable, name, err)
	}
	return nil
}

func (b *ChromemBackend) Close() error { return nil }
