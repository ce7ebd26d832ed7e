// Package indexer drives Parser output into the store and the vector backend
// as one logical job with published progress.
package indexer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/metrics"
	"github.com/xaxixak/oracle-v2/internal/parser"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/vector"
)

// upsertBatchSize is the vector upsert batch size.
const upsertBatchSize = 100

// Indexer rebuilds both indices from the markdown corpus.
type Indexer struct {
	store      *store.Store
	backend    vector.Backend
	collection string
	logger     *zap.Logger
}

// New creates an Indexer.
func New(st *store.Store, backend vector.Backend, collection string, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{store: st, backend: backend, collection: collection, logger: logger}
}

// Result summarizes one indexing run.
type Result struct {
	Documents     int  `json:"documents"`
	VectorIndexed int  `json:"vector_indexed"`
	VectorOK      bool `json:"vector_ok"`
}

// Run performs one full clear-and-rebuild pass over root.
//
// The truncate-then-repopulate window is visible to concurrent readers by
// contract; indexing_status brackets it so callers can detect the rebuild.
// A failed vector backend never fails the run: the store side stays
// authoritative and the collection catches up on the next pass.
func (ix *Indexer) Run(ctx context.Context, root string) (res *Result, err error) {
	if err := ix.store.BeginIndexing(0); err != nil {
		return nil, fmt.Errorf("acquiring indexing status: %w", err)
	}
	progress := 0
	defer func() {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if ferr := ix.store.FinishIndexing(progress, msg); ferr != nil {
			ix.logger.Warn("finishing indexing status", zap.Error(ferr))
		}
	}()

	chunks, err := parser.New(root, ix.logger).Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing corpus: %w", err)
	}
	total := len(chunks)
	if err := ix.store.SetIndexingProgress(0, total); err != nil {
		ix.logger.Warn("publishing progress", zap.Error(err))
	}

	// The only sanctioned deviation from append-only: a complete rebuild
	// is the one way to reconcile chunk-boundary drift.
	if err := ix.store.ClearIndex(); err != nil {
		return nil, fmt.Errorf("clearing indices: %w", err)
	}
	vectorOK := ix.resetCollection(ctx)

	res = &Result{}
	var staged []vector.Item
	for _, c := range chunks {
		doc := c.Doc
		if err := ix.store.InsertDocument(&doc, c.Title, c.Content); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", doc.ID, err)
		}
		progress++
		res.Documents++
		if progress%upsertBatchSize == 0 {
			if perr := ix.store.SetIndexingProgress(progress, total); perr != nil {
				ix.logger.Warn("publishing progress", zap.Error(perr))
			}
		}

		if !vectorOK {
			continue
		}
		staged = append(staged, vector.Item{
			ID:   doc.ID,
			Text: c.Content,
			Metadata: map[string]string{
				"type":        string(doc.Type),
				"source_file": doc.SourceFile,
				"concepts":    strings.Join(doc.Concepts, " "),
			},
		})
		if len(staged) >= upsertBatchSize {
			if ok := ix.flush(ctx, staged, res); !ok {
				vectorOK = false
			}
			staged = staged[:0]
		}
	}
	if vectorOK && len(staged) > 0 {
		if ok := ix.flush(ctx, staged, res); !ok {
			vectorOK = false
		}
	}
	res.VectorOK = vectorOK

	metrics.IndexRuns.Inc()
	metrics.IndexedDocuments.Set(float64(res.Documents))
	ix.logger.Info("index rebuild complete",
		zap.Int("documents", res.Documents),
		zap.Int("vector_indexed", res.VectorIndexed),
		zap.Bool("vector_ok", vectorOK))
	return res, nil
}

// resetCollection drops and recreates the vector collection. Returns false
// when the backend is unreachable; indexing then proceeds keyword-only.
func (ix *Indexer) resetCollection(ctx context.Context) bool {
	if err := ix.backend.DeleteCollection(ctx, ix.collection); err != nil {
		ix.logger.Warn("vector collection delete failed, continuing",
			zap.String("collection", ix.collection), zap.Error(err))
	}
	if err := ix.backend.EnsureCollection(ctx, ix.collection); err != nil {
		ix.logger.Warn("vector backend unreachable, indexing keyword-only",
			zap.Error(err))
		return false
	}
	return true
}

func (ix *Indexer) flush(ctx context.Context, items []vector.Item, res *Result) bool {
	batch := make([]vector.Item, len(items))
	copy(batch, items)
	if err := ix.backend.Upsert(ctx, ix.collection, batch); err != nil {
		ix.logger.Warn("vector upsert failed, store side remains authoritative",
			zap.Int("batch", len(batch)), zap.Error(err))
		return false
	}
	res.VectorIndexed += len(batch)
	return true
}
