package vector

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"

	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

// ChromemStore keeps embeddings in an embedded chromem collection. With a
// path it persists to disk across restarts; without one it lives in memory.
// Single-process only, which matches the worker deployment model.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemStore opens the named collection, persisted under path when path
// is non-empty.
func NewChromemStore(path, collection string) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, troupeErrors.Wrap(troupeErrors.CodeMemoryError, "failed to open vector store", err)
		}
	}

	col, err := db.GetOrCreateCollection(collection, nil, rejectEmbedding)
	if err != nil {
		return nil, troupeErrors.Wrap(troupeErrors.CodeMemoryError, fmt.Sprintf("failed to open collection %q", collection), err)
	}
	return &ChromemStore{db: db, col: col}, nil
}

// rejectEmbedding satisfies chromem's embedding hook. Documents always
// arrive with precomputed vectors, so a call here is a bug.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vector: embedding must be precomputed")
}

func (s *ChromemStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	converted := make([]chromem.Document, len(docs))
	for i, d := range docs {
		converted[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Embedding: d.Embedding,
			Metadata:  d.Metadata,
		}
	}
	if err := s.col.AddDocuments(ctx, converted, runtime.NumCPU()); err != nil {
		return troupeErrors.Wrap(troupeErrors.CodeMemoryError, "failed to upsert documents", err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, embedding []float32, topK int) ([]Result, error) {
	// chromem rejects queries asking for more results than stored documents.
	if n := s.col.Count(); topK > n {
		topK = n
	}
	if topK < 1 {
		return nil, nil
	}

	hits, err := s.col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, troupeErrors.Wrap(troupeErrors.CodeMemoryError, "vector search failed", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ID:       h.ID,
			Score:    h.Similarity,
			Content:  h.Content,
			Metadata: h.Metadata,
		}
	}
	return results, nil
}

func (s *ChromemStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, ids...); err != nil {
		return troupeErrors.Wrap(troupeErrors.CodeMemoryError, "failed to delete documents", err)
	}
	return nil
}

func (s *ChromemStore) Count() int {
	return s.col.Count()
}

// Close is a no-op: chromem flushes persistent writes as they happen.
func (s *ChromemStore) Close() error {
	return nil
}
