// Package vector provides document embedding and similarity search for the
// embed and index job pipeline. Embedding math stays behind the Embedder
// interface; the bundled hash embedder is deterministic and offline, which
// keeps tests and development free of model dependencies. Storage goes
// through Store, backed by an embedded chromem database.
package vector

import "context"

// Embedder turns text into fixed-width vectors.
type Embedder interface {
	// EmbedBatch embeds every input text. The output is index-aligned with
	// the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions reports the width of the vectors this embedder produces.
	Dimensions() int
}

// Store persists embedded documents and answers similarity queries.
type Store interface {
	Upsert(ctx context.Context, docs []Document) error
	// Search returns up to topK hits ranked by similarity, best first.
	Search(ctx context.Context, embedding []float32, topK int) ([]Result, error)
	Delete(ctx context.Context, ids ...string) error
	Count() int
	Close() error
}

// Document is one embedded chunk ready for storage.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Result is one similarity search hit.
type Result struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
