package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	troupeErrors "github.com/stxkxs/troupe/internal/errors"
	"github.com/stxkxs/troupe/internal/telemetry"
)

// DefaultChunkSize bounds chunk length in runes when none is configured.
const DefaultChunkSize = 1000

// Source fetches document content for index jobs. Implementations wrap
// whatever system owns the documents.
type Source interface {
	// Document returns the content and metadata for the given document id.
	Document(ctx context.Context, id string) (string, map[string]interface{}, error)
}

// Pipeline wires an embedder and a store into the document operations the
// job handlers need: embed inline content, index a document fetched from its
// source, and search.
type Pipeline struct {
	embedder  Embedder
	store     Store
	source    Source // nil disables index jobs
	chunkSize int
	logger    *telemetry.Logger
}

// NewPipeline builds a pipeline. source may be nil when index jobs aren't
// used; chunk sizes below one fall back to DefaultChunkSize.
func NewPipeline(embedder Embedder, store Store, source Source, chunkSize int, logger *telemetry.Logger) *Pipeline {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = telemetry.NewLogger(false)
	}
	return &Pipeline{
		embedder:  embedder,
		store:     store,
		source:    source,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// EmbedDocument chunks the content, embeds every chunk, and upserts the
// chunks under ids derived from the document id. It returns the chunk count.
func (p *Pipeline) EmbedDocument(ctx context.Context, documentID, content string, metadata map[string]interface{}) (int, error) {
	chunks := Chunk(content, p.chunkSize)
	if len(chunks) == 0 {
		return 0, troupeErrors.Newf(troupeErrors.CodeExecutionFailed, "document %s has no content to embed", documentID)
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed document %s: %w", documentID, err)
	}

	docs := make([]Document, len(chunks))
	for i, chunk := range chunks {
		meta := map[string]string{
			"document_id": documentID,
			"chunk":       strconv.Itoa(i),
		}
		for k, v := range metadata {
			meta[k] = fmt.Sprint(v)
		}
		docs[i] = Document{
			ID:        ChunkID(documentID, i),
			Content:   chunk,
			Embedding: embeddings[i],
			Metadata:  meta,
		}
	}

	if err := p.store.Upsert(ctx, docs); err != nil {
		return 0, err
	}
	p.logger.Debug("Document embedded", "document_id", documentID, "chunks", len(docs))
	return len(docs), nil
}

// IndexDocument fetches the document from the source and embeds it.
func (p *Pipeline) IndexDocument(ctx context.Context, documentID string) (int, error) {
	if p.source == nil {
		return 0, troupeErrors.New(troupeErrors.CodeConfigInvalid, "no document source configured").
			WithSuggestion("set vector.documents in troupe.yaml to the directory holding document files")
	}

	content, metadata, err := p.source.Document(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("fetch document %s: %w", documentID, err)
	}
	return p.EmbedDocument(ctx, documentID, content, metadata)
}

// Search embeds the query and returns the closest stored chunks.
func (p *Pipeline) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK < 1 {
		topK = 5
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return p.store.Search(ctx, embeddings[0], topK)
}

// Close releases the underlying vector store.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// ChunkID names a chunk within a document.
func ChunkID(documentID string, i int) string {
	return fmt.Sprintf("%s#%d", documentID, i)
}

// Chunk splits content into pieces of at most size runes, preferring
// paragraph boundaries. Oversized paragraphs are hard-split.
func Chunk(content string, size int) []string {
	if size < 1 {
		size = DefaultChunkSize
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if piece := strings.TrimSpace(current.String()); piece != "" {
			chunks = append(chunks, piece)
		}
		current.Reset()
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len([]rune(para)) > size {
			flush()
			for _, piece := range hardSplit(para, size) {
				chunks = append(chunks, piece)
			}
			continue
		}
		// +2 accounts for the paragraph separator being restored.
		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(para))+2 > size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

func hardSplit(s string, size int) []string {
	runes := []rune(s)
	var pieces []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, strings.TrimSpace(string(runes[start:end])))
	}
	return pieces
}
