package pltm

import "context"

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces the auto-detected
// Ollama/OpenAI/noop provider. Uses []float32 (not pgvector.Vector) to
// avoid forcing the pgvector dependency on external consumers; New()
// wraps it in an adapter for internal use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Searcher is a vector search index for atoms.
// When provided via WithSearcher, replaces the auto-detected Qdrant index.
// Returns atom IDs + scores; the caller hydrates full atoms from Postgres.
type Searcher interface {
	Search(ctx context.Context, sourceUser string, embedding []float32, filters SearchFilters, limit int) ([]SearchResult, error)
	Healthy(ctx context.Context) error
}

// Extractor turns free text into candidate atoms for a given caller.
// When provided via WithExtractor, replaces the built-in rule-stage-then-LLM
// extractor used by pltm_extract.
type Extractor interface {
	Extract(ctx context.Context, sourceUser, text string) ([]Atom, error)
}
