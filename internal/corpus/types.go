package corpus

import "time"

// Passage is one retrievable unit of the reference corpus.
// SourceID identifies the origin document for citation.
type Passage struct {
	ID        string
	Content   string
	SourceID  string
	CreatedAt time.Time

	// Similarity is the cosine similarity to the query (0-1). Populated by
	// Retrieve, zero otherwise.
	Similarity float32
}

// corpus_meta keys recording the embedder fingerprint: which model indexed
// the corpus and at what vector size. Query-time embeddings must match both
// or retrieval degrades silently (model drift) or errors (dimension drift).
const (
	MetaKeyEmbedderModel      = "embedder_model"
	MetaKeyEmbedderDimensions = "embedder_dimensions"
)
