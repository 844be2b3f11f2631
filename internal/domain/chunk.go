package domain

import "strconv"

// Chunk is a bounded window of a post's text, sized for embedding.
type Chunk struct {
	PostID  int64
	Ordinal int
	Text    string
}

// RecordID builds the deterministic vector record id "<post>_<ordinal>".
// Re-indexing a post overwrites the same ids.
func (c Chunk) RecordID() string {
	return strconv.FormatInt(c.PostID, 10) + "_" + strconv.Itoa(c.Ordinal)
}

// VectorRecord is one chunk staged for upsert into the vector index.
type VectorRecord struct {
	ID      string
	Vector  []float32
	Text    string
	PostID  int64
	Title   string
	Ordinal int
}

// Match is a scored similarity search hit with its stored metadata.
type Match struct {
	ID      string
	Score   float64
	Text    string
	PostID  int64
	Title   string
	Ordinal int
}
