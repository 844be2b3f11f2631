// Package domain holds the core types shared between layers.
package domain

// KeyPrefix namespaces all Redis keys owned by this service.
const KeyPrefix = "blograg:"

// Post is a blog row as read from the relational store.
// Posts are owned by the blog application; this service only reads them.
type Post struct {
	ID      int64
	Title   string
	Content string
}

// IndexableText prepends the title header used for chunking and embedding.
func (p Post) IndexableText() string {
	return "Title: " + p.Title + "\n\nContent: " + p.Content
}
