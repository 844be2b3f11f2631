// Package chunker splits long text into overlapping fixed-size windows.
package chunker

import "strings"

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of overlapping characters.
const DefaultOverlap = 200

// Split cuts text into ordered chunks of at most size runes where adjacent
// chunks share exactly overlap runes (overlap larger than size/2 is clamped
// to size/2). Cut points prefer natural boundaries (paragraph, newline,
// sentence, word) within the trailing half of the window before falling back
// to a hard cut. Concatenating the chunks with the shared overlap removed
// reconstructs the input. Empty or whitespace-only input yields no chunks.
func Split(text string, size, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	// Cuts always land past the window midpoint, so an overlap of at most
	// size/2 keeps the walk moving forward.
	if overlap > size/2 {
		overlap = size / 2
	}

	runes := []rune(text)
	n := len(runes)
	if n <= size {
		return []string{text}
	}

	chunks := make([]string, 0, n/(size-overlap)+1)
	start := 0
	for {
		end := start + size
		if end >= n {
			chunks = append(chunks, string(runes[start:n]))
			break
		}

		cut := findCut(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - overlap
	}

	return chunks
}

// findCut picks the cut position in (start+half, end], preferring a paragraph
// break, then a newline or sentence end, then a space, then a hard cut at end.
func findCut(r []rune, start, end int) int {
	low := start + (end-start)/2

	for i := end; i > low; i-- {
		if r[i-1] == '\n' && i >= 2 && r[i-2] == '\n' {
			return i
		}
	}
	for i := end; i > low; i-- {
		if r[i-1] == '\n' {
			return i
		}
		if i >= 2 && r[i-1] == ' ' && isSentenceEnd(r[i-2]) {
			return i
		}
	}
	for i := end; i > low; i-- {
		if r[i-1] == ' ' {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
