// Package chunker splits normalized document content into overlapping
// chunks sized for embedding and retrieval.
package chunker

import (
	"strings"

	"github.com/supportpilot/supportpilot/internal/core/textutil"
	"github.com/supportpilot/supportpilot/internal/models"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 4000
	// DefaultChunkOverlap is how many trailing characters seed the next chunk.
	DefaultChunkOverlap = 800
)

// separators are tried in priority order; the empty string is the hard
// character-cut fallback.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is one split piece with its token estimate and provenance.
type Chunk struct {
	Content    string
	TokenCount int
	Metadata   models.ChunkMetadata
}

// Splitter performs recursive character splitting with overlap.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// New returns a splitter with the default size and overlap.
func New() *Splitter {
	return &Splitter{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// Split normalizes content, splits it recursively on the separator
// priority list, and returns ordered chunks carrying the inherited source
// metadata. Chunks that are empty after cleanup are dropped.
func (s *Splitter) Split(content string, sourceType models.SourceType, meta models.ChunkMetadata) []Chunk {
	normalized := textutil.Clean(content)
	if normalized == "" {
		return nil
	}

	pieces := s.splitRecursive(normalized, separators)

	out := make([]Chunk, 0, len(pieces))
	index := 0
	for _, piece := range pieces {
		text := textutil.Clean(piece)
		if text == "" {
			continue
		}
		m := meta
		m.SourceType = sourceType
		m.ChunkIndex = index
		index++
		out = append(out, Chunk{
			Content:    text,
			TokenCount: textutil.EstimateTokens(text),
			Metadata:   m,
		})
	}
	return out
}

func (s *Splitter) splitRecursive(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range seps {
		if candidate == "" {
			sep = ""
			rest = nil
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = cutByLength(text, s.ChunkSize)
	} else {
		splits = strings.Split(text, sep)
	}

	var final []string
	var good []string
	for _, piece := range splits {
		if piece == "" {
			continue
		}
		if len(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.mergeSplits(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitRecursive(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good, sep)...)
	}
	return final
}

// mergeSplits greedily joins small splits up to the chunk size, then keeps
// a tail of roughly ChunkOverlap characters as the seed of the next chunk.
func (s *Splitter) mergeSplits(splits []string, sep string) []string {
	sepLen := len(sep)

	var docs []string
	var current []string
	total := 0

	joinLen := func(extra int) int {
		if len(current) == 0 {
			return 0
		}
		return sepLen * extra
	}

	for _, piece := range splits {
		l := len(piece)
		if len(current) > 0 && total+l+joinLen(1) > s.ChunkSize {
			docs = append(docs, strings.Join(current, sep))
			for len(current) > 0 && (total > s.ChunkOverlap || total+l+joinLen(1) > s.ChunkSize) {
				total -= len(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, piece)
		total += l
	}
	if len(current) > 0 {
		docs = append(docs, strings.Join(current, sep))
	}
	return docs
}

func cutByLength(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}
