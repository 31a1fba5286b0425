package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// LengthFunc measures a piece of text for chunk sizing.
type LengthFunc func(string) int

// RuneLength counts characters.
func RuneLength(s string) int { return utf8.RuneCountInString(s) }

// TokenLength returns a LengthFunc counting tokens of the named tiktoken encoding
// (for example "cl100k_base").
func TokenLength(encoding string) (LengthFunc, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %q: %w", encoding, err)
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter cuts text into overlapping chunks, preferring to break on
// the coarsest separator that keeps pieces under ChunkSize.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	Length       LengthFunc
}

// NewRecursiveSplitter validates the sizes and returns a splitter.
func NewRecursiveSplitter(size, overlap int, length LengthFunc) (*RecursiveSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	if length == nil {
		length = RuneLength
	}
	return &RecursiveSplitter{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Separators:   DefaultSeparators,
		Length:       length,
	}, nil
}

// Split returns the chunks of text in document order.
func (s *RecursiveSplitter) Split(text string) []string {
	return s.split(text, s.Separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if separator == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		for _, p := range strings.Split(text, separator) {
			if p != "" {
				pieces = append(pieces, p)
			}
		}
	}

	var chunks, pending []string
	for _, p := range pieces {
		if s.Length(p) < s.ChunkSize {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending, separator)...)
			pending = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, p)
		} else {
			chunks = append(chunks, s.split(p, rest)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending, separator)...)
	}
	return chunks
}

// merge greedily packs pieces into chunks up to ChunkSize, carrying up to
// ChunkOverlap of trailing pieces into the next chunk.
func (s *RecursiveSplitter) merge(pieces []string, separator string) []string {
	sepLen := s.Length(separator)
	var chunks, window []string
	total := 0

	joinedLen := func(extra int) int {
		if len(window) > 0 {
			return total + extra + sepLen
		}
		return total + extra
	}

	for _, p := range pieces {
		n := s.Length(p)
		if joinedLen(n) > s.ChunkSize && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, separator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.ChunkOverlap || (joinedLen(n) > s.ChunkSize && total > 0) {
				drop := s.Length(window[0])
				if len(window) > 1 {
					drop += sepLen
				}
				total -= drop
				window = window[1:]
			}
		}
		if len(window) > 0 {
			total += sepLen
		}
		window = append(window, p)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(window, separator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
