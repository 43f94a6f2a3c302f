// Package chunker splits raw document text into overlapping chunks along
// semantic boundaries (paragraphs, lines, sentences) under a size limit.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Defaults tuned for research-paper prose and embedding model context sizes.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 150
)

// DefaultSeparators is the boundary priority order: paragraph break, line
// break, sentence-ending punctuation, word break, and finally a hard
// character cut (the empty string).
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// Splitter splits text recursively on separators in priority order until
// segments fit the chunk size, then reassembles adjacent segments greedily,
// carrying an overlap-sized tail across chunk boundaries. A Splitter is pure:
// the same input always produces the same chunks.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a splitter. A non-positive chunkSize and nil separators
// select the defaults. Zero overlap is valid and disables the overlap carry;
// a negative overlap or one that does not fit under chunkSize falls back to
// the default, halved repeatedly until it fits. Sizes are measured in runes,
// not bytes, so multi-byte text is never cut mid-character.
func NewSplitter(chunkSize, overlap int, separators []string) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultOverlap
		for overlap >= chunkSize {
			overlap /= 2
		}
	}
	if separators == nil {
		separators = DefaultSeparators
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: separators,
	}
}

// Split splits text into chunks of at most the configured size, with
// consecutive chunks sharing an overlap region. Empty or whitespace-only
// input yields nil: nothing to ingest.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.merge(s.segment(text, s.separators))
}

// segment recursively splits text on the first applicable separator until
// every produced segment fits the chunk size. Separators stay attached to the
// preceding segment so reassembly is a plain concatenation.
func (s *Splitter) segment(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 || separators[0] == "" {
		return s.hardCut(text)
	}
	sep, rest := separators[0], separators[1:]
	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		// Separator absent; fall through to the next boundary.
		return s.segment(text, rest)
	}
	var segments []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) <= s.chunkSize {
			segments = append(segments, part)
			continue
		}
		segments = append(segments, s.segment(part, rest)...)
	}
	return segments
}

// hardCut slices text into chunkSize-rune pieces. Used when a single
// indivisible unit exceeds the limit: data is cut, never dropped.
func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	pieces := make([]string, 0, (len(runes)+s.chunkSize-1)/s.chunkSize)
	for start := 0; start < len(runes); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// merge greedily packs segments into chunks up to the chunk size. When a
// chunk is emitted, segments are dropped from the front of the window until
// its length fits the overlap limit, so the next chunk starts with the tail
// of the previous one.
func (s *Splitter) merge(segments []string) []string {
	var chunks []string
	var window []string
	total := 0
	for _, seg := range segments {
		n := utf8.RuneCountInString(seg)
		if total+n > s.chunkSize && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(window) > 0 && (total > s.overlap || total+n > s.chunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, seg)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
