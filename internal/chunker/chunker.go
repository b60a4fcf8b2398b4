// Package chunker splits document text into overlapping chunks for embedding.
//
// Splitting is recursive: the splitter tries the strongest boundary first
// (paragraph breaks) and falls back to progressively weaker ones (lines,
// sentences, clauses, words). Text with no usable boundary is hard-cut on a
// fixed character window.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators orders split points from strongest to weakest boundary.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

// Splitter splits text into chunks of roughly size characters with overlap
// characters shared between adjacent chunks.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Splitter. Non-positive size falls back to 800 characters.
// Overlap is clamped below size so splitting always makes progress.
func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Splitter{size: size, overlap: overlap, separators: DefaultSeparators}
}

// Size reports the configured chunk size in characters.
func (s *Splitter) Size() int { return s.size }

// Overlap reports the configured overlap in characters.
func (s *Splitter) Overlap() int { return s.overlap }

// Split breaks text into chunks. Every character of the trimmed input
// appears in at least one chunk. Empty or whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	if utf8.RuneCountInString(text) <= s.size {
		return []string{text}
	}

	sep := ""
	var rest []string
	for i, cand := range seps {
		if strings.Contains(text, cand) {
			sep = cand
			rest = seps[i+1:]
			break
		}
	}
	if sep == "" {
		return s.window(text)
	}

	var pieces []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) > s.size {
			pieces = append(pieces, s.split(part, rest)...)
		} else {
			pieces = append(pieces, part)
		}
	}
	return s.merge(pieces)
}

// merge packs pieces into chunks up to the size limit, seeding each new
// chunk with the overlap tail of the previous one.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var buf strings.Builder
	bufLen := 0

	for _, p := range pieces {
		pl := utf8.RuneCountInString(p)
		if bufLen > 0 && bufLen+pl > s.size {
			if chunk := strings.TrimSpace(buf.String()); chunk != "" {
				chunks = append(chunks, chunk)
			}
			tail := overlapTail(buf.String(), s.overlap)
			buf.Reset()
			buf.WriteString(tail)
			bufLen = utf8.RuneCountInString(tail)
		}
		buf.WriteString(p)
		bufLen += pl
	}

	if chunk := strings.TrimSpace(buf.String()); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// window hard-cuts text on a fixed stride of size-overlap characters.
func (s *Splitter) window(text string) []string {
	r := []rune(text)
	stride := s.size - s.overlap
	var chunks []string
	for i := 0; ; i += stride {
		end := i + s.size
		if end >= len(r) {
			chunks = append(chunks, string(r[i:]))
			break
		}
		chunks = append(chunks, string(r[i:end]))
	}
	return chunks
}

func overlapTail(text string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= overlap {
		return string(r)
	}
	return string(r[len(r)-overlap:])
}
