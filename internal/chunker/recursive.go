package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators prefer speaker markers, then paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n[Speaker", "\n\n", "\n", " ", ""}

// RecursiveSplitter cuts text into pieces of at most Size characters, trying
// each separator in turn and recursing into pieces that are still too large.
// Adjacent pieces share up to Overlap characters.
type RecursiveSplitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewRecursiveSplitter returns a splitter using DefaultSeparators.
func NewRecursiveSplitter(size, overlap int) *RecursiveSplitter {
	return &RecursiveSplitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}
}

// Split splits text. Separators stay attached to the start of the following piece.
func (s *RecursiveSplitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

func (s *RecursiveSplitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitKeepingSeparator(text, sep) {
		if runeLen(piece) < s.Size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs small pieces into chunks, carrying a tail of up to Overlap
// characters into the next chunk.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var docs, current []string
	total := 0

	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.Size && len(current) > 0 {
			if doc := joinDoc(current); doc != "" {
				docs = append(docs, doc)
			}
			for len(current) > 0 && (total > s.Overlap || (total+n > s.Size && total > 0)) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := joinDoc(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitKeepingSeparator(text, sep string) []string {
	var parts []string
	if sep == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}

	raw := strings.Split(text, sep)
	if raw[0] != "" {
		parts = append(parts, raw[0])
	}
	for _, r := range raw[1:] {
		parts = append(parts, sep+r)
	}
	return parts
}

func joinDoc(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
