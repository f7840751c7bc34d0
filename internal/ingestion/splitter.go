package ingestion

import (
	"strings"
	"unicode/utf8"
)

// Splitter cuts text into chunks of at most Size characters using an ordered
// list of separators, coarsest first.
//
// Text is split on the first separator it contains; pieces that still exceed
// Size are split again with the remaining separators, and as a last resort
// at fixed character windows. Adjacent pieces are then merged back up to
// Size. Within a merged run each chunk after the first begins with up to
// Overlap characters of whole pieces from the end of the previous chunk.
// Separators stay attached to the end of the piece they terminate.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter returns a splitter for the given bounds. size must be positive
// and overlap smaller than size; out-of-range values are clamped.
func NewSplitter(size, overlap int, separators []string) *Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &Splitter{size: size, overlap: overlap, separators: separators}
}

// Split returns the chunks of text. Whitespace-only chunks are dropped and
// every chunk is trimmed.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep, rest := "", []string(nil)
	for i, candidate := range separators {
		if strings.Contains(text, candidate) {
			sep, rest = candidate, separators[i+1:]
			break
		}
	}
	if sep == "" {
		return s.window(text)
	}

	var out, fits []string
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if runeLen(piece) <= s.size {
			fits = append(fits, piece)
			continue
		}
		if len(fits) > 0 {
			out = append(out, s.merge(fits)...)
			fits = nil
		}
		if len(rest) > 0 {
			out = append(out, s.split(piece, rest)...)
		} else {
			out = append(out, s.window(piece)...)
		}
	}
	if len(fits) > 0 {
		out = append(out, s.merge(fits)...)
	}
	return out
}

// merge packs pieces, each at most s.size long, into chunks of at most
// s.size, carrying up to s.overlap characters of trailing pieces forward.
func (s *Splitter) merge(pieces []string) []string {
	var (
		out   []string
		cur   []string
		total int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.size && len(cur) > 0 {
			out = appendChunk(out, strings.Join(cur, ""))
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += n
	}
	return appendChunk(out, strings.Join(cur, ""))
}

// window cuts text with no usable separator into fixed character windows
// that overlap by s.overlap characters.
func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.size - s.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+s.size, len(runes))
		out = appendChunk(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// appendChunk appends the trimmed chunk unless it is blank.
func appendChunk(out []string, chunk string) []string {
	if c := strings.TrimSpace(chunk); c != "" {
		return append(out, c)
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
