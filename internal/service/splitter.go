package service

import (
	"strings"
	"unicode/utf8"
)

// Ingestion defaults, in characters
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

// TextSplitter splits text recursively on progressively finer separators and
// merges the pieces into chunks of at most chunkSize characters, each sharing
// up to chunkOverlap trailing characters with its predecessor.
type TextSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// SplitOption overrides splitter settings for one ingestion call
type SplitOption func(*TextSplitter)

// WithChunkSize sets the maximum chunk length
func WithChunkSize(n int) SplitOption {
	return func(s *TextSplitter) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithChunkOverlap sets the overlap between neighbouring chunks
func WithChunkOverlap(n int) SplitOption {
	return func(s *TextSplitter) {
		if n >= 0 {
			s.chunkOverlap = n
		}
	}
}

// NewTextSplitter creates a splitter; invalid sizes fall back to the defaults
func NewTextSplitter(chunkSize, chunkOverlap int, opts ...SplitOption) *TextSplitter {
	s := &TextSplitter{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   defaultSeparators,
	}
	WithChunkSize(chunkSize)(s)
	WithChunkOverlap(chunkOverlap)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.normalize()
	return s
}

// With returns a copy of the splitter with opts applied
func (s *TextSplitter) With(opts ...SplitOption) *TextSplitter {
	cp := *s
	for _, opt := range opts {
		opt(&cp)
	}
	cp.normalize()
	return &cp
}

func (s *TextSplitter) normalize() {
	if s.chunkOverlap >= s.chunkSize {
		s.chunkOverlap = s.chunkSize / 5
	}
}

// ChunkSize returns the configured chunk size
func (s *TextSplitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured overlap
func (s *TextSplitter) ChunkOverlap() int { return s.chunkOverlap }

// Split returns the chunks of text, never longer than the chunk size
func (s *TextSplitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= s.chunkSize {
		return []string{text}
	}
	return s.merge(s.splitRecursive(text, s.separators))
}

func (s *TextSplitter) splitRecursive(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return s.forceSplit(text)
	}

	var out []string
	parts := strings.SplitAfter(text, sep)
	for _, part := range parts {
		if part == "" {
			continue
		}
		if runeLen(part) <= s.chunkSize {
			out = append(out, part)
			continue
		}
		out = append(out, s.splitRecursive(part, rest)...)
	}
	return out
}

func (s *TextSplitter) forceSplit(text string) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += s.chunkSize {
		end := i + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

func (s *TextSplitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	currentLen := 0

	emit := func() {
		chunk := strings.TrimSpace(strings.Join(current, ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, piece := range pieces {
		pieceLen := runeLen(piece)
		if currentLen > 0 && currentLen+pieceLen > s.chunkSize {
			emit()
			current, currentLen = s.overlapTail(current)
			for len(current) > 0 && currentLen+pieceLen > s.chunkSize {
				currentLen -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		currentLen += pieceLen
	}
	if currentLen > 0 {
		emit()
	}
	return chunks
}

// overlapTail keeps the trailing pieces of a finished chunk, cutting the
// oldest one so the total is at most chunkOverlap characters
func (s *TextSplitter) overlapTail(pieces []string) ([]string, int) {
	if s.chunkOverlap == 0 {
		return nil, 0
	}
	var tail []string
	tailLen := 0
	for i := len(pieces) - 1; i >= 0 && tailLen < s.chunkOverlap; i-- {
		n := runeLen(pieces[i])
		if tailLen+n <= s.chunkOverlap {
			tail = append([]string{pieces[i]}, tail...)
			tailLen += n
			continue
		}
		keep := s.chunkOverlap - tailLen
		runes := []rune(pieces[i])
		tail = append([]string{string(runes[len(runes)-keep:])}, tail...)
		tailLen += keep
	}
	return tail, tailLen
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
