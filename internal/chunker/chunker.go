package chunker

import (
	"regexp"
	"strings"
)

const defaultMaxTokens = 400

// Options controls how text is chunked.
type Options struct {
	MaxTokens int
	Overlap   int
}

// Chunk is one requirement section cut from a larger document.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ChunkText splits a requirement document into sections of at most MaxTokens
// whitespace-delimited tokens. Whole paragraphs are packed together where they
// fit; a paragraph longer than MaxTokens is cut with a sliding window that
// repeats Overlap tokens between consecutive pieces.
func ChunkText(text string, opts Options) []Chunk {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxTokens {
		opts.Overlap = 0
	}

	var chunks []Chunk
	var pending []string
	emit := func(words []string) {
		if len(words) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       strings.Join(words, " "),
			TokenCount: len(words),
		})
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if len(words) > opts.MaxTokens {
			emit(pending)
			pending = nil
			for _, w := range window(words, opts) {
				emit(w)
			}
			continue
		}
		if len(pending)+len(words) > opts.MaxTokens {
			emit(pending)
			pending = nil
		}
		pending = append(pending, words...)
	}
	emit(pending)
	return chunks
}

func window(words []string, opts Options) [][]string {
	step := opts.MaxTokens - opts.Overlap
	var out [][]string
	for start := 0; start < len(words); start += step {
		end := start + opts.MaxTokens
		if end > len(words) {
			end = len(words)
		}
		out = append(out, words[start:end])
		if end == len(words) {
			break
		}
	}
	return out
}
