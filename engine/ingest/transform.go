package ingest

import "strings"

// DefaultMaxTokens is the target chunk size in estimated tokens.
const DefaultMaxTokens = 500

// EstimateTokens approximates the token count of text as ceil(len/4). This is
// a fixed approximation, not a tokenizer; chunk boundaries must stay
// reproducible across model changes.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// splitSentences splits text on terminal punctuation, discarding empty
// fragments. The terminators themselves are dropped; ChunkText rejoins
// sentences with ". ".
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return sentences
}

// ChunkText splits text into sentence-aligned chunks of at most maxTokens
// estimated tokens. Sentences accumulate greedily: a chunk is flushed only
// when appending the next sentence would push it over the limit and it is
// already non-empty. A single sentence over the limit is emitted whole, a
// known limitation rather than a case to hard-split.
func ChunkText(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	current := ""
	for _, sentence := range sentences {
		candidate := sentence
		if current != "" {
			candidate = current + ". " + sentence
		}
		if EstimateTokens(candidate) > maxTokens && current != "" {
			chunks = append(chunks, current)
			current = sentence
			continue
		}
		current = candidate
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
