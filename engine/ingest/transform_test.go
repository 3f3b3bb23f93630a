package ingest

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestChunkText_ThreeSentencesOneChunk(t *testing.T) {
	chunks := ChunkText("A sentence. Another sentence. A third one.", DefaultMaxTokens)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1: %v", len(chunks), chunks)
	}
	if chunks[0] != "A sentence. Another sentence. A third one" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestChunkText_FlushesAtLimit(t *testing.T) {
	// Each sentence is 40 chars = 10 estimated tokens; the limit admits two.
	sentence := strings.Repeat("x", 39)
	text := sentence + ". " + sentence + ". " + sentence + "."

	chunks := ChunkText(text, 21)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunks)
	}
	if chunks[1] != sentence {
		t.Errorf("final chunk = %q", chunks[1])
	}
	for _, c := range chunks {
		if EstimateTokens(c) > 21 {
			t.Errorf("chunk exceeds limit: %d tokens", EstimateTokens(c))
		}
	}
}

func TestChunkText_NoTerminalPunctuation(t *testing.T) {
	text := "no punctuation here just words"
	chunks := ChunkText(text, DefaultMaxTokens)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("chunks = %v, want whole text as one chunk", chunks)
	}
}

func TestChunkText_OversizedSentenceEmittedWhole(t *testing.T) {
	// One sentence far over the limit must still come out as one chunk.
	long := strings.Repeat("y", 200)
	chunks := ChunkText(long+".", 10)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != long {
		t.Errorf("oversized sentence was altered")
	}
}

func TestChunkText_Deterministic(t *testing.T) {
	text := "First. Second! Third? Fourth. Fifth."
	a := ChunkText(text, 8)
	b := ChunkText(text, 8)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestChunkText_PreservesSentenceSequence(t *testing.T) {
	text := "Alpha beta. Gamma delta! Epsilon zeta? Eta theta."
	want := strings.Join(splitSentences(text), ". ")

	chunks := ChunkText(text, 6)
	got := strings.Join(chunks, ". ")
	if got != want {
		t.Errorf("joined chunks = %q, want %q", got, want)
	}
}

func TestChunkText_Empty(t *testing.T) {
	if chunks := ChunkText("", DefaultMaxTokens); chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}
	if chunks := ChunkText("   ...  ", DefaultMaxTokens); chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? ")
	want := []string{"One", "Two", "Three"}
	if len(got) != len(want) {
		t.Fatalf("sentences = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}
