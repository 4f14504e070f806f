package vector

import (
	"fmt"
	"strings"
	"testing"
)

func wordsText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText(wordsText(100), 500, 100)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if wc := len(strings.Fields(chunks[0])); wc != 100 {
		t.Errorf("chunk word count = %d, want 100", wc)
	}
}

func TestChunkText_WindowsAndOverlap(t *testing.T) {
	chunks := ChunkText(wordsText(1200), 500, 100)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	if len(first) != 500 {
		t.Errorf("first chunk word count = %d, want 500", len(first))
	}
	// The second window starts 400 words in, so its first 100 words repeat
	// the tail of the first chunk.
	if second[0] != first[400] {
		t.Errorf("overlap broken: second starts with %q, want %q", second[0], first[400])
	}

	last := strings.Fields(chunks[2])
	if got := last[len(last)-1]; got != "w1199" {
		t.Errorf("last word = %q, want w1199 (no text dropped)", got)
	}
}

func TestChunkText_Empty(t *testing.T) {
	if chunks := ChunkText("   ", 500, 100); chunks != nil {
		t.Errorf("expected nil for whitespace-only text, got %v", chunks)
	}
}

func TestChunkText_BadParamsFallBack(t *testing.T) {
	chunks := ChunkText(wordsText(1200), 0, -5)
	if len(chunks) == 0 {
		t.Fatal("expected chunks with defaulted parameters")
	}
	if wc := len(strings.Fields(chunks[0])); wc != 500 {
		t.Errorf("defaulted chunk size = %d words, want 500", wc)
	}
}

func TestChunkText_OverlapNotSmallerThanStep(t *testing.T) {
	// overlap >= size would loop forever; it must be reset to a sane value.
	chunks := ChunkText(wordsText(300), 100, 100)
	if len(chunks) == 0 || len(chunks) > 10 {
		t.Errorf("got %d chunks, want a small positive number", len(chunks))
	}
}

func TestBuildFTSQuery(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"single tokens", []string{"consensus", "raft"}, "consensus OR raft"},
		{"multi-word phrase quoted", []string{"distributed systems"}, `"distributed systems"`},
		{"numeric quoted", []string{"2024"}, `"2024"`},
		{"colon quoted", []string{"err:timeout"}, `"err:timeout"`},
		{"hyphenated quoted", []string{"covid-19"}, `"covid-19"`},
		{"apostrophe quoted", []string{"o'brien"}, `"o'brien"`},
		{"mixed alphanumeric bare", []string{"sqlite3"}, "sqlite3"},
		{"embedded quotes escaped", []string{`say "hi"`}, `"say ""hi"""`},
		{"blank entries dropped", []string{" ", "x"}, "x"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildFTSQuery(tt.in); got != tt.want {
				t.Errorf("BuildFTSQuery(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if diff := (v[0] - 0.6); diff > 1e-6 || diff < -1e-6 {
		t.Errorf("v[0] = %v, want 0.6", v[0])
	}
	if diff := (v[1] - 0.8); diff > 1e-6 || diff < -1e-6 {
		t.Errorf("v[1] = %v, want 0.8", v[1])
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
