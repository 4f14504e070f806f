package vector

import "strings"

// ChunkText splits text into word-windowed chunks of sizeWords with
// overlapWords of carryover between consecutive chunks. Text shorter than one
// window comes back as a single chunk.
func ChunkText(text string, sizeWords, overlapWords int) []string {
	if sizeWords <= 0 {
		sizeWords = 500
	}
	if overlapWords < 0 || overlapWords >= sizeWords {
		overlapWords = sizeWords / 5
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= sizeWords {
		return []string{strings.Join(words, " ")}
	}

	step := sizeWords - overlapWords
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + sizeWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
