package dedup

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// FingerprintBits is the width of every fingerprint produced by this package.
const FingerprintBits = 64

// stopwords are dropped during normalization. The upstream feed is primarily
// Russian-language, so the set covers the most frequent Russian function
// words.
var stopwords = map[string]struct{}{
	"и": {}, "в": {}, "с": {}, "на": {}, "о": {}, "по": {}, "для": {},
	"не": {}, "что": {}, "как": {}, "это": {}, "из": {}, "от": {},
}

// Normalize lower-cases text, strips punctuation and drops stopwords. The
// result is the canonical form that fingerprints are computed over, so two
// posts differing only in case, punctuation or stopwords normalize to the
// same string.
func Normalize(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}

	words := strings.Fields(sb.String())
	kept := words[:0]
	for _, w := range words {
		if _, ok := stopwords[w]; !ok {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Fingerprint computes a 64-bit simhash over the normalized form of text.
// Each token votes its hash bits up or down; the sign of every bit column
// yields the final signature, so texts sharing most tokens end up within a
// small Hamming distance of each other. Empty or all-punctuation input
// deterministically maps to 0.
func Fingerprint(text string) uint64 {
	normalized := Normalize(text)
	if normalized == "" {
		return 0
	}

	var votes [FingerprintBits]int
	for _, token := range strings.Fields(normalized) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		for i := 0; i < FingerprintBits; i++ {
			if sum&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < FingerprintBits; i++ {
		if votes[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// HammingDistance returns the number of differing bits between two
// fingerprints.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
