package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "рынок растет", Normalize("Рынок растет!!!"))
	assert.Equal(t, "market rally 5", Normalize("  Market, RALLY: 5%  "))
}

func TestNormalizeDropsStopwords(t *testing.T) {
	assert.Equal(t, "рынок вырос", Normalize("рынок вырос, и это не что как"))
	assert.Equal(t, "", Normalize("и в с на"))
}

func TestNormalizePunctuationOnly(t *testing.T) {
	assert.Equal(t, "", Normalize("!!! ... ???"))
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("市場が上昇 market rally continues")
	b := Fingerprint("市場が上昇 market rally continues")
	assert.Equal(t, a, b)
}

func TestFingerprintIgnoresPunctuationAndCase(t *testing.T) {
	a := Fingerprint("Market Rally Continues Today")
	b := Fingerprint("market rally, continues... today!")
	assert.Equal(t, a, b)
}

func TestFingerprintEmptyInput(t *testing.T) {
	assert.Equal(t, uint64(0), Fingerprint(""))
	assert.Equal(t, uint64(0), Fingerprint("..."))
}

func TestFingerprintDiffersForDistinctText(t *testing.T) {
	a := Fingerprint("central bank raises interest rates sharply")
	b := Fingerprint("football team wins championship final match")
	assert.NotEqual(t, a, b)
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(0xFF, 0xFF))
	assert.Equal(t, 8, HammingDistance(0x00, 0xFF))
	assert.Equal(t, 1, HammingDistance(0b1000, 0b0000))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
}
