package scoring

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultResetWindow is how long cached embeddings survive before the
	// whole cache rolls over.
	DefaultResetWindow = 24 * time.Hour
	// DefaultSimilarityThreshold is the cosine similarity above which two
	// embeddings count as the same story.
	DefaultSimilarityThreshold = 0.9
)

// EmbeddingCache remembers the embeddings of recently scored posts so an
// oracle can suppress rephrasings of a story it already ranked. The cache is
// owned and injected by oracle implementations; the pipeline core never
// touches it. All cached vectors are discarded together once the reset window
// elapses.
type EmbeddingCache struct {
	mu        sync.Mutex
	window    time.Duration
	threshold float64
	vectors   [][]float64
	lastReset time.Time

	// now is swappable for tests.
	now func() time.Time
}

func NewEmbeddingCache(window time.Duration, threshold float64) *EmbeddingCache {
	if window <= 0 {
		window = DefaultResetWindow
	}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	c := &EmbeddingCache{
		window:    window,
		threshold: threshold,
		now:       time.Now,
	}
	c.lastReset = c.now()
	return c
}

// SeenSimilar reports whether vec is cosine-similar to any cached embedding.
// A novel vector is cached before returning. Thread-safe.
func (c *EmbeddingCache) SeenSimilar(vec []float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.now().Sub(c.lastReset) >= c.window {
		c.vectors = nil
		c.lastReset = c.now()
	}

	for _, cached := range c.vectors {
		if cosine(cached, vec) >= c.threshold {
			return true
		}
	}

	c.vectors = append(c.vectors, vec)
	return false
}

// Len returns the number of cached embeddings. Thread-safe.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vectors)
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := math.Sqrt(floats.Dot(a, a))
	nb := math.Sqrt(floats.Dot(b, b))
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
