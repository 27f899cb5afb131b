package dedup

import "sync/atomic"

const (
	DefaultWindowSize = 100
	DefaultDistance   = 10
)

// Result describes the outcome of a single duplicate check.
type Result struct {
	Duplicate bool
	// Exact is set when the fingerprint matched an indexed fingerprint
	// bit-for-bit, as opposed to a near match within the distance threshold.
	Exact bool
}

// Deduplicator decides whether a fingerprint has been seen within a bounded
// recent window. It keeps an ordered window of recent fingerprints for exact
// matches and a banded index for "any fingerprint within Hamming distance
// <= k" queries. Both are pruned in lock-step: when the window evicts its
// oldest fingerprint the index forgets it too, so memory stays bounded by the
// window capacity.
//
// A Deduplicator is not safe for concurrent use. The ingestion client owns
// exactly one and mutates it from its single read loop; sharing one across
// multiple upstream connections requires external serialization.
type Deduplicator struct {
	capacity int
	distance int

	window []uint64
	exact  map[uint64]struct{}
	index  *bandIndex

	// fill mirrors len(window) for observability endpoints that read it from
	// other goroutines.
	fill int64
}

// NewDeduplicator creates a Deduplicator with the given window capacity and
// Hamming distance threshold. Non-positive arguments fall back to the
// defaults.
func NewDeduplicator(capacity, distance int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	if distance <= 0 {
		distance = DefaultDistance
	}
	return &Deduplicator{
		capacity: capacity,
		distance: distance,
		window:   make([]uint64, 0, capacity),
		exact:    make(map[uint64]struct{}, capacity),
		index:    newBandIndex(distance),
	}
}

// Check reports whether fp duplicates a recently seen fingerprint. A miss
// inserts fp into both the window and the index, so the first occurrence of
// any post claims its slot.
func (d *Deduplicator) Check(fp uint64) Result {
	if _, ok := d.exact[fp]; ok {
		return Result{Duplicate: true, Exact: true}
	}
	if d.index.hasNear(fp) {
		return Result{Duplicate: true}
	}
	d.remember(fp)
	return Result{}
}

// Len returns the number of fingerprints currently held in the window. It is
// the only method safe to call from a goroutine other than the owner.
func (d *Deduplicator) Len() int {
	return int(atomic.LoadInt64(&d.fill))
}

func (d *Deduplicator) remember(fp uint64) {
	if len(d.window) == d.capacity {
		oldest := d.window[0]
		d.window = d.window[1:]
		delete(d.exact, oldest)
		d.index.remove(oldest)
	}
	d.window = append(d.window, fp)
	d.exact[fp] = struct{}{}
	d.index.add(fp)
	atomic.StoreInt64(&d.fill, int64(len(d.window)))
}

// bandIndex answers "is any stored fingerprint within Hamming distance <= k"
// queries. The 64 bits are split into k+1 contiguous bands; two fingerprints
// within distance k must agree exactly on at least one band, so candidates
// are found by exact lookup per band and then verified with a full distance
// check.
type bandIndex struct {
	distance int
	offsets  []uint
	widths   []uint
	tables   []map[uint64][]uint64
}

func newBandIndex(distance int) *bandIndex {
	bands := distance + 1
	idx := &bandIndex{
		distance: distance,
		offsets:  make([]uint, bands),
		widths:   make([]uint, bands),
		tables:   make([]map[uint64][]uint64, bands),
	}
	base := uint(FingerprintBits / bands)
	extra := uint(FingerprintBits % bands)
	var offset uint
	for i := 0; i < bands; i++ {
		width := base
		if uint(i) < extra {
			width++
		}
		idx.offsets[i] = offset
		idx.widths[i] = width
		idx.tables[i] = make(map[uint64][]uint64)
		offset += width
	}
	return idx
}

func (b *bandIndex) key(fp uint64, band int) uint64 {
	mask := uint64(1)<<b.widths[band] - 1
	return (fp >> b.offsets[band]) & mask
}

func (b *bandIndex) add(fp uint64) {
	for i := range b.tables {
		k := b.key(fp, i)
		b.tables[i][k] = append(b.tables[i][k], fp)
	}
}

func (b *bandIndex) remove(fp uint64) {
	for i := range b.tables {
		k := b.key(fp, i)
		entries := b.tables[i][k]
		for j, e := range entries {
			if e == fp {
				b.tables[i][k] = append(entries[:j], entries[j+1:]...)
				break
			}
		}
		if len(b.tables[i][k]) == 0 {
			delete(b.tables[i], k)
		}
	}
}

func (b *bandIndex) hasNear(fp uint64) bool {
	for i := range b.tables {
		for _, candidate := range b.tables[i][b.key(fp, i)] {
			if HammingDistance(candidate, fp) <= b.distance {
				return true
			}
		}
	}
	return false
}
