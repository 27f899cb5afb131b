package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// FakeStore is an in-memory Store used in tests and local development. TTLs
// are recorded but never enforced.
type FakeStore struct {
	mu      sync.Mutex
	values  map[string]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	ttls    map[string]time.Duration
	PingErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string]string),
		sets:   make(map[string]map[string]struct{}),
		zsets:  make(map[string]map[string]float64),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *FakeStore) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (f *FakeStore) SetWithTTL(key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *FakeStore) SetAdd(key string, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	f.sets[key][member] = struct{}{}
	return nil
}

func (f *FakeStore) SetMembersInt(key string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "non-integer member %q in set %s", m, key)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *FakeStore) SortedSetAddWithTTL(key string, member string, score float64, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.zsets[key] == nil {
		f.zsets[key] = make(map[string]float64)
	}
	f.zsets[key][member] = score
	f.ttls[key] = ttl
	return nil
}

func (f *FakeStore) Ping() error {
	return f.PingErr
}

// TTL returns the retention recorded for key, for test assertions.
func (f *FakeStore) TTL(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

// SortedSetMembers returns the members recorded at key, for test assertions.
func (f *FakeStore) SortedSetMembers(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]string, 0, len(f.zsets[key]))
	for m := range f.zsets[key] {
		members = append(members, m)
	}
	return members
}
