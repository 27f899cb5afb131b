package store

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store is the durable key/value + set contract the pipeline consumes. It is
// backed by Redis in production; tests use the in-memory FakeStore.
type Store interface {
	// Get returns the string value at key, ErrNotFound if absent.
	Get(key string) (string, error)
	// SetWithTTL stores value at key with a bounded retention. A zero ttl
	// stores without expiry.
	SetWithTTL(key string, value string, ttl time.Duration) error
	// SetAdd adds member to the set at key.
	SetAdd(key string, member string) error
	// SetMembersInt returns the members of the set at key parsed as integers.
	SetMembersInt(key string) ([]int64, error)
	// SortedSetAddWithTTL adds member with score to the sorted set at key and
	// refreshes the key's ttl.
	SortedSetAddWithTTL(key string, member string, score float64, ttl time.Duration) error
	// Ping verifies the store is reachable.
	Ping() error
}

// Key helpers produce the canonical key formats shared with the rest of the
// deployment (auth issuance and the history retrieval path live in other
// services but read and write the same keys).

// AuthTokenKey maps an opaque auth token to a user id.
func AuthTokenKey(token string) string {
	return fmt.Sprintf("auth:token:%s", token)
}

// UserChannelsKey holds the set of channel ids a user subscribes to.
func UserChannelsKey(userId string) string {
	return fmt.Sprintf("user:channels:%s", userId)
}

// PostKey holds one serialized approved post.
func PostKey(postId string) string {
	return fmt.Sprintf("post:%s", postId)
}

// UserViewedKey holds the sorted set of post ids delivered to a user, scored
// by delivery time.
func UserViewedKey(userId string) string {
	return fmt.Sprintf("user:viewed:%s", userId)
}
