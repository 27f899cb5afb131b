package ingestion

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/newsflow-io/newsflow/dedup"
	"github.com/newsflow-io/newsflow/eventbus"
	"github.com/newsflow-io/newsflow/model"
	. "github.com/newsflow-io/newsflow/utils/log"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// upstreamMessage is the wire shape of one feed message. channel_id arrives
// as either an integer or a numeric string depending on the fetcher, so it is
// kept raw and parsed leniently.
type upstreamMessage struct {
	Type         string          `json:"type"`
	Text         *string         `json:"text"`
	Timestamp    *string         `json:"timestamp"`
	ChannelId    json.RawMessage `json:"channel_id"`
	ChannelTitle string          `json:"channel_title"`
}

// Client maintains one persistent websocket connection to the upstream feed,
// converts inbound messages into Posts, drops near-duplicates and publishes
// survivors on the new-post topic.
type Client struct {
	uri    string
	bus    eventbus.Publisher
	dedup  *dedup.Deduplicator
	dialer *websocket.Dialer

	initialBackoff time.Duration
	maxBackoff     time.Duration
	// maxAttempts bounds consecutive failed connection attempts; 0 retries
	// forever. A successful connect resets the count.
	maxAttempts int
}

func NewClient(uri string, bus eventbus.Publisher, deduplicator *dedup.Deduplicator, maxAttempts int) *Client {
	return &Client{
		uri:            uri,
		bus:            bus,
		dedup:          deduplicator,
		dialer:         websocket.DefaultDialer,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		maxAttempts:    maxAttempts,
	}
}

// Run connects to the upstream feed and consumes messages until ctx is
// cancelled, redialing with bounded exponential backoff on connection loss.
// It returns a non-nil error only when ctx ends or consecutive dials exhaust
// the configured attempt budget; any successful connect resets both the
// budget and the backoff, so a long-lived connection that later drops starts
// a fresh sequence.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.initialBackoff
	attempts := 0

	for {
		connected, err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			attempts = 0
			backoff = c.initialBackoff
		}

		attempts++
		if c.maxAttempts > 0 && attempts >= c.maxAttempts {
			return errors.Wrapf(err, "give up connecting to %s after %d attempts", c.uri, attempts)
		}

		Log.Errorf("upstream connection lost, reconnect in %v: %v", backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// consume dials the upstream and processes messages until the connection
// breaks or ctx is cancelled. The first return value reports whether the dial
// succeeded, so the caller can tell a dead upstream from a dropped stream.
func (c *Client) consume(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.uri, nil)
	if err != nil {
		return false, errors.Wrapf(err, "fail to dial upstream %s", c.uri)
	}
	defer conn.Close()

	Log.Infof("connected to upstream %s", c.uri)

	// Unblock the read loop when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, errors.Wrap(err, "fail to read upstream message")
		}
		c.processMessage(raw)
	}
}

// processMessage handles one inbound frame: control messages are ignored,
// structurally invalid messages are logged and dropped, duplicates are logged
// and dropped, and survivors are published on the new-post topic. No failure
// here terminates the connection.
func (c *Client) processMessage(raw []byte) {
	var msg upstreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		Log.Errorf("unparseable upstream message %s: %v", preview(raw), err)
		return
	}

	if msg.Type == "connection_established" || msg.Type == "ping" {
		Log.Debugf("ignoring control message: %s", msg.Type)
		return
	}

	if msg.Text == nil || msg.Timestamp == nil || len(msg.ChannelId) == 0 {
		Log.Warnf("missing required fields in upstream message %s", preview(raw))
		return
	}

	post := model.NewPost(*msg.Text, *msg.Timestamp, parseChannelId(msg.ChannelId), msg.ChannelTitle)

	if res := c.dedup.Check(post.Fingerprint); res.Duplicate {
		Log.Infof("duplicate post from %s (exact=%v), dropped", post.ChannelTitle, res.Exact)
		return
	}

	c.bus.Publish(eventbus.TopicNewPost, post)
}

// parseChannelId accepts an integer or a numeric string. Anything else is
// logged and mapped to 0 so that the post still flows.
func parseChannelId(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		Log.Warnf("invalid channel_id %s: %v", string(raw), err)
		return 0
	}
	return id
}

func preview(raw []byte) string {
	const limit = 100
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
