package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/newsflow-io/newsflow/model"
	"github.com/newsflow-io/newsflow/store"
	. "github.com/newsflow-io/newsflow/utils/log"
)

const (
	// CloseAuthFailure is the application close code sent when the first
	// client frame does not resolve to a known user, distinguishable from
	// normal closure.
	CloseAuthFailure = 4001

	authTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second

	// PostTTL bounds how long an approved post stays retrievable in the
	// external store.
	PostTTL = 24 * time.Hour
	// ViewedTTL bounds how long per-user delivery receipts are retained.
	ViewedTTL = 48 * time.Hour
)

// authFrame is the required first client->server message.
type authFrame struct {
	Token string `json:"token"`
}

// Gateway accepts subscriber websocket connections, authenticates each
// against the external store, and fans approved posts out to every live
// connection subscribed to the post's channel.
type Gateway struct {
	store    store.Store
	registry *registry
	upgrader websocket.Upgrader
	server   *http.Server
}

func NewGateway(st store.Store) *Gateway {
	return &Gateway{
		store:    st,
		registry: newRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades one subscriber connection and runs its lifecycle:
// Connecting -> Authenticating -> Active -> Closed.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Errorf("fail to upgrade subscriber connection: %v", err)
		return
	}

	conn, err := g.authenticate(ws)
	if err != nil {
		Log.Warnf("subscriber authentication failed: %v", err)
		return
	}

	g.registry.add(conn)
	Log.Infof("subscriber active: user %s, %d channels", conn.userId, len(conn.channels))

	// Reader loop: the protocol requires no further client frames, so
	// inbound messages are drained until the connection breaks.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	g.dropConnection(conn)
}

// authenticate reads the first client frame, resolves the token to a user via
// the external store and loads the user's subscription set. Auth failures
// close the socket with CloseAuthFailure before any post could be delivered;
// store outages close with an internal-error code instead, since the client
// presented a token we could not verify either way.
func (g *Gateway) authenticate(ws *websocket.Conn) (*connection, error) {
	ws.SetReadDeadline(time.Now().Add(authTimeout))

	_, raw, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, errors.Wrap(err, "fail to read auth frame")
	}

	var frame authFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Token == "" {
		closeWith(ws, CloseAuthFailure, "authentication failed")
		return nil, errors.New("missing or malformed auth token")
	}

	userId, err := g.store.Get(store.AuthTokenKey(frame.Token))
	if err == store.ErrNotFound {
		closeWith(ws, CloseAuthFailure, "authentication failed")
		return nil, errors.New("unknown auth token")
	}
	if err != nil {
		closeWith(ws, websocket.CloseInternalServerErr, "store unavailable")
		return nil, errors.Wrap(err, "fail to resolve auth token")
	}

	channelIds, err := g.store.SetMembersInt(store.UserChannelsKey(userId))
	if err != nil {
		closeWith(ws, websocket.CloseInternalServerErr, "store unavailable")
		return nil, errors.Wrapf(err, "fail to load subscriptions for user %s", userId)
	}

	channels := make(map[int64]struct{}, len(channelIds))
	for _, id := range channelIds {
		channels[id] = struct{}{}
	}

	// Auth is done, drop the handshake deadline.
	ws.SetReadDeadline(time.Time{})

	return &connection{
		id:       uuid.New().String(),
		userId:   userId,
		channels: channels,
		ws:       ws,
	}, nil
}

// HandleApproved is the bus handler for approved posts. It persists the post
// with a bounded TTL regardless of who is connected, then delivers it to
// every live connection subscribed to the post's channel. A failed send
// evicts that connection and moves on; a successful send records a delivery
// receipt off the broadcast path.
func (g *Gateway) HandleApproved(post *model.Post) {
	payload, err := json.Marshal(post)
	if err != nil {
		Log.Errorf("fail to serialize post %s: %v", post.Id, err)
		return
	}

	if err := g.store.SetWithTTL(store.PostKey(post.Id), string(payload), PostTTL); err != nil {
		Log.Errorf("fail to persist post %s: %v", post.Id, err)
	}

	for _, conn := range g.registry.snapshot() {
		if !conn.subscribedTo(post.ChannelId) {
			continue
		}
		if err := conn.send(payload, writeTimeout); err != nil {
			Log.Warnf("send to user %s failed, dropping connection: %v", conn.userId, err)
			g.dropConnection(conn)
			continue
		}
		go g.recordReceipt(conn.userId, post.Id)
	}
}

// recordReceipt stores a durable "already seen" marker for the user/post
// pair. Best-effort: a store outage only loses the receipt.
func (g *Gateway) recordReceipt(userId, postId string) {
	key := store.UserViewedKey(userId)
	score := float64(time.Now().Unix())
	if err := g.store.SortedSetAddWithTTL(key, postId, score, ViewedTTL); err != nil {
		Log.Errorf("fail to record delivery receipt for user %s: %v", userId, err)
	}
}

// dropConnection removes conn from the live set and closes the socket. Safe
// to call from the broadcast and reader paths concurrently.
func (g *Gateway) dropConnection(conn *connection) {
	if g.registry.remove(conn.id) {
		Log.Infof("subscriber disconnected: user %s", conn.userId)
	}
	conn.close()
}

// ActiveConnections returns the current number of live subscriber
// connections. Thread-safe.
func (g *Gateway) ActiveConnections() int {
	return g.registry.count()
}

// ListenAndServe binds the subscriber-facing listener. It blocks until
// Shutdown is called or the listener fails.
func (g *Gateway) ListenAndServe(addr string) error {
	g.server = &http.Server{Addr: addr, Handler: g}
	Log.Infof("subscriber gateway listening on %s", addr)
	err := g.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and closes every live one.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var err error
	if g.server != nil {
		err = g.server.Shutdown(ctx)
	}
	for _, conn := range g.registry.snapshot() {
		g.dropConnection(conn)
	}
	return err
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeTimeout)
	ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	ws.Close()
}
