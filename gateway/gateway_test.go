package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/newsflow-io/newsflow/model"
	"github.com/newsflow-io/newsflow/store"
)

func newTestGateway() (*Gateway, *store.FakeStore, *httptest.Server) {
	st := store.NewFakeStore()
	gw := NewGateway(st)
	server := httptest.NewServer(gw)
	return gw, st, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	assert.Nil(t, err)
	return ws
}

func contextWithTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// authenticatedClient registers a token and subscription set in the store and
// runs the handshake for a fresh connection.
func authenticatedClient(t *testing.T, gw *Gateway, st *store.FakeStore, server *httptest.Server, userId string, channels ...string) *websocket.Conn {
	st.SetWithTTL(store.AuthTokenKey("token-"+userId), userId, 0)
	for _, ch := range channels {
		st.SetAdd(store.UserChannelsKey(userId), ch)
	}

	ws := dial(t, server)
	assert.Nil(t, ws.WriteJSON(map[string]string{"token": "token-" + userId}))

	// The handshake is asynchronous from the client's point of view; wait for
	// the connection to reach the live set.
	assert.Eventually(t, func() bool {
		return gw.ActiveConnections() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	return ws
}

func expectCloseCode(t *testing.T, ws *websocket.Conn, code int) {
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	assert.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, code, closeErr.Code)
}

func TestAuthFailureUnknownToken(t *testing.T) {
	gw, _, server := newTestGateway()
	defer server.Close()

	ws := dial(t, server)
	defer ws.Close()

	assert.Nil(t, ws.WriteJSON(map[string]string{"token": "nobody"}))
	expectCloseCode(t, ws, CloseAuthFailure)
	assert.Equal(t, 0, gw.ActiveConnections())
}

func TestAuthFailureMalformedFrame(t *testing.T) {
	gw, _, server := newTestGateway()
	defer server.Close()

	ws := dial(t, server)
	defer ws.Close()

	assert.Nil(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	expectCloseCode(t, ws, CloseAuthFailure)
	assert.Equal(t, 0, gw.ActiveConnections())
}

func TestAuthFailureMissingToken(t *testing.T) {
	_, _, server := newTestGateway()
	defer server.Close()

	ws := dial(t, server)
	defer ws.Close()

	assert.Nil(t, ws.WriteJSON(map[string]string{"other": "field"}))
	expectCloseCode(t, ws, CloseAuthFailure)
}

func TestDeliveryFilteredBySubscription(t *testing.T) {
	gw, st, server := newTestGateway()
	defer server.Close()

	ws := authenticatedClient(t, gw, st, server, "user-1", "42")
	defer ws.Close()

	matching := model.NewPost("market news", "2024-03-14T12:00:00Z", 42, "MarketNews")
	other := model.NewPost("other news", "2024-03-14T12:00:00Z", 99, "OtherNews")

	gw.HandleApproved(other)
	gw.HandleApproved(matching)

	// The first frame the client sees must be the matching post; the channel
	// 99 post is filtered out entirely.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received model.Post
	assert.Nil(t, ws.ReadJSON(&received))
	assert.Equal(t, matching.Id, received.Id)
	assert.Equal(t, int64(42), received.ChannelId)
}

func TestApprovedPostPersistedWithTTL(t *testing.T) {
	gw, st, server := newTestGateway()
	defer server.Close()

	// No subscribers connected: the post is still persisted.
	post := model.NewPost("market news", "2024-03-14T12:00:00Z", 42, "MarketNews")
	gw.HandleApproved(post)

	raw, err := st.Get(store.PostKey(post.Id))
	assert.Nil(t, err)
	assert.Equal(t, PostTTL, st.TTL(store.PostKey(post.Id)))

	var stored model.Post
	assert.Nil(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, post.Id, stored.Id)
}

func TestDeliveryReceiptRecorded(t *testing.T) {
	gw, st, server := newTestGateway()
	defer server.Close()

	ws := authenticatedClient(t, gw, st, server, "user-1", "42")
	defer ws.Close()

	post := model.NewPost("market news", "2024-03-14T12:00:00Z", 42, "MarketNews")
	gw.HandleApproved(post)

	key := store.UserViewedKey("user-1")
	assert.Eventually(t, func() bool {
		members := st.SortedSetMembers(key)
		return len(members) == 1 && members[0] == post.Id
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ViewedTTL, st.TTL(key))
}

func TestDisconnectedClientEvictedOnBroadcast(t *testing.T) {
	gw, st, server := newTestGateway()
	defer server.Close()

	ws := authenticatedClient(t, gw, st, server, "user-1", "42")
	ws.Close()

	// The reader goroutine notices the close shortly.
	assert.Eventually(t, func() bool {
		return gw.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Broadcasting after the disconnect neither errors nor stalls.
	post := model.NewPost("market news", "2024-03-14T12:00:00Z", 42, "MarketNews")
	assert.NotPanics(t, func() { gw.HandleApproved(post) })
}

func TestSendFailureDoesNotAbortBroadcast(t *testing.T) {
	gw, st, server := newTestGateway()
	defer server.Close()

	dead := authenticatedClient(t, gw, st, server, "user-dead", "42")
	live := authenticatedClient(t, gw, st, server, "user-live", "42")
	defer live.Close()

	assert.Eventually(t, func() bool {
		return gw.ActiveConnections() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Kill the first client's socket underneath the gateway.
	dead.Close()

	post := model.NewPost("market news", "2024-03-14T12:00:00Z", 42, "MarketNews")
	gw.HandleApproved(post)

	live.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received model.Post
	assert.Nil(t, live.ReadJSON(&received))
	assert.Equal(t, post.Id, received.Id)
}

func TestShutdownClosesLiveConnections(t *testing.T) {
	gw, st, server := newTestGateway()
	defer server.Close()

	ws := authenticatedClient(t, gw, st, server, "user-1", "42")
	defer ws.Close()

	assert.Nil(t, gw.Shutdown(contextWithTimeout(t)))
	assert.Equal(t, 0, gw.ActiveConnections())

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	assert.NotNil(t, err)
}
