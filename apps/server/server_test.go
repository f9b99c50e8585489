package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-core/pkg/history"
	"github.com/mahaj/chat-core/pkg/model"
)

func testConfig() *Config {
	return &Config{
		Addr:            ":0",
		HistoryCapacity: 100,
		KafkaTopic:      "chat-messages",
		TokenTTL:        time.Hour,
		SendRate:        1000,
		SendBurst:       1000,
		LogLevel:        "error",
		LogFormat:       "json",
	}
}

func newTestApp(t *testing.T, cfg *Config) *app {
	t.Helper()

	a, cleanup, err := newApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithCancel(context.Background())
	go a.router.Run(ctx)
	t.Cleanup(cancel)

	return a
}

func seedHistory(t *testing.T, a *app, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, a.store.Append(context.Background(), &model.Message{
			ID:        int64(i + 1),
			SenderID:  "conn-seed",
			Sender:    "seeder",
			Content:   "hello",
			Timestamp: time.Now(),
		}))
	}
}

func getPage(t *testing.T, a *app, query string) history.Page {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/messages"+query, nil)
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var page history.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	return page
}

func TestMessagesEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig())
	seedHistory(t, a, 30)

	page := getPage(t, a, "")
	assert.Equal(t, 30, page.Total)
	assert.Len(t, page.Messages, 20)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(11), page.Messages[0].ID)

	page = getPage(t, a, "?limit=5&offset=10")
	assert.Len(t, page.Messages, 5)
	assert.Equal(t, int64(16), page.Messages[0].ID)
	assert.Equal(t, int64(20), page.Messages[4].ID)
	assert.True(t, page.HasMore)

	// Non-numeric values fall back to defaults instead of erroring.
	page = getPage(t, a, "?limit=abc&offset=xyz")
	assert.Len(t, page.Messages, 20)

	page = getPage(t, a, "?offset=30")
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
}

type failingStore struct{}

func (failingStore) Append(context.Context, *model.Message) error {
	return errors.New("store down")
}

func (failingStore) Page(context.Context, int, int) (history.Page, error) {
	return history.Page{}, errors.New("store down")
}

func TestMessagesEndpointDegradesOnStoreFailure(t *testing.T) {
	a := newTestApp(t, testConfig())
	a.store = failingStore{}

	page := getPage(t, a, "")
	assert.Empty(t, page.Messages)
	assert.Equal(t, 0, page.Total)
	assert.False(t, page.HasMore, "store failure degrades to no more history")
}

func TestUsersEndpointEmpty(t *testing.T) {
	a := newTestApp(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []model.Participant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Empty(t, users)
}

func TestServeWsRequiresUsername(t *testing.T) {
	a := newTestApp(t, testConfig())
	ts := httptest.NewServer(a.mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func dialWs(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env model.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func expectFrame(t *testing.T, conn *websocket.Conn, typ model.EventType) json.RawMessage {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, typ, env.Type, "unexpected event type")
	return env.Data
}

func writeFrame(t *testing.T, conn *websocket.Conn, typ model.EventType, payload any) {
	t.Helper()
	frame, err := model.Encode(typ, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestWebsocketEndToEnd(t *testing.T) {
	a := newTestApp(t, testConfig())
	ts := httptest.NewServer(a.mux)
	defer ts.Close()

	alice := dialWs(t, ts, "?username=alice")
	expectFrame(t, alice, model.EventUserList)
	expectFrame(t, alice, model.EventUserJoined)

	bob := dialWs(t, ts, "?username=bob")

	var bobID string
	{
		data := expectFrame(t, alice, model.EventUserList)
		var list []model.Participant
		require.NoError(t, json.Unmarshal(data, &list))
		require.Len(t, list, 2)
		bobID = list[1].ID

		expectFrame(t, alice, model.EventUserJoined)
		expectFrame(t, bob, model.EventUserList)
		expectFrame(t, bob, model.EventUserJoined)
	}

	// Global message: broadcast to both, ack to the sender.
	writeFrame(t, alice, model.EventSendMessage, model.SendMessagePayload{Content: "hi", TempID: 1000})

	var serverID int64
	{
		data := expectFrame(t, alice, model.EventReceiveMessage)
		var msg model.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "alice", msg.Sender)
		serverID = msg.ID

		data = expectFrame(t, alice, model.EventAck)
		var ack model.Ack
		require.NoError(t, json.Unmarshal(data, &ack))
		assert.Equal(t, int64(1000), ack.TempID)
		assert.Equal(t, serverID, ack.ServerID)

		data = expectFrame(t, bob, model.EventReceiveMessage)
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "hi", msg.Content)
	}

	// The acked message is visible through the read API.
	page := getPage(t, a, "")
	require.Len(t, page.Messages, 1)
	assert.Equal(t, serverID, page.Messages[0].ID)

	// Direct message: recipient delivery, sender echo, sender ack. Not
	// persisted.
	writeFrame(t, alice, model.EventPrivateMessage, model.PrivateMessagePayload{To: bobID, Content: "secret", TempID: 1001})
	{
		data := expectFrame(t, bob, model.EventPrivateMessage)
		var msg model.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "secret", msg.Content)
		assert.True(t, msg.Private)

		expectFrame(t, alice, model.EventPrivateMessage)

		data = expectFrame(t, alice, model.EventAck)
		var ack model.Ack
		require.NoError(t, json.Unmarshal(data, &ack))
		assert.Equal(t, int64(1001), ack.TempID)
		assert.Positive(t, ack.ServerID)
	}

	page = getPage(t, a, "")
	assert.Equal(t, 1, page.Total, "direct messages are not persisted")

	// Typing indicator fans out to everyone.
	writeFrame(t, bob, model.EventTyping, model.TypingPayload{Typing: true})
	{
		data := expectFrame(t, alice, model.EventTypingUsers)
		var typing []string
		require.NoError(t, json.Unmarshal(data, &typing))
		assert.Equal(t, []string{"bob"}, typing)
		expectFrame(t, bob, model.EventTypingUsers)
	}

	// Bob disconnects: alice sees the departure and a DM to the dead id
	// acks failed.
	bob.Close()
	{
		data := expectFrame(t, alice, model.EventUserLeft)
		var p model.Participant
		require.NoError(t, json.Unmarshal(data, &p))
		assert.Equal(t, "bob", p.Username)

		expectFrame(t, alice, model.EventUserList)

		data = expectFrame(t, alice, model.EventTypingUsers)
		var typing []string
		require.NoError(t, json.Unmarshal(data, &typing))
		assert.Empty(t, typing, "stale typing entry removed on disconnect")
	}

	writeFrame(t, alice, model.EventPrivateMessage, model.PrivateMessagePayload{To: bobID, Content: "still there?", TempID: 1002})
	{
		data := expectFrame(t, alice, model.EventAck)
		var ack model.Ack
		require.NoError(t, json.Unmarshal(data, &ack))
		assert.Equal(t, int64(1002), ack.TempID)
		assert.Zero(t, ack.ServerID, "unavailable recipient acks failed")
	}
}

func TestInvalidContentAcksFailed(t *testing.T) {
	a := newTestApp(t, testConfig())
	ts := httptest.NewServer(a.mux)
	defer ts.Close()

	alice := dialWs(t, ts, "?username=alice")
	expectFrame(t, alice, model.EventUserList)
	expectFrame(t, alice, model.EventUserJoined)

	writeFrame(t, alice, model.EventSendMessage, model.SendMessagePayload{Content: "   ", TempID: 7})

	data := expectFrame(t, alice, model.EventAck)
	var ack model.Ack
	require.NoError(t, json.Unmarshal(data, &ack))
	assert.Equal(t, int64(7), ack.TempID)
	assert.Zero(t, ack.ServerID)

	page := getPage(t, a, "")
	assert.Equal(t, 0, page.Total, "rejected content mutates nothing")
}

func TestLoginIssuesUsableToken(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "test-secret"
	a := newTestApp(t, cfg)
	ts := httptest.NewServer(a.mux)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/login", "application/json", strings.NewReader(`{"username":"alice"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.Token)

	// Token connects; a bare username does not once a secret is set.
	conn := dialWs(t, ts, "?token="+login.Token)
	expectFrame(t, conn, model.EventUserList)

	resp2, err := http.Get(ts.URL + "/ws?username=alice")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}
