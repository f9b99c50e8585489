package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mahaj/chat-core/pkg/model"
	"github.com/mahaj/chat-core/pkg/router"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxFrameSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client bridges one websocket connection and the router: the read pump
// turns frames into intents, the write pump drains the session's outbound
// queue back onto the socket.
type Client struct {
	router  *router.Router
	session *router.Session
	conn    *websocket.Conn
	limiter *rate.Limiter
	log     zerolog.Logger
}

// readPump pumps frames from the websocket connection into router intents.
// Intents are submitted sequentially, which is what preserves per-connection
// FIFO ordering.
func (c *Client) readPump() {
	defer func() {
		if _, removed, err := c.router.Leave(context.Background(), c.session.ID); err == nil && removed {
			c.log.Debug().Msg("connection left")
		}
		c.conn.Close()
		connectionsGauge.Dec()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}

		var env model.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Debug().Err(err).Msg("malformed frame")
			continue
		}

		switch env.Type {
		case model.EventSendMessage:
			var p model.SendMessagePayload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				continue
			}
			c.handleSendGlobal(p)

		case model.EventPrivateMessage:
			var p model.PrivateMessagePayload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				continue
			}
			c.handleSendDirect(p)

		case model.EventTyping:
			var p model.TypingPayload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				continue
			}
			if err := c.router.SetTyping(context.Background(), c.session.ID, p.Typing); err != nil {
				c.log.Debug().Err(err).Msg("typing intent dropped")
			}

		default:
			c.log.Debug().Str("type", string(env.Type)).Msg("unknown frame type")
		}
	}
}

func (c *Client) handleSendGlobal(p model.SendMessagePayload) {
	if !c.limiter.Allow() {
		c.ack(p.TempID, 0)
		return
	}
	serverID, err := c.router.SendGlobal(context.Background(), c.session.ID, p.Content, p.TempID)
	if err != nil {
		c.log.Debug().Err(err).Msg("global send rejected")
		c.ack(p.TempID, 0)
		return
	}
	messagesTotal.WithLabelValues("global").Inc()
	c.ack(p.TempID, serverID)
}

func (c *Client) handleSendDirect(p model.PrivateMessagePayload) {
	if !c.limiter.Allow() {
		c.ack(p.TempID, 0)
		return
	}
	serverID, err := c.router.SendDirect(context.Background(), c.session.ID, p.To, p.Content, p.TempID)
	if err != nil {
		c.log.Debug().Err(err).Str("to", p.To).Msg("direct send rejected")
		c.ack(p.TempID, 0)
		return
	}
	messagesTotal.WithLabelValues("direct").Inc()
	c.ack(p.TempID, serverID)
}

// ack resolves the sender's pending entry. Exactly one ack goes out per send
// frame; a zero server id signals failure.
func (c *Client) ack(tempID, serverID int64) {
	status := "sent"
	if serverID == 0 {
		status = "failed"
	}
	acksTotal.WithLabelValues(status).Inc()

	frame, err := model.Encode(model.EventAck, model.Ack{TempID: tempID, ServerID: serverID})
	if err != nil {
		c.log.Error().Err(err).Msg("ack encode failed")
		return
	}
	c.session.TrySend(frame)
}

// writePump pumps frames from the session's outbound queue to the websocket
// connection. One goroutine per connection owns all writes.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The router closed the session.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs upgrades the connection, resolves its identity, and joins it to
// the router. Joining happens here, before the pumps start, so every live
// connection is a registered participant.
func (a *app) serveWs(w http.ResponseWriter, r *http.Request) {
	username, err := a.resolveUsername(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if strings.TrimSpace(username) == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	session := router.NewSession(uuid.NewString())
	client := &Client{
		router:  a.router,
		session: session,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(a.cfg.SendRate), a.cfg.SendBurst),
		log:     a.log.With().Str("conn", session.ID).Logger(),
	}

	if _, err := a.router.Join(context.Background(), session, username); err != nil {
		client.log.Error().Err(err).Msg("join failed")
		conn.Close()
		return
	}
	connectionsGauge.Inc()

	go client.writePump()
	go client.readPump()
}

// resolveUsername picks the connection's identity: a validated token when an
// issuer is configured, the plain username query parameter otherwise. The
// username stays opaque either way.
func (a *app) resolveUsername(r *http.Request) (string, error) {
	if a.issuer == nil {
		return r.URL.Query().Get("username"), nil
	}

	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return "", errUnauthorized
	}

	claims, err := a.issuer.ValidateToken(tokenString)
	if err != nil {
		return "", errUnauthorized
	}
	return claims.Username, nil
}
