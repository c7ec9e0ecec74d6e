package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/campus-voting/internal/application"
)

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	kind     application.PrincipalKind
	identity string
	send     chan Envelope
	done     chan struct{}
	once     sync.Once
}

// wants reports whether the event is visible to this connection. Targeted
// events go to their target only, except that admins also observe events
// addressed to students. Students see untargeted leaderboard changes.
func (c *client) wants(env Envelope) bool {
	if env.Target != "" {
		if env.Target == c.identity {
			return true
		}
		return c.kind == application.PrincipalAdmin && strings.HasPrefix(env.Target, string(application.PrincipalStudent)+":")
	}
	if c.kind == application.PrincipalAdmin {
		return true
	}
	return env.Type == application.EventLeaderboardChanged
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readLoop discards inbound messages and returns when the peer goes away.
func (c *client) readLoop() {
	c.conn.SetReadLimit(maxInboundMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop sends the replay, then live events, skipping live events the
// replay already covered.
func (c *client) writeLoop(replay []Envelope) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	var lastSeq int64
	for _, env := range replay {
		if err := c.write(env); err != nil {
			return
		}
		lastSeq = max(lastSeq, env.Seq)
	}

	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			if env.Seq != 0 && env.Seq <= lastSeq {
				continue
			}
			if err := c.write(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(env Envelope) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}
