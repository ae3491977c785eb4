package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// NewUpgrader accepts connections from allowedOrigin, and from clients that
// send no Origin header at all.
func NewUpgrader(allowedOrigin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
}

// Client forwards the frames of its subscriptions to one websocket
// connection. Clients only listen; anything they send is discarded.
type Client struct {
	conn *websocket.Conn
	subs []*Subscription
	send chan []byte
	done chan struct{}
	log  zerolog.Logger
}

// ServeWs upgrades the request and streams the given topics until the
// connection closes. Callers must have checked the user may see each topic.
func ServeWs(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, topics []string, log zerolog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
		log:  log,
	}
	var wg sync.WaitGroup
	for _, topic := range topics {
		sub := hub.Subscribe(topic)
		client.subs = append(client.subs, sub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.forward(sub)
		}()
	}
	go func() {
		wg.Wait()
		close(client.send)
	}()

	go client.writePump()
	go client.readPump()
}

func (c *Client) forward(sub *Subscription) {
	for {
		select {
		case frame, ok := <-sub.Updates():
			if !ok {
				return
			}
			select {
			case c.send <- frame:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump watches the connection for close and keeps the read deadline
// moving on pongs.
func (c *Client) readPump() {
	defer func() {
		close(c.done)
		for _, sub := range c.subs {
			sub.Unsubscribe()
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("websocket write error")
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
