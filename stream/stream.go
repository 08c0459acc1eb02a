// Package stream pushes readings to browsers over websockets.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

type Hub struct {
	upgrader websocket.Upgrader
	lock     sync.Mutex
	clients  map[*websocket.Conn]struct{}
	last     interface{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the client until it goes away.
// New clients get the most recent message straight away.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logger.Errorf("Websocket upgrade failed [%v]", err)
		return
	}

	h.lock.Lock()
	h.clients[conn] = struct{}{}
	if h.last != nil {
		h.write(conn, h.last)
	}
	h.lock.Unlock()
	logger.Infof("Websocket client [%v] connected", r.RemoteAddr)

	// we never expect anything from the client, read only to notice it closing
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
}

// Broadcast sends v as JSON to every client, dropping any that fail.
func (h *Hub) Broadcast(v interface{}) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.last = v
	for c := range h.clients {
		h.write(c, v)
	}
}

// write must be called with the lock held.
func (h *Hub) write(c *websocket.Conn, v interface{}) {
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteJSON(v); err != nil {
		logger.Debugf("Dropping websocket client [%v] [%v]", c.RemoteAddr(), err)
		delete(h.clients, c)
		_ = c.Close()
	}
}

func (h *Hub) remove(c *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.clients, c)
	_ = c.Close()
}

func (h *Hub) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		_ = c.Close()
		delete(h.clients, c)
	}
}
