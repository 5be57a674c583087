package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = wsPongWait * 9 / 10
	wsMaxReadSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if originAllowed(origin, r.Host) {
			return true
		}
		slog.Warn("rejected WebSocket connection", "origin", origin, "host", r.Host)
		return false
	},
}

// originAllowed accepts same-origin requests (no Origin header or a matching
// host) and dashboards served from loopback or private addresses.
func originAllowed(origin, requestHost string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// Conn is an upgraded dashboard connection. Reads and writes must each come
// from a single goroutine.
type Conn struct {
	ws *websocket.Conn
}

// PingPeriod is how often the writer should call Ping.
const PingPeriod = wsPingPeriod

// Upgrade switches the request to WebSocket and arms the pong deadline.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(wsMaxReadSize)
	extend := func(string) error { return ws.SetReadDeadline(time.Now().Add(wsPongWait)) }
	_ = extend("")
	ws.SetPongHandler(extend)
	return &Conn{ws: ws}, nil
}

// ReadCommand blocks for the next client command.
func (c *Conn) ReadCommand(cmd *WSCommand) error {
	return c.ws.ReadJSON(cmd)
}

// Write sends one JSON message.
func (c *Conn) Write(v any) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// Ping sends a keepalive; a missing pong ends the next read.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// Close tears down the connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
