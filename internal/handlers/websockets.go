package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"timebased_cover/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB

	// The resync interval only re-sends the full list so a client that
	// missed dropped updates converges. Live changes are pushed as they happen.
	defaultResync = 30 * time.Second
	minResync     = time.Second
	maxResync     = 5 * time.Minute
)

// Message types on the socket.
const (
	wsTypeCovers = "covers" // full list, on connect and every resync
	wsTypeCover  = "cover"  // one cover changed
)

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConnect streams cover state: the full list on connect, then every
// controller update as soon as it is published.
func (h *Handler) wsConnect(c *gin.Context) {
	resync := h.parseResync(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	// Subscribe before the initial list so nothing falls in between.
	var feed <-chan models.CoverState
	if h.services.Updates != nil {
		ch, cancel := h.services.Subscribe()
		defer cancel()
		feed = ch
	}

	ticker := time.NewTicker(resync)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	ctx := c.Request.Context()
	if err := h.sendList(ctx, conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case st, ok := <-feed:
			if !ok {
				return
			}
			if err := writeEnvelope(conn, wsEnvelope{Type: wsTypeCover, Data: st}); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "cover", st.ID, "err", err)
				}
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := h.sendList(ctx, conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// parseResync reads ?resync=30s or ?resync_ms=30000, clamped to
// [minResync, maxResync]. Anything unparsable falls back to the default.
func (h *Handler) parseResync(c *gin.Context) time.Duration {
	d := defaultResync
	if s := c.Query("resync"); s != "" {
		if v, err := time.ParseDuration(s); err == nil && v > 0 {
			d = v
		}
	} else if ms := c.Query("resync_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			d = time.Duration(v) * time.Millisecond
		}
	}
	switch {
	case d < minResync:
		return minResync
	case d > maxResync:
		return maxResync
	}
	return d
}

// startReader drains incoming frames so control messages are handled and
// a closed connection is noticed.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

func (h *Handler) sendList(ctx context.Context, conn *websocket.Conn) error {
	states, err := h.services.Monitoring.ListStates(ctx)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_list_states_failed", "err", err)
		}
		return err
	}
	return writeEnvelope(conn, wsEnvelope{Type: wsTypeCovers, Data: states})
}

func writeEnvelope(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
