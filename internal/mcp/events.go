package mcp

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roelfdiedericks/wamcp/internal/bus"
	. "github.com/roelfdiedericks/wamcp/internal/logging"
	"github.com/roelfdiedericks/wamcp/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	// snapshotBuffer bounds how many snapshots may wait for a slow client.
	snapshotBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth is the shared key, not the browser origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSessionEvents streams session snapshots: the current one first, then
// one per state change until either side closes.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_debug("mcp: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	snapshots := make(chan session.Snapshot, snapshotBuffer)
	id := bus.SubscribeEvent(bus.TopicSessionState, func(ev bus.Event) {
		snap, ok := ev.Data.(session.Snapshot)
		if !ok {
			return
		}
		select {
		case snapshots <- snap:
		default:
			L_warn("mcp: session stream client too slow, dropping snapshot")
		}
	})
	defer bus.UnsubscribeEvent(id)

	L_debug("mcp: session stream opened", "ip", r.RemoteAddr)
	defer L_debug("mcp: session stream closed", "ip", r.RemoteAddr)

	// The read loop only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeSnapshot(conn, s.cfg.Session.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap := <-snapshots:
			if err := writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap session.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(snap); err != nil {
		L_debug("mcp: session stream write failed", "error", err)
		return err
	}
	return nil
}
