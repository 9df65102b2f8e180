package ws

import (
	"context"

	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/metrics"
)

// BroadcastToRoom sends ev to every open socket of every member of roomID, except the
// sockets of excludeUserID (0 = nobody excluded). Members without sockets are skipped.
func (h *Hub) BroadcastToRoom(ctx context.Context, roomID int64, ev Event, excludeUserID int64) {
	memberIDs, err := h.rooms.GetMemberIDs(ctx, roomID)
	if err != nil {
		logger.Errorf("ws broadcast members room=%d: %v", roomID, err)
		return
	}
	data, err := ev.MarshalJSON()
	if err != nil {
		logger.Errorf("ws broadcast encode %s room=%d: %v", ev.Type(), roomID, err)
		return
	}
	for _, uid := range memberIDs {
		if excludeUserID != 0 && uid == excludeUserID {
			continue
		}
		for _, c := range h.userClients(uid) {
			h.sendToClient(c, data, ev.Type())
		}
	}
}

// BroadcastUserStatus tells every socket not owned by userID that userID went on/offline.
func (h *Hub) BroadcastUserStatus(userID int64, online bool) {
	ev := Event{Payload: UserStatusPayload{UserID: userID, IsOnline: online, Timestamp: h.now().UTC()}}
	data, err := ev.MarshalJSON()
	if err != nil {
		logger.Errorf("ws encode user_status user=%d: %v", userID, err)
		return
	}
	for _, c := range h.snapshot(userID) {
		h.sendToClient(c, data, EventUserStatus)
	}
}

// sendTo queues one event for a single socket.
func (h *Hub) sendTo(c *Client, ev Event) {
	data, err := ev.MarshalJSON()
	if err != nil {
		logger.Errorf("ws encode %s user=%d conn=%s: %v", ev.Type(), c.userID, c.id, err)
		return
	}
	h.sendToClient(c, data, ev.Type())
}

func (h *Hub) sendError(c *Client, msg string) {
	h.sendTo(c, Event{Payload: ErrorPayload{Message: msg}})
}

// sendToClient never blocks: sockets that are not open are skipped and a socket whose
// buffer is full is dropped as a slow consumer.
func (h *Hub) sendToClient(c *Client, data []byte, typ EventType) {
	if !c.isOpen() {
		return
	}
	select {
	case c.send <- data:
		metrics.WSEventsSent.WithLabelValues(string(typ)).Inc()
	default:
		logger.Warnf("ws send buffer full, closing slow client user=%d conn=%s", c.userID, c.id)
		c.terminate(reasonSlowConsumer)
		go h.Unregister(c)
	}
}
