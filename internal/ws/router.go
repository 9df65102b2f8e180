package ws

import (
	"context"
	"errors"
	"time"

	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/metrics"
	"github.com/labwatch/internal/model"
	"github.com/labwatch/internal/repository"
)

// HandleFrame decodes one inbound frame and runs its handler. Failures are answered on
// c only; the connection stays open.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	cmd, err := DecodeCommand(raw)
	if err != nil {
		h.rejectFrame(c, err)
		return
	}

	typ := cmd.commandType()
	metrics.WSFramesReceived.WithLabelValues(typ).Inc()
	start := time.Now()
	defer func() {
		metrics.WSHandlerDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	}()

	switch cmd := cmd.(type) {
	case *SendMessage:
		h.handleSendMessage(ctx, c, cmd)
	case *Typing:
		h.handleTyping(ctx, c, cmd)
	case *Read:
		h.handleRead(ctx, c, cmd)
	}
}

func (h *Hub) rejectFrame(c *Client, err error) {
	var pe *PayloadError
	switch {
	case errors.Is(err, ErrUnknownType):
		metrics.WSFramesReceived.WithLabelValues("unknown").Inc()
		logger.Debugf("ws user=%d conn=%s: %v", c.userID, c.id, err)
		h.sendError(c, msgUnknownType)
	case errors.As(err, &pe):
		metrics.WSFramesReceived.WithLabelValues(pe.Type).Inc()
		// typing and read are advisory: bad payloads are dropped silently
		if pe.Type == CmdSendMessage {
			logger.Debugf("ws user=%d conn=%s: %v", c.userID, c.id, err)
			h.sendError(c, pe.Message)
		}
	default:
		metrics.WSFramesReceived.WithLabelValues("malformed").Inc()
		logger.Infof("ws malformed frame user=%d conn=%s: %v", c.userID, c.id, err)
		h.sendError(c, msgInvalidFrame)
	}
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, cmd *SendMessage) {
	defer logger.DeferLogDuration("ws.handleSendMessage", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	room, err := h.guard.Authorize(ctx, cmd.RoomID, c.userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRoomNotFound):
			logger.Infof("ws send_message user=%d room=%d: room not found", c.userID, cmd.RoomID)
			h.sendError(c, msgRoomNotFound)
		case errors.Is(err, ErrNotMember):
			logger.Infof("ws send_message user=%d room=%d: not a member", c.userID, cmd.RoomID)
			h.sendError(c, msgNotMember)
		default:
			logger.Errorf("ws send_message authorize user=%d room=%d: %v", c.userID, cmd.RoomID, err)
			h.sendError(c, msgSendFailed)
		}
		return
	}

	var reply *model.ChatMessage
	if cmd.ReplyTo != nil {
		reply, err = h.messages.GetByID(ctx, *cmd.ReplyTo)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			logger.Errorf("ws send_message reply target %d: %v", *cmd.ReplyTo, err)
			h.sendError(c, msgSendFailed)
			return
		}
		if reply == nil || reply.RoomID != room.ID {
			h.sendError(c, msgReplyMissing)
			return
		}
	}

	msgType := cmd.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	now := h.now().UTC()
	m := &model.ChatMessage{
		RoomID:    room.ID,
		SenderID:  c.userID,
		Type:      msgType,
		Content:   cmd.Content,
		CreatedAt: now,
		UpdatedAt: now,
		ReplyToID: cmd.ReplyTo,
	}
	if err := h.messages.Create(ctx, m); err != nil {
		logger.Errorf("ws save message room=%d user=%d: %v", room.ID, c.userID, err)
		h.sendError(c, msgSendFailed)
		return
	}
	if err := h.rooms.TouchLastMessage(ctx, room.ID, now); err != nil {
		logger.Errorf("ws touch room=%d: %v", room.ID, err)
	}

	sender, err := h.users.GetByID(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws get sender user=%d: %v", c.userID, err)
	} else {
		pub := sender.ToPublic()
		m.Sender = &pub
	}
	if reply != nil {
		m.ReplyMessage = reply.Preview()
	}

	h.BroadcastToRoom(ctx, room.ID, Event{RoomID: room.ID, Payload: (*MessagePayload)(m)}, 0)
}

func (h *Hub) handleTyping(ctx context.Context, c *Client, cmd *Typing) {
	ctx, cancel := context.WithTimeout(ctx, typingTimeout)
	defer cancel()

	if _, err := h.guard.Authorize(ctx, cmd.RoomID, c.userID); err != nil {
		logger.Debugf("ws typing user=%d room=%d dropped: %v", c.userID, cmd.RoomID, err)
		return
	}
	h.BroadcastToRoom(ctx, cmd.RoomID, Event{RoomID: cmd.RoomID, Payload: TypingPayload{UserID: c.userID}}, c.userID)
}

func (h *Hub) handleRead(ctx context.Context, c *Client, cmd *Read) {
	defer logger.DeferLogDuration("ws.handleRead", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if _, err := h.guard.Authorize(ctx, cmd.RoomID, c.userID); err != nil {
		logger.Debugf("ws read user=%d room=%d dropped: %v", c.userID, cmd.RoomID, err)
		return
	}
	now := h.now().UTC()
	if err := h.rooms.UpdateMemberLastRead(ctx, cmd.RoomID, c.userID, now); err != nil {
		logger.Errorf("ws read receipt room=%d user=%d: %v", cmd.RoomID, c.userID, err)
		return
	}
	h.BroadcastToRoom(ctx, cmd.RoomID, Event{RoomID: cmd.RoomID, Payload: ReadPayload{UserID: c.userID, Timestamp: now}}, 0)
}
