package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/gorilla/websocket"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

const (
	ActionJoin        = "join"
	ActionLeave       = "leave"
	ActionClaimSeat   = "claimSeat"
	ActionReleaseSeat = "releaseSeat"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// ClientMessage is every frame a client may send.
type ClientMessage struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
	Room      string `json:"room,omitempty"`
	TripID    string `json:"trip_id,omitempty"`
	SeatID    string `json:"seat_id,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	SeatID  string `json:"seat_id,omitempty"`
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity string
	send     chan []byte

	// guarded by hub.mu
	rooms  map[string]struct{}
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, identity string) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBufferSize),
		rooms:    make(map[string]struct{}),
	}
}

// enqueue reports false when the client is gone or its buffer is full.
func (c *Client) enqueue(frame []byte) (ok bool) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) reply(env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.FromContext(ctx).WithError(err).Debug("Websocket closed unexpectedly")
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.reply(Envelope{Event: EventError, Data: ErrorData{Code: "invalid_message", Message: err.Error()}})
				continue
			}
			return
		}

		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Action {
	case ActionJoin:
		if !validRoom(msg.Room) {
			c.fail(msg, "invalid_room", "room must be trip:<id> or booking:<id>")
			return
		}
		c.hub.join(c, msg.Room)
		c.reply(Envelope{Event: EventJoined, Room: msg.Room, RequestID: msg.RequestID})

	case ActionLeave:
		c.hub.leave(c, msg.Room)
		c.reply(Envelope{Event: EventLeft, Room: msg.Room, RequestID: msg.RequestID})

	case ActionClaimSeat:
		r, err := c.hub.claims.Claim(ctx, c.identity, msg.TripID, msg.SeatID)
		if err != nil {
			c.failWith(ctx, msg, err)
			return
		}
		c.reply(Envelope{Event: EventSeatClaimed, RequestID: msg.RequestID, Data: r})

	case ActionReleaseSeat:
		if err := c.hub.claims.Release(ctx, c.identity, msg.TripID, msg.SeatID); err != nil {
			c.failWith(ctx, msg, err)
			return
		}
		c.reply(Envelope{Event: EventSeatReleased, RequestID: msg.RequestID, Data: msg})

	default:
		c.fail(msg, "unknown_action", "unknown action "+msg.Action)
	}
}

func (c *Client) fail(msg ClientMessage, code, message string) {
	c.reply(Envelope{
		Event:     EventError,
		RequestID: msg.RequestID,
		Data:      ErrorData{Code: code, Message: message, SeatID: msg.SeatID},
	})
}

func (c *Client) failWith(ctx context.Context, msg ClientMessage, err error) {
	code := ErrorCode(err)
	if code == "internal" {
		log.FromContext(ctx).WithError(err).WithField("seat_id", msg.SeatID).Error("Seat claim failed")
		c.fail(msg, code, "internal error")
		return
	}
	c.fail(msg, code, err.Error())
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

func validRoom(room string) bool {
	kind, id, ok := strings.Cut(room, ":")
	return ok && id != "" && (kind == "trip" || kind == "booking")
}

// ErrorCode maps claim errors to the codes sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, entity.ErrSeatUnavailable):
		return "seat_unavailable"
	case errors.Is(err, entity.ErrClaimLimitExceeded):
		return "claim_limit_exceeded"
	case errors.Is(err, entity.ErrSeatsInvalid):
		return "seat_invalid"
	case errors.Is(err, entity.ErrTripNotFound):
		return "trip_not_found"
	case errors.Is(err, entity.ErrTripNotBookable), errors.Is(err, entity.ErrTripDeparted):
		return "trip_not_bookable"
	case entity.IsValidation(err):
		return "invalid_request"
	default:
		return "internal"
	}
}
