// Package realtime pushes seat and booking changes to websocket clients grouped in rooms.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

const (
	EventSeatStatusChanged    = "seatStatusChanged"
	EventBookingStatusChanged = "bookingStatusChanged"
	EventBookingCreated       = "bookingCreated"
	EventSeatClaimed          = "seatClaimed"
	EventSeatReleased         = "seatReleased"
	EventJoined               = "joined"
	EventLeft                 = "left"
	EventError                = "error"

	sendBufferSize = 64
)

type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

func TripRoom(tripID string) string {
	return "trip:" + tripID
}

func BookingRoom(bookingID string) string {
	return "booking:" + bookingID
}

type SeatClaimer interface {
	Claim(ctx context.Context, userID, tripID, seatID string) (entity.Reservation, error)
	Release(ctx context.Context, userID, tripID, seatID string) error
}

// Envelope is every frame the server writes.
type Envelope struct {
	Event     string `json:"event"`
	Room      string `json:"room,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type Hub struct {
	claims SeatClaimer

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(claims SeatClaimer) *Hub {
	if claims == nil {
		panic("seat claimer must be set")
	}

	return &Hub{
		claims: claims,
		rooms:  make(map[string]map[*Client]struct{}),
	}
}

// Publish sends the event to every client in the room. Clients that cannot keep
// up are disconnected rather than slowing down the publisher.
func (h *Hub) Publish(ctx context.Context, room, event string, payload any) error {
	frame, err := json.Marshal(Envelope{Event: event, Room: room, Data: payload})
	if err != nil {
		return fmt.Errorf("could not marshal %s: %w", event, err)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(frame) {
			log.FromContext(ctx).WithField("room", room).Warn("Dropping slow websocket client")
			h.disconnect(c)
		}
	}

	return nil
}

// RoomSize returns how many clients are in the room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

// Serve runs the connection until the client goes away or ctx is done.
// identity is the owner of the seat claims the client makes.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, identity string) {
	c := newClient(h, conn, identity)
	logger := log.FromContext(ctx).WithFields(logrus.Fields{"client": identity})
	ctx = log.ToContext(ctx, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	c.readPump(ctx)
	h.disconnect(c)
	<-done
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoom(c, room)
}

func (h *Hub) removeFromRoom(c *Client, room string) {
	delete(c.rooms, room)
	clients, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for room := range c.rooms {
		h.removeFromRoom(c, room)
	}
	close(c.send)
}
