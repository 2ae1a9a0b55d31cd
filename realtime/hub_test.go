package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giaotrandev/booking-app-sub000/entity"
	"github.com/giaotrandev/booking-app-sub000/realtime"
)

type claimerFake struct {
	mu     sync.Mutex
	owners map[string]string
}

func (f *claimerFake) Claim(_ context.Context, userID, tripID, seatID string) (entity.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if owner, ok := f.owners[seatID]; ok && owner != userID {
		return entity.Reservation{}, entity.ErrSeatUnavailable
	}
	f.owners[seatID] = userID
	return entity.Reservation{ID: "r-" + seatID, UserID: userID, TripID: tripID, SeatID: seatID}, nil
}

func (f *claimerFake) Release(_ context.Context, userID, _, seatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.owners[seatID] == userID {
		delete(f.owners, seatID)
	}
	return nil
}

func startHub(t *testing.T) (*realtime.Hub, string) {
	t.Helper()

	hub := realtime.NewHub(&claimerFake{owners: map[string]string{}})
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := realtime.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		wg.Add(1)
		defer wg.Done()
		hub.Serve(ctx, conn, r.URL.Query().Get("client_id"))
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		wg.Wait()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, clientID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url+"?client_id="+clientID, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

type frame struct {
	Event     string          `json:"event"`
	Room      string          `json:"room"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func send(t *testing.T, conn *websocket.Conn, msg realtime.ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestHub_Publish_reaches_room_members_only(t *testing.T) {
	hub, url := startHub(t)
	room := realtime.TripRoom("trip-1")

	member := dial(t, url, "alice")
	outsider := dial(t, url, "bob")

	send(t, member, realtime.ClientMessage{Action: realtime.ActionJoin, Room: room, RequestID: "1"})
	joined := read(t, member)
	assert.Equal(t, realtime.EventJoined, joined.Event)
	assert.Equal(t, "1", joined.RequestID)

	send(t, outsider, realtime.ClientMessage{Action: realtime.ActionJoin, Room: realtime.TripRoom("trip-2")})
	read(t, outsider)

	require.NoError(t, hub.Publish(context.Background(), room, realtime.EventSeatStatusChanged, map[string]string{
		"seat_id": "A1",
		"status":  "RESERVED",
	}))

	f := read(t, member)
	assert.Equal(t, realtime.EventSeatStatusChanged, f.Event)
	assert.Equal(t, room, f.Room)
	assert.JSONEq(t, `{"seat_id":"A1","status":"RESERVED"}`, string(f.Data))

	// nothing arrives outside the room
	require.NoError(t, outsider.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := outsider.ReadMessage()
	assert.Error(t, err)
}

func TestHub_claim_and_release(t *testing.T) {
	_, url := startHub(t)

	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	send(t, alice, realtime.ClientMessage{Action: realtime.ActionClaimSeat, TripID: "trip-1", SeatID: "A1", RequestID: "c1"})
	claimed := read(t, alice)
	assert.Equal(t, realtime.EventSeatClaimed, claimed.Event)
	assert.Equal(t, "c1", claimed.RequestID)

	var r entity.Reservation
	require.NoError(t, json.Unmarshal(claimed.Data, &r))
	assert.Equal(t, "alice", r.UserID)

	send(t, bob, realtime.ClientMessage{Action: realtime.ActionClaimSeat, TripID: "trip-1", SeatID: "A1"})
	rejected := read(t, bob)
	assert.Equal(t, realtime.EventError, rejected.Event)

	var errData realtime.ErrorData
	require.NoError(t, json.Unmarshal(rejected.Data, &errData))
	assert.Equal(t, "seat_unavailable", errData.Code)
	assert.Equal(t, "A1", errData.SeatID)

	send(t, alice, realtime.ClientMessage{Action: realtime.ActionReleaseSeat, TripID: "trip-1", SeatID: "A1"})
	assert.Equal(t, realtime.EventSeatReleased, read(t, alice).Event)

	send(t, bob, realtime.ClientMessage{Action: realtime.ActionClaimSeat, TripID: "trip-1", SeatID: "A1"})
	assert.Equal(t, realtime.EventSeatClaimed, read(t, bob).Event)
}

func TestHub_rejects_invalid_messages(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url, "alice")

	send(t, conn, realtime.ClientMessage{Action: realtime.ActionJoin, Room: "lobby"})
	f := read(t, conn)
	assert.Equal(t, realtime.EventError, f.Event)
	assert.Contains(t, string(f.Data), "invalid_room")

	send(t, conn, realtime.ClientMessage{Action: "dance"})
	f = read(t, conn)
	assert.Contains(t, string(f.Data), "unknown_action")

	for _, raw := range []string{`not json`, `{"action":42}`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
		f = read(t, conn)
		assert.Equal(t, realtime.EventError, f.Event)
		assert.Contains(t, string(f.Data), "invalid_message")
	}

	// the connection survives malformed frames
	send(t, conn, realtime.ClientMessage{Action: realtime.ActionJoin, Room: realtime.TripRoom("trip-1")})
	assert.Equal(t, realtime.EventJoined, read(t, conn).Event)
}

func TestHub_disconnect_leaves_rooms(t *testing.T) {
	hub, url := startHub(t)
	room := realtime.BookingRoom("booking-1")

	conn := dial(t, url, "alice")
	send(t, conn, realtime.ClientMessage{Action: realtime.ActionJoin, Room: room})
	read(t, conn)
	require.Equal(t, 1, hub.RoomSize(room))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return hub.RoomSize(room) == 0
	}, 5*time.Second, 10*time.Millisecond)
}
