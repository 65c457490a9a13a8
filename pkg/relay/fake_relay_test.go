package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

// fakeRelay is a test WebSocket server speaking the relay protocol. On every
// REQ it replays its stored events for that subscription, then sends EOSE.
type fakeRelay struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	events      []Event
	reqs        []Filter
	closes      []string
	connections int
	// dropAfterEOSE closes the socket after the first EOSE to force a reconnect.
	dropAfterEOSE bool
	// closedReason, when set, answers every REQ with CLOSED instead of events.
	closedReason string
}

func newFakeRelay(t *testing.T, events ...Event) *fakeRelay {
	f := &fakeRelay{t: t, events: events}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRelay) URL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeRelay) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		f.t.Logf("WebSocket accept error: %v", err)
		return
	}
	defer conn.CloseNow()

	f.mu.Lock()
	f.connections++
	connection := f.connections
	f.mu.Unlock()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil || len(parts) < 2 {
			continue
		}
		var label, subID string
		_ = json.Unmarshal(parts[0], &label)
		_ = json.Unmarshal(parts[1], &subID)

		switch label {
		case TypeReq:
			var filter Filter
			if len(parts) > 2 {
				_ = json.Unmarshal(parts[2], &filter)
			}
			f.mu.Lock()
			f.reqs = append(f.reqs, filter)
			events := append([]Event(nil), f.events...)
			closedReason := f.closedReason
			drop := f.dropAfterEOSE && connection == 1
			f.mu.Unlock()

			if closedReason != "" {
				f.write(ctx, conn, []any{TypeClosed, subID, closedReason})
				continue
			}
			f.write(ctx, conn, []any{TypeNotice, "welcome"})
			f.write(ctx, conn, []any{TypeEvent, "someone-else", Event{ID: "foreign"}})
			for _, ev := range events {
				f.write(ctx, conn, []any{TypeEvent, subID, ev})
			}
			f.write(ctx, conn, []any{TypeEOSE, subID})
			if drop {
				conn.Close(websocket.StatusGoingAway, "restart")
				return
			}
		case TypeClose:
			f.mu.Lock()
			f.closes = append(f.closes, subID)
			f.mu.Unlock()
		}
	}
}

func (f *fakeRelay) write(ctx context.Context, conn *websocket.Conn, msg []any) {
	data, err := json.Marshal(msg)
	if err != nil {
		f.t.Errorf("failed to marshal fake relay message: %v", err)
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func (f *fakeRelay) setDropAfterEOSE() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropAfterEOSE = true
}

func (f *fakeRelay) setClosedReason(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedReason = reason
}

func (f *fakeRelay) reqCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeRelay) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closes)
}

func (f *fakeRelay) lastFilter() Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		return Filter{}
	}
	return f.reqs[len(f.reqs)-1]
}

func metadataEvent(id, pubkey string, createdAt int64, content string) Event {
	return Event{ID: id, PubKey: pubkey, CreatedAt: createdAt, Kind: KindMetadata, Content: content}
}

// collector records handler deliveries.
type collector struct {
	mu     sync.Mutex
	events []Event
	from   []string
	eose   []string
}

func (c *collector) handler() Handler {
	return Handler{
		OnEvent: func(ev Event, relayURL string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.events = append(c.events, ev)
			c.from = append(c.from, relayURL)
		},
		OnEOSE: func(relayURL string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.eose = append(c.eose, relayURL)
		},
	}
}

func (c *collector) eventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) eoseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.eose)
}
