package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/choresync/internal/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
}

func TestSocketTransportDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "tok" {
			t.Errorf("missing token query param, got %q", got)
		}
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"chore.deleted","data":{"choreId":3}}`))
		// Wait for the client close frame.
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		ws.ReadMessage()
	}))
	defer srv.Close()

	tr := NewSocketTransport()
	conn, err := tr.Dial(context.Background(), wsURL(srv, "tok"), "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	events := collectEvents(t, conn, 3)
	if events[0].Kind != TransportOpened {
		t.Fatalf("expected opened first, got %v", events[0].Kind)
	}
	ev, err := types.DecodeEvent(events[1].Data)
	if err != nil || ev.Type != types.EventHeartbeat {
		t.Errorf("unexpected first message: %s (%v)", events[1].Data, err)
	}
	ev, err = types.DecodeEvent(events[2].Data)
	if err != nil || ev.Type != types.EventChoreDeleted {
		t.Errorf("unexpected second message: %s (%v)", events[2].Data, err)
	}
}

func TestSocketTransportCloseCodeSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(CloseAuthFailed, "authentication failed")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		// Give the close frame time to flush before tearing down TCP.
		ws.SetReadDeadline(time.Now().Add(time.Second))
		ws.ReadMessage()
		ws.Close()
	}))
	defer srv.Close()

	tr := NewSocketTransport()
	conn, err := tr.Dial(context.Background(), wsURL(srv, "tok"), "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	events := collectEvents(t, conn, 2)
	closed := events[1]
	if closed.Kind != TransportClosed {
		t.Fatalf("expected closed, got %v", closed.Kind)
	}
	if closed.Code != CloseAuthFailed {
		t.Errorf("expected close code %d, got %d", CloseAuthFailed, closed.Code)
	}
	if !TerminalCloseCode(closed.Code) {
		t.Error("4000 must classify as terminal")
	}
}

func TestSocketTransportDialFailure(t *testing.T) {
	tr := NewSocketTransport()
	conn, err := tr.Dial(context.Background(), "ws://127.0.0.1:1/realtime/ws", "")
	if err != nil {
		t.Fatalf("dial must not fail synchronously: %v", err)
	}

	events := collectEvents(t, conn, 1)
	if events[0].Kind != TransportClosed || events[0].Err == nil {
		t.Errorf("expected closed with error, got %+v", events[0])
	}
}

func TestTerminalCloseCode(t *testing.T) {
	for code, want := range map[int]bool{
		CloseAuthFailed:                true,
		CloseUnauthorized:              true,
		websocket.CloseNormalClosure:   false,
		websocket.CloseAbnormalClosure: false,
	} {
		if got := TerminalCloseCode(code); got != want {
			t.Errorf("TerminalCloseCode(%d) = %v, want %v", code, got, want)
		}
	}
}
