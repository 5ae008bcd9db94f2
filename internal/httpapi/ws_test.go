package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hbruyere/pagemate/internal/config"
	"github.com/hbruyere/pagemate/internal/settings"
	"github.com/hbruyere/pagemate/internal/sidebar"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestToggleOverWebsocket(t *testing.T) {
	store := settings.NewStore(t.TempDir())
	srv := NewServer("127.0.0.1:0", store, config.Default().Extract)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	id, sb, err := srv.attachSession(sidebar.Page{URL: "https://example.com/p", HTML: "<html><body>x</body></html>"})
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	conn := dialWS(t, ts)

	if err := conn.WriteJSON(wsControl{Type: sidebar.ToggleMessageType, SessionID: id}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var push wsPush
	if err := conn.ReadJSON(&push); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if push.Type != sidebar.ToggleMessageType || push.OK == nil || !*push.OK {
		t.Errorf("ack = %+v", push)
	}
	if !sb.IsOpen() {
		t.Error("sidebar did not open")
	}
}

func TestToggleUnknownSessionNacked(t *testing.T) {
	store := settings.NewStore(t.TempDir())
	srv := NewServer("127.0.0.1:0", store, config.Default().Extract)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	if err := conn.WriteJSON(wsControl{Type: sidebar.ToggleMessageType, SessionID: "ghost"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var push wsPush
	if err := conn.ReadJSON(&push); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if push.OK == nil || *push.OK {
		t.Errorf("expected nack, got %+v", push)
	}
}

func TestSettingsPushedOverWebsocket(t *testing.T) {
	store := settings.NewStore(t.TempDir())
	srv := NewServer("127.0.0.1:0", store, config.Default().Extract)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	// Give the server a moment to register the bus subscription.
	time.Sleep(50 * time.Millisecond)

	apiKey := "pushed-key"
	if _, err := store.Set(settings.Patch{APIKey: &apiKey}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var push wsPush
	if err := conn.ReadJSON(&push); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if push.Type != "SETTINGS_CHANGED" || push.Settings == nil || push.Settings.APIKey != "pushed-key" {
		t.Errorf("push = %+v", push)
	}
}
