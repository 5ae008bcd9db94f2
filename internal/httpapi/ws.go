package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hbruyere/pagemate/internal/bus"
	. "github.com/hbruyere/pagemate/internal/logging"
	"github.com/hbruyere/pagemate/internal/settings"
	"github.com/hbruyere/pagemate/internal/sidebar"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Local control surface; the browser extension connects from the
	// page origin, so the default same-origin check cannot apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsControl is an inbound control frame.
type wsControl struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
}

// wsPush is an outbound frame.
type wsPush struct {
	Type     string             `json:"type"`
	OK       *bool              `json:"ok,omitempty"`
	Settings *settings.Settings `json:"settings,omitempty"`
}

// handleWS serves one control socket: it accepts AI_CHAT_TOGGLE frames
// for a session and pushes settings changes to the peer as they land.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_warn("httpapi: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Gorilla allows one concurrent writer; the settings push and the
	// toggle ack share this lock.
	var writeMu sync.Mutex
	send := func(p wsPush) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(p)
	}

	subID := bus.Subscribe(bus.TopicSettingsChanged, func(ev bus.Event) {
		current, ok := ev.Data.(settings.Settings)
		if !ok {
			return
		}
		if err := send(wsPush{Type: "SETTINGS_CHANGED", Settings: &current}); err != nil {
			L_debug("httpapi: settings push failed", "error", err)
		}
	})
	defer bus.Unsubscribe(subID)

	L_debug("httpapi: websocket connected", "remote", r.RemoteAddr)

	for {
		var ctrl wsControl
		if err := conn.ReadJSON(&ctrl); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				L_debug("httpapi: websocket closed", "error", err)
			}
			return
		}

		switch ctrl.Type {
		case sidebar.ToggleMessageType:
			sb := s.session(ctrl.SessionID)
			if sb == nil {
				// No receiving sidebar: log and keep going, the
				// action click is not a fatal event.
				L_warn("httpapi: toggle for unknown session", "sessionID", ctrl.SessionID)
				ok := false
				_ = send(wsPush{Type: sidebar.ToggleMessageType, OK: &ok})
				continue
			}
			ack := sb.HandleToggle(sidebar.ToggleMessage{Type: ctrl.Type})
			if err := send(wsPush{Type: sidebar.ToggleMessageType, OK: &ack.OK}); err != nil {
				L_warn("httpapi: toggle ack failed", "error", err)
			}
		default:
			L_debug("httpapi: ignoring unknown frame", "type", ctrl.Type)
		}
	}
}
