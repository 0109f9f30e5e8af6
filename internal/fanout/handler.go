package fanout

import (
	"net/http"

	"github.com/gorilla/websocket"

	"homesafe-cloud/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades connections and subscribes them to scopes. Clients
// join their home scope via ?home=; admins join the global scope.
type Handler struct {
	hub *Hub
}

// NewHandler constructs a fan-out handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.hub == nil {
		http.Error(w, "fanout not ready", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Residents are pinned to the home their token names; admins join
	// the global scope. The query parameter only applies when no
	// authenticated identity is present (local development).
	var scopes []string
	if auth.RoleFromContext(r.Context()) == auth.RoleAdmin {
		scopes = append(scopes, ScopeAdmin)
	}
	homeID := auth.HomeIDFromContext(r.Context())
	if homeID == "" {
		homeID = r.URL.Query().Get("home")
	}
	if homeID != "" {
		scopes = append(scopes, HomeScope(homeID))
	}
	if len(scopes) == 0 {
		http.Error(w, "home query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := newClient(conn, scopes)
	h.hub.add(client)
	go client.writePump(h.hub)
	go client.readPump(h.hub)
}
