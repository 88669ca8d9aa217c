package handlers

import (
	"delivery-dispatch-service/internal/adapters/realtime"
	"delivery-dispatch-service/internal/auth"
	"log"
	"net/http"

	"github.com/coder/websocket"
)

type EventsHandler struct {
	Hub  *realtime.Hub
	Auth *auth.Issuer
	// OriginPatterns is passed to websocket.Accept; empty means same origin.
	OriginPatterns []string
}

// Stream upgrades to a websocket and pushes delivery events. Drivers only see
// events for themselves; dispatchers may filter with ?driver_id= or see all.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Auth.ParseTokenFromRequest(r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	driverID := r.URL.Query().Get("driver_id")
	if claims.Role == auth.RoleDriver {
		if driverID != "" && driverID != claims.DriverID {
			writeError(w, r, http.StatusForbidden, "driver mismatch")
			return
		}
		driverID = claims.DriverID
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	client := realtime.NewClient(conn, driverID)
	h.Hub.AddClient(client)
	defer h.Hub.RemoveClient(client)

	// Subscribers only listen; CloseRead handles control frames and ends ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if err := client.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Printf("ws stream driver=%q err=%v", driverID, err)
	}
}
