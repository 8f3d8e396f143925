package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/relay"
)

// HealthMessage is the static body served by the health endpoints.
const HealthMessage = "Signaling server is healthy."

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Peers are not authenticated, so there is nothing an origin check
	// would protect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter wires the relay's HTTP surface.
func NewRouter(hub *relay.Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthCheck)
	mux.HandleFunc("GET /health", HealthCheck)
	mux.HandleFunc("/ws", ServeWs(hub))
	return mux
}

// HealthCheck answers with a static string.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(HealthMessage))
}

// ServeWs returns an http.HandlerFunc that upgrades to a websocket and hands
// the connection to the hub. The frame codec is chosen with ?codec=json|msgpack.
func ServeWs(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "addr", r.RemoteAddr, "error", err)
			return
		}

		hub.Serve(conn, codec)
	}
}
