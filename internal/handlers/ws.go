// internal/handlers/ws.go
//
// Package handlers wires the HTTP surface: a single websocket endpoint
// plus a logging middleware. Everything else is a 404.
package handlers

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/ygame/internal/client"
	"github.com/jason-s-yu/ygame/internal/lobby"
	"github.com/jason-s-yu/ygame/internal/middleware"
)

// WebsocketPath is the only endpoint the server exposes.
const WebsocketPath = "/websocket"

// WebsocketHandler upgrades the connection and runs one client session
// on it until the session ends.
func WebsocketHandler(logger *logrus.Logger, lob *lobby.Lobby, opts ...client.Option) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)
		start := time.Now()

		c := client.New(conn, lob, logger, opts...)
		c.Serve(r.Context())

		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, time.Since(start))
	}
}

// NewServer builds the full HTTP handler: the websocket endpoint,
// request logging, and a logged 404 for anything else.
func NewServer(logger *logrus.Logger, lob *lobby.Lobby, opts ...client.Option) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebsocketPath, WebsocketHandler(logger, lob, opts...))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return middleware.LogMiddleware(logger)(mux)
}
