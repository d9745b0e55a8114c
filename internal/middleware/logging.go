// internal/middleware/logging.go
package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware traces every HTTP request: a debug line when it
// arrives and an info line with the duration once it is served. For
// the websocket endpoint the duration covers the whole session.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fields := logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			}
			logger.WithFields(fields).Debug("request started")
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(fields).
				WithField("duration", time.Since(start)).
				Info("request finished")
		})
	}
}

// LogWebSocketConnect marks an accepted websocket upgrade.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, path string) {
	logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	}).Info("websocket connected")
}

// LogWebSocketDisconnect marks the end of a websocket session and how
// long it lived.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr, path string, lived time.Duration) {
	logger.WithFields(logrus.Fields{
		"remote":  remoteAddr,
		"path":    path,
		"session": lived,
	}).Info("websocket disconnected")
}
