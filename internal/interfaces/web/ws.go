package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/go-signin/internal/infrastructure/logging"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 3 * time.Second,
	CheckOrigin:      sameOrigin,
}

var (
	writeWait    = 10 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = pongWait * 9 / 10
)

// socketHandler runs once per connection, the connection is closed when it returns.
// ctx is cancelled as soon as the peer goes away.
type socketHandler func(ctx context.Context, conn *websocket.Conn) error

// WithHeartbeat upgrade the request and keep the connection alive with pings while handler runs
func WithHeartbeat(handler socketHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade already answered the request
			return nil
		}
		defer conn.Close()

		logger := logging.ExtractLoggerFromContext(c.Request().Context())
		ctx, cancel := context.WithCancel(context.Background())
		ctx = logging.SetLoggerInContext(ctx, logger)
		defer cancel()

		go readRoutine(conn, cancel)
		go heartbeatRoutine(ctx, conn, cancel)
		if err := handler(ctx, conn); err != nil {
			logger.Debug("websocket handler stopped", zap.Error(err))
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		return nil
	}
}

// readRoutine drains the peer so control frames get processed, it cancels once the peer is gone
func readRoutine(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func heartbeatRoutine(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// sameOrigin reject cross site websocket handshakes
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
