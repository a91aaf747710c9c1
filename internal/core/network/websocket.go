package network

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxFrameBytes  = 1 << 20
	wsDefaultBufSize = 4096
)

// Gateway joins websocket clients to one bus topic. Frames a client sends are
// published on the topic and every frame on the topic is written to every
// client, the client's own frames included. A browser page (or the extension
// content script) uses it the way it would use window.postMessage.
//
// Bus frames carry access tokens, so browsers are only let in from the
// gateway's own origin or one of the allowed origins. Clients that send no
// Origin header are not browsers and are let in.
type Gateway struct {
	bus      PubSub
	topic    string
	upgrader websocket.Upgrader
}

func NewGateway(bus PubSub, topic string, allowedOrigins ...string) *Gateway {
	g := &Gateway{
		bus:   bus,
		topic: topic,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsDefaultBufSize,
			WriteBufferSize: wsDefaultBufSize,
		},
	}
	// A nil CheckOrigin is gorilla's same-origin check.
	if len(allowedOrigins) > 0 {
		allowed := make([]string, 0, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed = append(allowed, strings.TrimSuffix(strings.TrimSpace(o), "/"))
		}
		g.upgrader.CheckOrigin = func(r *http.Request) bool {
			return checkOrigin(r, allowed)
		}
	}
	return g
}

func checkOrigin(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(a, origin)
	})
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger().Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	ch, cancel, err := g.bus.Subscribe(g.topic)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}
	conn.SetReadLimit(wsMaxFrameBytes)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := g.bus.Publish(g.topic, payload); err != nil {
			Logger().Warn("gateway publish failed", zap.String("topic", g.topic), zap.Error(err))
			break
		}
	}
	cancel()
	<-done
	_ = conn.Close()
}
