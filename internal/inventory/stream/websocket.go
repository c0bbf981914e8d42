package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/gorilla/websocket"
)

// WebSocketSource receives one product per text or binary frame.
// Nothing is ever written to the server.
type WebSocketSource struct {
	dialer *websocket.Dialer
	url    string
	token  string
}

func NewWebSocketSource(url, token string, handshakeTimeout time.Duration) *WebSocketSource {
	return &WebSocketSource{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		url:   url,
		token: token,
	}
}

func (s *WebSocketSource) Name() string { return "websocket" }

func (s *WebSocketSource) Open(ctx context.Context) (inventory.Stream, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	ws, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connect %s: status %d: %w", s.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect %s: %w", s.url, err)
	}

	st := &wsStream{
		ws:     ws,
		events: make(chan []byte),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go st.read()
	return st, nil
}

type wsStream struct {
	ws     *websocket.Conn
	events chan []byte
	errc   chan error
	done   chan struct{}
	once   sync.Once
}

func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-s.events:
		return msg, nil
	case err := <-s.errc:
		return nil, err
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ws.Close()
	})
	return err
}

func (s *wsStream) read() {
	for {
		messageType, message, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			}
			s.errc <- err
			return
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if len(message) == 0 {
				// keepalive
				continue
			}
			select {
			case s.events <- message:
			case <-s.done:
				return
			}
		}
	}
}
