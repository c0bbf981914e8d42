package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
)

// SSESource connects to a text/event-stream endpoint. Only events named
// "message" (or unnamed) are delivered, matching EventSource.onmessage.
type SSESource struct {
	client *http.Client
	url    string
	token  string
}

// NewSSESource builds a source for url. The client must not carry an
// overall Timeout, since the response body is read for the whole session.
func NewSSESource(client *http.Client, url, token string) *SSESource {
	if client == nil {
		client = &http.Client{}
	}
	return &SSESource{client: client, url: url, token: token}
}

func (s *SSESource) Name() string { return "sse" }

func (s *SSESource) Open(ctx context.Context) (inventory.Stream, error) {
	sctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(sctx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse connect %s: unexpected status %d", s.url, resp.StatusCode)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse connect %s: unexpected content type %q", s.url, mt)
	}

	st := &sseStream{
		body:   resp.Body,
		cancel: cancel,
		events: make(chan []byte),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go st.read()
	return st, nil
}

type sseStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	events chan []byte
	errc   chan error
	done   chan struct{}
	once   sync.Once
}

func (s *sseStream) Next(ctx context.Context) ([]byte, error) {
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

func (s *sseStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
	return s.body.Close()
}

func (s *sseStream) read() {
	r := bufio.NewReader(s.body)
	var (
		data  strings.Builder
		event string
		has   bool
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			// io.EOF when the server ends the stream; a trailing partial
			// event without its blank line is never dispatched.
			s.errc <- err
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if has && (event == "" || event == "message") {
				select {
				case s.events <- []byte(data.String()):
				case <-s.done:
					return
				}
			}
			data.Reset()
			event = ""
			has = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if has {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			has = true
		case "event":
			event = value
		}
	}
}
