package inventory

import "context"

// Source opens push connections to the inventory-change channel.
type Source interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
}

// Stream yields raw messages, one JSON product per message.
// Next returns io.EOF when the server ends the stream.
type Stream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}
