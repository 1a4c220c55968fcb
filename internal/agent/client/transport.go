package client

import (
	"context"

	"github.com/coder/websocket"

	"github.com/CodeHiveAPP/codehive/internal/protocol"
)

// Transport is the frame transport the client drives. It is an
// interface so tests can exercise the state machine without a network.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dial opens a WebSocket transport to the relay endpoint.
func Dial(ctx context.Context, url string) (Transport, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(protocol.MaxFrameBytes)
	return &wsTransport{ws: ws}, nil
}

type wsTransport struct {
	ws *websocket.Conn
}

// Read returns the next text frame, skipping any other frame kinds.
func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := t.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.ws.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close(code websocket.StatusCode, reason string) error {
	return t.ws.Close(code, reason)
}
