package wsdriver

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// Conn is a message-oriented duplex connection carrying JSON text frames.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a Conn to url.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

// Dial is the default Dialer backed by a real WebSocket.
func Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	return &socket{c: c}, nil
}

type socket struct {
	c *websocket.Conn
}

func (s *socket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.c.Read(ctx)
	return data, err
}

func (s *socket) Write(ctx context.Context, data []byte) error {
	return s.c.Write(ctx, websocket.MessageText, data)
}

func (s *socket) Close() error {
	return s.c.Close(websocket.StatusNormalClosure, "bye")
}
