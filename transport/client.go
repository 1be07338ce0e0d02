package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/jsphweid/smartpiano/protocol"
)

// Client is the other end of a Socket, used by the play command and tests.
type Client struct {
	conn   net.Conn
	reader *protocol.Reader
}

func Dial(ctx context.Context, endpoint string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return &Client{conn: conn, reader: protocol.NewReader(conn)}, nil
}

func (c *Client) Send(m protocol.Message) error {
	return protocol.Write(c.conn, m)
}

func (c *Client) Receive() (protocol.Message, error) {
	return c.reader.ReadMessage()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
