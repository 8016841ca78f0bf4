// Package client implements the TCP client: connect once, then for
// each call serialize a single request, flush, and decode exactly one
// response frame.
package client

import (
	"net"

	"github.com/kartpop/kvs/internal/kvserr"
	"github.com/kartpop/kvs/internal/protocol"
)

// Client holds one persistent connection to a kvs server. It is not
// safe for concurrent use by multiple goroutines: the wire protocol is
// strictly request-response, one outstanding call at a time.
type Client struct {
	conn net.Conn
	dec  *protocol.Decoder
	enc  *protocol.Encoder
}

// Dial connects to addr and returns a Client ready to make calls.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, kvserr.Wrap("dial server", err)
	}
	return &Client{
		conn: conn,
		dec:  protocol.NewDecoder(conn),
		enc:  protocol.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Get fetches key's value. found is false when the key is absent; that
// is not an error.
func (c *Client) Get(key string) (value string, found bool, err error) {
	if err := c.enc.Encode(protocol.GetRequest(key)); err != nil {
		return "", false, kvserr.Wrap("send get request", err)
	}
	if err := c.enc.Flush(); err != nil {
		return "", false, kvserr.Wrap("flush get request", err)
	}
	var resp protocol.GetResponse
	if err := c.dec.Decode(&resp); err != nil {
		return "", false, kvserr.Wrap("read get response", err)
	}
	if resp.Err != "" {
		return "", false, kvserr.StringError(resp.Err)
	}
	return resp.Value, resp.Found, nil
}

// Set assigns value to key.
func (c *Client) Set(key, value string) error {
	if err := c.enc.Encode(protocol.SetRequest(key, value)); err != nil {
		return kvserr.Wrap("send set request", err)
	}
	if err := c.enc.Flush(); err != nil {
		return kvserr.Wrap("flush set request", err)
	}
	var resp protocol.SetResponse
	if err := c.dec.Decode(&resp); err != nil {
		return kvserr.Wrap("read set response", err)
	}
	if resp.Err != "" {
		return kvserr.StringError(resp.Err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is an error, surfaced as a
// kvserr.StringError carrying the server's message (normally "key not
// found").
func (c *Client) Remove(key string) error {
	if err := c.enc.Encode(protocol.RemoveRequest(key)); err != nil {
		return kvserr.Wrap("send remove request", err)
	}
	if err := c.enc.Flush(); err != nil {
		return kvserr.Wrap("flush remove request", err)
	}
	var resp protocol.RemoveResponse
	if err := c.dec.Decode(&resp); err != nil {
		return kvserr.Wrap("read remove response", err)
	}
	if resp.Err != "" {
		return kvserr.StringError(resp.Err)
	}
	return nil
}
