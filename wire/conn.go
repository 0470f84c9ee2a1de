package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/guyvdb/docstore/fault"
)

// Conn frames messages over a stream connection, one JSON document per line.
// Reads and writes may happen from different goroutines; concurrent writes
// are serialized.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, r: bufio.NewReader(conn)}
}

// Dial connects to a server or broker at addr.
func Dial(addr string) (*Conn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

// ReadMessage returns the next message without its line terminator. Blank
// lines are skipped.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		line, err := c.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			if err == io.EOF {
				err = nil
			}
			return line, err
		}
		if err != nil {
			return nil, err
		}
	}
}

// WriteMessage writes one raw message. It must not contain a newline.
func (c *Conn) WriteMessage(msg []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')
	_, err := c.conn.Write(buf)
	return err
}

// Send encodes v and writes it.
func (c *Conn) Send(v any) error {
	data, err := gojson.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", fault.ErrMarshalFailed, err)
	}
	return c.WriteMessage(data)
}

// Receive reads the next message into v.
func (c *Conn) Receive(v any) error {
	msg, err := c.ReadMessage()
	if err != nil {
		return err
	}
	return Unmarshal(msg, v)
}

// Unmarshal decodes a message, reporting malformed input as
// fault.ErrInvalidMessage.
func Unmarshal(msg []byte, v any) error {
	if err := gojson.Unmarshal(msg, v); err != nil {
		return fmt.Errorf("%w: %w", fault.ErrInvalidMessage, err)
	}
	return nil
}

// Call sends req and waits for its response.
func (c *Conn) Call(req *Request) (*Response, error) {
	if err := c.Send(req); err != nil {
		return nil, err
	}
	resp := &Response{}
	if err := c.Receive(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
