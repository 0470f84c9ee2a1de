package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/guyvdb/docstore/wire"
)

// exchange is one request travelling from a connection to the request loop.
// The loop sends exactly one reply; written is closed once the reply has
// reached the connection.
type exchange struct {
	payload []byte
	reply   chan []byte
	written chan struct{}
}

// Endpoint is a listening address whose connections feed requests into a
// single channel. Nothing reads that channel while the endpoint is parked,
// so its clients wait without being served.
type Endpoint struct {
	listener net.Listener
	requests chan *exchange
	log      *slog.Logger

	conns   map[string]net.Conn
	connsMu sync.Mutex

	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Listen binds addr and starts accepting connections.
func Listen(addr string, log *slog.Logger) (*Endpoint, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ep := &Endpoint{
		listener: listener,
		requests: make(chan *exchange),
		log:      log.With("endpoint", listener.Addr().String()),
		conns:    make(map[string]net.Conn),
		done:     make(chan struct{}),
	}
	ep.wg.Add(1)
	go ep.accept()
	return ep, nil
}

// Addr returns the bound address.
func (ep *Endpoint) Addr() string {
	return ep.listener.Addr().String()
}

func (ep *Endpoint) accept() {
	defer ep.wg.Done()
	for {
		conn, err := ep.listener.Accept()
		if err != nil {
			if ep.closed.Load() {
				return
			}
			ep.log.Error("accept error", "error", err)
			continue
		}

		id := uuid.NewString()
		ep.connsMu.Lock()
		ep.conns[id] = conn
		ep.connsMu.Unlock()
		if ep.closed.Load() {
			// Close may already have swept the connection map.
			conn.Close()
		}

		ep.wg.Add(1)
		go ep.handleConnection(id, conn)
	}
}

// handleConnection relays requests of one connection, one at a time.
// Receive errors end the connection and never reach the request loop.
func (ep *Endpoint) handleConnection(id string, conn net.Conn) {
	defer ep.wg.Done()
	defer func() {
		ep.connsMu.Lock()
		delete(ep.conns, id)
		ep.connsMu.Unlock()
		conn.Close()
	}()

	log := ep.log.With("conn", id)
	log.Debug("Endpoint.handleConnection() - new connection", "remote", conn.RemoteAddr().String())

	c := wire.NewConn(conn)
	for {
		msg, err := c.ReadMessage()
		if err != nil {
			log.Debug("Endpoint.handleConnection() - connection ended", "error", err)
			return
		}

		ex := &exchange{payload: msg, reply: make(chan []byte, 1), written: make(chan struct{})}
		select {
		case ep.requests <- ex:
		case <-ep.done:
			return
		}

		var reply []byte
		select {
		case reply = <-ex.reply:
		case <-ep.done:
			return
		}

		err = c.WriteMessage(reply)
		close(ex.written)
		if err != nil {
			log.Debug("Endpoint.handleConnection() - write failed", "error", err)
			return
		}
	}
}

// Close stops accepting, drops every connection and waits for their
// goroutines.
func (ep *Endpoint) Close() error {
	if ep.closed.Swap(true) {
		return nil
	}
	close(ep.done)
	err := ep.listener.Close()

	ep.connsMu.Lock()
	for _, conn := range ep.conns {
		conn.Close()
	}
	ep.connsMu.Unlock()

	ep.wg.Wait()
	return err
}
