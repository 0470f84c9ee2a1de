// Package broker fans client connections out to session workers. Each client
// connection is paired with one worker connection for its whole life, so
// requests and responses stay in order.
//
// Workers do not coordinate. When several of them share one backend file
// their read-modify-write cycles race: the last writer wins and identities
// may be issued twice. Clients needing exclusive access use the lock
// request.
package broker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Broker struct {
	listener net.Listener
	workers  []string
	next     atomic.Uint64
	log      *slog.Logger

	conns   map[string]net.Conn
	connsMu sync.Mutex

	wg     sync.WaitGroup
	closed atomic.Bool
}

// New binds addr for clients and forwards them to workers.
func New(addr string, workers []string, log *slog.Logger) (*Broker, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("broker needs at least one worker")
	}
	if log == nil {
		log = slog.Default()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Broker{
		listener: listener,
		workers:  append([]string(nil), workers...),
		log:      log,
		conns:    make(map[string]net.Conn),
	}, nil
}

// Addr returns the client facing address.
func (b *Broker) Addr() string {
	return b.listener.Addr().String()
}

// Serve accepts client connections until Close is called.
func (b *Broker) Serve() error {
	b.log.Info("broker started", "addr", b.Addr(), "workers", b.workers)

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if b.closed.Load() {
				return nil
			}
			b.log.Error("accept error", "error", err)
			continue
		}

		b.wg.Add(1)
		go b.forward(conn)
	}
}

// pick returns the next worker in round-robin order.
func (b *Broker) pick() string {
	n := b.next.Add(1) - 1
	return b.workers[n%uint64(len(b.workers))]
}

func (b *Broker) track(id string, conns ...net.Conn) bool {
	b.connsMu.Lock()
	defer b.connsMu.Unlock()
	if b.closed.Load() {
		return false
	}
	for i, c := range conns {
		b.conns[fmt.Sprintf("%s/%d", id, i)] = c
	}
	return true
}

func (b *Broker) untrack(id string, n int) {
	b.connsMu.Lock()
	defer b.connsMu.Unlock()
	for i := range n {
		delete(b.conns, fmt.Sprintf("%s/%d", id, i))
	}
}

// forward pipes one client connection to a worker until either side hangs
// up.
func (b *Broker) forward(client net.Conn) {
	defer b.wg.Done()
	defer client.Close()

	id := uuid.NewString()
	worker := b.pick()
	log := b.log.With("conn", id, "worker", worker)

	upstream, err := net.Dial("tcp", worker)
	if err != nil {
		log.Error("Broker.forward() - worker unreachable", "error", err)
		return
	}
	defer upstream.Close()

	if !b.track(id, client, upstream) {
		return
	}
	defer b.untrack(id, 2)

	log.Debug("Broker.forward() - client connected", "remote", client.RemoteAddr().String())

	var g errgroup.Group
	g.Go(func() error { return pipe(upstream, client) })
	g.Go(func() error { return pipe(client, upstream) })
	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug("Broker.forward() - connection ended", "error", err)
	}
}

// pipe copies src to dst and then closes both, which unblocks the copy in
// the other direction.
func pipe(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)
	dst.Close()
	src.Close()
	return err
}

// Close stops accepting clients and drops every forwarded connection.
func (b *Broker) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	err := b.listener.Close()

	b.connsMu.Lock()
	for _, c := range b.conns {
		c.Close()
	}
	b.connsMu.Unlock()

	b.wg.Wait()
	b.log.Info("broker stopped")
	return err
}
