package broker

import (
	"bufio"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoWorker answers every line with its name and the line.
func echoWorker(t *testing.T, name string) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewScanner(conn)
				for r.Scan() {
					fmt.Fprintf(conn, "%s:%s\n", name, r.Text())
				}
			}()
		}
	}()
	return l.Addr().String()
}

func start(t *testing.T, workers ...string) *Broker {
	t.Helper()
	b, err := New("127.0.0.1:0", workers, nil)
	require.NoError(t, err)
	go b.Serve()
	t.Cleanup(func() { b.Close() })
	return b
}

func ask(t *testing.T, conn net.Conn, r *bufio.Reader, msg string) string {
	t.Helper()
	_, err := fmt.Fprintln(conn, msg)
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func TestForwardPreservesPairing(t *testing.T) {
	b := start(t, echoWorker(t, "w1"))

	conn, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	for i := range 5 {
		assert.Equal(t, fmt.Sprintf("w1:req-%d", i), ask(t, conn, r, fmt.Sprintf("req-%d", i)))
	}
}

func TestRoundRobin(t *testing.T) {
	b := start(t, echoWorker(t, "w1"), echoWorker(t, "w2"))

	var seen []string
	for range 4 {
		conn, err := net.Dial("tcp", b.Addr())
		require.NoError(t, err)
		r := bufio.NewReader(conn)
		seen = append(seen, ask(t, conn, r, "hi"))
		conn.Close()
	}
	assert.Equal(t, []string{"w1:hi", "w2:hi", "w1:hi", "w2:hi"}, seen)
}

func TestNeedsWorkers(t *testing.T) {
	_, err := New("127.0.0.1:0", nil, nil)
	assert.Error(t, err)
}

func TestCloseDropsConnections(t *testing.T) {
	b, err := New("127.0.0.1:0", []string{echoWorker(t, "w1")}, nil)
	require.NoError(t, err)
	go b.Serve()

	conn, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)
	ask(t, conn, r, "hi")

	require.NoError(t, b.Close())
	_, err = r.ReadString('\n')
	assert.Error(t, err)
}
