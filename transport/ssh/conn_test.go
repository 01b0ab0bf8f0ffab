package ssh

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleyhq/galley"
)

func testConn(t *testing.T, opts galley.Options) *Connection {
	t.Helper()

	return &Connection{
		params: galley.Params{
			Hostname: "127.0.0.1",
			Username: "root",
			Options:  opts,
		},
		dialTimeout: time.Second,
		logger:      slog.Default(),
	}
}

func TestWaitForPort_ListenerAlreadyUp(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	conn := testConn(t, galley.Options{Port: port})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, conn.WaitForPort(ctx))
}

func TestWaitForPort_ListenerAppearsLater(t *testing.T) {
	t.Parallel()

	// Reserve a port, close it, then re-listen after a delay so the first
	// poll attempts fail.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	var (
		mu   sync.Mutex
		late net.Listener
	)

	time.AfterFunc(500*time.Millisecond, func() {
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			mu.Lock()
			late = l
			mu.Unlock()
		}
	})

	defer func() {
		mu.Lock()
		defer mu.Unlock()

		if late != nil {
			_ = late.Close()
		}
	}()

	conn := testConn(t, galley.Options{Port: port})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	assert.NoError(t, conn.WaitForPort(ctx))
}

func TestWaitForPort_ContextCancelled(t *testing.T) {
	t.Parallel()

	// Reserved then closed: nothing ever listens here during the test.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	conn := testConn(t, galley.Options{Port: port})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err = conn.WaitForPort(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnection_UseAfterClose(t *testing.T) {
	t.Parallel()

	conn := testConn(t, galley.Options{Password: "hunter2"})
	require.NoError(t, conn.Close())

	err := conn.Execute(context.Background(), "true")
	assert.ErrorContains(t, err, "connection closed")

	err = conn.Upload(context.Background(), "/tmp/file", "/tmp")
	assert.ErrorContains(t, err, "connection closed")

	// Closing twice is safe.
	assert.NoError(t, conn.Close())
}

func TestConnection_ConnectHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	conn := testConn(t, galley.Options{Password: "hunter2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := conn.Execute(ctx, "true")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddr(t *testing.T) {
	t.Parallel()

	conn := testConn(t, galley.Options{})
	assert.Equal(t, "127.0.0.1:22", conn.addr())

	conn = testConn(t, galley.Options{Port: 2222})
	assert.Equal(t, "127.0.0.1:2222", conn.addr())
}

func TestLogWriter_SplitsLines(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		lines []string
	)

	handler := slog.NewTextHandler(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		lines = append(lines, string(p))
		mu.Unlock()

		return len(p), nil
	}), nil)

	w := &logWriter{logger: slog.New(handler), level: slog.LevelInfo}

	_, err := w.Write([]byte("first li"))
	require.NoError(t, err)
	// No newline yet, nothing emitted.
	assert.Empty(t, lines)

	_, err = w.Write([]byte("ne\r\nsecond line\n\ntrailing"))
	require.NoError(t, err)

	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first line")
	assert.Contains(t, lines[1], "second line")
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
