package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	pathpkg "path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/fileutil"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	defaultPort      = 22
	initialWaitDelay = 200 * time.Millisecond
	maxWaitDelay     = 5 * time.Second
)

var _ galley.Connection = (*Connection)(nil)

// Connection is one ssh connection used by exactly one lifecycle operation.
// The underlying client is established on first use and torn down by Close.
type Connection struct {
	params      galley.Params
	dialTimeout time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	client     *ssh.Client
	forwarding bool
	closed     bool
}

// Execute runs one trusted shell command in a fresh session, streaming
// remote output to the logger. It blocks until the command finishes and
// returns an error for transport and non-zero-exit failures alike.
func (c *Connection) Execute(ctx context.Context, command string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create ssh session: %w", err)
	}

	defer func() { _ = session.Close() }()

	if c.forwarding {
		if err := agent.RequestAgentForwarding(session); err != nil {
			c.logger.Debug("agent forwarding unavailable", "error", err)
		}
	}

	session.Stdout = &logWriter{logger: c.logger, level: slog.LevelInfo}
	session.Stderr = &logWriter{logger: c.logger, level: slog.LevelWarn}

	c.logger.Debug("executing remote command", "command", command)

	errCh := make(chan error, 1)

	go func() { errCh <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)

		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("remote command %q: %w", command, err)
		}

		return nil
	}
}

// Upload copies a local file into remoteDir over SFTP, creating the
// directory if needed and preserving the file's permission bits.
func (c *Connection) Upload(ctx context.Context, localPath, remoteDir string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("failed to create sftp client: %w", err)
	}

	defer func() { _ = sftpClient.Close() }()

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}

	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	if err := sftpClient.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("failed to create remote directory %q: %w", remoteDir, err)
	}

	remotePath := pathpkg.Join(remoteDir, filepath.Base(localPath))

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %q: %w", remotePath, err)
	}

	defer func() { _ = dst.Close() }()

	if err := sftpClient.Chmod(remotePath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to chmod remote file: %w", err)
	}

	if _, err := io.Copy(dst, &fileutil.ContextReader{Ctx: ctx, Reader: src}); err != nil {
		return fmt.Errorf("upload %q: %w", remotePath, err)
	}

	return dst.Close()
}

// WaitForPort polls until the instance's ssh port accepts tcp connections,
// backing off between attempts. It returns when the port is reachable or
// the context ends.
func (c *Connection) WaitForPort(ctx context.Context) error {
	addr := c.addr()
	delay := initialWaitDelay

	for {
		conn, err := (&net.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()

			return nil
		}

		c.logger.Debug("waiting for port", "addr", addr, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", addr, ctx.Err())
		case <-time.After(delay):
		}

		if delay < maxWaitDelay {
			delay *= 2
		}
	}
}

// Close tears down the underlying ssh connection, if one was established.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if c.client != nil {
		return c.client.Close()
	}

	return nil
}

// connect establishes the underlying client on first use.
func (c *Connection) connect(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("connection closed")
	}

	if c.client != nil {
		return c.client, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := clientConfig(c.params, c.dialTimeout)
	if err != nil {
		return nil, err
	}

	addr := c.addr()

	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	if fa := c.params.Options.ForwardAgent; fa != nil && *fa {
		if ag := agentClient(); ag != nil {
			if err := agent.ForwardToAgent(client, ag); err != nil {
				c.logger.Debug("agent forwarding setup failed", "error", err)
			} else {
				c.forwarding = true
			}
		}
	}

	c.client = client

	return client, nil
}

func (c *Connection) addr() string {
	port := c.params.Options.Port
	if port == 0 {
		port = defaultPort
	}

	return net.JoinHostPort(c.params.Hostname, strconv.Itoa(port))
}

// logWriter forwards remote output to the logger line by line.
type logWriter struct {
	logger *slog.Logger
	level  slog.Level
	buf    []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}

		line := string(bytes.TrimRight(w.buf[:i], "\r"))
		if line != "" {
			w.logger.Log(context.Background(), w.level, line)
		}

		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}
