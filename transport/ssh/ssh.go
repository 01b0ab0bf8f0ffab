package ssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/galleyhq/galley"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

var _ galley.Transport = (*Transport)(nil)

// Transport opens ssh Connections from connection parameters.
type Transport struct {
	// DialTimeout bounds connection establishment for each lazily opened
	// connection.
	DialTimeout time.Duration

	// SSHArgs is extra arguments for login commands, split shell-style.
	SSHArgs string
}

// New returns a Transport with default timeouts.
func New() *Transport {
	return &Transport{DialTimeout: 15 * time.Second}
}

// Dial prepares a Connection for one lifecycle operation. The underlying
// ssh connection is established lazily on first use, so preparing a
// connection for WaitForPort does not itself require the port to be up.
func (t *Transport) Dial(_ context.Context, p galley.Params) (galley.Connection, error) {
	if p.Hostname == "" {
		return nil, errors.New("connection parameters: hostname cannot be empty")
	}

	if p.Username == "" {
		return nil, errors.New("connection parameters: username cannot be empty")
	}

	logger := p.Options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Connection{
		params:      p,
		dialTimeout: t.DialTimeout,
		logger:      logger,
	}, nil
}

// clientConfig converts connection parameters to the underlying
// ssh.ClientConfig. Auth methods are tried in order: password, explicit
// keys, then the local agent unless key material pinned the connection to
// keys only.
func clientConfig(p galley.Params, timeout time.Duration) (*ssh.ClientConfig, error) {
	callback := ssh.InsecureIgnoreHostKey() //nolint:gosec // test instances have throwaway host keys

	if p.Options.VerifyHostKey {
		cb, err := knownhosts.New(knownHostsFile(p))
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}

		callback = cb
	}

	cfg := &ssh.ClientConfig{
		User:            p.Username,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: callback,
		Timeout:         timeout,
	}

	if p.Options.Password != "" {
		cfg.Auth = append(cfg.Auth, ssh.Password(p.Options.Password))
	}

	for _, keyPath := range p.Options.Keys {
		auth, err := privateKeyAuth(keyPath)
		if err != nil {
			return nil, err
		}

		cfg.Auth = append(cfg.Auth, auth)
	}

	if !p.Options.KeysOnly {
		if auth := agentAuth(); auth != nil {
			cfg.Auth = append(cfg.Auth, auth)
		}
	}

	return cfg, nil
}

// privateKeyAuth loads a private key from a file and returns an
// ssh.AuthMethod.
func privateKeyAuth(keyPath string) (ssh.AuthMethod, error) {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key file %s: %w", keyPath, err)
	}

	return ssh.PublicKeys(signer), nil
}

// agentAuth returns an AuthMethod backed by the local ssh agent, or nil when
// no agent is reachable.
func agentAuth() ssh.AuthMethod {
	ag := agentClient()
	if ag == nil {
		return nil
	}

	signers, err := ag.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeys(signers...)
}

// agentClient connects to the agent named by SSH_AUTH_SOCK. Returns nil if
// the socket is unset or unreachable.
func agentClient() agent.ExtendedAgent {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	conn, err := (&net.Dialer{Timeout: 500 * time.Millisecond}).Dial("unix", socket)
	if err != nil {
		return nil
	}

	return agent.NewClient(conn)
}

func knownHostsFile(p galley.Params) string {
	if p.Options.KnownHostsFile != "" {
		return p.Options.KnownHostsFile
	}

	return os.DevNull
}
