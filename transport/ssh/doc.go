// Package ssh implements the galley.Transport and galley.Connection
// interfaces over the SSH protocol.
//
// It utilizes "golang.org/x/crypto/ssh" for sessions and
// "github.com/pkg/sftp" for archive uploads, providing:
//   - Lazily established, single-operation connections
//   - Password, private-key, and ssh-agent authentication
//   - Agent forwarding for remote sessions
//   - Port-availability polling for freshly created instances
//   - Interactive login command construction (no execution)
//
// Host keys of test instances are treated as disposable: verification is off
// unless the connection parameters explicitly request it.
//
// Usage:
//
//	t := ssh.New()
//	conn, err := t.Dial(ctx, params)
package ssh
