// Package galley implements the remote-execution and transfer core of a
// convergence-testing driver.
//
// # Core Interfaces
//
// - Connection: one authenticated secure-shell session to an instance.
// - Transport: opens Connections and builds interactive login descriptors.
// - Provisioner / Verifier: collaborators that supply pipeline commands.
// - Driver: the full lifecycle surface; Base supplies every operation except
//   the create and destroy hooks, which concrete drivers must override.
//
// # Lifecycle
//
// Each lifecycle operation opens exactly one Connection, performs its steps
// strictly in order, and closes it before returning. Failures from the
// connection layer are wrapped into a single uniform *ActionError before
// crossing the package boundary.
package galley

import (
	"context"
	"io"
)

// Connection is one authenticated secure-shell session to an instance. It is
// owned exclusively by the lifecycle operation that opened it and must be
// closed when that operation returns.
type Connection interface {
	io.Closer

	// Execute runs a single trusted shell command on the instance. It blocks
	// until the command finishes and returns an error for transport,
	// authentication, and non-zero-exit failures alike.
	Execute(ctx context.Context, command string) error

	// Upload copies a local file into the remote directory, creating the
	// directory if needed.
	Upload(ctx context.Context, localPath, remoteDir string) error

	// WaitForPort blocks until the instance's port accepts connections.
	WaitForPort(ctx context.Context) error
}

// Transport opens Connections from connection parameters.
type Transport interface {
	// Dial prepares a Connection for a single lifecycle operation.
	Dial(ctx context.Context, p Params) (Connection, error)

	// LoginCommand constructs an interactive login descriptor. Pure
	// construction; no network I/O happens.
	LoginCommand(p Params) *LoginCommand
}

// Provisioner assembles the local sandbox and supplies the converge pipeline
// commands. Any command may be empty, which skips that step.
type Provisioner interface {
	SandboxPath() string
	CreateSandbox() error
	CleanupSandbox() error

	// RootPath is the remote directory the sandbox contents are unpacked
	// into.
	RootPath() string

	InstallCommand() string
	InitCommand() string
	PrepareCommand() string
	RunCommand() string
}

// Verifier supplies the setup and verify pipeline commands. Any command may
// be empty.
type Verifier interface {
	SetupCommand() string
	SyncCommand() string
	RunCommand() string
}

// Driver is the full lifecycle surface of a concrete driver. Base implements
// everything except Create and Destroy.
type Driver interface {
	Create(ctx context.Context, st State) error
	Converge(ctx context.Context, st State, p Provisioner) error
	Setup(ctx context.Context, st State, v Verifier) error
	Verify(ctx context.Context, st State, v Verifier) error
	Destroy(ctx context.Context, st State) error
	RemoteCommand(ctx context.Context, st State, command string) error
	LoginCommand(st State) (*LoginCommand, error)
}
