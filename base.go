package galley

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/galleyhq/galley/archive"
)

// Base implements the shared lifecycle operations over a Transport. Concrete
// drivers embed Base and override the Create and Destroy hooks; Base itself
// fails fast with a NotImplementedError when either hook is missing.
type Base struct {
	config    Config
	transport Transport
	logger    *slog.Logger
}

var _ Driver = (*Base)(nil)

// NewBase constructs a Base driver. Defaults (sudo=true, port=22) are
// applied underneath cfg. A nil logger falls back to slog.Default.
func NewBase(cfg map[string]any, t Transport, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}

	return &Base{
		config:    NewConfig(cfg),
		transport: t,
		logger:    logger,
	}
}

// Config returns the driver configuration.
func (b *Base) Config() Config {
	return b.config
}

// Create is a hook concrete drivers must override.
func (b *Base) Create(ctx context.Context, st State) error {
	return &NotImplementedError{Op: "create"}
}

// Destroy is a hook concrete drivers must override.
func (b *Base) Destroy(ctx context.Context, st State) error {
	return &NotImplementedError{Op: "destroy"}
}

// Converge materializes the provisioner's sandbox, transfers its top-level
// contents to the instance, and runs the install/init/prepare/run pipeline
// on one connection.
//
// Sandbox cleanup runs on every exit path. A cleanup failure never masks a
// pending step failure: it is logged instead. When no failure is pending the
// cleanup error propagates.
func (b *Base) Converge(ctx context.Context, st State, p Provisioner) (err error) {
	defer func() {
		if cerr := p.CleanupSandbox(); cerr != nil {
			if err != nil {
				b.logger.Error("sandbox cleanup failed", "error", cerr)
			} else {
				err = cerr
			}
		}
	}()

	if err := p.CreateSandbox(); err != nil {
		return err
	}

	paths, err := sandboxEntries(p.SandboxPath())
	if err != nil {
		return err
	}

	conn, err := b.dial(ctx, st)
	if err != nil {
		return err
	}

	defer func() { _ = conn.Close() }()

	if err := b.runRemote(ctx, conn, p.InstallCommand()); err != nil {
		return err
	}

	if err := b.runRemote(ctx, conn, p.InitCommand()); err != nil {
		return err
	}

	if err := b.transfer(ctx, conn, paths, p.RootPath()); err != nil {
		return err
	}

	if err := b.runRemote(ctx, conn, p.PrepareCommand()); err != nil {
		return err
	}

	return b.runRemote(ctx, conn, p.RunCommand())
}

// Setup runs the verifier's setup command on the instance.
func (b *Base) Setup(ctx context.Context, st State, v Verifier) error {
	conn, err := b.dial(ctx, st)
	if err != nil {
		return err
	}

	defer func() { _ = conn.Close() }()

	return b.runRemote(ctx, conn, v.SetupCommand())
}

// Verify runs the verifier's sync and run commands, in that order, on one
// connection.
func (b *Base) Verify(ctx context.Context, st State, v Verifier) error {
	conn, err := b.dial(ctx, st)
	if err != nil {
		return err
	}

	defer func() { _ = conn.Close() }()

	if err := b.runRemote(ctx, conn, v.SyncCommand()); err != nil {
		return err
	}

	return b.runRemote(ctx, conn, v.RunCommand())
}

// RemoteCommand runs one ad hoc command on the instance. It is the escape
// hatch for callers that need something outside the fixed pipeline.
func (b *Base) RemoteCommand(ctx context.Context, st State, command string) error {
	conn, err := b.dial(ctx, st)
	if err != nil {
		return err
	}

	defer func() { _ = conn.Close() }()

	return b.runRemote(ctx, conn, command)
}

// LoginCommand builds the interactive login descriptor for the instance.
// Pure construction; no network I/O.
func (b *Base) LoginCommand(st State) (*LoginCommand, error) {
	return b.transport.LoginCommand(BuildParams(b.config, st, b.logger)), nil
}

// WaitForPort opens a connection scope and blocks until the instance's port
// accepts connections. Concrete drivers typically call this from their
// create hook.
func (b *Base) WaitForPort(ctx context.Context, st State) error {
	conn, err := b.dial(ctx, st)
	if err != nil {
		return err
	}

	defer func() { _ = conn.Close() }()

	if err := conn.WaitForPort(ctx); err != nil {
		return wrapAction(err)
	}

	return nil
}

func (b *Base) dial(ctx context.Context, st State) (Connection, error) {
	conn, err := b.transport.Dial(ctx, BuildParams(b.config, st, b.logger))
	if err != nil {
		return nil, wrapAction(err)
	}

	return conn, nil
}

// runRemote executes one trusted command string, prefixing proxy environment
// variables when configured. An empty command is a successful no-op; callers
// use that to skip optional pipeline steps.
func (b *Base) runRemote(ctx context.Context, conn Connection, command string) error {
	if command == "" {
		return nil
	}

	if err := conn.Execute(ctx, b.envCommand(command)); err != nil {
		return wrapAction(err)
	}

	return nil
}

// envCommand prepends http_proxy/https_proxy assignments, http first, only
// when configured and non-empty. The command is a trusted shell string;
// values are concatenated, not escaped.
func (b *Base) envCommand(command string) string {
	httpProxy := b.config.String("http_proxy")
	httpsProxy := b.config.String("https_proxy")

	if httpProxy == "" && httpsProxy == "" {
		return command
	}

	env := "env"
	if httpProxy != "" {
		env += " http_proxy=" + httpProxy
	}

	if httpsProxy != "" {
		env += " https_proxy=" + httpsProxy
	}

	return env + " " + command
}

// transfer packages paths into one compressed archive, uploads it, and
// unpacks it on the instance. Directory change, extraction, and archive
// removal form a single composite remote invocation so a partial failure
// surfaces as one failure.
func (b *Base) transfer(ctx context.Context, conn Connection, paths []string, remoteDir string) error {
	if len(paths) == 0 {
		return nil
	}

	return archive.Pack(paths, func(gzPath string) error {
		if err := conn.Upload(ctx, gzPath, remoteDir); err != nil {
			return wrapAction(err)
		}

		name := filepath.Base(gzPath)
		unpack := fmt.Sprintf("cd %s && tar xvfz %s > /dev/null && rm %s", remoteDir, name, name)

		return b.runRemote(ctx, conn, unpack)
	})
}

// sandboxEntries lists the top-level contents of the sandbox. The list is
// recomputed on every converge, never cached.
func sandboxEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	return paths, nil
}
