// Package main is the entrypoint for the galley CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/config"
	provshell "github.com/galleyhq/galley/provisioner/shell"
	sshtransport "github.com/galleyhq/galley/transport/ssh"
	vershell "github.com/galleyhq/galley/verifier/shell"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath    string
	hostFlag      string
	userFlag      string
	portFlag      int
	keyFlag       string
	passwordFlag  string
	verbose       bool
	createTimeout time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "galley",
	Short: "Galley - remote image provisioning and convergence testing",
	Long: `Galley drives a remote machine through a provisioning and verification
pipeline over ssh: it uploads a prepared local sandbox as one compressed
archive and runs the install/init/prepare/run and setup/verify commands
defined in the project file.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "galley.yml", "Project file")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "hostname", "", "Target hostname (overrides the project file)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "username", "", "Target username (overrides the project file)")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "Target ssh port (overrides the project file)")
	rootCmd.PersistentFlags().StringVar(&keyFlag, "ssh-key", "", "Private key path (overrides the project file)")
	rootCmd.PersistentFlags().StringVar(&passwordFlag, "password", "", "Password (overrides the project file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	createCmd.Flags().DurationVar(&createTimeout, "timeout", 5*time.Minute, "How long to wait for the instance to accept connections")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(convergeCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(loginCmd)
}

// session wires one project file into a driver, its collaborators, and the
// per-run instance state.
type session struct {
	driver *staticDriver
	state  galley.State
	prov   *provshell.Provisioner
	ver    *vershell.Verifier
	logger *slog.Logger
}

func newSession() (*session, error) {
	f, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger()

	t := sshtransport.New()
	if f.Transport.ConnectTimeoutSeconds > 0 {
		t.DialTimeout = time.Duration(f.Transport.ConnectTimeoutSeconds) * time.Second
	}

	t.SSHArgs = f.Transport.SSHArgs

	base := galley.NewBase(f.Driver, t, logger)

	st := galley.State{}
	if hostFlag != "" {
		st["hostname"] = hostFlag
	}

	if userFlag != "" {
		st["username"] = userFlag
	}

	if portFlag != 0 {
		st["port"] = portFlag
	}

	if keyFlag != "" {
		st["ssh_key"] = keyFlag
	}

	if passwordFlag != "" {
		st["password"] = passwordFlag
	}

	applySSHDefaults(base.Config(), st, logger)

	prov := &provshell.Provisioner{
		Root:    f.Provisioner.RootPath,
		Sources: f.Provisioner.Sources,
		Install: f.Provisioner.Install,
		Init:    f.Provisioner.Init,
		Prepare: f.Provisioner.Prepare,
		Run:     f.Provisioner.Run,
		Sudo:    base.Config().Bool("sudo"),
	}

	ver := &vershell.Verifier{
		Setup: f.Verifier.Setup,
		Sync:  f.Verifier.Sync,
		Run:   f.Verifier.Run,
	}

	return &session{
		driver: &staticDriver{Base: base, logger: logger},
		state:  st,
		prov:   prov,
		ver:    ver,
		logger: logger,
	}, nil
}

// applySSHDefaults fills connection keys absent from both the state and the
// driver config with values from the user's OpenSSH client configuration.
func applySSHDefaults(cfg galley.Config, st galley.State, logger *slog.Logger) {
	host, _ := st["hostname"].(string)
	if host == "" {
		host = cfg.String("hostname")
	}

	if host == "" {
		return
	}

	defaults := galley.State{}
	if err := sshtransport.ApplyHostDefaults(defaults, host, ""); err != nil {
		logger.Debug("ssh config defaults unavailable", "error", err)

		return
	}

	for k, v := range defaults {
		if _, ok := st[k]; ok {
			continue
		}

		if _, ok := cfg[k]; ok {
			continue
		}

		st[k] = v
	}
}

func (s *session) instance() string {
	if host, ok := s.state["hostname"].(string); ok && host != "" {
		return host
	}

	if host := s.driver.Config().String("hostname"); host != "" {
		return host
	}

	return "<unknown instance>"
}

// report wraps operation failures into the user-visible form, keeping the
// original message for diagnostics.
func (s *session) report(op string, err error) error {
	if err == nil {
		s.logger.Info("operation complete", "operation", op, "instance", s.instance())

		return nil
	}

	return fmt.Errorf("could not complete %s on %s: %w", op, s.instance(), err)
}

// runContext returns a context cancelled on SIGINT/SIGTERM.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Wait for the instance to accept ssh connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := runContext()
		defer cancel()

		ctx, timeoutCancel := context.WithTimeout(ctx, createTimeout)
		defer timeoutCancel()

		return s.report("create", s.driver.Create(ctx, s.state))
	},
}

var convergeCmd = &cobra.Command{
	Use:   "converge",
	Short: "Install the provisioner, upload the sandbox, and run the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := runContext()
		defer cancel()

		return s.report("converge", s.driver.Converge(ctx, s.state, s.prov))
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the verifier's setup command on the instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := runContext()
		defer cancel()

		return s.report("setup", s.driver.Setup(ctx, s.state, s.ver))
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the verifier's sync and run commands on the instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := runContext()
		defer cancel()

		return s.report("verify", s.driver.Verify(ctx, s.state, s.ver))
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down the instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := runContext()
		defer cancel()

		return s.report("destroy", s.driver.Destroy(ctx, s.state))
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run the full cycle: create, converge, setup, verify, destroy",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := runContext()
		defer cancel()

		steps := []struct {
			op  string
			run func() error
		}{
			{"create", func() error { return s.driver.Create(ctx, s.state) }},
			{"converge", func() error { return s.driver.Converge(ctx, s.state, s.prov) }},
			{"setup", func() error { return s.driver.Setup(ctx, s.state, s.ver) }},
			{"verify", func() error { return s.driver.Verify(ctx, s.state, s.ver) }},
			{"destroy", func() error { return s.driver.Destroy(ctx, s.state) }},
		}

		for _, step := range steps {
			if err := s.report(step.op, step.run()); err != nil {
				return err
			}
		}

		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <command>...",
	Short: "Run an ad hoc command on the instance",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		ctx, cancel := runContext()
		defer cancel()

		command := strings.Join(args, " ")

		return s.report("exec", s.driver.RemoteCommand(ctx, s.state, command))
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open an interactive session on the instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}

		lc, err := s.driver.LoginCommand(s.state)
		if err != nil {
			return s.report("login", err)
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "warning: stdin is not a terminal; the session will not be interactive")
		}

		s.logger.Debug("login command", "command", lc.String())

		c := exec.Command(lc.Cmd, lc.Args...)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}
