// Package shell provides a minimal provisioner collaborator: it assembles a
// sandbox from user-specified local paths and supplies user-specified shell
// commands for the converge pipeline.
package shell

import (
	"fmt"
	"os"

	"github.com/galleyhq/galley"
	"github.com/galleyhq/galley/fileutil"
)

const defaultRootPath = "/tmp/galley"

var _ galley.Provisioner = (*Provisioner)(nil)

// Provisioner ships the configured source paths to the instance and runs the
// configured commands. Empty commands skip their pipeline step.
type Provisioner struct {
	// Root is the remote directory the sandbox is unpacked into.
	Root string

	// Sources are local paths copied into the sandbox on every converge.
	Sources []string

	Install string
	Init    string
	Prepare string
	Run     string

	// Sudo prefixes the pipeline commands with a privilege escalation.
	Sudo bool

	sandbox string
}

// SandboxPath returns the current sandbox directory, empty when none exists.
func (p *Provisioner) SandboxPath() string {
	return p.sandbox
}

// CreateSandbox assembles a fresh sandbox from the configured sources.
func (p *Provisioner) CreateSandbox() error {
	dir, err := os.MkdirTemp("", "galley-sandbox-")
	if err != nil {
		return err
	}

	p.sandbox = dir

	for _, src := range p.Sources {
		if err := fileutil.CopyTree(src, dir); err != nil {
			return fmt.Errorf("copy %s into sandbox: %w", src, err)
		}
	}

	return nil
}

// CleanupSandbox removes the sandbox. Safe to call when no sandbox exists.
func (p *Provisioner) CleanupSandbox() error {
	if p.sandbox == "" {
		return nil
	}

	dir := p.sandbox
	p.sandbox = ""

	return os.RemoveAll(dir)
}

// RootPath returns the remote destination directory.
func (p *Provisioner) RootPath() string {
	if p.Root == "" {
		return defaultRootPath
	}

	return p.Root
}

func (p *Provisioner) InstallCommand() string { return p.wrap(p.Install) }
func (p *Provisioner) InitCommand() string    { return p.wrap(p.Init) }
func (p *Provisioner) PrepareCommand() string { return p.wrap(p.Prepare) }
func (p *Provisioner) RunCommand() string     { return p.wrap(p.Run) }

// wrap applies the sudo prefix to non-empty commands. -E keeps proxy
// variables visible to the escalated command.
func (p *Provisioner) wrap(cmd string) string {
	if cmd == "" {
		return ""
	}

	if p.Sudo {
		return "sudo -E " + cmd
	}

	return cmd
}
