package ssh

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/galleyhq/galley"
	"github.com/kevinburke/ssh_config"
)

// ApplyHostDefaults fills missing connection keys in st from the user's
// OpenSSH client configuration for the given host alias. Explicit state
// always wins; only absent keys are filled. A missing config file is not an
// error: there are simply no defaults to apply.
func ApplyHostDefaults(st galley.State, host, path string) error {
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".ssh", "config")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to open ssh config: %w", err)
	}

	defer func() { _ = f.Close() }()

	return ApplyHostDefaultsFromReader(st, host, f)
}

// ApplyHostDefaultsFromReader parses OpenSSH client configuration data and
// resolves the host alias to HostName, User, Port, IdentityFile, and
// ForwardAgent defaults for any of those keys absent from st.
func ApplyHostDefaultsFromReader(st galley.State, host string, r io.Reader) error {
	cfg, err := ssh_config.Decode(r)
	if err != nil {
		return fmt.Errorf("failed to parse ssh config: %w", err)
	}

	if _, ok := st["hostname"]; !ok {
		if hostName, _ := cfg.Get(host, "HostName"); hostName != "" {
			st["hostname"] = hostName
		}
	}

	if _, ok := st["username"]; !ok {
		if username, _ := cfg.Get(host, "User"); username != "" {
			st["username"] = username
		}
	}

	if _, ok := st["port"]; !ok {
		if portStr, _ := cfg.Get(host, "Port"); portStr != "" {
			if port, err := strconv.Atoi(portStr); err == nil {
				st["port"] = port
			}
		}
	}

	if _, ok := st["ssh_key"]; !ok {
		// The library falls back to OpenSSH's built-in IdentityFile default
		// when the host has no explicit entry; only explicit values count.
		if identityFile, _ := cfg.Get(host, "IdentityFile"); identityFile != "" && identityFile != ssh_config.Default("IdentityFile") {
			if strings.HasPrefix(identityFile, "~/") {
				identityFile = filepath.Join(os.Getenv("HOME"), identityFile[2:])
			}

			st["ssh_key"] = identityFile
		}
	}

	if _, ok := st["forward_agent"]; !ok {
		if forward, _ := cfg.Get(host, "ForwardAgent"); forward == "yes" {
			st["forward_agent"] = true
		}
	}

	return nil
}
