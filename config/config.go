// Package config loads the galley project file: a YAML document with
// driver, transport, provisioner, and verifier sections.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the parsed project file.
type File struct {
	// Driver holds free-form driver configuration (hostname, username,
	// port, ssh_key, password, forward_agent, sudo, http_proxy,
	// https_proxy, ...). Keys here are defaults; per-run state overrides
	// them.
	Driver map[string]any `yaml:"driver"`

	Transport   Transport   `yaml:"transport"`
	Provisioner Provisioner `yaml:"provisioner"`
	Verifier    Verifier    `yaml:"verifier"`
}

// Transport tunes connection establishment and login commands.
type Transport struct {
	// ConnectTimeoutSeconds bounds ssh connection establishment.
	ConnectTimeoutSeconds int `yaml:"connect_timeout"`

	// SSHArgs is appended to interactive login commands, split shell-style.
	SSHArgs string `yaml:"ssh_args"`
}

// Provisioner configures the shell provisioner.
type Provisioner struct {
	RootPath string   `yaml:"root_path"`
	Sources  []string `yaml:"sources"`
	Install  string   `yaml:"install"`
	Init     string   `yaml:"init"`
	Prepare  string   `yaml:"prepare"`
	Run      string   `yaml:"run"`
}

// Verifier configures the shell verifier.
type Verifier struct {
	Setup string `yaml:"setup"`
	Sync  string `yaml:"sync"`
	Run   string `yaml:"run"`
}

// Load reads and parses a project file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}

	return Parse(data)
}

// Parse decodes project file data.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse project file: %w", err)
	}

	if f.Driver == nil {
		f.Driver = map[string]any{}
	}

	return &f, nil
}
