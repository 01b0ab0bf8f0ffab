// Package shell provides a minimal verifier collaborator that supplies
// user-specified shell commands for the setup and verify pipelines.
package shell

import "github.com/galleyhq/galley"

var _ galley.Verifier = (*Verifier)(nil)

// Verifier returns the configured commands verbatim. Empty commands skip
// their pipeline step.
type Verifier struct {
	Setup string
	Sync  string
	Run   string
}

func (v *Verifier) SetupCommand() string { return v.Setup }
func (v *Verifier) SyncCommand() string  { return v.Sync }
func (v *Verifier) RunCommand() string   { return v.Run }
