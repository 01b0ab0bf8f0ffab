package ssh

import (
	"strconv"

	"github.com/galleyhq/galley"
	"github.com/google/shlex"
)

// LoginCommand builds an interactive ssh invocation for the instance. Pure
// construction; nothing is dialed or executed.
//
// The descriptor mirrors the connection parameters: host keys are discarded,
// identities are pinned when key material pinned the connection, and agent
// forwarding follows the explicit forward_agent setting even when false.
func (t *Transport) LoginCommand(p galley.Params) *galley.LoginCommand {
	args := []string{
		"-o", "UserKnownHostsFile=" + knownHostsFile(p),
		"-o", "StrictHostKeyChecking=no",
	}

	if p.Options.KeysOnly {
		args = append(args, "-o", "IdentitiesOnly=yes")
	}

	for _, key := range p.Options.Keys {
		args = append(args, "-i", key)
	}

	if fa := p.Options.ForwardAgent; fa != nil {
		if *fa {
			args = append(args, "-o", "ForwardAgent=yes")
		} else {
			args = append(args, "-o", "ForwardAgent=no")
		}
	}

	if p.Options.Port != 0 {
		args = append(args, "-p", strconv.Itoa(p.Options.Port))
	}

	if t.SSHArgs != "" {
		if extra, err := shlex.Split(t.SSHArgs); err == nil {
			args = append(args, extra...)
		}
	}

	args = append(args, p.Username+"@"+p.Hostname)

	return &galley.LoginCommand{Cmd: "ssh", Args: args}
}
