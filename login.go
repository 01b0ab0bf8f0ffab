package galley

import (
	"fmt"
	"strings"
)

// LoginCommand describes how to start an interactive session against an
// instance: a program and its arguments. The core constructs it but never
// executes it.
type LoginCommand struct {
	Cmd  string
	Args []string
}

// Argv returns the full argument vector, program first.
func (c *LoginCommand) Argv() []string {
	return append([]string{c.Cmd}, c.Args...)
}

// String returns a simplified, shell-quoted rendering for logs.
func (c *LoginCommand) String() string {
	if len(c.Args) == 0 {
		return c.Cmd
	}

	var b strings.Builder
	b.WriteString(c.Cmd)

	for _, arg := range c.Args {
		b.WriteString(" ")

		if strings.Contains(arg, " ") {
			fmt.Fprintf(&b, "%q", arg)
		} else {
			b.WriteString(arg)
		}
	}

	return b.String()
}
