package galley

import (
	"log/slog"
	"os"
)

// Params is the normalized connection-parameter set produced by merging the
// driver Config with per-instance State.
type Params struct {
	Hostname string
	Username string
	Options  Options
}

// Options carries the ssh option set the transport consumes. ForwardAgent is
// a pointer because presence, not truthiness, decides whether the option is
// emitted: an explicit forward_agent=false still turns forwarding off on the
// login command line.
type Options struct {
	// Host keys of test instances are never trusted: learned keys go to a
	// discard target and verification stays off.
	KnownHostsFile string
	VerifyHostKey  bool

	// KeysOnly and Keys are set together, iff key material was present in
	// the merged input. A single key path is wrapped into a one-element
	// slice; an explicit slice passes through in order.
	KeysOnly bool
	Keys     []string

	Password     string
	ForwardAgent *bool
	Port         int // 0 when absent

	Logger *slog.Logger
}

// BuildParams merges cfg and st (State wins for overlapping keys) and
// derives connection parameters. Pure function of its inputs; no I/O and no
// failure mode.
func BuildParams(cfg Config, st State, logger *slog.Logger) Params {
	m := merged(cfg, st)

	opts := Options{
		KnownHostsFile: os.DevNull,
		VerifyHostKey:  false,
		Logger:         logger,
	}

	if keys := keyList(m["ssh_key"]); len(keys) > 0 {
		opts.KeysOnly = true
		opts.Keys = keys
	}

	if pw := stringValue(m, "password"); pw != "" {
		opts.Password = pw
	}

	if v, ok := m["forward_agent"]; ok {
		fa := truthy(v)
		opts.ForwardAgent = &fa
	}

	if port := intValue(m, "port"); port != 0 {
		opts.Port = port
	}

	return Params{
		Hostname: stringValue(m, "hostname"),
		Username: stringValue(m, "username"),
		Options:  opts,
	}
}

// keyList normalizes the ssh_key value: a single path becomes a one-element
// list, slices pass through preserving order.
func keyList(v any) []string {
	switch k := v.(type) {
	case string:
		if k == "" {
			return nil
		}

		return []string{k}
	case []string:
		return k
	case []any:
		keys := make([]string, 0, len(k))

		for _, e := range k {
			if s, ok := e.(string); ok {
				keys = append(keys, s)
			}
		}

		return keys
	}

	return nil
}
