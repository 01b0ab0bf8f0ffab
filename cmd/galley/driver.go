package main

import (
	"context"
	"log/slog"

	"github.com/galleyhq/galley"
)

// staticDriver targets an already-running host: create waits for sshd to
// accept connections, destroy leaves the machine alone. Everything else is
// the shared lifecycle from galley.Base.
type staticDriver struct {
	*galley.Base

	logger *slog.Logger
}

var _ galley.Driver = (*staticDriver)(nil)

func (d *staticDriver) Create(ctx context.Context, st galley.State) error {
	if err := d.WaitForPort(ctx, st); err != nil {
		return err
	}

	d.logger.Info("instance ready", "hostname", st["hostname"])

	return nil
}

func (d *staticDriver) Destroy(_ context.Context, st galley.State) error {
	d.logger.Info("static instance left running", "hostname", st["hostname"])

	return nil
}
