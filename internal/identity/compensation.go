package identity

import (
	"context"

	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/tablestore"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// compensation undoes one completed step of a multi-table write.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// compensator records undo steps as a write progresses and replays them,
// newest first, when a later step fails.
type compensator struct {
	log   *logger.Logger
	steps []compensation
}

func newCompensator(log *logger.Logger) *compensator {
	return &compensator{log: log}
}

func (c *compensator) add(name string, undo func(ctx context.Context) error) {
	c.steps = append(c.steps, compensation{name: name, undo: undo})
}

// deleteOnFailure registers removal of a row this write just inserted. The
// delete matches any version: nobody else can have written the fresh key.
func (c *compensator) deleteOnFailure(t tablestore.Table, pk, rk string) {
	c.add("delete "+t.Name(), func(ctx context.Context) error {
		_, err := t.Execute(ctx, tablestore.DeleteKey(pk, rk))
		if tablestore.IsNotFound(err) {
			return nil
		}
		return err
	})
}

// run executes every undo step and returns their combined failures. Steps
// run even when ctx is already canceled. Failures are logged, and callers
// surface the error that triggered compensation rather than this one.
func (c *compensator) run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var errs error
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.undo(ctx); err != nil {
			c.log.Warn("compensation failed",
				logger.Operation(step.name),
				logger.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	c.steps = nil
	return errs
}
