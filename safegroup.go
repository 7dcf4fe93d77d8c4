package acquire

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// NewRunGroup creates a RunGroup backed by errgroup.WithContext. The
// derived context is canceled on parent cancellation or on the first
// worker error.
func NewRunGroup(ctx context.Context) *RunGroup {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &RunGroup{group: group, ctx: groupCtx}
}

// RunGroup supervises the long-running goroutines of an acquisition
// application (signal handling, frame log flushing, session drivers).
type RunGroup struct {
	group *errgroup.Group
	ctx   context.Context
}

// Context returns the group's derived context.
func (g *RunGroup) Context() context.Context { return g.ctx }

// Go runs fn in a group goroutine with panic recovery: a panic is
// reported as an error instead of crashing the process, so sibling
// workers can shut down in an orderly way.
//
// Plain stderr is used for the panic report: the panic may have been
// raised by the logging stack itself.
func (g *RunGroup) Go(name string, fn func(context.Context) error) {
	if g == nil || fn == nil {
		return
	}
	g.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked: %v\n%s\n", name, r, debug.Stack())
				err = errors.Errorf("%s panicked: %v", name, r)
			}
		}()
		return fn(g.ctx)
	})
}

// Wait blocks until every goroutine started with Go has returned and
// yields the first non-nil error. Context cancellation from an orderly
// shutdown is not reported as an error.
func (g *RunGroup) Wait() error {
	if g == nil {
		return nil
	}
	err := g.group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
