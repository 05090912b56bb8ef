package compiler

import (
	"context"
	"fmt"

	"github.com/stealthrocket/stackless/ir"
	"golang.org/x/sync/errgroup"
)

// Compile lowers a body into a Program.
//
// Compile returns a *StructuralError when the body is malformed, and a
// *LivenessViolation when the state machine it would produce does not hold
// its invariants. No partial program is returned on error.
func Compile(body *ir.Body, options ...Option) (*Program, error) {
	return newCompiler(options).compile(body)
}

// CompileAll compiles independent bodies concurrently. The programs are
// returned in the order of the bodies; the first error cancels the
// compilations that did not start yet.
func CompileAll(ctx context.Context, bodies []*ir.Body, options ...Option) ([]*Program, error) {
	c := newCompiler(options)
	programs := make([]*Program, len(bodies))

	group, ctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		group.SetLimit(c.concurrency)
	}
	for i, body := range bodies {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := c.compile(body)
			if err != nil {
				return err
			}
			programs[i] = p
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return programs, nil
}

func (c *compiler) compile(body *ir.Body) (*Program, error) {
	if body == nil {
		return nil, &StructuralError{Msg: "nil body"}
	}
	c.logger.Printf("compiling body %s", body.Name)

	if c.lifetimes != nil {
		for _, capture := range body.Captures {
			if !capture.ByRef {
				continue
			}
			if err := c.lifetimes.CheckCapture(body, capture); err != nil {
				return nil, fmt.Errorf("%s: capture %s: %w", body.Name, capture.Name, err)
			}
		}
	}

	c.logger.Printf("building control-flow graph")
	g, err := buildCFG(body)
	if err != nil {
		return nil, err
	}

	c.logger.Printf("computing liveness of %d bindings across %d suspension points", len(g.Bindings), len(g.Points))
	analyzeLiveness(g)
	captures := analyzeCaptures(g)
	for _, v := range captures.Unused {
		c.logger.Printf("%s: capture %s is never used", body.Name, v.Name)
	}

	c.logger.Printf("planning state record layout")
	l := planLayout(g, c.reuseSlots)
	if err := verifyLayout(g, l); err != nil {
		return nil, err
	}

	drops, unresumed := dropTables(g)
	p := &Program{
		Name:           body.Name,
		Body:           body,
		Entry:          g.Entry,
		Blocks:         g.Blocks,
		Points:         g.Points,
		Bindings:       g.Bindings,
		Captures:       captures,
		Slots:          l.slots,
		Drops:          drops,
		UnresumedDrops: unresumed,
		Cleanups:       g.Cleanups,
		Params:         g.Captures,
		slotOf:         l.slotOf,
	}
	c.logger.Printf("compiled %s: %d blocks, %d suspension points, %d slots", p.Name, len(p.Blocks), len(p.Points), len(p.Slots))
	return p, nil
}
