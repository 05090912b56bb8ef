package compiler

import (
	"io"
	"log"

	"github.com/stealthrocket/stackless/ir"
)

// Option configures the compiler.
type Option func(*compiler)

// WithLogger instructs the compiler to report progress to logger. The
// compiler is silent by default.
func WithLogger(logger *log.Logger) Option {
	return func(c *compiler) { c.logger = logger }
}

// WithoutSlotReuse gives every persisted binding its own slot of the state
// record, even when bindings are never live at the same time.
func WithoutSlotReuse() Option {
	return func(c *compiler) { c.reuseSlots = false }
}

// WithLifetimeChecker installs a checker consulted for each capture held by
// reference.
func WithLifetimeChecker(checker LifetimeChecker) Option {
	return func(c *compiler) { c.lifetimes = checker }
}

// WithConcurrency bounds the number of bodies that CompileAll compiles at
// the same time. Zero or a negative value means no bound.
func WithConcurrency(n int) Option {
	return func(c *compiler) { c.concurrency = n }
}

// LifetimeChecker verifies that a value captured by reference outlives the
// generator holding the reference. Compilation aborts with the error the
// checker returns.
type LifetimeChecker interface {
	CheckCapture(body *ir.Body, capture ir.Capture) error
}

// LifetimeCheckerFunc adapts a function to the LifetimeChecker interface.
type LifetimeCheckerFunc func(body *ir.Body, capture ir.Capture) error

func (f LifetimeCheckerFunc) CheckCapture(body *ir.Body, capture ir.Capture) error {
	return f(body, capture)
}

type compiler struct {
	logger      *log.Logger
	reuseSlots  bool
	lifetimes   LifetimeChecker
	concurrency int
}

func newCompiler(options []Option) *compiler {
	c := &compiler{reuseSlots: true}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard, "", 0)
	}
	return c
}
