package compiler

import (
	"fmt"
	"go/token"

	"github.com/stealthrocket/stackless"
	"github.com/stealthrocket/stackless/ir"
)

// Block is a basic block: straight-line operations ending in a terminator.
type Block struct {
	ID    int
	Kind  string // "entry", "then", "loop.header", "resume", ...
	Ops   []Op
	Term  Terminator
	Preds []*Block

	liveIn  bitset
	liveOut bitset
}

func (b *Block) String() string { return fmt.Sprintf("b%d(%s)", b.ID, b.Kind) }

// Terminator ends a basic block.
type Terminator interface {
	Succs() []*Block
}

type (
	// Jump continues at Target.
	Jump struct{ Target *Block }

	// Branch continues at Then when Cond is true, at Else otherwise.
	Branch struct {
		Cond       Expr
		Then, Else *Block
	}

	// Yield suspends at Point, handing Value to the caller. Resuming
	// continues at Resume.
	Yield struct {
		Value  Expr
		Point  *Point
		Resume *Block
	}

	// Complete finishes the generator with Value, or with a unit value when
	// Value is nil.
	Complete struct{ Value Expr }
)

func (t *Jump) Succs() []*Block     { return []*Block{t.Target} }
func (t *Branch) Succs() []*Block   { return []*Block{t.Then, t.Else} }
func (t *Yield) Succs() []*Block    { return []*Block{t.Resume} }
func (t *Complete) Succs() []*Block { return nil }

// Point is a suspension point.
type Point struct {
	Discriminant stackless.Discriminant

	// Block is the block suspending at the point, Resume the block where
	// execution continues.
	Block  *Block
	Resume *Block

	// Cleanups are the entries armed when the generator is parked at the
	// point, in registration order.
	Cleanups []*Cleanup

	// Live are the bindings that must be persisted across the point, ordered
	// by ID. Computed by the liveness analysis.
	Live []*Binding

	// Slots maps each live binding to its slot, ordered by slot. Computed by
	// the layout planner.
	Slots []SlotRef
}

// SlotRef associates a binding with the slot persisting it.
type SlotRef struct {
	Slot    int
	Binding *Binding
}

// CFG is the control-flow graph of a body.
type CFG struct {
	Body     *ir.Body
	Entry    *Block
	Blocks   []*Block
	Points   []*Point
	Bindings []*Binding
	Captures []*Binding
	Cleanups []*Cleanup

	// Initial are the cleanups armed at construction: the destructors of
	// droppable captures.
	Initial []*Cleanup
}

type loopContext struct {
	breakTarget    *Block
	continueTarget *Block
	// scope is the scope enclosing the loop; branching out of the loop body
	// releases the cleanups of every scope nested in it.
	scope *scope
	outer *loopContext
}

type builder struct {
	cfg     *CFG
	scope   *scope
	root    *scope
	loop    *loopContext
	inDefer bool
	temps   int
}

// buildCFG lowers a body into its control-flow graph.
func buildCFG(body *ir.Body) (*CFG, error) {
	if body.Block == nil {
		return nil, structuralErrorf(body, "missing block")
	}
	b := &builder{cfg: &CFG{Body: body}}
	b.root = newScope(nil)
	b.scope = b.root

	for _, c := range body.Captures {
		if c.Name == "" || c.Name == "_" {
			return nil, structuralErrorf(body, "capture with invalid name %q", c.Name)
		}
		if b.root.vars[c.Name] != nil {
			return nil, structuralErrorf(body, "%s captured twice", c.Name)
		}
		v := b.newBinding(c.Name, c.Type)
		v.Capture, v.ByRef = true, c.ByRef
		b.root.insert(v)
		b.cfg.Captures = append(b.cfg.Captures, v)
		if v.Droppable() {
			b.root.cleanups = append(b.root.cleanups, b.newCleanup(DropBinding, v, nil))
		}
	}
	b.cfg.Initial = b.root.armed()

	entry := b.newBlock("entry")
	b.cfg.Entry = entry

	current, err := b.buildBlock(body.Block, entry)
	if err != nil {
		return nil, err
	}
	if current != nil {
		b.release(current, b.root)
		current.Term = &Complete{}
	}

	b.prune()
	return b.cfg, nil
}

func (b *builder) newBlock(kind string) *Block {
	block := &Block{ID: len(b.cfg.Blocks), Kind: kind}
	b.cfg.Blocks = append(b.cfg.Blocks, block)
	return block
}

func (b *builder) newBinding(name string, typ ir.Type) *Binding {
	v := &Binding{ID: len(b.cfg.Bindings), Name: name, Type: typ}
	b.cfg.Bindings = append(b.cfg.Bindings, v)
	return v
}

func (b *builder) newTemp(prefix string, typ ir.Type) *Binding {
	b.temps++
	return b.newBinding(fmt.Sprintf("$%s%d", prefix, b.temps), typ)
}

func (b *builder) newCleanup(kind CleanupKind, v *Binding, ops []Op) *Cleanup {
	c := &Cleanup{ID: len(b.cfg.Cleanups), Kind: kind, Binding: v, Ops: ops}
	b.cfg.Cleanups = append(b.cfg.Cleanups, c)
	return c
}

func addEdge(from, to *Block) {
	to.Preds = append(to.Preds, from)
}

func (b *builder) jump(from, to *Block) {
	from.Term = &Jump{Target: to}
	addEdge(from, to)
}

func (b *builder) errorf(format string, args ...any) error {
	return structuralErrorf(b.cfg.Body, format, args...)
}

// buildBlock lowers a block in a new scope starting in current, and returns
// the block in which control continues, or nil when the end of the block is
// unreachable.
func (b *builder) buildBlock(block *ir.Block, current *Block) (*Block, error) {
	if block == nil {
		return current, nil
	}
	b.scope = newScope(b.scope)
	defer func() { b.scope = b.scope.outer }()

	for _, stmt := range block.Stmts {
		if current == nil {
			// Statements following a return, break or continue are
			// unreachable and not lowered.
			break
		}
		var err error
		if current, err = b.buildStmt(stmt, current); err != nil {
			return nil, err
		}
	}
	if current != nil {
		b.release(current, b.scope)
	}
	return current, nil
}

func (b *builder) buildStmt(stmt ir.Stmt, current *Block) (*Block, error) {
	switch s := stmt.(type) {
	case *ir.Block:
		return b.buildBlock(s, current)

	case *ir.Let:
		value, err := b.resolve(s.Value)
		if err != nil {
			return nil, err
		}
		if s.Name == "" {
			return nil, b.errorf("let without a name")
		}
		v := b.newBinding(s.Name, s.Type)
		b.scope.insert(v)
		init := &Init{Dst: v, Value: value}
		if v.Droppable() {
			init.Cleanup = b.newCleanup(DropBinding, v, nil)
			b.scope.cleanups = append(b.scope.cleanups, init.Cleanup)
		}
		current.Ops = append(current.Ops, init)
		return current, nil

	case *ir.Assign:
		v := b.scope.lookup(s.Name)
		if v == nil {
			return nil, b.errorf("assignment to undeclared name %s", s.Name)
		}
		value, err := b.resolve(s.Value)
		if err != nil {
			return nil, err
		}
		current.Ops = append(current.Ops, &Store{Dst: v, Value: value})
		return current, nil

	case *ir.ExprStmt:
		x, err := b.resolve(s.X)
		if err != nil {
			return nil, err
		}
		current.Ops = append(current.Ops, &Eval{X: x})
		return current, nil

	case *ir.Suspend:
		if b.inDefer {
			return nil, b.errorf("suspension inside a cleanup region")
		}
		value, err := b.resolve(s.Value)
		if err != nil {
			return nil, err
		}
		resume := b.newBlock("resume")
		point := &Point{
			Discriminant: stackless.Discriminant(len(b.cfg.Points)),
			Block:        current,
			Resume:       resume,
			Cleanups:     b.scope.armed(),
		}
		b.cfg.Points = append(b.cfg.Points, point)
		current.Term = &Yield{Value: value, Point: point, Resume: resume}
		addEdge(current, resume)
		return resume, nil

	case *ir.If:
		if b.inDefer {
			return nil, b.errorf("branch inside a cleanup region")
		}
		return b.buildIf(s, current)

	case *ir.Loop:
		if b.inDefer {
			return nil, b.errorf("loop inside a cleanup region")
		}
		return b.buildLoop(s, current)

	case *ir.For:
		if b.inDefer {
			return nil, b.errorf("loop inside a cleanup region")
		}
		return b.buildFor(s, current)

	case *ir.Return:
		if b.inDefer {
			return nil, b.errorf("return inside a cleanup region")
		}
		return nil, b.buildReturn(s, current)

	case *ir.Break:
		if b.inDefer {
			return nil, b.errorf("break inside a cleanup region")
		}
		if b.loop == nil {
			return nil, b.errorf("break outside of a loop")
		}
		b.releaseUntil(current, b.loop.scope)
		b.jump(current, b.loop.breakTarget)
		return nil, nil

	case *ir.Continue:
		if b.inDefer {
			return nil, b.errorf("continue inside a cleanup region")
		}
		if b.loop == nil {
			return nil, b.errorf("continue outside of a loop")
		}
		b.releaseUntil(current, b.loop.scope)
		b.jump(current, b.loop.continueTarget)
		return nil, nil

	case *ir.Defer:
		if b.inDefer {
			return nil, b.errorf("cleanup region nested in a cleanup region")
		}
		ops, err := b.buildCleanupRegion(s.Body)
		if err != nil {
			return nil, err
		}
		c := b.newCleanup(RunDefer, nil, ops)
		b.scope.cleanups = append(b.scope.cleanups, c)
		current.Ops = append(current.Ops, &Arm{Cleanup: c})
		return current, nil

	case nil:
		return nil, b.errorf("nil statement")

	default:
		return nil, b.errorf("unsupported statement %T", stmt)
	}
}

func (b *builder) buildIf(s *ir.If, current *Block) (*Block, error) {
	cond, err := b.resolve(s.Cond)
	if err != nil {
		return nil, err
	}
	then := b.newBlock("then")
	join := b.newBlock("join")
	otherwise := join
	if s.Else != nil {
		otherwise = b.newBlock("else")
	}
	current.Term = &Branch{Cond: cond, Then: then, Else: otherwise}
	addEdge(current, then)
	addEdge(current, otherwise)

	afterThen, err := b.buildBlock(s.Then, then)
	if err != nil {
		return nil, err
	}
	if afterThen != nil {
		b.jump(afterThen, join)
	}
	if s.Else != nil {
		afterElse, err := b.buildBlock(s.Else, otherwise)
		if err != nil {
			return nil, err
		}
		if afterElse != nil {
			b.jump(afterElse, join)
		}
	}
	if len(join.Preds) == 0 {
		return nil, nil
	}
	return join, nil
}

func (b *builder) buildLoop(s *ir.Loop, current *Block) (*Block, error) {
	header := b.newBlock("loop.header")
	b.jump(current, header)

	body := b.newBlock("loop.body")
	exit := b.newBlock("loop.exit")
	continueTarget := header
	var post *Block
	if s.Post != nil {
		post = b.newBlock("loop.post")
		continueTarget = post
	}

	if s.Cond != nil {
		cond, err := b.resolve(s.Cond)
		if err != nil {
			return nil, err
		}
		header.Term = &Branch{Cond: cond, Then: body, Else: exit}
		addEdge(header, body)
		addEdge(header, exit)
	} else {
		b.jump(header, body)
	}

	outer := b.loop
	b.loop = &loopContext{
		breakTarget:    exit,
		continueTarget: continueTarget,
		scope:          b.scope,
		outer:          outer,
	}
	afterBody, err := b.buildBlock(s.Body, body)
	b.loop = outer
	if err != nil {
		return nil, err
	}
	if afterBody != nil {
		b.jump(afterBody, continueTarget)
	}

	if post != nil && len(post.Preds) > 0 {
		afterPost, err := b.buildBlock(s.Post, post)
		if err != nil {
			return nil, err
		}
		if afterPost != nil {
			b.jump(afterPost, header)
		}
	}

	if len(exit.Preds) == 0 {
		return nil, nil
	}
	return exit, nil
}

// buildFor lowers `for v in from..to { body }` as
//
//	{ let $to = to; let v = from; loop v < $to { body } post { v = v + 1 } }
func (b *builder) buildFor(s *ir.For, current *Block) (*Block, error) {
	if s.Var == "" {
		return nil, b.errorf("for loop without a variable")
	}
	b.temps++
	limit := fmt.Sprintf("$to%d", b.temps)
	intType := ir.Type{Name: "int", Size: 8, Align: 8}
	loop := &ir.Block{Stmts: []ir.Stmt{
		&ir.Let{Name: limit, Type: intType, Value: s.To},
		&ir.Let{Name: s.Var, Type: intType, Value: s.From},
		&ir.Loop{
			Cond: &ir.Binary{Op: token.LSS, X: &ir.Ref{Name: s.Var}, Y: &ir.Ref{Name: limit}},
			Body: s.Body,
			Post: &ir.Block{Stmts: []ir.Stmt{
				&ir.Assign{Name: s.Var, Value: &ir.Binary{
					Op: token.ADD,
					X:  &ir.Ref{Name: s.Var},
					Y:  &ir.Const{Value: 1},
				}},
			}},
		},
	}}
	return b.buildBlock(loop, current)
}

func (b *builder) buildReturn(s *ir.Return, current *Block) error {
	var value Expr
	var moved *Binding
	if s.Value != nil {
		v, err := b.resolve(s.Value)
		if err != nil {
			return err
		}
		value = v
		if load, ok := v.(*Load); ok && load.B.Droppable() {
			// Returning a droppable binding moves it out of the generator.
			moved = load.B
		} else if len(b.scope.armed()) > 0 {
			// Cleanups run after the value is computed and might change what
			// it reads.
			tmp := b.newTemp("ret", ir.Any)
			current.Ops = append(current.Ops, &Init{Dst: tmp, Value: v})
			value = &Load{B: tmp}
		}
	}
	for s := b.scope; s != nil; s = s.outer {
		for i := len(s.cleanups) - 1; i >= 0; i-- {
			c := s.cleanups[i]
			forget := c.Kind == DropBinding && c.Binding == moved
			current.Ops = append(current.Ops, &Release{Cleanup: c, Forget: forget})
		}
	}
	current.Term = &Complete{Value: value}
	return nil
}

// buildCleanupRegion lowers the body of a Defer into straight-line
// operations.
func (b *builder) buildCleanupRegion(body *ir.Block) ([]Op, error) {
	// The scratch block is not part of the graph: cleanup regions may not
	// branch, so their operations never leave it.
	scratch := &Block{ID: -1, Kind: "defer"}
	b.inDefer = true
	defer func() { b.inDefer = false }()
	outer := b.loop
	b.loop = nil
	defer func() { b.loop = outer }()

	end, err := b.buildBlock(body, scratch)
	if err != nil {
		return nil, err
	}
	if end != scratch || scratch.Term != nil {
		panic("cleanup region left its block")
	}
	return scratch.Ops, nil
}

// release appends the release of the cleanups registered in s, most recent
// first.
func (b *builder) release(current *Block, s *scope) {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		current.Ops = append(current.Ops, &Release{Cleanup: s.cleanups[i]})
	}
}

// releaseUntil releases the cleanups of every scope from the current one up
// to, but excluding, stop.
func (b *builder) releaseUntil(current *Block, stop *scope) {
	for s := b.scope; s != stop && s != nil; s = s.outer {
		b.release(current, s)
	}
}

func (b *builder) resolve(e ir.Expr) (Expr, error) {
	switch x := e.(type) {
	case *ir.Const:
		return &Value{V: x.Value}, nil
	case *ir.Ref:
		v := b.scope.lookup(x.Name)
		if v == nil {
			return nil, b.errorf("undefined: %s", x.Name)
		}
		return &Load{B: v}, nil
	case *ir.Unary:
		operand, err := b.resolve(x.X)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: x.Op, X: operand}, nil
	case *ir.Binary:
		lhs, err := b.resolve(x.X)
		if err != nil {
			return nil, err
		}
		rhs, err := b.resolve(x.Y)
		if err != nil {
			return nil, err
		}
		return &Binary{Op: x.Op, X: lhs, Y: rhs}, nil
	case *ir.Call:
		if x.Func == "" {
			return nil, b.errorf("call without a function name")
		}
		args := make([]Expr, len(x.Args))
		for i, arg := range x.Args {
			a, err := b.resolve(arg)
			if err != nil {
				return nil, err
			}
			args[i] = a
		}
		return &Call{Func: x.Func, Args: args}, nil
	case nil:
		return nil, b.errorf("missing expression")
	default:
		return nil, b.errorf("unsupported expression %T", e)
	}
}

// prune removes blocks unreachable from the entry block, along with the
// suspension points they hold, and renumbers what remains in discovery
// order.
func (b *builder) prune() {
	reachable := map[*Block]bool{}
	var visit func(*Block)
	visit = func(block *Block) {
		if reachable[block] {
			return
		}
		reachable[block] = true
		if block.Term != nil {
			for _, succ := range block.Term.Succs() {
				visit(succ)
			}
		}
	}
	visit(b.cfg.Entry)

	blocks := b.cfg.Blocks[:0]
	for _, block := range b.cfg.Blocks {
		if !reachable[block] {
			continue
		}
		preds := block.Preds[:0]
		for _, p := range block.Preds {
			if reachable[p] {
				preds = append(preds, p)
			}
		}
		block.Preds = preds
		block.ID = len(blocks)
		blocks = append(blocks, block)
	}
	clear(b.cfg.Blocks[len(blocks):])
	b.cfg.Blocks = blocks

	points := b.cfg.Points[:0]
	for _, p := range b.cfg.Points {
		if reachable[p.Block] {
			p.Discriminant = stackless.Discriminant(len(points))
			points = append(points, p)
		}
	}
	clear(b.cfg.Points[len(points):])
	b.cfg.Points = points
}
