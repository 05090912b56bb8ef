package compiler

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

// Plan is a human readable description of a Program, as printed by
// genc -dump.
type Plan struct {
	Name      string        `yaml:"name"`
	Captures  []CapturePlan `yaml:"captures,omitempty"`
	Slots     []SlotPlan    `yaml:"slots,omitempty"`
	Points    []PointPlan   `yaml:"points,omitempty"`
	Unresumed []string      `yaml:"unresumed_drops,omitempty"`
	Blocks    []BlockPlan   `yaml:"blocks"`
}

// CapturePlan describes a capture of the body.
type CapturePlan struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	ByRef  bool   `yaml:"by_ref,omitempty"`
	Unused bool   `yaml:"unused,omitempty"`
}

// SlotPlan describes a slot of the state record and the bindings sharing it.
type SlotPlan struct {
	Index    int      `yaml:"index"`
	Type     string   `yaml:"type"`
	Bindings []string `yaml:"bindings"`
}

// PointPlan describes a suspension point: where it resumes, the slots it
// saves and the cleanups that closing a machine parked there runs.
type PointPlan struct {
	Discriminant int      `yaml:"discriminant"`
	Resume       int      `yaml:"resume"`
	Saves        []string `yaml:"saves,omitempty"`
	Drops        []string `yaml:"drops,omitempty"`
}

// BlockPlan describes a basic block.
type BlockPlan struct {
	ID   int      `yaml:"id"`
	Kind string   `yaml:"kind"`
	Ops  []string `yaml:"ops,omitempty"`
	Term string   `yaml:"term"`
}

// Describe returns the plan of p.
func (p *Program) Describe() *Plan {
	plan := &Plan{Name: p.Name}

	unused := map[*Binding]bool{}
	for _, v := range p.Captures.Unused {
		unused[v] = true
	}
	for _, v := range p.Params {
		plan.Captures = append(plan.Captures, CapturePlan{
			Name:   v.Name,
			Type:   v.Type.Name,
			ByRef:  v.ByRef,
			Unused: unused[v],
		})
	}

	for _, s := range p.Slots {
		sp := SlotPlan{Index: s.Index, Type: s.Type.Name}
		for _, v := range s.Bindings {
			sp.Bindings = append(sp.Bindings, v.String())
		}
		plan.Slots = append(plan.Slots, sp)
	}

	for _, pt := range p.Points {
		pp := PointPlan{Discriminant: int(pt.Discriminant), Resume: pt.Resume.ID}
		for _, s := range pt.Slots {
			pp.Saves = append(pp.Saves, fmt.Sprintf("%s -> %d", s.Binding, s.Slot))
		}
		pp.Drops = cleanupNames(p.Drops[pt.Discriminant])
		plan.Points = append(plan.Points, pp)
	}
	plan.Unresumed = cleanupNames(p.UnresumedDrops)

	for _, b := range p.Blocks {
		bp := BlockPlan{ID: b.ID, Kind: b.Kind, Term: termString(b.Term)}
		for _, op := range b.Ops {
			bp.Ops = append(bp.Ops, opString(op))
		}
		plan.Blocks = append(plan.Blocks, bp)
	}
	return plan
}

// YAML renders the plan as a YAML document.
func (plan *Plan) YAML() ([]byte, error) {
	return yaml.Marshal(plan)
}

func cleanupNames(cleanups []*Cleanup) []string {
	var names []string
	for _, c := range cleanups {
		names = append(names, c.String())
	}
	return names
}

func exprString(e Expr) string {
	switch x := e.(type) {
	case nil:
		return "()"
	case *Value:
		if s, ok := x.V.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprint(x.V)
	case *Load:
		return x.B.String()
	case *Unary:
		return x.Op.String() + exprString(x.X)
	case *Binary:
		return "(" + exprString(x.X) + " " + x.Op.String() + " " + exprString(x.Y) + ")"
	case *Call:
		args := make([]string, len(x.Args))
		for i, arg := range x.Args {
			args[i] = exprString(arg)
		}
		return x.Func + "(" + strings.Join(args, ", ") + ")"
	default:
		return fmt.Sprintf("%T", e)
	}
}

func opString(op Op) string {
	switch o := op.(type) {
	case *Init:
		s := "let " + o.Dst.String() + " = " + exprString(o.Value)
		if o.Cleanup != nil {
			s += " [arm]"
		}
		return s
	case *Store:
		return o.Dst.String() + " = " + exprString(o.Value)
	case *Eval:
		return exprString(o.X)
	case *Arm:
		return "arm " + o.Cleanup.String()
	case *Release:
		if o.Forget {
			return "forget " + o.Cleanup.String()
		}
		return "release " + o.Cleanup.String()
	default:
		return fmt.Sprintf("%T", op)
	}
}

func termString(t Terminator) string {
	switch x := t.(type) {
	case *Jump:
		return fmt.Sprintf("jump b%d", x.Target.ID)
	case *Branch:
		return fmt.Sprintf("if %s b%d b%d", exprString(x.Cond), x.Then.ID, x.Else.ID)
	case *Yield:
		return fmt.Sprintf("yield %s @%d b%d", exprString(x.Value), x.Point.Discriminant, x.Resume.ID)
	case *Complete:
		return "return " + exprString(x.Value)
	default:
		return fmt.Sprintf("%T", t)
	}
}
