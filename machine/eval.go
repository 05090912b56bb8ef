package machine

import (
	"fmt"
	"go/token"

	"github.com/stealthrocket/stackless/compiler"
)

func truth(v any) bool {
	b, ok := v.(bool)
	if !ok {
		panic(fmt.Sprintf("non-boolean condition: %v (%T)", v, v))
	}
	return b
}

func (m *Machine) binary(x *compiler.Binary) any {
	switch x.Op {
	case token.LAND:
		return truth(m.eval(x.X)) && truth(m.eval(x.Y))
	case token.LOR:
		return truth(m.eval(x.X)) || truth(m.eval(x.Y))
	}
	return binary(x.Op, m.eval(x.X), m.eval(x.Y))
}

func binary(op token.Token, x, y any) any {
	switch op {
	case token.EQL:
		return x == y
	case token.NEQ:
		return x != y
	}
	switch a := x.(type) {
	case int:
		if b, ok := y.(int); ok {
			return integer(op, a, b)
		}
	case int64:
		if b, ok := y.(int64); ok {
			return integer(op, a, b)
		}
	case float64:
		if b, ok := y.(float64); ok {
			return float(op, a, b)
		}
	case string:
		if b, ok := y.(string); ok {
			return str(op, a, b)
		}
	}
	panic(fmt.Sprintf("invalid operation: %v %s %v (%T and %T)", x, op, y, x, y))
}

func integer[T int | int64](op token.Token, a, b T) any {
	switch op {
	case token.ADD:
		return a + b
	case token.SUB:
		return a - b
	case token.MUL:
		return a * b
	case token.QUO:
		return a / b
	case token.REM:
		return a % b
	case token.AND:
		return a & b
	case token.OR:
		return a | b
	case token.XOR:
		return a ^ b
	case token.AND_NOT:
		return a &^ b
	case token.SHL:
		return a << b
	case token.SHR:
		return a >> b
	case token.LSS:
		return a < b
	case token.LEQ:
		return a <= b
	case token.GTR:
		return a > b
	case token.GEQ:
		return a >= b
	}
	panic(fmt.Sprintf("invalid integer operator %s", op))
}

func float(op token.Token, a, b float64) any {
	switch op {
	case token.ADD:
		return a + b
	case token.SUB:
		return a - b
	case token.MUL:
		return a * b
	case token.QUO:
		return a / b
	case token.LSS:
		return a < b
	case token.LEQ:
		return a <= b
	case token.GTR:
		return a > b
	case token.GEQ:
		return a >= b
	}
	panic(fmt.Sprintf("invalid float operator %s", op))
}

func str(op token.Token, a, b string) any {
	switch op {
	case token.ADD:
		return a + b
	case token.LSS:
		return a < b
	case token.LEQ:
		return a <= b
	case token.GTR:
		return a > b
	case token.GEQ:
		return a >= b
	}
	panic(fmt.Sprintf("invalid string operator %s", op))
}

func unary(op token.Token, x any) any {
	switch op {
	case token.NOT:
		return !truth(x)
	case token.SUB:
		switch a := x.(type) {
		case int:
			return -a
		case int64:
			return -a
		case float64:
			return -a
		}
	case token.XOR:
		switch a := x.(type) {
		case int:
			return ^a
		case int64:
			return ^a
		}
	case token.ADD:
		switch x.(type) {
		case int, int64, float64:
			return x
		}
	}
	panic(fmt.Sprintf("invalid operation: %s%v (%T)", op, x, x))
}
