// Package machines declares generators whose state machines are checked in
// genc_generated.go and driven by the codegen tests.
package machines

import "github.com/stealthrocket/stackless"

// Events records the resources opened and released by the generators.
var Events []string

func open(name string) string {
	Events = append(Events, "open "+name)
	return name
}

func release(name string) {
	Events = append(Events, "release "+name)
}

func boom() { panic("boom") }

//genc:generator
func Sequence() int {
	stackless.Yield(1)
	stackless.Yield(2)
	return 3
}

//genc:generator
func Loop() {
	for i := range 3 {
		stackless.Yield(i)
	}
}

//genc:generator
func Capture(x int) {
	stackless.Yield(x)
}

//genc:generator
func Branch(cond bool) {
	if cond {
		v := 1
		stackless.Yield(v)
	}
	stackless.Yield(2)
}

//genc:generator
func Resources(n int) {
	defer release(open("a"))
	b := open("b")
	defer release(b)
	for i := range n {
		stackless.Yield(i)
	}
}

//genc:generator
func Failing() {
	defer release(open("f"))
	stackless.Yield(1)
	boom()
}
