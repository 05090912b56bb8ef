package gen

import (
	"strings"

	"github.com/stealthrocket/stackless"
)

var logged []string

func log(msg string) { logged = append(logged, msg) }

//genc:generator
func PrefixSums(n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += i
		stackless.Yield(sum)
	}
	return sum
}

//genc:generator
func Words(s string, n int) {
	defer log("words done")
	for i := range n {
		if i == 0 {
			continue
		}
		stackless.Yield(strings.Repeat(s, i))
	}
}
