package cdom

import (
	"math"
	"strings"
)

// Add concatenates when either side is textual or a container, otherwise it
// sums numerically.
func Add(a, b any) any {
	a, b = Unwrap(a), Unwrap(b)
	_, as := asString(a)
	_, bs := asString(b)
	if as || bs || isContainer(a) || isContainer(b) {
		return Stringify(a) + Stringify(b)
	}
	return ToNumber(a) + ToNumber(b)
}

func Arith(op string, a, b any) any {
	x, y := ToNumber(a), ToNumber(b)
	switch op {
	case "-":
		return x - y
	case "*":
		return x * y
	case "/":
		return x / y
	case "%":
		if y == 0 {
			return math.NaN()
		}
		return math.Mod(x, y)
	}
	return math.NaN()
}

// Compare orders strings lexically and everything else numerically. NaN
// compares false.
func Compare(op string, a, b any) bool {
	a, b = Unwrap(a), Unwrap(b)
	as, aStr := asString(a)
	bs, bStr := asString(b)
	var c int
	if aStr && bStr {
		c = strings.Compare(as, bs)
	} else {
		x, y := ToNumber(a), ToNumber(b)
		if math.IsNaN(x) || math.IsNaN(y) {
			return false
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	}
	switch op {
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	case ">=":
		return c >= 0
	}
	return false
}
