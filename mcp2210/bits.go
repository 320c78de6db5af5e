package mcp2210

import "golang.org/x/exp/constraints"

func clearBit[T constraints.Unsigned](v T, bit uint) T {
	return v &^ (T(1) << bit)
}

func hasBit[T constraints.Unsigned](v T, bit uint) bool {
	return v&(T(1)<<bit) != 0
}
