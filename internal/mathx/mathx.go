package mathx

import "golang.org/x/exp/constraints"

// Abs for signed integers. The most negative value stays negative.
func Abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// AbsDiff returns |a-b| for unsigned integers without wrapping.
func AbsDiff[T constraints.Unsigned](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// ISqrt32 returns floor(sqrt(x)).
func ISqrt32(x uint32) uint32 {
	var res uint32
	bit := uint32(1) << 30

	for bit > x {
		bit >>= 2
	}
	for bit != 0 {
		if x >= res+bit {
			x -= res + bit
			res = (res >> 1) + bit
		} else {
			res >>= 1
		}
		bit >>= 2
	}
	return res
}
