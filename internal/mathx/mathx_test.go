package mathx

import (
	"math"
	"testing"
)

func TestISqrt32(t *testing.T) {
	testCases := []struct {
		in   uint32
		want uint32
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{99, 9},
		{100, 10},
		{1 << 30, 1 << 15},
		{math.MaxUint32, 65535},
	}

	for _, tc := range testCases {
		if got := ISqrt32(tc.in); got != tc.want {
			t.Errorf("ISqrt32(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}

	for x := uint32(0); x < 100_000; x += 37 {
		r := ISqrt32(x)
		if r*r > x || (r+1)*(r+1) <= x {
			t.Fatalf("ISqrt32(%d) = %d is not the floor root", x, r)
		}
	}
}

func TestAbsAndDiff(t *testing.T) {
	if Abs(int32(-5)) != 5 || Abs(int32(5)) != 5 {
		t.Error("Abs broken")
	}
	if AbsDiff(uint32(3), uint32(10)) != 7 || AbsDiff(uint32(10), uint32(3)) != 7 {
		t.Error("AbsDiff broken")
	}
	if Min(3, 4) != 3 || Max(3, 4) != 4 {
		t.Error("Min/Max broken")
	}
}
