package obu

// tileLog2 returns the smallest k such that blockSize << k >= target.
func tileLog2(blockSize, target int) int {
	k := 0
	for (blockSize << k) < target {
		k++
	}
	return k
}

// floorLog2 returns floor(log2(n)) for n > 0.
func floorLog2(n int) int {
	s := 0
	for n > 1 {
		n >>= 1
		s++
	}
	return s
}

func ceilShift(n, shift int) int {
	return (n + (1 << shift) - 1) >> shift
}
