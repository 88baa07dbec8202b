package genome

// Permute returns every combination taking one value from each array, in
// mixed-radix order with the last array varying fastest.
func Permute[T any](arrays [][]T) [][]T {
	if len(arrays) == 0 {
		return nil
	}

	divisors := make([]int, len(arrays))
	divisors[len(arrays)-1] = 1
	for i := len(arrays) - 2; i >= 0; i-- {
		divisors[i] = divisors[i+1] * len(arrays[i+1])
	}

	total := 1
	for _, a := range arrays {
		total *= len(a)
	}

	out := make([][]T, 0, total)
	for n := 0; n < total; n++ {
		combo := make([]T, len(arrays))
		for i, a := range arrays {
			combo[i] = a[(n/divisors[i])%len(a)]
		}
		out = append(out, combo)
	}
	return out
}
