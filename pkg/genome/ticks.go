package genome

import "math"

var (
	e10 = math.Sqrt(50)
	e5  = math.Sqrt(10)
	e2  = math.Sqrt(2)
)

// jsRound rounds half-way values toward positive infinity.
func jsRound(x float64) float64 {
	return math.Floor(x + 0.5)
}

// TickIncrement returns the snapped step for count ticks over [start, stop].
// A negative result -k means the step is 1/k.
func TickIncrement(start, stop float64, count int) float64 {
	step := (stop - start) / math.Max(0, float64(count))
	power := math.Floor(math.Log10(step))
	e := step / math.Pow(10, power)

	factor := 1.0
	switch {
	case e >= e10:
		factor = 10
	case e >= e5:
		factor = 5
	case e >= e2:
		factor = 2
	}

	if power >= 0 {
		return factor * math.Pow(10, power)
	}
	return -math.Pow(10, -power) / factor
}

// NiceTicks returns roughly count evenly spaced round values within
// [start, stop]. Reversed ranges yield descending ticks.
func NiceTicks(start, stop float64, count int) []float64 {
	if start == stop && count > 0 {
		return []float64{start}
	}

	reverse := stop < start
	if reverse {
		start, stop = stop, start
	}

	inc := TickIncrement(start, stop, count)
	if inc == 0 || math.IsInf(inc, 0) || math.IsNaN(inc) {
		return []float64{}
	}

	var ticks []float64
	if inc > 0 {
		r0 := jsRound(start / inc)
		r1 := jsRound(stop / inc)
		if r0*inc < start {
			r0++
		}
		if r1*inc > stop {
			r1--
		}
		n := int(r1 - r0 + 1)
		if n < 0 {
			n = 0
		}
		ticks = make([]float64, n)
		for i := range ticks {
			ticks[i] = (r0 + float64(i)) * inc
		}
	} else {
		inc = -inc
		r0 := jsRound(start * inc)
		r1 := jsRound(stop * inc)
		if r0/inc < start {
			r0++
		}
		if r1/inc > stop {
			r1--
		}
		n := int(r1 - r0 + 1)
		if n < 0 {
			n = 0
		}
		ticks = make([]float64, n)
		for i := range ticks {
			ticks[i] = (r0 + float64(i)) / inc
		}
	}

	if reverse {
		for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
			ticks[i], ticks[j] = ticks[j], ticks[i]
		}
	}
	return ticks
}
