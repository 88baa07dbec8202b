package render

import (
	"fmt"
	"math"
)

// StrainColors are the founder strain colours, in qtl.Strains order.
var StrainColors = [8]string{
	"#F0F000", // AJ
	"#808080", // B6
	"#F08080", // 129
	"#1010F0", // NOD
	"#00A0F0", // NZO
	"#00A000", // CAST
	"#F00000", // PWK
	"#9000E0", // WSB
}

// seriesPalette colours covariate levels in the order they are listed.
var seriesPalette = []string{
	"#1F77B4", "#FF7F0E", "#2CA02C", "#D62728", "#9467BD",
	"#8C564B", "#E377C2", "#7F7F7F", "#BCBD22", "#17BECF",
}

// lodBuckets is the YlOrRd scheme used for peak and SNP colouring.
var lodBuckets = []string{"#FFFFB2", "#FECC5C", "#FD8D3C", "#F03B20", "#BD0026"}

const missingColor = "#8B8989"

func seriesColor(i int) string {
	return seriesPalette[i%len(seriesPalette)]
}

// lodColor maps a score within [lo, hi] to one of the lodBuckets.
func lodColor(lod, lo, hi float64) string {
	if math.IsNaN(lod) {
		return missingColor
	}
	if hi <= lo {
		return lodBuckets[len(lodBuckets)-1]
	}
	normalized := (lod - lo) / (hi - lo)
	i := int(math.Floor(normalized * float64(len(lodBuckets))))
	if i < 0 {
		i = 0
	}
	if i >= len(lodBuckets) {
		i = len(lodBuckets) - 1
	}
	return lodBuckets[i]
}

// lodLegend labels the buckets of lodColor over [lo, hi].
func lodLegend(lo, hi float64) []string {
	n := len(lodBuckets)
	labels := make([]string, n)
	step := (hi - lo) / float64(n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.1f-%.1f", lo+step*float64(i), lo+step*float64(i+1))
	}
	return labels
}

// correlationColor maps -1 to blue, 0 to white and 1 to red.
func correlationColor(cor float64) string {
	if math.IsNaN(cor) {
		return missingColor
	}
	if cor > 1 {
		cor = 1
	}
	if cor < -1 {
		cor = -1
	}

	var r, g, b float64
	if cor < 0 {
		t := -cor
		r, g, b = lerp(255, 33, t), lerp(255, 102, t), lerp(255, 172, t) // #2166AC
	} else {
		r, g, b = lerp(255, 178, cor), lerp(255, 24, cor), lerp(255, 43, cor) // #B2182B
	}
	return fmt.Sprintf("#%02X%02X%02X", int(math.Round(r)), int(math.Round(g)), int(math.Round(b)))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
