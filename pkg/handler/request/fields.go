package request

// PlotKind names the plots generated on demand for the selected entity.
type PlotKind int

const (
	PlotEffect PlotKind = iota
	PlotMediation
	PlotSNP
	PlotCorrelation
	PlotUnknown
)

func (k PlotKind) String() string {
	switch k {
	case PlotEffect:
		return "effect"
	case PlotMediation:
		return "mediation"
	case PlotSNP:
		return "snp"
	case PlotCorrelation:
		return "correlation"
	default:
		return "unknown"
	}
}

func ParsePlotKind(kind string) PlotKind {
	switch kind {
	case "effect", "effects", "foundercoefs":
		return PlotEffect
	case "mediation", "mediate":
		return PlotMediation
	case "snp", "snpassoc":
		return PlotSNP
	case "correlation", "correlationplot":
		return PlotCorrelation
	default:
		return PlotUnknown
	}
}
