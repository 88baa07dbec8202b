package render

import (
	"math"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/genome"
	"go.uber.org/zap"
)

var tooltipTemplate *template.Template

func init() {
	tooltips := `
{{define "marker"}}{{.ID}}
{{.Chrom}}:{{pos .Pos}}
LOD: {{score .LOD}}{{end}}

{{define "peak"}}{{if .Symbol}}{{.Symbol}} ({{.EntityID}})
Gene: {{.GeneChrom}}:{{pos .GeneMid}}{{else}}{{.ShortName}} ({{.EntityID}}){{end}}
Marker: {{.MarkerID}} {{.Chrom}}:{{pos .Pos}}
LOD: {{score .LOD}}{{end}}

{{define "mediator"}}{{.Symbol}} ({{.ID}})
{{.Chrom}}:{{pos .Pos}}
LOD: {{score .LOD}}{{end}}

{{define "snp"}}{{.ID}} {{.Alleles}}
{{.Chrom}}:{{pos .Pos}}
{{.Consequence}}
SDP: {{sdp .SDP}}
LOD: {{score .LOD}}{{end}}

{{define "effect"}}{{.Strain}}: {{score .Value}}
{{.ID}} {{.Chrom}}:{{pos .Pos}}{{end}}

{{define "sample"}}{{.SampleID}}{{if .Series}} ({{.Series}}){{end}}
{{range .Values}}{{.Name}}: {{score .Value}}
{{end}}{{end}}

{{define "correlation"}}{{if .Symbol}}{{.Symbol}} ({{.ID}}){{else}}{{.ID}}{{end}}{{if .Chrom}}
{{.Chrom}}:{{pos .Start}}-{{pos .End}}{{end}}
r = {{score .Cor}}{{end}}
`
	tooltipTemplate = template.New("tooltips").Funcs(template.FuncMap{
		"pos":   formatPosition,
		"score": formatScore,
		"sdp":   formatSDP,
	})
	tooltipTemplate = template.Must(tooltipTemplate.Parse(tooltips))
}

// formatPosition comma-groups whole positions and keeps three decimals
// otherwise, so both bp and Mbp positions read well.
func formatPosition(pos float64) string {
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return "NA"
	}
	if pos == math.Trunc(pos) {
		return humanize.Comma(int64(pos))
	}
	return humanize.CommafWithDigits(pos, 3)
}

func formatScore(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return humanize.FtoaWithDigits(v, 3)
}

func formatSDP(code int) string {
	s, err := genome.DecodeSDP(code)
	if err != nil {
		return "NA"
	}
	return s
}

// tooltip renders the named template. A failure leaves the point without a
// tooltip rather than failing the payload.
func tooltip(name string, data any) string {
	var sb strings.Builder
	if err := tooltipTemplate.ExecuteTemplate(&sb, name, data); err != nil {
		logger.Warn("Tooltip failed", zap.String("template", name), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(sb.String())
}

type markerTip struct {
	ID    string
	Chrom string
	Pos   float64
	LOD   float64
}

type peakTip struct {
	EntityID  string
	Symbol    string
	ShortName string
	GeneChrom string
	GeneMid   float64
	MarkerID  string
	Chrom     string
	Pos       float64
	LOD       float64
}

type mediatorTip struct {
	ID     string
	Symbol string
	Chrom  string
	Pos    float64
	LOD    float64
}

type snpTip struct {
	ID          string
	Alleles     string
	Chrom       string
	Pos         float64
	Consequence string
	SDP         int
	LOD         float64
}

type effectTip struct {
	Strain string
	Value  float64
	ID     string
	Chrom  string
	Pos    float64
}

type namedValue struct {
	Name  string
	Value float64
}

type sampleTip struct {
	SampleID string
	Series   string
	Values   []namedValue
}

type correlationTip struct {
	ID     string
	Symbol string
	Chrom  string
	Start  float64
	End    float64
	Cor    float64
}
