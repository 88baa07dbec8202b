package dispatch

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// Cell is one CSV field. Text cells are written double-quoted, numeric
// cells bare.
type Cell struct {
	Text  string
	Num   float64
	IsNum bool
}

func Str(s string) Cell { return Cell{Text: s} }
func Num(f float64) Cell { return Cell{Num: f, IsNum: true} }

func (c Cell) format() string {
	if !c.IsNum {
		return `"` + strings.ReplaceAll(c.Text, `"`, `""`) + `"`
	}
	switch {
	case math.IsNaN(c.Num):
		return "NA"
	case math.IsInf(c.Num, 1):
		return "Inf"
	case math.IsInf(c.Num, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(c.Num, 'f', -1, 64)
}

// CSVRow is a reshaped record that can be exported.
type CSVRow interface {
	CSV() []Cell
}

// Exportable is what the CSV download reads from the workspace.
type Exportable interface {
	Filename() string
	WriteCSV(w io.Writer) error
	Len() int
}

// Artifact is the single reshaped record set behind one chart. The chart
// payload and the CSV download are both built from Rows.
type Artifact[T CSVRow] struct {
	Name      string `json:"name"`
	EntityID  string `json:"entity_id"`
	Covariate string `json:"covariate,omitempty"`
	// Variant is FULL or DIFF for covariate LOD scans, or the covariate
	// category for per-category effect plots.
	Variant string   `json:"variant,omitempty"`
	Header  []string `json:"header"`
	Rows    []T      `json:"rows"`
}

func (a *Artifact[T]) Len() int {
	return len(a.Rows)
}

// Filename is <entity>_<NAME>[_<covariate>][_<variant>].csv.
func (a *Artifact[T]) Filename() string {
	parts := []string{a.EntityID, a.Name}
	if a.Covariate != "" {
		parts = append(parts, a.Covariate)
	}
	if a.Variant != "" {
		parts = append(parts, a.Variant)
	}
	return strings.Join(parts, "_") + ".csv"
}

func (a *Artifact[T]) WriteCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	header := make([]Cell, len(a.Header))
	for i, h := range a.Header {
		header[i] = Str(h)
	}
	if err := writeLine(bw, header); err != nil {
		return err
	}
	for _, r := range a.Rows {
		if err := writeLine(bw, r.CSV()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, cells []Cell) error {
	for i, c := range cells {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(c.format()); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}
