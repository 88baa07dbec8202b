package qtl

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sample is one sample row of an expression or correlation-plot result. The
// wire form is a flat object; covariate columns sit next to the values.
type Sample struct {
	ID     string
	fields map[string]json.RawMessage
}

func (s *Sample) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	s.fields = m
	id, ok := m["sample_id"]
	if !ok {
		return fmt.Errorf("sample without sample_id")
	}
	s.ID = scalarText(id)
	return nil
}

func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields)
}

// Number reads a numeric column. ok is false when the column is missing,
// null, or not a number.
func (s Sample) Number(col string) (float64, bool) {
	raw, present := s.fields[col]
	if !present || isNull(raw) {
		return math.NaN(), false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(scalarText(raw)), 64)
	if err != nil || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

// Factor reads a column as a category label.
func (s Sample) Factor(col string) string {
	raw, ok := s.fields[col]
	if !ok || isNull(raw) {
		return ""
	}
	return scalarText(raw)
}

// SampleSet is the {data, datatypes} object returned for per-sample results.
// Levels lists the categories of each covariate column.
type SampleSet struct {
	Samples []Sample            `json:"data"`
	Levels  map[string][]string `json:"-"`
}

func (s *SampleSet) UnmarshalJSON(b []byte) error {
	var wire struct {
		Data      []Sample                   `json:"data"`
		Datatypes map[string]json.RawMessage `json:"datatypes"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	s.Samples = wire.Data
	s.Levels = make(map[string][]string, len(wire.Datatypes))
	for col, raw := range wire.Datatypes {
		var many []json.RawMessage
		if err := json.Unmarshal(raw, &many); err == nil {
			levels := make([]string, 0, len(many))
			for _, l := range many {
				levels = append(levels, scalarText(l))
			}
			s.Levels[col] = levels
			continue
		}
		s.Levels[col] = []string{scalarText(raw)}
	}
	return nil
}

// Correlation is one entry of a correlation listing. Gene-based datasets
// fill the annotation fields; phenotype datasets only carry ID and Cor.
type Correlation struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol,omitempty"`
	Chrom     string  `json:"chr,omitempty"`
	Start     float64 `json:"start,omitempty"`
	End       float64 `json:"end,omitempty"`
	Cor       float64 `json:"cor"`
	GeneID    string  `json:"gene_id,omitempty"`
	ProteinID string  `json:"protein_id,omitempty"`
}

type CorrelationSet struct {
	Correlations []Correlation `json:"correlations"`
}

// GeneInfo is the gene record of the annotation service.
type GeneInfo struct {
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Chromosome  string   `json:"chromosome"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Strand      string   `json:"strand"`
	Synonyms    []string `json:"synonyms,omitempty"`
	Description string   `json:"description,omitempty"`
}

// DecodeGeneData reads {"gene": {<id>: {...}}} and returns the entry for id,
// or the only entry when id is empty.
func DecodeGeneData(raw json.RawMessage, id string) (GeneInfo, error) {
	var wire struct {
		Gene map[string]GeneInfo `json:"gene"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return GeneInfo{}, fmt.Errorf("gene data: %w", err)
	}
	if g, ok := wire.Gene[id]; ok {
		return g, nil
	}
	if id == "" && len(wire.Gene) == 1 {
		for _, g := range wire.Gene {
			return g, nil
		}
	}
	return GeneInfo{}, fmt.Errorf("gene data: %q not found", id)
}

func scalarText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
