package qtl

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ScanPoint is one marker of a genome-wide LOD scan.
type ScanPoint struct {
	Marker
	LOD float64
}

func (p ScanPoint) LODScore() float64 { return p.LOD }

// DecodeScan reads (marker_id, chrom, pos, lod) rows.
func DecodeScan(rows []Row) ([]ScanPoint, error) {
	out := make([]ScanPoint, 0, len(rows))
	for i, row := range rows {
		if len(row) < 4 {
			return nil, arityError("lod scan", i, len(row), 4)
		}
		f := &fieldReader{schema: "lod scan", index: i, row: row}
		p := ScanPoint{Marker: f.marker(0, 1, 2), LOD: f.num(3)}
		if f.err != nil {
			return nil, f.err
		}
		out = append(out, p)
	}
	return out, nil
}

func DecodeScanJSON(raw json.RawMessage) ([]ScanPoint, error) {
	rows, err := ParseRows(raw)
	if err != nil {
		return nil, fmt.Errorf("lod scan: %w", err)
	}
	return DecodeScan(rows)
}

// EffectPoint is the founder coefficient set at one marker.
type EffectPoint struct {
	Marker
	Coef AlleleEffects
}

// DecodeEffects reads (marker_id, chrom, pos, A..H) rows.
func DecodeEffects(rows []Row) ([]EffectPoint, error) {
	want := 3 + len(Strains)
	out := make([]EffectPoint, 0, len(rows))
	for i, row := range rows {
		if len(row) < want {
			return nil, arityError("effect", i, len(row), want)
		}
		f := &fieldReader{schema: "effect", index: i, row: row}
		p := EffectPoint{Marker: f.marker(0, 1, 2), Coef: *f.effects(3)}
		if f.err != nil {
			return nil, f.err
		}
		out = append(out, p)
	}
	return out, nil
}

// DecodeGrouped reads an object of row sets keyed by covariate category,
// e.g. {"additive": [...]} or {"F": [...], "M": [...]}. Categories come
// back sorted.
func DecodeGrouped[T any](raw json.RawMessage, decode func([]Row) ([]T, error)) ([]string, map[string][]T, error) {
	var groups map[string]json.RawMessage
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(groups))
	out := make(map[string][]T, len(groups))
	for k, v := range groups {
		rows, err := ParseRows(v)
		if err != nil {
			return nil, nil, fmt.Errorf("category %q: %w", k, err)
		}
		recs, err := decode(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("category %q: %w", k, err)
		}
		keys = append(keys, k)
		out[k] = recs
	}
	sort.Strings(keys)
	return keys, out, nil
}

// SNP is one variant of a SNP association scan.
type SNP struct {
	Marker
	Ref         string
	Alt         string
	SDP         int
	Consequence string
	LOD         float64
	// LODCovar is set when the scan included an interactive covariate.
	LODCovar *float64
}

func (s SNP) LODScore() float64 { return s.LOD }

// Alleles is the ref/alt pair.
func (s SNP) Alleles() string {
	return s.Ref + "/" + s.Alt
}

// DecodeSNPs reads (snp, chrom, pos, ref, alt, sdp, csq, lod[, lod_covar]) rows.
func DecodeSNPs(rows []Row) ([]SNP, error) {
	out := make([]SNP, 0, len(rows))
	for i, row := range rows {
		if len(row) != 8 && len(row) != 9 {
			return nil, arityError("snp", i, len(row), 8, 9)
		}
		f := &fieldReader{schema: "snp", index: i, row: row}
		s := SNP{
			Marker:      f.marker(0, 1, 2),
			Ref:         f.str(3),
			Alt:         f.str(4),
			SDP:         int(f.num(5)),
			Consequence: f.str(6),
			LOD:         f.num(7),
		}
		if len(row) == 9 {
			v := f.num(8)
			s.LODCovar = &v
		}
		if f.err != nil {
			return nil, f.err
		}
		out = append(out, s)
	}
	return out, nil
}

// Mediator is one candidate of a mediation scan. ProteinID and PhosID are
// empty unless the mediating dataset is protein or phos.
type Mediator struct {
	PhosID     string
	ProteinID  string
	GeneID     string
	Symbol     string
	Chromosome string
	Position   float64
	LOD        float64
}

func (m Mediator) Chrom() string     { return m.Chromosome }
func (m Mediator) Pos() float64      { return m.Position }
func (m Mediator) LODScore() float64 { return m.LOD }
func (m Mediator) MarkerID() string  { return m.EntityID() }

// EntityID is the id of the mediator in its own dataset.
func (m Mediator) EntityID() string {
	switch {
	case m.PhosID != "":
		return m.PhosID
	case m.ProteinID != "":
		return m.ProteinID
	default:
		return m.GeneID
	}
}

// DecodeMediators reads mediation rows laid out for the mediating dataset's datatype:
//
//	mrna:    gene_id, symbol, chrom, pos, lod
//	protein: protein_id, gene_id, symbol, chrom, pos, lod
//	phos:    phos_id, protein_id, gene_id, symbol, chrom, pos, lod
func DecodeMediators(dt Datatype, rows []Row) ([]Mediator, error) {
	var want int
	switch dt {
	case MRNA:
		want = 5
	case Protein:
		want = 6
	case Phos:
		want = 7
	default:
		return nil, fmt.Errorf("cannot mediate against %q data", dt)
	}
	schema := string(dt) + " mediation"

	out := make([]Mediator, 0, len(rows))
	for i, row := range rows {
		if len(row) != want {
			return nil, arityError(schema, i, len(row), want)
		}
		f := &fieldReader{schema: schema, index: i, row: row}
		off := want - 5
		m := Mediator{
			GeneID:     f.str(off),
			Symbol:     f.str(off + 1),
			Chromosome: f.str(off + 2),
			Position:   f.num(off + 3),
			LOD:        f.num(off + 4),
		}
		switch dt {
		case Protein:
			m.ProteinID = f.str(0)
		case Phos:
			m.PhosID = f.str(0)
			m.ProteinID = f.str(1)
		}
		if f.err != nil {
			return nil, f.err
		}
		out = append(out, m)
	}
	return out, nil
}
