package qtl

import (
	"encoding/json"
	"fmt"
)

// Peak is the common view over the per-datatype peak records.
type Peak interface {
	MarkerID() string
	Chrom() string
	Pos() float64
	LODScore() float64
	Datatype() Datatype
	// EntityID is the id the peak belongs to: gene, protein, phosphosite or phenotype.
	EntityID() string
	// Effects is nil when the record set carries no allele effects.
	Effects() *AlleleEffects
}

// Gene is the gene a gene-based peak maps to.
type Gene struct {
	ID     string  `json:"gene_id"`
	Symbol string  `json:"symbol"`
	Chrom  string  `json:"gene_chrom"`
	Mid    float64 `json:"gene_mid"`
}

type MRNAPeak struct {
	Marker
	Gene    Gene
	LOD     float64
	Alleles *AlleleEffects
}

type ProteinPeak struct {
	Marker
	ProteinID string
	Gene      Gene
	LOD       float64
	Alleles   *AlleleEffects
}

type PhosPeak struct {
	Marker
	PhosID    string
	ProteinID string
	Gene      Gene
	LOD       float64
	Alleles   *AlleleEffects
}

type PhenoPeak struct {
	Marker
	PhenotypeID string
	ShortName   string
	Description string
	LOD         float64
	Alleles     *AlleleEffects
}

func (p MRNAPeak) LODScore() float64       { return p.LOD }
func (p MRNAPeak) Datatype() Datatype      { return MRNA }
func (p MRNAPeak) EntityID() string        { return p.Gene.ID }
func (p MRNAPeak) Effects() *AlleleEffects { return p.Alleles }

func (p ProteinPeak) LODScore() float64       { return p.LOD }
func (p ProteinPeak) Datatype() Datatype      { return Protein }
func (p ProteinPeak) EntityID() string        { return p.ProteinID }
func (p ProteinPeak) Effects() *AlleleEffects { return p.Alleles }

func (p PhosPeak) LODScore() float64       { return p.LOD }
func (p PhosPeak) Datatype() Datatype      { return Phos }
func (p PhosPeak) EntityID() string        { return p.PhosID }
func (p PhosPeak) Effects() *AlleleEffects { return p.Alleles }

func (p PhenoPeak) LODScore() float64       { return p.LOD }
func (p PhenoPeak) Datatype() Datatype      { return Phenotype }
func (p PhenoPeak) EntityID() string        { return p.PhenotypeID }
func (p PhenoPeak) Effects() *AlleleEffects { return p.Alleles }

// GeneOf returns the gene annotation of a gene-based peak.
func GeneOf(p Peak) (Gene, bool) {
	switch v := p.(type) {
	case MRNAPeak:
		return v.Gene, true
	case ProteinPeak:
		return v.Gene, true
	case PhosPeak:
		return v.Gene, true
	}
	return Gene{}, false
}

// PeakArity is the number of fields of a peak row without allele effects.
func PeakArity(dt Datatype) int {
	switch dt {
	case MRNA:
		return 8
	case Protein:
		return 9
	case Phos:
		return 10
	case Phenotype:
		return 7
	}
	return 0
}

// DecodePeaks maps peak rows of one datatype onto typed records. A record
// set either carries all eight allele effects on every row or none at all;
// any other arity, or a mix, is an error.
func DecodePeaks(dt Datatype, rows []Row) ([]Peak, error) {
	base := PeakArity(dt)
	if base == 0 {
		return nil, fmt.Errorf("unknown datatype %q", dt)
	}
	schema := string(dt) + " peak"

	withEffects := false
	peaks := make([]Peak, 0, len(rows))
	for i, row := range rows {
		switch len(row) {
		case base:
			if i > 0 && withEffects {
				return nil, arityError(schema, i, len(row), base+len(Strains))
			}
		case base + len(Strains):
			if i > 0 && !withEffects {
				return nil, arityError(schema, i, len(row), base)
			}
			withEffects = true
		default:
			return nil, arityError(schema, i, len(row), base, base+len(Strains))
		}

		p, err := decodePeak(dt, schema, i, row, withEffects)
		if err != nil {
			return nil, err
		}
		peaks = append(peaks, p)
	}
	return peaks, nil
}

// DecodePeaksJSON is DecodePeaks over a raw JSON array of arrays.
func DecodePeaksJSON(dt Datatype, raw json.RawMessage) ([]Peak, error) {
	rows, err := ParseRows(raw)
	if err != nil {
		return nil, fmt.Errorf("%s peaks: %w", dt, err)
	}
	return DecodePeaks(dt, rows)
}

func decodePeak(dt Datatype, schema string, index int, row Row, withEffects bool) (Peak, error) {
	f := &fieldReader{schema: schema, index: index, row: row}
	m := f.marker(0, 1, 2)
	base := PeakArity(dt)

	var alleles *AlleleEffects
	if withEffects {
		alleles = f.effects(base)
	}

	var p Peak
	switch dt {
	case MRNA:
		p = MRNAPeak{
			Marker:  m,
			Gene:    Gene{ID: f.str(3), Symbol: f.str(4), Chrom: f.str(5), Mid: f.num(6)},
			LOD:     f.num(7),
			Alleles: alleles,
		}
	case Protein:
		p = ProteinPeak{
			Marker:    m,
			ProteinID: f.str(3),
			Gene:      Gene{ID: f.str(4), Symbol: f.str(5), Chrom: f.str(6), Mid: f.num(7)},
			LOD:       f.num(8),
			Alleles:   alleles,
		}
	case Phos:
		p = PhosPeak{
			Marker:    m,
			PhosID:    f.str(3),
			ProteinID: f.str(4),
			Gene:      Gene{ID: f.str(5), Symbol: f.str(6), Chrom: f.str(7), Mid: f.num(8)},
			LOD:       f.num(9),
			Alleles:   alleles,
		}
	case Phenotype:
		p = PhenoPeak{
			Marker:      m,
			PhenotypeID: f.str(3),
			ShortName:   f.str(4),
			Description: f.str(5),
			LOD:         f.num(6),
			Alleles:     alleles,
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return p, nil
}
