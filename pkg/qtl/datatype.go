// Package qtl holds the typed records decoded from the compute service's
// positional arrays. Decoding happens once at the boundary; nothing
// downstream indexes into raw rows.
package qtl

import "fmt"

type Datatype string

const (
	MRNA      Datatype = "mrna"
	Protein   Datatype = "protein"
	Phos      Datatype = "phos"
	Phenotype Datatype = "pheno"
)

func (d Datatype) String() string {
	return string(d)
}

func (d Datatype) Valid() bool {
	switch d {
	case MRNA, Protein, Phos, Phenotype:
		return true
	}
	return false
}

// IsGeneBased reports whether entities of this datatype map onto genes.
func (d Datatype) IsGeneBased() bool {
	return d == MRNA || d == Protein || d == Phos
}

func ParseDatatype(s string) (Datatype, error) {
	d := Datatype(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown datatype %q", s)
	}
	return d, nil
}

// Strains are the eight founder strain labels, in allele-effect column order.
var Strains = [8]string{"A", "B", "C", "D", "E", "F", "G", "H"}

// StrainNames are the display names of the founder strains.
var StrainNames = [8]string{"AJ", "B6", "129", "NOD", "NZO", "CAST", "PWK", "WSB"}

// AlleleEffects holds one coefficient per founder strain.
type AlleleEffects [8]float64

// Marker is a genotyped locus.
type Marker struct {
	ID         string  `json:"marker_id"`
	Chromosome string  `json:"chrom"`
	Position   float64 `json:"pos"`
}

func (m Marker) MarkerID() string { return m.ID }
func (m Marker) Chrom() string    { return m.Chromosome }
func (m Marker) Pos() float64     { return m.Position }
