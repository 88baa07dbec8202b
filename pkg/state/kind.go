package state

import "github.com/yumyai/qtlview/pkg/qtl"

type EntityKind int

const (
	EntityGene EntityKind = iota
	EntityProtein
	EntityPhosphosite
	EntityPhenotype
	EntityUnknown
)

func (k EntityKind) String() string {
	switch k {
	case EntityGene:
		return "gene"
	case EntityProtein:
		return "protein"
	case EntityPhosphosite:
		return "phosphosite"
	case EntityPhenotype:
		return "phenotype"
	default:
		return "unknown"
	}
}

func ParseEntityKind(kind string) EntityKind {
	switch kind {
	case "gene":
		return EntityGene
	case "protein":
		return EntityProtein
	case "phosphosite", "phos":
		return EntityPhosphosite
	case "phenotype", "pheno":
		return EntityPhenotype
	default:
		return EntityUnknown
	}
}

func (k EntityKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EntityKind) UnmarshalText(b []byte) error {
	*k = ParseEntityKind(string(b))
	return nil
}

// KindFor is the only entity kind a dataset of the given datatype accepts.
func KindFor(dt qtl.Datatype) EntityKind {
	switch dt {
	case qtl.MRNA:
		return EntityGene
	case qtl.Protein:
		return EntityProtein
	case qtl.Phos:
		return EntityPhosphosite
	case qtl.Phenotype:
		return EntityPhenotype
	default:
		return EntityUnknown
	}
}
