// Package dataset holds the dataset registry loaded at start-up. Datasets
// are immutable once the registry is built.
package dataset

import (
	"encoding/json"
	"fmt"

	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/qtl"
)

// Additive is the covariate name of the baseline scan.
const Additive = "additive"

type Ensembl struct {
	Release       string `json:"release" yaml:"release"`
	Species       string `json:"species" yaml:"species"`
	AssemblyPatch string `json:"assembly_patch,omitempty" yaml:"assembly_patch,omitempty"`
}

// Covariate is one entry of covar_info. SampleColumn is the key passed to
// the compute service as intcovar.
type Covariate struct {
	SampleColumn string `json:"sample_column" yaml:"sample_column"`
	DisplayName  string `json:"display_name" yaml:"display_name"`
	Primary      bool   `json:"primary" yaml:"primary"`
	Interactive  bool   `json:"interactive" yaml:"interactive"`
}

type Phenotype struct {
	DataName    string `json:"data_name" yaml:"data_name"`
	ShortName   string `json:"short_name" yaml:"short_name"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
	IsPheno     bool   `json:"is_pheno" yaml:"is_pheno"`
	IsNumeric   bool   `json:"is_numeric" yaml:"is_numeric"`
}

// Searchable reports whether the phenotype is offered for selection.
func (p Phenotype) Searchable() bool {
	return p.IsPheno && p.IsNumeric
}

type GeneEntry struct {
	ProteinIDs []string `json:"protein_ids,omitempty" yaml:"protein_ids,omitempty"`
}

type ProteinEntry struct {
	PhosIDs []string `json:"phos_ids,omitempty" yaml:"phos_ids,omitempty"`
}

// Dataset identifies one assay.
type Dataset struct {
	ID          string                  `json:"id" yaml:"id"`
	Datatype    qtl.Datatype            `json:"datatype" yaml:"datatype"`
	DisplayName string                  `json:"display_name" yaml:"display_name"`
	Ensembl     Ensembl                 `json:"ensembl" yaml:"ensembl"`
	Chromosomes []genome.Chromosome     `json:"chromosomes,omitempty" yaml:"chromosomes,omitempty"`
	CovarInfo   []Covariate             `json:"covar_info,omitempty" yaml:"covar_info,omitempty"`
	LODPeaks    map[string][][]any      `json:"lodpeaks,omitempty" yaml:"lodpeaks,omitempty"`
	Phenotypes  map[string]Phenotype    `json:"phenotypes,omitempty" yaml:"phenotypes,omitempty"`
	GeneIDs     map[string]GeneEntry    `json:"gene_ids,omitempty" yaml:"gene_ids,omitempty"`
	ProteinIDs  map[string]ProteinEntry `json:"protein_ids,omitempty" yaml:"protein_ids,omitempty"`

	table *genome.Table
	peaks map[string][]qtl.Peak
}

// prepare validates the entry and decodes everything derived from it.
func (d *Dataset) prepare() error {
	if d.ID == "" {
		return fmt.Errorf("dataset without id")
	}
	if !d.Datatype.Valid() {
		return fmt.Errorf("dataset %s: unknown datatype %q", d.ID, d.Datatype)
	}

	table, err := genome.NewTable(d.Chromosomes)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", d.ID, err)
	}
	d.table = table

	d.peaks = make(map[string][]qtl.Peak, len(d.LODPeaks))
	for covar, values := range d.LODPeaks {
		rows, err := rowsFromValues(values)
		if err != nil {
			return fmt.Errorf("dataset %s lodpeaks[%s]: %w", d.ID, covar, err)
		}
		peaks, err := qtl.DecodePeaks(d.Datatype, rows)
		if err != nil {
			return fmt.Errorf("dataset %s lodpeaks[%s]: %w", d.ID, covar, err)
		}
		d.peaks[covar] = peaks
	}
	return nil
}

func rowsFromValues(values [][]any) ([]qtl.Row, error) {
	rows := make([]qtl.Row, len(values))
	for i, vals := range values {
		row := make(qtl.Row, len(vals))
		for j, v := range vals {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", i, j, err)
			}
			row[j] = b
		}
		rows[i] = row
	}
	return rows, nil
}

// Table is the chromosome table used to linearize positions.
func (d *Dataset) Table() *genome.Table {
	return d.table
}

// Covariate looks up covar_info by sample column.
func (d *Dataset) Covariate(name string) (Covariate, bool) {
	for _, c := range d.CovarInfo {
		if c.SampleColumn == name {
			return c, true
		}
	}
	return Covariate{}, false
}

func (d *Dataset) InteractiveCovariates() []Covariate {
	var out []Covariate
	for _, c := range d.CovarInfo {
		if c.Interactive {
			out = append(out, c)
		}
	}
	return out
}

// ValidCovariate reports whether name may be selected as the interactive
// covariate: the additive sentinel or an interactive covar_info entry.
func (d *Dataset) ValidCovariate(name string) bool {
	if name == Additive {
		return true
	}
	c, ok := d.Covariate(name)
	return ok && c.Interactive
}

// Peaks returns the precomputed peaks for a covariate.
func (d *Dataset) Peaks(covar string) ([]qtl.Peak, bool) {
	p, ok := d.peaks[covar]
	return p, ok
}

func (d *Dataset) HasPeaks() bool {
	return len(d.peaks) > 0
}

func (d *Dataset) Phenotype(id string) (Phenotype, bool) {
	p, ok := d.Phenotypes[id]
	return p, ok
}

func (d *Dataset) HasGene(geneID string) bool {
	_, ok := d.GeneIDs[geneID]
	return ok
}

// ProteinsOf lists the protein ids measured for a gene.
func (d *Dataset) ProteinsOf(geneID string) []string {
	return d.GeneIDs[geneID].ProteinIDs
}

// PhosOf lists the phosphosites measured on a protein.
func (d *Dataset) PhosOf(proteinID string) []string {
	return d.ProteinIDs[proteinID].PhosIDs
}
