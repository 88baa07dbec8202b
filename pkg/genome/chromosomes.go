// Package genome converts chromosome-relative positions onto a single
// genome axis and holds the numeric helpers used to lay out plots.
package genome

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownChromosome = errors.New("chromosome not in table")
	ErrMismatchedScans   = errors.New("scans differ in length or marker order")
)

// Chromosome is one entry of a dataset's chromosome table.
type Chromosome struct {
	Name   string  `json:"chromosome" yaml:"chromosome"`
	Length float64 `json:"length" yaml:"length"`
	Start  float64 `json:"start" yaml:"-"`
	End    float64 `json:"end" yaml:"-"`
	Mid    float64 `json:"mid" yaml:"-"`
}

// Table maps chromosome names to their cumulative offsets.
type Table struct {
	order []string
	chr   map[string]Chromosome
	total float64
}

// NewTable lays chromosomes end to end in the given order. Duplicate names
// and non-positive lengths are rejected.
func NewTable(chroms []Chromosome) (*Table, error) {
	t := &Table{chr: make(map[string]Chromosome, len(chroms))}
	var offset float64
	for _, c := range chroms {
		if c.Name == "" {
			return nil, fmt.Errorf("chromosome without a name at index %d", len(t.order))
		}
		if _, dup := t.chr[c.Name]; dup {
			return nil, fmt.Errorf("duplicate chromosome %q", c.Name)
		}
		if c.Length <= 0 {
			return nil, fmt.Errorf("chromosome %q has length %v", c.Name, c.Length)
		}
		c.Start = offset
		c.End = offset + c.Length
		c.Mid = offset + c.Length/2
		offset = c.End

		t.chr[c.Name] = c
		t.order = append(t.order, c.Name)
	}
	t.total = offset
	return t, nil
}

// Lookup returns the chromosome named name.
func (t *Table) Lookup(name string) (Chromosome, bool) {
	if t == nil {
		return Chromosome{}, false
	}
	c, ok := t.chr[name]
	return c, ok
}

func (t *Table) Has(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

// Chromosomes returns the table in axis order.
func (t *Table) Chromosomes() []Chromosome {
	if t == nil {
		return nil
	}
	out := make([]Chromosome, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.chr[name])
	}
	return out
}

// Length is the total genome axis length.
func (t *Table) Length() float64 {
	if t == nil {
		return 0
	}
	return t.total
}

// Linearize maps a chromosome-local position onto the genome axis.
func (t *Table) Linearize(chrom string, pos float64) (float64, error) {
	c, ok := t.Lookup(chrom)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownChromosome, chrom)
	}
	return c.Start + pos, nil
}

// Locus is anything with a chromosome-local position.
type Locus interface {
	Chrom() string
	Pos() float64
}

// Placed pairs an item with its genome-axis coordinate.
type Placed[T any] struct {
	Item T
	X    float64
}

// Skipped records an item left off the axis and why.
type Skipped[T any] struct {
	Item T
	Err  error
}

// LinearizeAll places every item whose chromosome is in the table. Items on
// unknown chromosomes are returned in skipped rather than failing the batch.
func LinearizeAll[T Locus](t *Table, items []T) (placed []Placed[T], skipped []Skipped[T]) {
	for _, it := range items {
		x, err := t.Linearize(it.Chrom(), it.Pos())
		if err != nil {
			skipped = append(skipped, Skipped[T]{Item: it, Err: err})
			continue
		}
		placed = append(placed, Placed[T]{Item: it, X: x})
	}
	return placed, skipped
}
