package dispatch

import (
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/state"
)

// Target is the selection a clicked point leads to.
type Target struct {
	DatasetID string       `json:"dataset_id"`
	Entity    state.Entity `json:"entity"`
}

// Clickable is implemented by rows whose points select an entity.
type Clickable interface {
	ClickTarget() (Target, bool)
}

// PeakEntity maps a peak back to the entity it was computed for.
func PeakEntity(p qtl.Peak) state.Entity {
	switch v := p.(type) {
	case qtl.MRNAPeak:
		return state.Entity{Kind: state.EntityGene, ID: v.Gene.ID}
	case qtl.ProteinPeak:
		return state.Entity{Kind: state.EntityProtein, ID: v.ProteinID, GeneID: v.Gene.ID}
	case qtl.PhosPeak:
		return state.Entity{Kind: state.EntityPhosphosite, ID: v.PhosID, ProteinID: v.ProteinID, GeneID: v.Gene.ID}
	case qtl.PhenoPeak:
		return state.Entity{Kind: state.EntityPhenotype, ID: v.PhenotypeID}
	}
	return state.Entity{Kind: state.EntityUnknown}
}

func (r PeakRow) ClickTarget() (Target, bool) {
	e := PeakEntity(r.Peak)
	return Target{DatasetID: r.DatasetID, Entity: e}, e.Kind != state.EntityUnknown && e.ID != ""
}

// MediatorEntity maps a mediator to an entity of its own dataset.
func MediatorEntity(dt qtl.Datatype, m qtl.Mediator) state.Entity {
	return state.Entity{Kind: state.KindFor(dt), ID: m.EntityID(), GeneID: m.GeneID, ProteinID: m.ProteinID}
}

func (r MediationRow) ClickTarget() (Target, bool) {
	e := MediatorEntity(r.Datatype, r.Mediator)
	return Target{DatasetID: r.DatasetID, Entity: e}, e.ID != ""
}

// CorrelationEntity maps a correlation listing entry to an entity of the
// correlated dataset.
func CorrelationEntity(dt qtl.Datatype, c qtl.Correlation) state.Entity {
	e := state.Entity{Kind: state.KindFor(dt), ID: c.ID}
	switch dt {
	case qtl.Protein:
		e.GeneID = c.GeneID
	case qtl.Phos:
		e.GeneID = c.GeneID
		e.ProteinID = c.ProteinID
	}
	return e
}

func (r CorrelationRow) ClickTarget() (Target, bool) {
	e := CorrelationEntity(r.Datatype, r.Correlation)
	return Target{DatasetID: r.DatasetID, Entity: e}, e.ID != ""
}

// ClickTarget resolves the i-th row of an artifact.
func (a *Artifact[T]) ClickTarget(i int) (Target, bool) {
	if i < 0 || i >= len(a.Rows) {
		return Target{}, false
	}
	c, ok := any(a.Rows[i]).(Clickable)
	if !ok {
		return Target{}, false
	}
	return c.ClickTarget()
}
