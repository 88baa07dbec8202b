package request

import (
	"github.com/yumyai/qtlview/pkg/dispatch"
	"github.com/yumyai/qtlview/pkg/state"
)

// EntityRequest selects the primary entity. Factors and ColorBy shape the
// profile plot.
type EntityRequest struct {
	Kind      state.EntityKind `json:"kind"`
	ID        string           `json:"id"`
	GeneID    string           `json:"gene_id"`
	ProteinID string           `json:"protein_id"`
	Factors   []string         `json:"factors"`
	ColorBy   string           `json:"color_by"`
}

func (r EntityRequest) Entity() state.Entity {
	return state.Entity{Kind: r.Kind, ID: r.ID, GeneID: r.GeneID, ProteinID: r.ProteinID}
}

func (r EntityRequest) ProfileOptions() dispatch.ProfileOptions {
	return dispatch.ProfileOptions{Factors: r.Factors, ColorBy: r.ColorBy}
}

type CovariateRequest struct {
	Covariate string `json:"covariate"`
}

type EffectRequest struct {
	Chromosome string `json:"chromosome"`
	BLUP       bool   `json:"blup"`
}

// MediationRequest mediates the marker against the entities of DatasetID.
type MediationRequest struct {
	MarkerID  string `json:"marker_id"`
	DatasetID string `json:"dataset_id"`
}

type SNPRequest struct {
	Chromosome string  `json:"chromosome"`
	Location   float64 `json:"location"`
}

// CorrelationRequest plots the entity against EntityID of DatasetID.
// Covariate may be "none" to plot without one.
type CorrelationRequest struct {
	DatasetID string `json:"dataset_id"`
	EntityID  string `json:"entity_id"`
	Covariate string `json:"covariate"`
	ColorBy   string `json:"color_by"`
}

// ClickRequest posts back a clicked point: the artifact it was drawn from
// and the row index.
type ClickRequest struct {
	Artifact string `json:"artifact"`
	Index    int    `json:"index"`
}
