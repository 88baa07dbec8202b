// Package state is the process-wide selection: which dataset, entity,
// covariate and correlation target the user is looking at, plus the results
// derived from them. All access goes through AppState's lock.
package state

import (
	"fmt"
	"sync"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/tasks"
	"go.uber.org/zap"
)

// Entity is the primary selection. GeneID and ProteinID are the parent ids
// of protein and phosphosite selections, used for annotation lookup.
type Entity struct {
	Kind      EntityKind `json:"kind"`
	ID        string     `json:"id"`
	GeneID    string     `json:"gene_id,omitempty"`
	ProteinID string     `json:"protein_id,omitempty"`
}

// AnnotationGene is the gene to look up in the annotation API, if any.
func (e Entity) AnnotationGene() string {
	if e.Kind == EntityGene {
		return e.ID
	}
	return e.GeneID
}

type CorrelationTarget struct {
	DatasetID string `json:"dataset_id"`
	EntityID  string `json:"entity_id"`
}

// SelectionError rejects a selection that does not fit the current dataset.
type SelectionError struct {
	Field  string
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Selection is a copy of the user's current choices.
type Selection struct {
	DatasetID   string            `json:"dataset_id"`
	Entity      *Entity           `json:"entity,omitempty"`
	Covariate   string            `json:"covariate"`
	Correlation CorrelationTarget `json:"correlation"`
}

// Workspace is the mutable state results are applied to.
type Workspace struct {
	Selection Selection
	Dataset   *dataset.Dataset
	Gene      *qtl.GeneInfo
	// LOD caches scans by covariate; the additive scan is kept for the differential.
	LOD       map[string][]qtl.ScanPoint
	Artifacts map[string]any
}

func (w *Workspace) clearDerived() {
	w.Gene = nil
	w.LOD = map[string][]qtl.ScanPoint{}
	w.Artifacts = map[string]any{}
}

// AppState guards the workspace and owns the generation tracker. Every
// setter that starts new work mints its token under the same lock as the
// mutation, so a result can only apply to the selection it was built from.
type AppState struct {
	mu       sync.Mutex
	registry *dataset.Registry
	tracker  *tasks.Tracker
	ws       Workspace
}

func NewAppState(reg *dataset.Registry) *AppState {
	s := &AppState{registry: reg, tracker: tasks.NewTracker()}
	s.ws.Selection.Covariate = dataset.Additive
	s.ws.clearDerived()
	return s
}

func (s *AppState) Registry() *dataset.Registry {
	return s.registry
}

// SelectDataset switches dataset. The entity, covariate, correlation target
// and all derived results are reset, and any running group is retired.
func (s *AppState) SelectDataset(id string) (Selection, error) {
	ds, err := s.registry.Get(id)
	if err != nil {
		return Selection{}, &SelectionError{Field: "dataset", Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracker.Stop()
	s.ws.Dataset = ds
	s.ws.Selection = Selection{
		DatasetID:   ds.ID,
		Covariate:   dataset.Additive,
		Correlation: CorrelationTarget{DatasetID: ds.ID},
	}
	s.ws.clearDerived()

	logger.Info("Dataset selected", zap.String("dataset", ds.ID), zap.String("datatype", ds.Datatype.String()))
	return s.ws.Selection, nil
}

// SelectEntity makes e the primary selection and starts a new generation.
// The kind must match the dataset's datatype. The covariate is kept; the
// LOD cache and derived results are emptied.
func (s *AppState) SelectEntity(e Entity) (Selection, *dataset.Dataset, tasks.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.ws.Dataset
	if err := validateEntity(ds, e); err != nil {
		return Selection{}, nil, tasks.Token{}, err
	}

	tok := s.tracker.Begin()
	s.ws.Selection.Entity = &e
	s.ws.Selection.Correlation = CorrelationTarget{DatasetID: ds.ID}
	s.ws.clearDerived()

	logger.Debug("Entity selected",
		zap.String("dataset", ds.ID),
		zap.Stringer("kind", e.Kind),
		zap.String("id", e.ID),
		zap.Uint64("generation", tok.Generation()))
	return s.snapshot(), ds, tok, nil
}

func validateEntity(ds *dataset.Dataset, e Entity) error {
	if ds == nil {
		return &SelectionError{Field: "dataset", Reason: "no dataset selected"}
	}
	if e.ID == "" {
		return &SelectionError{Field: "entity", Reason: "empty id"}
	}
	if want := KindFor(ds.Datatype); e.Kind != want {
		return &SelectionError{
			Field:  "entity",
			Reason: fmt.Sprintf("%s selection on %s dataset %s, want %s", e.Kind, ds.Datatype, ds.ID, want),
		}
	}
	if e.Kind == EntityPhenotype && len(ds.Phenotypes) > 0 {
		if _, ok := ds.Phenotype(e.ID); !ok {
			return &SelectionError{Field: "entity", Reason: fmt.Sprintf("phenotype %q not in dataset %s", e.ID, ds.ID)}
		}
	}
	return nil
}

// SelectCovariate changes the interactive covariate. Cached scans stay,
// since they are keyed by covariate.
func (s *AppState) SelectCovariate(name string) (Selection, *dataset.Dataset, tasks.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.ws.Dataset
	if ds == nil {
		return Selection{}, nil, tasks.Token{}, &SelectionError{Field: "dataset", Reason: "no dataset selected"}
	}
	if !ds.ValidCovariate(name) {
		return Selection{}, nil, tasks.Token{}, &SelectionError{
			Field:  "covariate",
			Reason: fmt.Sprintf("%q is not an interactive covariate of %s", name, ds.ID),
		}
	}

	tok := s.tracker.Begin()
	s.ws.Selection.Covariate = name
	return s.snapshot(), ds, tok, nil
}

// SelectCorrelationTarget picks the entity to plot against the primary one.
func (s *AppState) SelectCorrelationTarget(datasetID, entityID string) (Selection, *dataset.Dataset, tasks.Token, error) {
	target, err := s.registry.Get(datasetID)
	if err != nil {
		return Selection{}, nil, tasks.Token{}, &SelectionError{Field: "correlation dataset", Reason: err.Error()}
	}
	if entityID == "" {
		return Selection{}, nil, tasks.Token{}, &SelectionError{Field: "correlation entity", Reason: "empty id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws.Selection.Entity == nil {
		return Selection{}, nil, tasks.Token{}, &SelectionError{Field: "entity", Reason: "nothing selected"}
	}
	tok := s.tracker.Begin()
	s.ws.Selection.Correlation = CorrelationTarget{DatasetID: target.ID, EntityID: entityID}
	return s.snapshot(), s.ws.Dataset, tok, nil
}

// Begin starts a new generation for work that does not change the
// selection, such as plot generation. An entity must be selected.
func (s *AppState) Begin() (Selection, *dataset.Dataset, tasks.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ws.Dataset == nil || s.ws.Selection.Entity == nil {
		return Selection{}, nil, tasks.Token{}, &SelectionError{Field: "entity", Reason: "nothing selected"}
	}
	return s.snapshot(), s.ws.Dataset, s.tracker.Begin(), nil
}

// Stop retires the running group, if any.
func (s *AppState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.Stop()
}

// Apply runs fn on the workspace if tok is still live. The check and fn run
// under one lock; fn must not leave the workspace half-updated on error.
func (s *AppState) Apply(tok tasks.Token, fn func(ws *Workspace) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !tok.Live() {
		return tasks.ErrSuperseded
	}
	return fn(&s.ws)
}

// View runs fn with read access to the workspace.
func (s *AppState) View(fn func(ws *Workspace)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.ws)
}

// Snapshot returns a copy of the current selection.
func (s *AppState) Snapshot() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *AppState) snapshot() Selection {
	sel := s.ws.Selection
	if sel.Entity != nil {
		e := *sel.Entity
		sel.Entity = &e
	}
	return sel
}
