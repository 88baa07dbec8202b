package dataset

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"sync"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/genome"
	"github.com/yumyai/qtlview/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var ErrNoDataset = errors.New("dataset not found")

// Registry is the immutable set of datasets known to the application.
type Registry struct {
	order    []string
	datasets map[string]*Dataset
}

type registryFile struct {
	Datasets []*Dataset `yaml:"datasets" json:"datasets"`
}

// ReadFile parses a registry document. YAML and JSON are both accepted.
func ReadFile(path string) ([]*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var doc registryFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return doc.Datasets, nil
}

// FetchRemote downloads the registry document from url.
func FetchRemote(ctx context.Context, client transport.Doer, url string) ([]*Dataset, error) {
	var doc registryFile
	if err := client.GetJSON(ctx, url, &doc); err != nil {
		return nil, fmt.Errorf("fetch registry: %w", err)
	}
	return doc.Datasets, nil
}

// ChromosomeSource supplies chromosome lengths for a genome build.
type ChromosomeSource interface {
	Chromosomes(ctx context.Context, release, species string) ([]genome.Chromosome, error)
}

// RemoteChromosomes fetches chromosome lengths from the annotation API.
type RemoteChromosomes struct {
	Client transport.Doer
	URL    string
}

func (r *RemoteChromosomes) Chromosomes(ctx context.Context, release, species string) ([]genome.Chromosome, error) {
	q := url.Values{}
	if release != "" {
		q.Set("release", release)
	}
	if species != "" {
		q.Set("species", species)
	}
	target := r.URL
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var chroms []genome.Chromosome
	if err := r.Client.GetJSON(ctx, target, &chroms); err != nil {
		return nil, err
	}
	return chroms, nil
}

// NewRegistry validates the datasets and builds their derived tables.
// Datasets listed without chromosomes get them from src, one request per
// genome build, fetched concurrently.
func NewRegistry(ctx context.Context, datasets []*Dataset, src ChromosomeSource) (*Registry, error) {
	if err := fillChromosomes(ctx, datasets, src); err != nil {
		return nil, err
	}

	r := &Registry{datasets: make(map[string]*Dataset, len(datasets))}
	for _, d := range datasets {
		if d == nil {
			continue
		}
		if err := d.prepare(); err != nil {
			return nil, err
		}
		if _, dup := r.datasets[d.ID]; dup {
			return nil, fmt.Errorf("duplicate dataset id %q", d.ID)
		}
		r.datasets[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	sort.Strings(r.order)

	logger.Info("Dataset registry ready", zap.Int("datasets", len(r.order)))
	return r, nil
}

func fillChromosomes(ctx context.Context, datasets []*Dataset, src ChromosomeSource) error {
	builds := map[Ensembl][]*Dataset{}
	for _, d := range datasets {
		if d != nil && len(d.Chromosomes) == 0 {
			key := Ensembl{Release: d.Ensembl.Release, Species: d.Ensembl.Species}
			builds[key] = append(builds[key], d)
		}
	}
	if len(builds) == 0 {
		return nil
	}
	if src == nil {
		return fmt.Errorf("%d dataset(s) have no chromosomes and no chromosome source is configured", len(builds))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for build, members := range builds {
		build, members := build, members
		g.Go(func() error {
			chroms, err := src.Chromosomes(gctx, build.Release, build.Species)
			if err != nil {
				return fmt.Errorf("chromosomes for release %s %s: %w", build.Release, build.Species, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, d := range members {
				d.Chromosomes = append([]genome.Chromosome(nil), chroms...)
			}
			return nil
		})
	}
	return g.Wait()
}

// Get returns the dataset with the given id.
func (r *Registry) Get(id string) (*Dataset, error) {
	d, ok := r.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDataset, id)
	}
	return d, nil
}

// List returns all datasets ordered by id.
func (r *Registry) List() []*Dataset {
	out := make([]*Dataset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.datasets[id])
	}
	return out
}

// CanMediate reports whether any dataset can serve as a mediation target.
func (r *Registry) CanMediate() bool {
	for _, d := range r.datasets {
		if d.Datatype.IsGeneBased() {
			return true
		}
	}
	return false
}
