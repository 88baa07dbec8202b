package state

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/ensimpl"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/tasks"
)

// Sub-request ids. Dispatch selects results by these keys.
const (
	IDGeneData        = "geneData"
	IDExpression      = "expression"
	IDCorrelation     = "correlation"
	IDLOD             = "lod"
	IDLODCovar        = "lodCovar"
	IDEffect          = "effect"
	IDLODSamples      = "lodSamples"
	IDMediate         = "mediate"
	IDSNPAssoc        = "snpAssoc"
	IDGenesInfo       = "genesInfoURL"
	IDGenesRanking    = "genesRankingURL"
	IDCorrelationPlot = "correlationPlot"
)

// SNPWindow is the distance either side of the location fetched for a SNP
// association scan.
const SNPWindow = 3000000

// RequestBuilder derives compute-service URLs from a selection.
type RequestBuilder struct {
	RBaseURL string
	APIURL   string
	// Cores is passed to scans when positive.
	Cores int
}

func (b RequestBuilder) rURL(endpoint string, q url.Values) string {
	return strings.TrimRight(b.RBaseURL, "/") + "/" + endpoint + "?" + q.Encode()
}

func (b RequestBuilder) withCores(q url.Values) url.Values {
	if b.Cores > 0 {
		q.Set("cores", strconv.Itoa(b.Cores))
	}
	return q
}

func base(ds *dataset.Dataset, id string) url.Values {
	q := url.Values{}
	q.Set("dataset", ds.ID)
	q.Set("id", id)
	return q
}

func (b RequestBuilder) lod(ds *dataset.Dataset, id, covar string) string {
	q := base(ds, id)
	q.Set("intcovar", covar)
	return b.rURL("lodscan", b.withCores(q))
}

// Entity is the group submitted when an entity is selected: annotation
// (gene-based datasets only), expression, correlation and the LOD scans.
// A non-additive covariate adds a second scan for the interaction.
func (b RequestBuilder) Entity(ds *dataset.Dataset, e Entity, covar string) []tasks.SubRequest {
	var reqs []tasks.SubRequest
	if gene := e.AnnotationGene(); ds.Datatype.IsGeneBased() && gene != "" {
		reqs = append(reqs, tasks.SubRequest{
			ID:  IDGeneData,
			URL: ensimpl.GeneURL(b.APIURL, gene, ds.Ensembl.Release, ds.Ensembl.Species),
		})
	}
	reqs = append(reqs,
		tasks.SubRequest{ID: IDExpression, URL: b.rURL("expression", base(ds, e.ID))},
		tasks.SubRequest{ID: IDCorrelation, URL: b.rURL("correlation", base(ds, e.ID))},
		tasks.SubRequest{ID: IDLOD, URL: b.lod(ds, e.ID, dataset.Additive)},
	)
	if covar != "" && covar != dataset.Additive {
		reqs = append(reqs, tasks.SubRequest{ID: IDLODCovar, URL: b.lod(ds, e.ID, covar)})
	}
	return reqs
}

// Covariate is the group submitted on a covariate change. The additive
// baseline is requested again only when it is not cached.
func (b RequestBuilder) Covariate(ds *dataset.Dataset, e Entity, covar string, haveAdditive bool) []tasks.SubRequest {
	var reqs []tasks.SubRequest
	if !haveAdditive {
		reqs = append(reqs, tasks.SubRequest{ID: IDLOD, URL: b.lod(ds, e.ID, dataset.Additive)})
	}
	if covar != dataset.Additive {
		reqs = append(reqs, tasks.SubRequest{ID: IDLODCovar, URL: b.lod(ds, e.ID, covar)})
	}
	return reqs
}

// Effect requests founder coefficients on one chromosome, and the per-sample
// LOD scan when a covariate is in play.
func (b RequestBuilder) Effect(ds *dataset.Dataset, e Entity, chrom, covar string, blup bool) []tasks.SubRequest {
	q := base(ds, e.ID)
	q.Set("chrom", chrom)
	q.Set("intcovar", covar)

	eq := b.withCores(cloneValues(q))
	eq.Set("blup", strconv.FormatBool(blup))
	reqs := []tasks.SubRequest{{ID: IDEffect, URL: b.rURL("foundercoefs", eq)}}
	if covar != dataset.Additive {
		reqs = append(reqs, tasks.SubRequest{ID: IDLODSamples, URL: b.rURL("lodscansamples", b.withCores(q))})
	}
	return reqs
}

// Mediation scans the marker against the entities of another dataset.
func (b RequestBuilder) Mediation(ds *dataset.Dataset, e Entity, markerID string, against *dataset.Dataset) ([]tasks.SubRequest, error) {
	if !against.Datatype.IsGeneBased() {
		return nil, &SelectionError{Field: "mediation dataset", Reason: fmt.Sprintf("%s is %s data", against.ID, against.Datatype)}
	}
	if markerID == "" {
		return nil, &SelectionError{Field: "marker", Reason: "empty marker id"}
	}
	q := base(ds, e.ID)
	q.Set("marker_id", markerID)
	q.Set("dataset_mediate", against.ID)
	return []tasks.SubRequest{{ID: IDMediate, URL: b.rURL("mediate", q)}}, nil
}

// SNPAssoc requests the SNP scan around location, the genes of the
// chromosome and, for gene-based datasets, the gene rankings.
func (b RequestBuilder) SNPAssoc(ds *dataset.Dataset, e Entity, chrom string, location float64, covar string) []tasks.SubRequest {
	q := base(ds, e.ID)
	q.Set("chrom", chrom)
	q.Set("location", strconv.FormatFloat(location, 'f', -1, 64))
	q.Set("window_size", strconv.Itoa(SNPWindow))
	if covar != dataset.Additive {
		q.Set("intcovar", covar)
	}

	reqs := []tasks.SubRequest{
		{ID: IDSNPAssoc, URL: b.rURL("snpassoc", b.withCores(q))},
		{ID: IDGenesInfo, URL: ensimpl.ExonInfoURL(b.APIURL, chrom, ds.Ensembl.Release, ds.Ensembl.Species)},
	}
	if ds.Datatype != qtl.Phenotype {
		rq := url.Values{}
		rq.Set("dataset", ds.ID)
		rq.Set("chrom", chrom)
		reqs = append(reqs, tasks.SubRequest{ID: IDGenesRanking, URL: b.rURL("rankings", rq)})
	}
	return reqs
}

// CorrelationPlot requests the paired samples of the entity and the
// correlation target. covar may be empty or "none" to skip the covariate.
func (b RequestBuilder) CorrelationPlot(ds *dataset.Dataset, e Entity, target CorrelationTarget, covar string) []tasks.SubRequest {
	q := base(ds, e.ID)
	q.Set("dataset_correlate", target.DatasetID)
	q.Set("id_correlate", target.EntityID)
	if covar != "" && covar != "none" {
		q.Set("intcovar", covar)
	}
	return []tasks.SubRequest{{ID: IDCorrelationPlot, URL: b.rURL("correlationplot", q)}}
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
