// Package ensimpl talks to the gene annotation API and matches search hits
// against the genes measured by a dataset.
package ensimpl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	"github.com/yumyai/qtlview/pkg/qtl"
	"github.com/yumyai/qtlview/pkg/transport"
	"go.uber.org/zap"
)

const DefaultLimit = 100

// Match is one gene search hit. Match, Datatype, ProteinIDs and PhosIDs are
// filled by MatchDataset.
type Match struct {
	EnsemblGeneID string   `json:"ensembl_gene_id"`
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Chromosome    string   `json:"chromosome"`
	PositionStart float64  `json:"position_start"`
	PositionEnd   float64  `json:"position_end"`
	Synonyms      []string `json:"synonyms,omitempty"`
	MatchReason   string   `json:"match_reason"`
	MatchValue    string   `json:"match_value"`

	InDataset  bool                `json:"match"`
	Datatype   qtl.Datatype        `json:"datatype,omitempty"`
	ProteinIDs []string            `json:"protein_ids,omitempty"`
	PhosIDs    map[string][]string `json:"phos_ids,omitempty"`
}

type searchResponse struct {
	Result struct {
		Matches []Match `json:"matches"`
	} `json:"result"`
}

type SearchOptions struct {
	Species string
	Release string
	Limit   int
	Greedy  bool
}

// Client queries the annotation API rooted at BaseURL.
type Client struct {
	Doer    transport.Doer
	BaseURL string
}

func NewClient(doer transport.Doer, baseURL string) *Client {
	return &Client{Doer: doer, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Search runs a free-text gene search. A null match list is returned as an
// empty slice.
func (c *Client) Search(ctx context.Context, term string, opts SearchOptions) ([]Match, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("empty search term")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := url.Values{}
	q.Set("term", term)
	q.Set("species", opts.Species)
	q.Set("release", opts.Release)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("greedy", strconv.FormatBool(opts.Greedy))

	var resp searchResponse
	if err := c.Doer.GetJSON(ctx, c.BaseURL+"/api/search?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("gene search %q: %w", term, err)
	}
	if resp.Result.Matches == nil {
		return []Match{}, nil
	}
	logger.Debug("Gene search", zap.String("term", term), zap.Int("matches", len(resp.Result.Matches)))
	return resp.Result.Matches, nil
}

// GeneURL is the gene lookup URL also submitted as the geneData sub-request.
func GeneURL(baseURL, geneID, release, species string) string {
	q := url.Values{}
	q.Set("release", release)
	q.Set("species", species)
	return strings.TrimRight(baseURL, "/") + "/api/gene/" + url.PathEscape(geneID) + "?" + q.Encode()
}

// ExonInfoURL lists the genes and exons of a chromosome.
func ExonInfoURL(baseURL, chrom, release, species string) string {
	q := url.Values{}
	q.Set("release", release)
	q.Set("species", species)
	q.Set("chrom", chrom)
	return strings.TrimRight(baseURL, "/") + "/api/exon_info?" + q.Encode()
}

// Gene looks up one gene by id.
func (c *Client) Gene(ctx context.Context, geneID, release, species string) (qtl.GeneInfo, error) {
	raw, err := c.Doer.Do(ctx, http.MethodGet, GeneURL(c.BaseURL, geneID, release, species), nil)
	if err != nil {
		return qtl.GeneInfo{}, fmt.Errorf("gene %s: %w", geneID, err)
	}
	return qtl.DecodeGeneData(raw, geneID)
}

// MatchDataset flags which hits are measured in ds. Protein and phos
// datasets also list the protein ids of each matched gene, and phos
// datasets the phosphosites of each protein. matches is modified in place.
func MatchDataset(ds *dataset.Dataset, matches []Match) []Match {
	for i := range matches {
		m := &matches[i]
		m.Datatype = ds.Datatype
		m.InDataset = ds.HasGene(m.EnsemblGeneID)
		if !m.InDataset {
			continue
		}
		switch ds.Datatype {
		case qtl.Protein:
			m.ProteinIDs = ds.ProteinsOf(m.EnsemblGeneID)
		case qtl.Phos:
			m.ProteinIDs = ds.ProteinsOf(m.EnsemblGeneID)
			m.PhosIDs = make(map[string][]string, len(m.ProteinIDs))
			for _, p := range m.ProteinIDs {
				m.PhosIDs[p] = ds.PhosOf(p)
			}
		}
	}
	return matches
}
