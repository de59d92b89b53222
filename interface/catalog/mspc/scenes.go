// Package mspc implements the catalog.Provider interface on a STAC
// search endpoint (Planetary-Computer style). Asset signing is handled
// opaquely by the endpoint.
package mspc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/araddon/dateparse"
	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/service"
)

const (
	SearchURL             = "https://planetarycomputer.microsoft.com/api/stac/v1/search"
	CollectionLandsatC2L2 = "landsat-c2-l2"
	CatalogLimit          = 250
)

type stacSearch struct {
	Collections []string               `json:"collections"`
	Datetime    string                 `json:"datetime,omitempty"`
	Bbox        []float64              `json:"bbox,omitempty"`
	Query       map[string]interface{} `json:"query,omitempty"`
	Limit       int                    `json:"limit,omitempty"`
	Token       string                 `json:"token,omitempty"`
}

type stacResult struct {
	Features []stacFeature `json:"features"`
	Links    []stacLink    `json:"links"`
}

type stacLink struct {
	Rel  string `json:"rel"`
	Body struct {
		Token string `json:"token"`
	} `json:"body"`
}

// next returns the paging token of the rel=next link; empty on the
// last page.
func (r *stacResult) next() string {
	for _, link := range r.Links {
		if link.Rel == "next" {
			return link.Body.Token
		}
	}
	return ""
}

type stacFeature struct {
	Id         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
	Assets     map[string]stacAsset   `json:"assets"`
}

type stacAsset struct {
	Href string `json:"href"`
}

// Provider queries a STAC catalog over HTTP.
type Provider struct {
	// URL of the search endpoint. Defaults to SearchURL.
	URL string
	// Limit is the page size. Defaults to CatalogLimit.
	Limit  int
	Client *http.Client
}

// SearchScenes implements catalog.Provider. The search is filtered by
// the cell's native path/row so near-duplicate acquisitions from
// adjacent cells are not returned. Pages are followed through the
// response's next token until the endpoint stops sending one.
func (p *Provider) SearchScenes(ctx context.Context, collection string, cell common.GridCell, tr common.TimeRange, bbox [4]float64) ([]common.SceneReference, error) {
	url := p.URL
	if url == "" {
		url = SearchURL
	}
	limit := p.Limit
	if limit == 0 {
		limit = CatalogLimit
	}

	req := stacSearch{
		Collections: []string{collection},
		Datetime:    tr.Start.Format("2006-01-02T15:04:05Z") + "/" + tr.End.Format("2006-01-02T15:04:05Z"),
		Bbox:        bbox[:],
		Query: map[string]interface{}{
			"landsat:wrs_path": map[string]string{"eq": fmt.Sprintf("%03d", cell.Path)},
			"landsat:wrs_row":  map[string]string{"eq": fmt.Sprintf("%03d", cell.Row)},
		},
		Limit: limit,
	}

	var scenes []common.SceneReference
	for {
		result, err := p.query(ctx, url, req)
		if err != nil {
			return nil, fmt.Errorf("SearchScenes(mspc).%w", err)
		}
		for _, feature := range result.Features {
			scene, err := toSceneReference(feature)
			if err != nil {
				return nil, fmt.Errorf("SearchScenes(mspc).%w", err)
			}
			scenes = append(scenes, scene)
		}
		token := result.next()
		if token == "" {
			return scenes, nil
		}
		req.Token = token
	}
}

func (p *Provider) query(ctx context.Context, url string, search stacSearch) (*stacResult, error) {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(search); err != nil {
		return nil, fmt.Errorf("query.Encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("query.NewRequest: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("query.Do: %w", err))
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("query.ReadAll: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("query: status %d: %s", resp.StatusCode, respBody)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, service.MakeTemporary(err)
		}
		return nil, err
	}

	result := stacResult{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("query.Unmarshal: %w", err)
	}
	return &result, nil
}

func toSceneReference(feature stacFeature) (common.SceneReference, error) {
	datetime, ok := feature.Properties["datetime"].(string)
	if !ok {
		return common.SceneReference{}, fmt.Errorf("toSceneReference[%s]: missing datetime property", feature.Id)
	}
	acquired, err := dateparse.ParseAny(datetime)
	if err != nil {
		return common.SceneReference{}, fmt.Errorf("toSceneReference[%s].ParseAny: %w", feature.Id, err)
	}

	epsg := 0
	if v, ok := feature.Properties["proj:epsg"].(float64); ok {
		epsg = int(v)
	}

	assets := make(map[string]string, len(feature.Assets))
	for name, asset := range feature.Assets {
		assets[name] = asset.Href
	}

	return common.SceneReference{
		ID:         feature.Id,
		AcquiredAt: acquired,
		EPSG:       epsg,
		Assets:     assets,
	}, nil
}
