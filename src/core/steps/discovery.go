package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"packsight/src/core/discoveryflow"
	"packsight/src/core/pipeline"
	"packsight/src/core/rebrand"
)

// discoveryParams is the params payload of a discovery-pipeline job.
type discoveryParams struct {
	Category string `json:"category"`
	PageURL  string `json:"page_url"`
}

// CategoryDiscovery extracts competitor listings from the category
// page named in the job params.
type CategoryDiscovery struct {
	Flow *discoveryflow.DiscoveryFlow
}

func (s *CategoryDiscovery) Name() string { return "category-discovery" }

func (s *CategoryDiscovery) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	var params discoveryParams
	if err := decodeParams(sc.Params, &params); err != nil {
		return nil, err
	}
	if params.Category == "" || params.PageURL == "" {
		return nil, fmt.Errorf("category and page_url are required")
	}

	listings, err := s.Flow.DiscoverCategory(ctx, params.Category, params.PageURL)
	if err != nil {
		return nil, err
	}

	output, err := json.Marshal(listings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode listings: %w", err)
	}

	return &pipeline.StepResult{
		InputSummary:  fmt.Sprintf("category %q at %s", params.Category, params.PageURL),
		OutputSummary: fmt.Sprintf("%d listings", len(listings)),
		Output:        output,
	}, nil
}

// DetailFetch enriches each listing from its own page and records the
// resulting products for later rebrand fan-out.
type DetailFetch struct {
	Flow     *discoveryflow.DiscoveryFlow
	Products ProductSink
}

func (s *DetailFetch) Name() string { return "detail-fetch" }

func (s *DetailFetch) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	var params discoveryParams
	if err := decodeParams(sc.Params, &params); err != nil {
		return nil, err
	}

	prev, ok := latestOutput(sc.Outputs, "category-discovery")
	if !ok {
		return nil, fmt.Errorf("no category-discovery output to enrich")
	}
	var listings []discoveryflow.Listing
	if err := json.Unmarshal(prev.Output, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}

	details, err := s.Flow.FetchDetails(ctx, params.Category, listings)
	if err != nil {
		return nil, err
	}

	products := make([]rebrand.Product, 0, len(details))
	for _, d := range details {
		products = append(products, rebrand.Product{
			Name:      d.Name,
			ImageURL:  d.ImageURL,
			DetailURL: d.DetailURL,
		})
	}
	if err := s.Products.SaveBatch(ctx, sc.Job.ID, products); err != nil {
		return nil, fmt.Errorf("failed to record products: %w", err)
	}

	output, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode details: %w", err)
	}

	return &pipeline.StepResult{
		InputSummary:  fmt.Sprintf("%d listings", len(listings)),
		OutputSummary: fmt.Sprintf("%d products recorded", len(products)),
		Output:        output,
	}, nil
}

// AssetSelection picks the primary product whose packaging the rest of
// the pipeline analyzes: the first listing with a usable image.
type AssetSelection struct{}

func (s *AssetSelection) Name() string { return "asset-selection" }

type selectedAsset struct {
	ProductName string `json:"product_name"`
	ImageURL    string `json:"image_url"`
}

func (s *AssetSelection) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	prev, ok := latestOutput(sc.Outputs, "detail-fetch")
	if !ok {
		return nil, fmt.Errorf("no detail-fetch output to select from")
	}
	var details []discoveryflow.Detail
	if err := json.Unmarshal(prev.Output, &details); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}

	for _, d := range details {
		if d.ImageURL == "" {
			continue
		}
		sel := selectedAsset{ProductName: d.Name, ImageURL: d.ImageURL}
		output, err := json.Marshal(sel)
		if err != nil {
			return nil, fmt.Errorf("failed to encode selection: %w", err)
		}
		return &pipeline.StepResult{
			InputSummary:  fmt.Sprintf("%d candidates", len(details)),
			OutputSummary: fmt.Sprintf("selected %q", d.Name),
			Output:        output,
		}, nil
	}

	return nil, fmt.Errorf("no listing carries a usable image")
}
