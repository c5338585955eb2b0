package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"packsight/src/core/pipeline"
	"packsight/src/core/rebrand"
	"packsight/src/core/rebrandflow"
	"packsight/src/fsutil"
)

// BrandProfile distills the brand's visual language from the source
// asset named in the item params.
type BrandProfile struct {
	Flow    *rebrandflow.RebrandFlow
	Fetcher Fetcher
	Assets  fsutil.BlobStore
}

func (s *BrandProfile) Name() string { return "brand-profile" }

func (s *BrandProfile) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	var params rebrand.ItemParams
	if err := decodeParams(sc.Params, &params); err != nil {
		return nil, err
	}
	if params.SourceAsset == "" {
		return nil, fmt.Errorf("source_asset is required")
	}

	image, err := s.loadSource(ctx, params.SourceAsset)
	if err != nil {
		return nil, err
	}

	report, err := s.Flow.BrandProfile(ctx, params.BrandIdentity, image)
	if err != nil {
		return nil, err
	}

	return &pipeline.StepResult{
		InputSummary:  params.SourceAsset,
		OutputSummary: report.Summary,
		Output:        report.Detail,
	}, nil
}

// loadSource resolves the source asset either from the web or from the
// blob store, depending on the reference shape.
func (s *BrandProfile) loadSource(ctx context.Context, ref string) ([]byte, error) {
	if strings.Contains(ref, "://") {
		data, _, err := s.Fetcher.FetchBytes(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch source asset: %w", err)
		}
		return data, nil
	}

	data, err := s.Assets.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load source asset: %w", err)
	}
	return data, nil
}

// ConceptGeneration applies the brand profile to the target product.
type ConceptGeneration struct {
	Flow *rebrandflow.RebrandFlow
}

func (s *ConceptGeneration) Name() string { return "concept-generation" }

func (s *ConceptGeneration) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	var params rebrand.ItemParams
	if err := decodeParams(sc.Params, &params); err != nil {
		return nil, err
	}

	prev, ok := latestOutput(sc.Outputs, "brand-profile")
	if !ok {
		return nil, fmt.Errorf("no brand-profile output to apply")
	}

	report, err := s.Flow.GenerateConcept(ctx, prev.Output, rebrandflow.Target{
		Name:     params.Target.Name,
		ImageURL: params.Target.ImageURL,
	}, params.Category)
	if err != nil {
		return nil, err
	}

	return &pipeline.StepResult{
		InputSummary:  fmt.Sprintf("target %q", params.Target.Name),
		OutputSummary: report.Summary,
		Output:        report.Detail,
	}, nil
}

// Render turns the concept into rendering instructions and archives
// the finished concept card.
type Render struct {
	Flow      *rebrandflow.RebrandFlow
	Artifacts fsutil.BlobStore
}

func (s *Render) Name() string { return "render" }

func (s *Render) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	var params rebrand.ItemParams
	if err := decodeParams(sc.Params, &params); err != nil {
		return nil, err
	}

	prev, ok := latestOutput(sc.Outputs, "concept-generation")
	if !ok {
		return nil, fmt.Errorf("no concept to render")
	}

	report, err := s.Flow.RenderSpec(ctx, prev.Output, rebrandflow.Target{
		Name:     params.Target.Name,
		ImageURL: params.Target.ImageURL,
	})
	if err != nil {
		return nil, err
	}

	card, err := json.Marshal(struct {
		Product string          `json:"product"`
		Concept json.RawMessage `json:"concept"`
		Render  json.RawMessage `json:"render"`
	}{
		Product: params.Target.Name,
		Concept: prev.Output,
		Render:  report.Detail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode concept card: %w", err)
	}

	key := fmt.Sprintf("%d/concept-card.json", sc.Job.ID)
	url, err := s.Artifacts.Save(ctx, key, card, "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to archive concept card: %w", err)
	}

	result, err := json.Marshal(struct {
		Product     string          `json:"product"`
		Summary     string          `json:"summary"`
		ArtifactURL string          `json:"artifact_url"`
		Render      json.RawMessage `json:"render"`
	}{
		Product:     params.Target.Name,
		Summary:     report.Summary,
		ArtifactURL: url,
		Render:      report.Detail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode final payload: %w", err)
	}

	return &pipeline.StepResult{
		InputSummary:  fmt.Sprintf("target %q", params.Target.Name),
		OutputSummary: report.Summary,
		Output:        report.Detail,
		ArtifactURL:   url,
		Result:        result,
	}, nil
}
