package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"packsight/src/core/analysisflow"
	"packsight/src/core/pipeline"
	"packsight/src/fsutil"
)

// analysisParams is the params payload of an image-analysis job. A
// discovery-pipeline job reaches these steps with its own params; the
// selection output supplies what params omit.
type analysisParams struct {
	ProductName string `json:"product_name"`
	ImageURL    string `json:"image_url"`
	Category    string `json:"category"`
}

// subjectOf resolves the analyzed product's name and image source from
// the selection output when present, falling back to job params.
func subjectOf(sc *pipeline.StepContext) (name, imageURL string) {
	var params analysisParams
	_ = json.Unmarshal(sc.Params, &params)

	name = params.ProductName
	imageURL = params.ImageURL

	if out, ok := latestOutput(sc.Outputs, "asset-selection"); ok {
		var sel selectedAsset
		if err := json.Unmarshal(out.Output, &sel); err == nil {
			if sel.ProductName != "" {
				name = sel.ProductName
			}
			if sel.ImageURL != "" {
				imageURL = sel.ImageURL
			}
		}
	}

	if name == "" {
		name = params.Category
	}
	return name, imageURL
}

// AssetRetrieval downloads the subject image and stores it as a run
// asset.
type AssetRetrieval struct {
	Fetcher Fetcher
	Assets  fsutil.BlobStore
}

func (s *AssetRetrieval) Name() string { return "asset-retrieval" }

type retrievedAsset struct {
	ArtifactURL string `json:"artifact_url"`
	ContentType string `json:"content_type"`
	Bytes       int    `json:"bytes"`
}

func (s *AssetRetrieval) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	_, imageURL := subjectOf(sc)
	if imageURL == "" {
		return nil, fmt.Errorf("no image url to retrieve")
	}

	data, contentType, err := s.Fetcher.FetchBytes(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image at %s is empty", imageURL)
	}

	key := fmt.Sprintf("%d/source%s", sc.Job.ID, extensionFor(contentType))
	url, err := s.Assets.Save(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store asset: %w", err)
	}

	output, err := json.Marshal(retrievedAsset{ArtifactURL: url, ContentType: contentType, Bytes: len(data)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode asset record: %w", err)
	}

	return &pipeline.StepResult{
		InputSummary:  imageURL,
		OutputSummary: fmt.Sprintf("%d bytes stored", len(data)),
		Output:        output,
		ArtifactURL:   url,
	}, nil
}

// loadRetrievedAsset fetches the bytes stored by asset-retrieval.
func loadRetrievedAsset(ctx context.Context, sc *pipeline.StepContext, assets fsutil.BlobStore) ([]byte, error) {
	out, ok := latestOutput(sc.Outputs, "asset-retrieval")
	if !ok || out.ArtifactURL == "" {
		return nil, fmt.Errorf("no retrieved asset to analyze")
	}
	data, err := assets.Load(ctx, out.ArtifactURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}
	return data, nil
}

// VisualAnalysis runs the packaging design analysis over the retrieved
// asset.
type VisualAnalysis struct {
	Flow   *analysisflow.AnalysisFlow
	Assets fsutil.BlobStore
}

func (s *VisualAnalysis) Name() string { return "visual-analysis" }

func (s *VisualAnalysis) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	image, err := loadRetrievedAsset(ctx, sc, s.Assets)
	if err != nil {
		return nil, err
	}
	name, _ := subjectOf(sc)

	report, err := s.Flow.VisualAnalysis(ctx, name, image)
	if err != nil {
		return nil, err
	}

	return &pipeline.StepResult{
		InputSummary:  fmt.Sprintf("%d image bytes", len(image)),
		OutputSummary: report.Summary,
		Output:        report.Detail,
	}, nil
}

// AttentionAnalysis estimates shopper attention flow over the asset,
// informed by the visual findings.
type AttentionAnalysis struct {
	Flow   *analysisflow.AnalysisFlow
	Assets fsutil.BlobStore
}

func (s *AttentionAnalysis) Name() string { return "attention-analysis" }

func (s *AttentionAnalysis) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	image, err := loadRetrievedAsset(ctx, sc, s.Assets)
	if err != nil {
		return nil, err
	}
	name, _ := subjectOf(sc)

	var visual json.RawMessage
	if out, ok := latestOutput(sc.Outputs, "visual-analysis"); ok {
		visual = out.Output
	}

	report, err := s.Flow.AttentionAnalysis(ctx, name, image, visual)
	if err != nil {
		return nil, err
	}

	return &pipeline.StepResult{
		InputSummary:  fmt.Sprintf("%d image bytes", len(image)),
		OutputSummary: report.Summary,
		Output:        report.Detail,
	}, nil
}

// Synthesis folds the accumulated findings into the job's final
// report and archives it.
type Synthesis struct {
	Flow      *analysisflow.AnalysisFlow
	Artifacts fsutil.BlobStore
}

func (s *Synthesis) Name() string { return "synthesis" }

func (s *Synthesis) Execute(ctx context.Context, sc *pipeline.StepContext) (*pipeline.StepResult, error) {
	name, _ := subjectOf(sc)

	var findings []json.RawMessage
	for _, source := range []string{"detail-fetch", "visual-analysis", "attention-analysis"} {
		if out, ok := latestOutput(sc.Outputs, source); ok && len(out.Output) > 0 {
			findings = append(findings, out.Output)
		}
	}
	if len(findings) == 0 {
		return nil, fmt.Errorf("no findings to synthesize")
	}

	report, err := s.Flow.Synthesize(ctx, name, findings)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%d/report.json", sc.Job.ID)
	url, err := s.Artifacts.Save(ctx, key, report.Detail, "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to archive report: %w", err)
	}

	result, err := json.Marshal(struct {
		Product     string          `json:"product"`
		Summary     string          `json:"summary"`
		Report      json.RawMessage `json:"report"`
		ArtifactURL string          `json:"artifact_url"`
	}{
		Product:     name,
		Summary:     report.Summary,
		Report:      report.Detail,
		ArtifactURL: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode final report: %w", err)
	}

	return &pipeline.StepResult{
		InputSummary:  fmt.Sprintf("%d findings", len(findings)),
		OutputSummary: report.Summary,
		Output:        report.Detail,
		ArtifactURL:   url,
		Result:        result,
	}, nil
}
