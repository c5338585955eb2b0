// Package steps binds the analysis flows to the pipeline executor. One
// struct per step; Sets assembles the ordered step list for every job
// kind the worker can execute.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"packsight/src/core/analysisflow"
	"packsight/src/core/discoveryflow"
	"packsight/src/core/pipeline"
	"packsight/src/core/rebrand"
	"packsight/src/core/rebrandflow"
	"packsight/src/fsutil"
)

// Fetcher downloads product assets.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, string, error)
}

// ProductSink records the products an analysis discovered so later
// rebrand sessions can enumerate them as targets.
type ProductSink interface {
	SaveBatch(ctx context.Context, analysisID int64, products []rebrand.Product) error
}

// Sets builds the step lists for every registered kind. The rebrand
// kinds share step instances; a session item is an ordinary rebrand
// job spawned by the fan-out coordinator.
func Sets(
	discovery *discoveryflow.DiscoveryFlow,
	analysis *analysisflow.AnalysisFlow,
	rebranding *rebrandflow.RebrandFlow,
	fetcher Fetcher,
	assets fsutil.BlobStore,
	artifacts fsutil.BlobStore,
	products ProductSink,
) map[string][]pipeline.Step {
	retrieval := &AssetRetrieval{Fetcher: fetcher, Assets: assets}
	visual := &VisualAnalysis{Flow: analysis, Assets: assets}
	attention := &AttentionAnalysis{Flow: analysis, Assets: assets}
	synthesis := &Synthesis{Flow: analysis, Artifacts: artifacts}

	rebrandSteps := []pipeline.Step{
		&BrandProfile{Flow: rebranding, Fetcher: fetcher, Assets: assets},
		&ConceptGeneration{Flow: rebranding},
		&Render{Flow: rebranding, Artifacts: artifacts},
	}

	return map[string][]pipeline.Step{
		pipeline.KindDiscovery: {
			&CategoryDiscovery{Flow: discovery},
			&DetailFetch{Flow: discovery, Products: products},
			&AssetSelection{},
			retrieval,
			visual,
			attention,
			synthesis,
		},
		pipeline.KindImageAnalysis: {
			retrieval,
			visual,
			attention,
			synthesis,
		},
		pipeline.KindRebrand:     rebrandSteps,
		pipeline.KindRebrandItem: rebrandSteps,
	}
}

// latestOutput returns the highest-ordinal output produced by a step
// with the given name. Steps locate their inputs by name, not ordinal,
// because the same step sits at different ordinals in different kinds.
func latestOutput(outputs map[int]pipeline.StepOutput, name string) (pipeline.StepOutput, bool) {
	best := -1
	var found pipeline.StepOutput
	for ord, out := range outputs {
		if out.Name == name && ord > best {
			best = ord
			found = out
		}
	}
	return found, best >= 0
}

func decodeParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return fmt.Errorf("job has no params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("failed to decode job params: %w", err)
	}
	return nil
}

// extensionFor maps a content type onto a file extension for asset
// object keys.
func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	default:
		return ".bin"
	}
}
