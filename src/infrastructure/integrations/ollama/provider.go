package ollama

import (
	"context"

	"github.com/tmc/langchaingo/textsplitter"

	"packsight/src/log"
)

// Provider adapts the Ollama client to the LLMProvider interfaces the
// analysis flows consume. Text work goes to the reasoning model, image
// work to the vision model.
type Provider struct {
	client      *Client
	textModel   string
	visionModel string
}

func NewProvider(client *Client, textModel, visionModel string) *Provider {
	return &Provider{
		client:      client,
		textModel:   textModel,
		visionModel: visionModel,
	}
}

func (p *Provider) TextSplit(ctx context.Context, text string, chunkSize, chunkOverlap int) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithLenFunc(
			func(s string) int {
				n, err := p.client.CountTokens(ctx, p.textModel, s)
				if err != nil {
					log.Error(err, "failed to count tokens")
					return -1
				}
				return n
			},
		),
	)

	return splitter.SplitText(text)
}

func (p *Provider) Reasoning(ctx context.Context, system string, prompt string) (string, error) {
	return p.client.Generate(ctx, p.textModel, system, prompt, map[string]interface{}{
		"temperature": 0.7,
		"top_p":       0.9,
	})
}

func (p *Provider) Vision(ctx context.Context, system string, prompt string, image []byte) (string, error) {
	return p.client.GenerateWithImages(ctx, p.visionModel, system, prompt, [][]byte{image}, map[string]interface{}{
		"temperature": 0.2,
	})
}

func (p *Provider) TokenLength(ctx context.Context, text string) (int, error) {
	return p.client.CountTokens(ctx, p.textModel, text)
}
