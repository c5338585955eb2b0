package discoveryflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"packsight/src/log"
)

const (
	DefaultMaxTokenPerChunk = 4000
	DefaultMaxListings      = 12
)

// Fetcher retrieves page text for the flow.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

type LLMProvider interface {
	TextSplit(ctx context.Context, text string, chunkSize, chunkOverlap int) ([]string, error)
	Reasoning(ctx context.Context, system string, prompt string) (string, error)
	TokenLength(ctx context.Context, text string) (int, error)
}

// TemplateData holds all the data needed for template execution
type TemplateData struct {
	Category    string
	PageText    string
	ListingName string
}

// Listing is one competitor product found on a category page.
type Listing struct {
	Name      string `json:"name"`
	DetailURL string `json:"detail_url,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// Detail is the enriched record extracted from a listing's own page.
type Detail struct {
	Listing
	Brand       string `json:"brand,omitempty"`
	Description string `json:"description,omitempty"`
	Packaging   string `json:"packaging,omitempty"`
}

type DiscoveryFlow struct {
	llmProvider      LLMProvider
	fetcher          Fetcher
	maxTokenPerChunk int
	maxListings      int
}

func NewDiscoveryFlow(llmProvider LLMProvider, fetcher Fetcher, opts ...Option) *DiscoveryFlow {
	df := &DiscoveryFlow{
		llmProvider:      llmProvider,
		fetcher:          fetcher,
		maxTokenPerChunk: DefaultMaxTokenPerChunk,
		maxListings:      DefaultMaxListings,
	}

	for _, opt := range opts {
		opt(df)
	}

	return df
}

type Option func(df *DiscoveryFlow)

func WithMaxTokenPerChunk(maxTokenPerChunk int) Option {
	return func(df *DiscoveryFlow) {
		df.maxTokenPerChunk = maxTokenPerChunk
	}
}

func WithMaxListings(maxListings int) Option {
	return func(df *DiscoveryFlow) {
		df.maxListings = maxListings
	}
}

// DiscoverCategory fetches a marketplace category page and extracts
// the competitor listings it shows, deduplicated by name and capped at
// the configured maximum.
func (df *DiscoveryFlow) DiscoverCategory(ctx context.Context, category, pageURL string) ([]Listing, error) {
	text, err := df.fetcher.FetchText(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch category page: %w", err)
	}

	chunks, err := df.chunk(ctx, text)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var listings []Listing
	for i, chunk := range chunks {
		extracted, err := df.extractListings(ctx, category, chunk, i)
		if err != nil {
			return nil, err
		}
		for _, l := range extracted {
			key := strings.ToLower(strings.TrimSpace(l.Name))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			listings = append(listings, l)
			if len(listings) >= df.maxListings {
				return listings, nil
			}
		}
	}

	if len(listings) == 0 {
		return nil, fmt.Errorf("no listings extracted from %s", pageURL)
	}
	return listings, nil
}

// FetchDetails visits each listing's detail page and extracts brand
// and packaging information. A listing whose page cannot be fetched or
// parsed passes through unenriched; one bad page does not sink the
// whole catalogue.
func (df *DiscoveryFlow) FetchDetails(ctx context.Context, category string, listings []Listing) ([]Detail, error) {
	details := make([]Detail, 0, len(listings))
	for _, l := range listings {
		if l.DetailURL == "" {
			details = append(details, Detail{Listing: l})
			continue
		}

		detail, err := df.fetchDetail(ctx, category, l)
		if err != nil {
			log.Error(err, "failed to enrich listing", "listing", l.Name, "url", l.DetailURL)
			details = append(details, Detail{Listing: l})
			continue
		}
		details = append(details, *detail)
	}
	return details, nil
}

func (df *DiscoveryFlow) fetchDetail(ctx context.Context, category string, l Listing) (*Detail, error) {
	text, err := df.fetcher.FetchText(ctx, l.DetailURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch detail page: %w", err)
	}

	chunks, err := df.chunk(ctx, text)
	if err != nil {
		return nil, err
	}

	system, prompt, err := df.executeTemplates(DetailExtractionSystemTmpl, DetailExtractionPromptTmpl, TemplateData{
		Category:    category,
		PageText:    chunks[0],
		ListingName: l.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare detail extraction templates: %w", err)
	}

	log.Debug("detail extraction", "listing", l.Name)
	raw, err := df.llmProvider.Reasoning(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to extract detail: %w", err)
	}

	detail := Detail{Listing: l}
	payload, err := firstJSONObject(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode detail: %w", err)
	}
	// Extraction must not rename the listing or detach its page.
	detail.Name = l.Name
	detail.DetailURL = l.DetailURL
	if detail.ImageURL == "" {
		detail.ImageURL = l.ImageURL
	}
	return &detail, nil
}

func (df *DiscoveryFlow) extractListings(ctx context.Context, category, chunk string, chunkIndex int) ([]Listing, error) {
	system, prompt, err := df.executeTemplates(ListingExtractionSystemTmpl, ListingExtractionPromptTmpl, TemplateData{
		Category: category,
		PageText: chunk,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare listing extraction templates for chunk %d: %w", chunkIndex, err)
	}

	log.Debug("listing extraction", "category", category, "chunk_index", chunkIndex)
	raw, err := df.llmProvider.Reasoning(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to extract listings for chunk %d: %w", chunkIndex, err)
	}

	payload, err := firstJSONArray(raw)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", chunkIndex, err)
	}

	var listings []Listing
	if err := json.Unmarshal(payload, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings for chunk %d: %w", chunkIndex, err)
	}
	return listings, nil
}

// chunk splits page text that exceeds the token budget. Short pages
// come back as a single chunk.
func (df *DiscoveryFlow) chunk(ctx context.Context, text string) ([]string, error) {
	tokenLength, err := df.llmProvider.TokenLength(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to get token length: %w", err)
	}
	if tokenLength <= df.maxTokenPerChunk {
		return []string{text}, nil
	}

	chunks, err := df.llmProvider.TextSplit(ctx, text, df.maxTokenPerChunk, df.maxTokenPerChunk/10)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	if len(chunks) == 0 {
		return []string{text}, nil
	}
	return chunks, nil
}

func (df *DiscoveryFlow) executeTemplates(systemTmpl, promptTmpl string, data TemplateData) (string, string, error) {
	var systemBuf, promptBuf bytes.Buffer

	sysT := template.Must(template.New("system").Parse(systemTmpl))
	if err := sysT.Execute(&systemBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute system template: %w", err)
	}

	prmptT := template.Must(template.New("prompt").Parse(promptTmpl))
	if err := prmptT.Execute(&promptBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return systemBuf.String(), promptBuf.String(), nil
}

// firstJSONArray cuts the first JSON array out of model output, which
// tends to wrap it in prose or code fences.
func firstJSONArray(s string) (json.RawMessage, error) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in model output")
	}
	return json.RawMessage(s[start : end+1]), nil
}

// firstJSONObject cuts the first JSON object out of model output.
func firstJSONObject(s string) (json.RawMessage, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	return json.RawMessage(s[start : end+1]), nil
}

func (df *DiscoveryFlow) ExecuteTemplatesForTest(systemTmpl, promptTmpl string, data TemplateData) (string, string, error) {
	return df.executeTemplates(systemTmpl, promptTmpl, data)
}
