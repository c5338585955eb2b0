package discoveryflow_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"packsight/src/core/discoveryflow"
)

type fakeProvider struct {
	responses []string
	calls     int
	systems   []string
	prompts   []string
	tokens    int
	chunks    []string
}

func (p *fakeProvider) TextSplit(ctx context.Context, text string, chunkSize, chunkOverlap int) ([]string, error) {
	return p.chunks, nil
}

func (p *fakeProvider) Reasoning(ctx context.Context, system string, prompt string) (string, error) {
	p.systems = append(p.systems, system)
	p.prompts = append(p.prompts, prompt)
	if p.calls >= len(p.responses) {
		return "", fmt.Errorf("unexpected Reasoning call %d", p.calls)
	}
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}

func (p *fakeProvider) TokenLength(ctx context.Context, text string) (int, error) {
	return p.tokens, nil
}

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string) (string, error) {
	text, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return text, nil
}

func TestDiscoverCategoryExtractsListings(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://market.example.com/coffee": "Dawn Cold Brew $12.99 ... Dusk Espresso $9.99",
	}}
	provider := &fakeProvider{responses: []string{
		"Here are the products I found:\n```json\n[" +
			`{"name":"Dawn Cold Brew","detail_url":"https://market.example.com/p/dawn","image_url":"https://cdn.example.com/dawn.png"},` +
			`{"name":"Dusk Espresso"}` +
			"]\n```",
	}}
	df := discoveryflow.NewDiscoveryFlow(provider, fetcher)

	listings, err := df.DiscoverCategory(ctx, "coffee", "https://market.example.com/coffee")
	if err != nil {
		t.Fatalf("DiscoverCategory() error = %v", err)
	}

	if len(listings) != 2 {
		t.Fatalf("listings = %d, want 2", len(listings))
	}
	if listings[0].Name != "Dawn Cold Brew" || listings[0].DetailURL != "https://market.example.com/p/dawn" {
		t.Errorf("listings[0] = %+v, want Dawn Cold Brew with detail url", listings[0])
	}
	if listings[1].Name != "Dusk Espresso" || listings[1].DetailURL != "" {
		t.Errorf("listings[1] = %+v, want Dusk Espresso without detail url", listings[1])
	}

	// The page text and category both reach the model verbatim.
	if !strings.Contains(provider.prompts[0], "Dawn Cold Brew $12.99") {
		t.Error("prompt does not carry the page text")
	}
	if !strings.Contains(provider.prompts[0], `"coffee"`) {
		t.Error("prompt does not carry the category")
	}
}

func TestDiscoverCategoryDeduplicatesAcrossChunks(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://market.example.com/coffee": "a very long page",
	}}
	provider := &fakeProvider{
		tokens: 9999,
		chunks: []string{"chunk one", "chunk two"},
		responses: []string{
			`[{"name":"Dawn Cold Brew"},{"name":"  dawn cold brew "},{"name":""}]`,
			`[{"name":"DAWN COLD BREW"},{"name":"Noon Filter"}]`,
		},
	}
	df := discoveryflow.NewDiscoveryFlow(provider, fetcher)

	listings, err := df.DiscoverCategory(ctx, "coffee", "https://market.example.com/coffee")
	if err != nil {
		t.Fatalf("DiscoverCategory() error = %v", err)
	}

	if len(listings) != 2 {
		t.Fatalf("listings = %v, want Dawn Cold Brew and Noon Filter only", listings)
	}
	if listings[0].Name != "Dawn Cold Brew" || listings[1].Name != "Noon Filter" {
		t.Errorf("listings = %v, want [Dawn Cold Brew, Noon Filter]", listings)
	}
	if provider.calls != 2 {
		t.Errorf("Reasoning calls = %d, want one per chunk", provider.calls)
	}
}

func TestDiscoverCategoryCapsListings(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://market.example.com/coffee": "page",
	}}
	provider := &fakeProvider{responses: []string{
		`[{"name":"Dawn Cold Brew"},{"name":"Dusk Espresso"},{"name":"Noon Filter"}]`,
	}}
	df := discoveryflow.NewDiscoveryFlow(provider, fetcher, discoveryflow.WithMaxListings(2))

	listings, err := df.DiscoverCategory(ctx, "coffee", "https://market.example.com/coffee")
	if err != nil {
		t.Fatalf("DiscoverCategory() error = %v", err)
	}
	if len(listings) != 2 {
		t.Errorf("listings = %d, want capped at 2", len(listings))
	}
}

func TestDiscoverCategoryNoListings(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://market.example.com/coffee": "page",
	}}
	provider := &fakeProvider{responses: []string{`[]`}}
	df := discoveryflow.NewDiscoveryFlow(provider, fetcher)

	_, err := df.DiscoverCategory(ctx, "coffee", "https://market.example.com/coffee")
	if err == nil {
		t.Fatal("DiscoverCategory() error = nil, want no-listings error")
	}
}

func TestFetchDetailsEnrichesListings(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://market.example.com/p/dusk": "Dusk Espresso, dark roast in a matte black tin",
	}}
	provider := &fakeProvider{responses: []string{
		`Sure, here it is: {"name":"Renamed By Model","brand":"Dusk Co","description":"A bold dark roast.","packaging":"matte black tin"}`,
	}}
	df := discoveryflow.NewDiscoveryFlow(provider, fetcher)

	listings := []discoveryflow.Listing{
		{Name: "Dawn Cold Brew"},
		{Name: "Dusk Espresso", DetailURL: "https://market.example.com/p/dusk", ImageURL: "https://cdn.example.com/dusk.png"},
		{Name: "Noon Filter", DetailURL: "https://market.example.com/p/missing"},
	}

	details, err := df.FetchDetails(ctx, "coffee", listings)
	if err != nil {
		t.Fatalf("FetchDetails() error = %v", err)
	}
	if len(details) != 3 {
		t.Fatalf("details = %d, want 3", len(details))
	}

	// No detail page: passes through unenriched.
	if details[0].Name != "Dawn Cold Brew" || details[0].Brand != "" {
		t.Errorf("details[0] = %+v, want unenriched passthrough", details[0])
	}

	// Enrichment keeps the listing identity and falls back to the
	// listing image when the page offers none.
	if details[1].Name != "Dusk Espresso" {
		t.Errorf("details[1].Name = %q, extraction must not rename the listing", details[1].Name)
	}
	if details[1].Brand != "Dusk Co" || details[1].Packaging != "matte black tin" {
		t.Errorf("details[1] = %+v, want extracted brand and packaging", details[1])
	}
	if details[1].ImageURL != "https://cdn.example.com/dusk.png" {
		t.Errorf("details[1].ImageURL = %q, want listing fallback", details[1].ImageURL)
	}

	// A page that cannot be fetched does not sink the catalogue.
	if details[2].Name != "Noon Filter" || details[2].Brand != "" {
		t.Errorf("details[2] = %+v, want unenriched passthrough", details[2])
	}
}

func TestExecuteTemplates(t *testing.T) {
	df := discoveryflow.NewDiscoveryFlow(nil, nil)

	tests := []struct {
		name       string
		systemTmpl string
		promptTmpl string
		data       discoveryflow.TemplateData
		wantSystem string
		wantPrompt string
		wantErr    bool
	}{
		{
			name:       "interpolates category and page text",
			systemTmpl: "You classify {{.Category}} products.",
			promptTmpl: "Page:\n{{.PageText}}",
			data:       discoveryflow.TemplateData{Category: "coffee", PageText: "Dawn Cold Brew"},
			wantSystem: "You classify coffee products.",
			wantPrompt: "Page:\nDawn Cold Brew",
		},
		{
			name:       "interpolates listing name",
			systemTmpl: "analyst",
			promptTmpl: "Extract {{.ListingName}} facts",
			data:       discoveryflow.TemplateData{ListingName: "Dusk Espresso"},
			wantSystem: "analyst",
			wantPrompt: "Extract Dusk Espresso facts",
		},
		{
			name:       "unknown field fails",
			systemTmpl: "analyst",
			promptTmpl: "{{.DoesNotExist}}",
			data:       discoveryflow.TemplateData{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, prompt, err := df.ExecuteTemplatesForTest(tt.systemTmpl, tt.promptTmpl, tt.data)
			if tt.wantErr {
				if err == nil {
					t.Error("ExecuteTemplatesForTest() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ExecuteTemplatesForTest() error = %v", err)
			}
			if system != tt.wantSystem {
				t.Errorf("system = %q, want %q", system, tt.wantSystem)
			}
			if prompt != tt.wantPrompt {
				t.Errorf("prompt = %q, want %q", prompt, tt.wantPrompt)
			}
		})
	}
}
