package rebrandflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"packsight/src/log"
)

type LLMProvider interface {
	Reasoning(ctx context.Context, system string, prompt string) (string, error)
	Vision(ctx context.Context, system string, prompt string, image []byte) (string, error)
}

// Target is the product whose packaging gets reimagined.
type Target struct {
	Name     string
	ImageURL string
}

// TemplateData holds all the data needed for template execution
type TemplateData struct {
	BrandIdentity string
	Category      string
	TargetName    string
	Profile       string
	Concept       string
}

// Report mirrors a flow result: human summary plus the structured
// payload stored verbatim by the orchestrator.
type Report struct {
	Summary string
	Detail  json.RawMessage
}

type RebrandFlow struct {
	llmProvider LLMProvider
}

func NewRebrandFlow(llmProvider LLMProvider) *RebrandFlow {
	return &RebrandFlow{llmProvider: llmProvider}
}

// BrandProfile distills the brand's visual language from its reference
// packaging asset and the identity text supplied by the caller.
func (rf *RebrandFlow) BrandProfile(ctx context.Context, brandIdentity string, sourceAsset []byte) (*Report, error) {
	system, prompt, err := executeTemplates(BrandProfileSystemTmpl, BrandProfilePromptTmpl, TemplateData{
		BrandIdentity: brandIdentity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare brand profile templates: %w", err)
	}

	log.Debug("brand profile", "asset_bytes", len(sourceAsset))
	raw, err := rf.llmProvider.Vision(ctx, system, prompt, sourceAsset)
	if err != nil {
		return nil, fmt.Errorf("failed to get brand profile: %w", err)
	}
	return reportFrom(raw)
}

// GenerateConcept applies the brand profile to one target product,
// producing a packaging concept for it.
func (rf *RebrandFlow) GenerateConcept(ctx context.Context, profile json.RawMessage, target Target, category string) (*Report, error) {
	system, prompt, err := executeTemplates(ConceptSystemTmpl, ConceptPromptTmpl, TemplateData{
		Category:   category,
		TargetName: target.Name,
		Profile:    string(profile),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare concept templates: %w", err)
	}

	log.Debug("concept generation", "target", target.Name)
	raw, err := rf.llmProvider.Reasoning(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to get concept: %w", err)
	}
	return reportFrom(raw)
}

// RenderSpec turns a concept into production-ready rendering
// instructions: layout regions, exact palette, copy blocks.
func (rf *RebrandFlow) RenderSpec(ctx context.Context, concept json.RawMessage, target Target) (*Report, error) {
	system, prompt, err := executeTemplates(RenderSpecSystemTmpl, RenderSpecPromptTmpl, TemplateData{
		TargetName: target.Name,
		Concept:    string(concept),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare render spec templates: %w", err)
	}

	log.Debug("render spec", "target", target.Name)
	raw, err := rf.llmProvider.Reasoning(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to get render spec: %w", err)
	}
	return reportFrom(raw)
}

func reportFrom(raw string) (*Report, error) {
	detail, err := firstJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(detail, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if probe.Summary == "" {
		probe.Summary = snippet(raw)
	}

	return &Report{Summary: probe.Summary, Detail: detail}, nil
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 140 {
		return s[:140]
	}
	return s
}

func executeTemplates(systemTmpl, promptTmpl string, data TemplateData) (string, string, error) {
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

func firstJSONObject(s string) (json.RawMessage, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	return json.RawMessage(s[start : end+1]), nil
}
