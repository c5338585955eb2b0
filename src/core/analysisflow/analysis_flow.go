package analysisflow

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

// TemplateData holds all the data needed for template execution
type TemplateData struct {
	ProductName    string
	VisualFindings string
	Findings       string
}

// Report is one analysis product: a one-line human summary plus the
// model's structured findings. The orchestrator stores Detail verbatim
// and never interprets it.
type Report struct {
	Summary string
	Detail  json.RawMessage
}

type AnalysisFlow struct {
	llmProvider LLMProvider
}

func NewAnalysisFlow(llmProvider LLMProvider) *AnalysisFlow {
	return &AnalysisFlow{llmProvider: llmProvider}
}

// VisualAnalysis describes the packaging design visible in the image:
// palette, typography, imagery, hierarchy and claims.
func (af *AnalysisFlow) VisualAnalysis(ctx context.Context, productName string, image []byte) (*Report, error) {
	system, prompt, err := executeTemplates(VisualAnalysisSystemTmpl, VisualAnalysisPromptTmpl, TemplateData{
		ProductName: productName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare visual analysis templates: %w", err)
	}

	log.Debug("visual analysis", "product", productName, "image_bytes", len(image))
	raw, err := af.llmProvider.Vision(ctx, system, prompt, image)
	if err != nil {
		return nil, fmt.Errorf("failed to get visual analysis: %w", err)
	}
	return reportFrom(raw)
}

// AttentionAnalysis estimates where a shopper's eye lands first on the
// packaging, informed by the prior visual findings.
func (af *AnalysisFlow) AttentionAnalysis(ctx context.Context, productName string, image []byte, visual json.RawMessage) (*Report, error) {
	system, prompt, err := executeTemplates(AttentionAnalysisSystemTmpl, AttentionAnalysisPromptTmpl, TemplateData{
		ProductName:    productName,
		VisualFindings: string(visual),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare attention analysis templates: %w", err)
	}

	log.Debug("attention analysis", "product", productName)
	raw, err := af.llmProvider.Vision(ctx, system, prompt, image)
	if err != nil {
		return nil, fmt.Errorf("failed to get attention analysis: %w", err)
	}
	return reportFrom(raw)
}

// Synthesize folds the accumulated findings into one final assessment
// with concrete packaging recommendations.
func (af *AnalysisFlow) Synthesize(ctx context.Context, productName string, findings []json.RawMessage) (*Report, error) {
	joined := make([]string, 0, len(findings))
	for _, f := range findings {
		if len(f) > 0 {
			joined = append(joined, string(f))
		}
	}

	system, prompt, err := executeTemplates(SynthesisSystemTmpl, SynthesisPromptTmpl, TemplateData{
		ProductName: productName,
		Findings:    strings.Join(joined, "\n"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare synthesis templates: %w", err)
	}

	log.Debug("synthesis", "product", productName, "findings", len(joined))
	raw, err := af.llmProvider.Reasoning(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to get synthesis: %w", err)
	}
	return reportFrom(raw)
}

// reportFrom parses the model output into a report. The detail payload
// stays as the model produced it; only the summary field is lifted out.
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
