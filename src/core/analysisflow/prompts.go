package analysisflow

const (
	VisualAnalysisSystemTmpl = `
You are a packaging design expert. You analyze product packaging photographs and describe their design decisions precisely.
`
	VisualAnalysisPromptTmpl = `
Analyze the packaging of "{{.ProductName}}" shown in the attached image.

Return a single JSON object with these fields:
- "summary": one sentence capturing the overall design impression
- "palette": the dominant colors, most prominent first
- "typography": typeface character, weight, and case usage
- "imagery": photography, illustration or pattern use
- "hierarchy": what reads first, second, third
- "claims": any visible marketing claims or badges

Output only the JSON object.
`
	AttentionAnalysisSystemTmpl = `
You are a shopper attention researcher. You estimate how a shopper's gaze moves across product packaging in the first seconds of exposure.
`
	AttentionAnalysisPromptTmpl = `
The packaging of "{{.ProductName}}" is attached. An earlier design analysis found:

<VISUAL_FINDINGS>
{{.VisualFindings}}
</VISUAL_FINDINGS>

Estimate the shopper's attention flow over this packaging. Return a single JSON object with these fields:
- "summary": one sentence on where attention lands first
- "fixations": ordered list of regions by likely gaze order, each with "region" and "reason"
- "overlooked": elements likely to be missed
- "shelf_standout": how the pack competes for attention at shelf distance, as a short paragraph

Output only the JSON object.
`
	SynthesisSystemTmpl = `
You are a senior packaging strategist. You combine design and attention findings into a final assessment with concrete recommendations.
`
	SynthesisPromptTmpl = `
Combine the findings below into a final packaging assessment for "{{.ProductName}}".

<FINDINGS>
{{.Findings}}
</FINDINGS>

Return a single JSON object with these fields:
- "summary": one sentence verdict
- "strengths": what the current packaging does well
- "weaknesses": where it underperforms
- "recommendations": ordered, concrete changes, most impactful first

Output only the JSON object.
`
)
