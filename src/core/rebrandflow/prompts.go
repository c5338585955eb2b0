package rebrandflow

const (
	BrandProfileSystemTmpl = `
You are a brand designer. You distill a brand's visual language from its packaging so it can be reapplied to other products.
`
	BrandProfilePromptTmpl = `
The attached image is the brand's reference packaging. The brand describes itself as:

<BRAND_IDENTITY>
{{.BrandIdentity}}
</BRAND_IDENTITY>

Distill the brand's transferable visual language. Return a single JSON object with these fields:
- "summary": one sentence describing the brand's visual character
- "palette": named colors with approximate hex values
- "typography": typeface character and usage rules
- "motifs": recurring shapes, patterns or illustration styles
- "voice": tone of the on-pack copy

Output only the JSON object.
`
	ConceptSystemTmpl = `
You are a packaging designer. You apply an established brand language to a new product, keeping the brand recognizable while fitting the product's category.
`
	ConceptPromptTmpl = `
Apply this brand language to "{{.TargetName}}" in the "{{.Category}}" category:

<BRAND_PROFILE>
{{.Profile}}
</BRAND_PROFILE>

Return a single JSON object with these fields:
- "summary": one sentence pitching the concept
- "front_panel": what the front of the pack shows, top to bottom
- "palette_use": how the brand palette maps onto this pack
- "copy": the headline and supporting lines for the pack
- "differentiation": how the pack stands apart from typical {{.Category}} packaging

Output only the JSON object.
`
	RenderSpecSystemTmpl = `
You are a production designer. You turn packaging concepts into exact rendering instructions a layout artist can execute without further questions.
`
	RenderSpecPromptTmpl = `
Turn this concept for "{{.TargetName}}" into rendering instructions:

<CONCEPT>
{{.Concept}}
</CONCEPT>

Return a single JSON object with these fields:
- "summary": one sentence describing the finished pack
- "canvas": aspect ratio and safe margins
- "regions": ordered layout regions, each with "name", "bounds" (percent-based), and "content"
- "palette": exact hex values by role (background, primary, accent, text)
- "type_spec": families, weights and sizes by text role

Output only the JSON object.
`
)
