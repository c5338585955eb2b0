package discoveryflow

const (
	ListingExtractionSystemTmpl = `
You are a retail market analyst. You read raw text scraped from online marketplace category pages and identify the distinct products listed on them.
`
	ListingExtractionPromptTmpl = `
The text below was scraped from a marketplace page for the "{{.Category}}" category. Identify every distinct product listing in it.

Return a JSON array, one object per product, with these fields:
- "name": the product's display name
- "detail_url": the product's own page URL if present in the text, else omit
- "image_url": the product's image URL if present in the text, else omit

Output only the JSON array. Do not invent products that are not in the text.

<PAGE_TEXT>
{{.PageText}}
</PAGE_TEXT>
`
	DetailExtractionSystemTmpl = `
You are a retail market analyst. You read raw text scraped from a product detail page and extract structured facts about the product and its packaging.
`
	DetailExtractionPromptTmpl = `
The text below was scraped from the detail page of "{{.ListingName}}" in the "{{.Category}}" category.

Return a single JSON object with these fields:
- "brand": the brand name, else omit
- "description": one or two sentences describing the product
- "packaging": a short description of the packaging format and materials if stated
- "image_url": the main product image URL if present in the text, else omit

Output only the JSON object.

<PAGE_TEXT>
{{.PageText}}
</PAGE_TEXT>
`
)
