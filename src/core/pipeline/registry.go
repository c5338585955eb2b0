package pipeline

// Job kinds known to the orchestrator.
const (
	KindDiscovery     = "discovery-pipeline"
	KindImageAnalysis = "image-analysis"
	KindRebrand       = "rebrand"
	KindRebrandItem   = "rebrand-session-item"
)

// Definition describes one pipeline kind: its ordered step names and
// whether starting it is gated behind a credential check.
type Definition struct {
	Kind  string
	Steps []string
	Gated bool
}

func (d Definition) TotalSteps() int {
	return len(d.Steps)
}

// Registry maps job kinds to their pipeline definitions.
type Registry struct {
	defs map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Kind] = d
	}
	return r
}

func (r *Registry) Get(kind string) (Definition, bool) {
	d, ok := r.defs[kind]
	return d, ok
}

// DefaultRegistry returns the pipeline definitions shipped with the
// service. Only the full discovery pipeline is gated; single-target
// kinds run directly.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Definition{
			Kind: KindDiscovery,
			Steps: []string{
				"category-discovery",
				"detail-fetch",
				"asset-selection",
				"asset-retrieval",
				"visual-analysis",
				"attention-analysis",
				"synthesis",
			},
			Gated: true,
		},
		Definition{
			Kind: KindImageAnalysis,
			Steps: []string{
				"asset-retrieval",
				"visual-analysis",
				"attention-analysis",
				"synthesis",
			},
		},
		Definition{
			Kind: KindRebrand,
			Steps: []string{
				"brand-profile",
				"concept-generation",
				"render",
			},
		},
		Definition{
			Kind: KindRebrandItem,
			Steps: []string{
				"brand-profile",
				"concept-generation",
				"render",
			},
		},
	)
}
