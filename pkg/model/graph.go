package model

// EdgeType classifies a dependency edge in the exported graph
type EdgeType string

const (
	EdgeModule  EdgeType = "module"  // internal target compiled as a module
	EdgeLibrary EdgeType = "library" // jar-only or external dependency
)

// Graph is the serializable view of a synced project's target graph.
// It is what the web layer hands to visualization clients.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// Node is a target in the exported graph.
type Node struct {
	ID       string                 `json:"id"`
	Label    string                 `json:"label"`
	Type     string                 `json:"type"` // rule kind, e.g. "java_library"
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is a directed dependency between two targets.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
}

// AddNode adds a node to the graph, replacing any node with the same ID.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]interface{})
	}
	g.Nodes[node.ID] = node
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(edge *Edge) {
	g.Edges = append(g.Edges, edge)
}

// GraphFromProject builds the exported graph from the targets of one sync pass.
// Edges to labels that were not loaded are classified as library edges.
func GraphFromProject(p *ProjectDetails) *Graph {
	g := NewGraph()
	kinds := make(map[Label]TargetKind, len(p.Targets))
	for _, t := range p.Targets {
		kinds[t.ID] = t.Kind
		g.AddNode(&Node{
			ID:    string(t.ID),
			Label: string(t.ID),
			Type:  string(t.Kind),
			Metadata: map[string]interface{}{
				"package": t.ID.Package(),
				"sources": len(t.Sources),
			},
		})
	}

	for _, t := range p.Targets {
		for _, dep := range t.Dependencies {
			edgeType := EdgeModule
			if kind, ok := kinds[dep]; !ok || kind.IsLibrary() || dep.IsExternal() {
				edgeType = EdgeLibrary
			}
			g.AddEdge(&Edge{Source: string(t.ID), Target: string(dep), Type: edgeType})
		}
	}
	return g
}
