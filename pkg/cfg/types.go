package cfg

// EdgeType classifies an edge in an exported graph.
type EdgeType string

const (
	EdgeTypeFlow     EdgeType = "flow"      // Ordinary successor
	EdgeTypeBackEdge EdgeType = "back_edge" // Target precedes source in creation order (loop continuation)
)

// NodeInfo is the exported view of one control point.
type NodeInfo struct {
	ID       int      `json:"id" msgpack:"id"`
	Reached  bool     `json:"reached" msgpack:"reached"`
	Usages   []string `json:"usages,omitempty" msgpack:"usages,omitempty"`
	Subtrees []string `json:"subtrees,omitempty" msgpack:"subtrees,omitempty"`
}

// EdgeInfo is a directed edge between two control points.
type EdgeInfo struct {
	SourceID int      `json:"source_id" msgpack:"source_id"`
	TargetID int      `json:"target_id" msgpack:"target_id"`
	EdgeType EdgeType `json:"edge_type" msgpack:"edge_type"`
}

// GraphInfo is the exported flow graph of one function.
type GraphInfo struct {
	FunctionName         string     `json:"function_name" msgpack:"function_name"`
	Nodes                []NodeInfo `json:"nodes" msgpack:"nodes"`
	Edges                []EdgeInfo `json:"edges" msgpack:"edges"`
	EntryNodeID          int        `json:"entry_node_id" msgpack:"entry_node_id"`
	ExitNodeID           int        `json:"exit_node_id" msgpack:"exit_node_id"` // -1 when the end is unreachable
	CyclomaticComplexity int        `json:"cyclomatic_complexity" msgpack:"cyclomatic_complexity"`
}
