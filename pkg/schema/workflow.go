package schema

// WorkflowDefinition is the wire document exchanged with the workflow
// definition service.
type WorkflowDefinition struct {
	ID           string       `json:"id"`
	WorkflowType string       `json:"workflow_type"`
	WorkflowName string       `json:"workflow_name"`
	Revision     string       `json:"revision"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
	Nodes        []Node       `json:"nodes"`
	Connections  []Connection `json:"connections"`
}

// Header returns the document fields that are not part of the graph.
func (d *WorkflowDefinition) Header() Header {
	return Header{
		ID:           d.ID,
		WorkflowType: d.WorkflowType,
		WorkflowName: d.WorkflowName,
		Revision:     d.Revision,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Header carries definition metadata so a save reproduces what was loaded.
type Header struct {
	ID           string `json:"id"`
	WorkflowType string `json:"workflow_type"`
	WorkflowName string `json:"workflow_name"`
	Revision     string `json:"revision"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Node is a workflow step as serialized on the wire.
type Node struct {
	ID          string   `json:"id"`
	NodeID      string   `json:"node_id"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Role        string   `json:"role,omitempty"`
	Outputs     []string `json:"outputs,omitzero"`
	Message     string   `json:"message,omitempty"`
	PositionX   float64  `json:"position_x"`
	PositionY   float64  `json:"position_y"`
}

// Connection is a directed edge as serialized on the wire. FromNode and
// ToNode reference Node.NodeID, not Node.ID.
type Connection struct {
	ID        string  `json:"id"`
	FromNode  string  `json:"from_node"`
	ToNode    string  `json:"to_node"`
	Condition *string `json:"condition"`
}

// Summary is one row of the definition listing endpoint.
type Summary struct {
	ID           string `json:"id"`
	WorkflowType string `json:"workflow_type"`
	WorkflowName string `json:"workflow_name"`
	Revision     string `json:"revision"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// DefinitionPage is the paged listing response.
type DefinitionPage struct {
	RecordsTotal    int       `json:"recordsTotal"`
	RecordsFiltered int       `json:"recordsFiltered"`
	Data            []Summary `json:"data"`
}

// Envelope wraps revision and save responses.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
