package flume

// FieldType enumerates the value types a schema field can carry.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldJSON    FieldType = "json"
)

// FieldDefinition describes a single field in a data schema. SourceNode tracks
// which node produced the field, for lineage across merges.
type FieldDefinition struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	SourceNode  string    `json:"source_node,omitempty"`
	Nullable    bool      `json:"nullable"`
	Description string    `json:"description,omitempty"`
}

// DataSchema is the shape of the records flowing out of a node. SourceNodes
// lists every contributing node for merged data.
type DataSchema struct {
	Fields      []FieldDefinition `json:"fields"`
	SourceNodes []string          `json:"source_nodes,omitempty"`
}

// Field returns the definition for name, or false when absent.
func (s *DataSchema) Field(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}
