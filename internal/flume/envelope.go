package flume

import "time"

// NodeMetadata describes the provenance of an envelope's records.
type NodeMetadata struct {
	NodeID      string         `json:"node_id"`
	NodeType    string         `json:"node_type"`
	Schema      DataSchema     `json:"schema"`
	RecordCount int            `json:"record_count"`
	Duration    time.Duration  `json:"duration"`
	Sources     []string       `json:"sources,omitempty"` // upstream node ids
	Custom      map[string]any `json:"custom,omitempty"`  // connector-specific diagnostics
}

// DataEnvelope is the unit of data exchanged along an edge: a record batch
// plus metadata. A node produces exactly one envelope per run; every
// downstream consumer receives it.
type DataEnvelope struct {
	Records  []map[string]any `json:"records"`
	Metadata NodeMetadata     `json:"metadata"`
}

// NewEnvelope wraps records in an envelope with the record count set.
func NewEnvelope(records []map[string]any) *DataEnvelope {
	if records == nil {
		records = []map[string]any{}
	}
	return &DataEnvelope{
		Records:  records,
		Metadata: NodeMetadata{RecordCount: len(records)},
	}
}

// Receipt builds the zero-record envelope a destination returns after
// consuming its inputs. Custom carries connector diagnostics such as the
// stored file id or rows written.
func Receipt(custom map[string]any) *DataEnvelope {
	return &DataEnvelope{
		Records:  []map[string]any{},
		Metadata: NodeMetadata{Custom: custom},
	}
}
